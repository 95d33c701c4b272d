package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cardforge/internal/api"
	"cardforge/internal/jobs"
	"cardforge/internal/logging"
	"cardforge/internal/png"
)

const (
	maxInputBytes = 1 << 20  // 1 MiB of source text
	maxImageBytes = 20 << 20 // 20 MiB base image
)

type apiServer struct {
	daemon   *Daemon
	bind     string
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

func newAPIServer(d *Daemon, bind string, logger *slog.Logger) *apiServer {
	return &apiServer{
		daemon: d,
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
	}
}

func (s *apiServer) Start() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.bind, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", logging.Error(err))
		}
	}()
	return nil
}

func (s *apiServer) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("api server shutdown", logging.Error(err))
	}
}

func (s *apiServer) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Get("/stream", s.handleStreamJob)
				r.Get("/result", s.handleJobResult)
				r.Get("/image", s.handleJobImage)
			})
		})
	})
	return r
}

func (s *apiServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)))
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status, err := s.daemon.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	input, image, err := decodeCreateRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.daemon.workflow.Create(r.Context(), input, image)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.JobFromRecord(record)})
}

// decodeCreateRequest accepts either a JSON body or multipart form data with
// an input field/file and an optional image file.
func decodeCreateRequest(r *http.Request) (string, []byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxInputBytes + maxImageBytes); err != nil {
			return "", nil, fmt.Errorf("%w: parse form: %v", jobs.ErrInvalidInput, err)
		}
		input := r.FormValue("input")
		if input == "" {
			if file, _, err := r.FormFile("input"); err == nil {
				data, readErr := io.ReadAll(io.LimitReader(file, maxInputBytes))
				file.Close()
				if readErr != nil {
					return "", nil, fmt.Errorf("%w: read input file: %v", jobs.ErrInvalidInput, readErr)
				}
				input = string(data)
			}
		}
		var image []byte
		if file, _, err := r.FormFile("image"); err == nil {
			data, readErr := io.ReadAll(io.LimitReader(file, maxImageBytes))
			file.Close()
			if readErr != nil {
				return "", nil, fmt.Errorf("%w: read image file: %v", jobs.ErrInvalidInput, readErr)
			}
			image = data
		}
		return input, image, nil
	}

	var req api.CreateJobRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxInputBytes+maxImageBytes)).Decode(&req); err != nil {
		return "", nil, fmt.Errorf("%w: decode body: %v", jobs.ErrInvalidInput, err)
	}
	var image []byte
	if req.Image != "" {
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			return "", nil, fmt.Errorf("%w: image is not base64", jobs.ErrInvalidInput)
		}
		image = data
	}
	return req.Input, image, nil
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	records, err := s.daemon.workflow.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := api.JobListResponse{Jobs: make([]api.Job, 0, len(records))}
	for _, record := range records {
		resp.Jobs = append(resp.Jobs, api.JobFromRecord(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	detail, err := s.daemon.workflow.Describe(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := api.JobDetail{
		Job:        api.JobFromRecord(detail.Record),
		Input:      detail.Input,
		StreamText: detail.StreamText,
		Raw:        detail.Raw,
	}
	if len(detail.Result) > 0 {
		resp.Result = json.RawMessage(detail.Result)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	hub, err := s.daemon.workflow.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cursor := 0
	for {
		snapshot, err := hub.Fetch(r.Context(), cursor, true)
		if err != nil {
			// Client went away.
			return
		}
		for _, fragment := range snapshot.Fragments {
			if err := writeSSE(w, "fragment", fragment); err != nil {
				return
			}
		}
		flusher.Flush()
		cursor = snapshot.Next
		if snapshot.Done {
			end := api.StreamEnd{Status: snapshot.Status, Error: snapshot.Err}
			if err := writeSSE(w, "end", end); err != nil {
				return
			}
			flusher.Flush()
			return
		}
	}
}

// writeSSE emits one event with a JSON-encoded data line, so fragments with
// embedded newlines survive the framing.
func writeSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func (s *apiServer) handleJobResult(w http.ResponseWriter, r *http.Request) {
	data, err := s.daemon.workflow.DownloadResult(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *apiServer) handleJobImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.daemon.workflow.DownloadImage(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, jobs.ErrInvalidInput), errors.Is(err, png.ErrMalformedImage):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", logging.Error(err))
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
