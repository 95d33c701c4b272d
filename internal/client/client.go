// Package client is the HTTP client the CLI uses to talk to the daemon.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cardforge/internal/api"
)

// Client talks to a running cardforged instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient carries no overall timeout; SSE follows run until the job
	// ends or the context is canceled.
	streamClient *http.Client
}

// New builds a client for the daemon at baseURL (e.g. "http://127.0.0.1:7322").
func New(baseURL string) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	return &Client{
		baseURL:      trimmed,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

// StatusError carries the HTTP status and daemon error message of a failed call.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon: http %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a daemon 404.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// IsNotReady reports whether err is a daemon 409.
func IsNotReady(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict
}

// CreateJob submits input text and an optional base image.
func (c *Client) CreateJob(ctx context.Context, input string, image []byte) (api.Job, error) {
	req := api.CreateJobRequest{Input: input}
	if len(image) > 0 {
		req.Image = base64.StdEncoding.EncodeToString(image)
	}
	var resp api.JobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return api.Job{}, err
	}
	return resp.Job, nil
}

// ListJobs returns all jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]api.Job, error) {
	var resp api.JobListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob returns one job's detail view.
func (c *Client) GetJob(ctx context.Context, id string) (api.JobDetail, error) {
	var resp api.JobDetail
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+id, nil, &resp); err != nil {
		return api.JobDetail{}, err
	}
	return resp, nil
}

// Status returns the daemon's runtime status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var resp api.DaemonStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return api.DaemonStatus{}, err
	}
	return resp, nil
}

// Health probes the daemon.
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	return c.doJSON(ctx, http.MethodGet, "/api/health", nil, &resp)
}

// DownloadResult fetches a completed job's card document.
func (c *Client) DownloadResult(ctx context.Context, id string) ([]byte, error) {
	return c.doRaw(ctx, "/api/jobs/"+id+"/result")
}

// DownloadImage fetches a completed job's card PNG.
func (c *Client) DownloadImage(ctx context.Context, id string) ([]byte, error) {
	return c.doRaw(ctx, "/api/jobs/"+id+"/image")
}

// Stream follows a job's output, invoking onFragment per fragment, and
// returns the terminal marker.
func (c *Client) Stream(ctx context.Context, id string, onFragment func(string)) (api.StreamEnd, error) {
	var end api.StreamEnd
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+id+"/stream", nil)
	if err != nil {
		return end, fmt.Errorf("client: new request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return end, fmt.Errorf("client: stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return end, decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		if value, ok := strings.CutPrefix(line, "event: "); ok {
			event = value
			continue
		}
		value, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		switch event {
		case "fragment":
			var fragment string
			if err := json.Unmarshal([]byte(value), &fragment); err != nil {
				return end, fmt.Errorf("client: decode fragment: %w", err)
			}
			if onFragment != nil {
				onFragment(fragment)
			}
		case "end":
			if err := json.Unmarshal([]byte(value), &end); err != nil {
				return end, fmt.Errorf("client: decode end event: %w", err)
			}
			return end, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return end, fmt.Errorf("client: read stream: %w", err)
	}
	return end, fmt.Errorf("client: stream ended without terminal event")
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	return data, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	var payload api.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
