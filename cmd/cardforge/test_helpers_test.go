package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cardforge/internal/api"
)

// newStubServer serves canned daemon responses for CLI tests.
func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()

	jobEve := api.Job{
		ID:        "aabbccddeeff00112233445566778899",
		Status:    "completed",
		Model:     "gpt-4o-mini",
		CreatedAt: "2026-08-24T10:00:00.000Z",
		HasResult: true,
		HasImage:  true,
		TokenUsage: &api.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}
	jobPending := api.Job{
		ID:        "99887766554433221100ffeeddccbbaa",
		Status:    "pending",
		Model:     "gpt-4o-mini",
		CreatedAt: "2026-08-24T10:05:00.000Z",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.JobListResponse{Jobs: []api.Job{jobPending, jobEve}})
	})
	mux.HandleFunc("POST /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Input) == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "input is required"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.JobResponse{Job: jobPending})
	})
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != jobEve.ID {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job not found"})
			return
		}
		json.NewEncoder(w).Encode(api.JobDetail{
			Job:        jobEve,
			Input:      "Name: Eve",
			StreamText: `{"name":"Eve"}`,
		})
	})
	mux.HandleFunc("GET /api/jobs/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, fragment := range []string{`{"name":`, `"Eve"}`} {
			data, _ := json.Marshal(fragment)
			fmt.Fprintf(w, "event: fragment\ndata: %s\n\n", data)
		}
		end, _ := json.Marshal(api.StreamEnd{Status: "completed"})
		fmt.Fprintf(w, "event: end\ndata: %s\n\n", end)
	})
	mux.HandleFunc("GET /api/jobs/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"spec":"chara_card_v3","name":"Eve"}`)
	})
	mux.HandleFunc("GET /api/jobs/{id}/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG\r\n\x1a\nstub"))
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.DaemonStatus{
			Running:     true,
			PID:         4242,
			DataDir:     "/tmp/cardforge",
			WorkerSlots: 2,
			KeepMax:     10,
			Jobs:        api.JobCounts{Total: 2, Pending: 1, Completed: 1},
		})
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func runCLI(t *testing.T, args []string, server string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if server != "" {
		args = append(args, "--server", server)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
