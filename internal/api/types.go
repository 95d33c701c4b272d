// Package api defines the transport payloads exchanged between the daemon's
// HTTP API and its clients.
package api

import (
	"encoding/json"
	"time"

	"cardforge/internal/jobs"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CreateJobRequest is the JSON body accepted by POST /api/jobs. Image carries
// an optional base64-encoded PNG.
type CreateJobRequest struct {
	Input string `json:"input"`
	Image string `json:"image,omitempty"`
}

// TokenUsage mirrors the model token accounting on a completed job.
type TokenUsage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// Job describes a conversion job in a transport-friendly format.
type Job struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Model        string      `json:"model"`
	CreatedAt    string      `json:"createdAt,omitempty"`
	UpdatedAt    string      `json:"updatedAt,omitempty"`
	StartedAt    string      `json:"startedAt,omitempty"`
	CompletedAt  string      `json:"completedAt,omitempty"`
	ErrorKind    string      `json:"errorKind,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	TokenUsage   *TokenUsage `json:"tokenUsage,omitempty"`
	HasBaseImage bool        `json:"hasBaseImage"`
	HasResult    bool        `json:"hasResult"`
	HasImage     bool        `json:"hasImage"`
}

// JobDetail extends Job with the job's input, buffered stream text, and the
// result document once terminal.
type JobDetail struct {
	Job
	Input      string          `json:"input,omitempty"`
	StreamText string          `json:"streamText,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Raw        string          `json:"raw,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// StreamEnd is the payload of the terminal SSE event on a job stream.
type StreamEnd struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// JobCounts aggregates jobs per lifecycle state.
type JobCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool      `json:"running"`
	PID          int       `json:"pid"`
	LockFilePath string    `json:"lockFilePath"`
	DataDir      string    `json:"dataDir"`
	WorkerSlots  int       `json:"workerSlots"`
	KeepMax      int       `json:"keepMax"`
	Jobs         JobCounts `json:"jobs"`
}

// HealthResponse is the GET /api/health payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JobFromRecord converts a store record into its transport form.
func JobFromRecord(record *jobs.Record) Job {
	job := Job{
		ID:           record.ID,
		Status:       string(record.Status),
		Model:        record.Model,
		CreatedAt:    formatTime(record.CreatedAt),
		UpdatedAt:    formatTime(record.UpdatedAt),
		ErrorKind:    record.ErrorKind,
		ErrorMessage: record.ErrorMessage,
		HasBaseImage: record.Artifacts.BaseImage != "",
		HasResult:    record.Artifacts.Result != "",
		HasImage:     record.Artifacts.CardImage != "",
	}
	if record.StartedAt != nil {
		job.StartedAt = formatTime(*record.StartedAt)
	}
	if record.CompletedAt != nil {
		job.CompletedAt = formatTime(*record.CompletedAt)
	}
	if record.TokenUsage != nil {
		job.TokenUsage = &TokenUsage{
			PromptTokens:     record.TokenUsage.PromptTokens,
			CompletionTokens: record.TokenUsage.CompletionTokens,
			TotalTokens:      record.TokenUsage.TotalTokens,
		}
	}
	return job
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
