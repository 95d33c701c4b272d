package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Lifecycle is strictly forward: pending -> running -> {completed|failed}.
// pending -> failed covers jobs interrupted before a worker picked them up.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// Failure kinds persisted on failed records.
const (
	FailKindModelInvocation = "model_invocation"
	FailKindTimeout         = "timeout"
	FailKindCardAssembly    = "card_assembly"
	FailKindMalformedImage  = "malformed_image"
	FailKindInterrupted     = "interrupted"
)

// InterruptedMessage is the error message set when a daemon restart fails
// jobs that were stranded mid-flight.
const InterruptedMessage = "daemon restarted while job was in flight"

// TokenUsage records the model token accounting for a completed job.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Artifacts names the files a job has produced inside its directory.
type Artifacts struct {
	Input     string `json:"input,omitempty"`
	Stream    string `json:"stream,omitempty"`
	Raw       string `json:"raw,omitempty"`
	Result    string `json:"result,omitempty"`
	BaseImage string `json:"base_image,omitempty"`
	CardImage string `json:"card_image,omitempty"`
}

// Record is the job metadata persisted as meta.json.
type Record struct {
	ID           string      `json:"id"`
	Status       Status      `json:"status"`
	Model        string      `json:"model"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ErrorKind    string      `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error,omitempty"`
	TokenUsage   *TokenUsage `json:"token_usage,omitempty"`
	Artifacts    Artifacts   `json:"artifacts"`
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Terminal reports whether the record has reached a final state.
func (r *Record) Terminal() bool {
	return r.Status.Terminal()
}

// CanTransition reports whether a move from the record's current status to
// next is legal.
func (r *Record) CanTransition(next Status) bool {
	for _, allowed := range allowedTransitions[r.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}
