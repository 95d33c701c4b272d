package jobs

import "errors"

var (
	// ErrNotFound reports an unknown or already-deleted job, or a missing
	// artifact on an otherwise known job.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady reports an artifact requested before the job completed.
	ErrNotReady = errors.New("job not ready")

	// ErrInvalidInput reports a create request that cannot form a job.
	ErrInvalidInput = errors.New("invalid job input")

	// ErrInvalidTransition reports an illegal status change, including any
	// attempt to mutate a terminal record.
	ErrInvalidTransition = errors.New("invalid status transition")
)
