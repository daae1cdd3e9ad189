package history

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates terminal build run states.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Run records a single builder invocation. Rows are append-only.
type Run struct {
	ID        string
	Target    string
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
	Output    string // truncated builder output, empty on success
}

// NewRun creates a run record with a fresh ID.
func NewRun(target string) Run {
	return Run{
		ID:        uuid.NewString(),
		Target:    target,
		StartedAt: time.Now(),
	}
}
