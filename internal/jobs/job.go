// Package jobs holds the job domain: tasks, outcome tracking, and the service
// object that request handlers use to submit, fetch, and delete jobs.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Status is the externally observable state of a job.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Task is one unit of work on the queue.
type Task struct {
	ID          string
	Text        string
	OutputPath  string
	SubmittedAt time.Time
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape of an issued job identifier.
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}

	// uuid.Parse also accepts urn and braced forms; only the canonical form is ever issued.
	return parsed.String() == id
}
