package jobs

import (
	"sync"
	"time"
)

// Record is the tracked outcome of a job that has not materialized.
type Record struct {
	Status    Status
	Reason    string
	UpdatedAt time.Time
}

// Tracker remembers pending, processing, and failed jobs in memory.
// It never records completion: a finished job is one whose artifact exists.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// MarkPending records a freshly submitted job.
func (t *Tracker) MarkPending(id string) {
	t.set(id, StatusPending, "")
}

// MarkProcessing records that the worker picked the job up.
func (t *Tracker) MarkProcessing(id string) {
	t.set(id, StatusProcessing, "")
}

// MarkFailed records a terminal synthesis failure.
func (t *Tracker) MarkFailed(id, reason string) {
	t.set(id, StatusFailed, reason)
}

// Forget drops the record for a job.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, id)
}

// Lookup returns the record for a job, if any.
func (t *Tracker) Lookup(id string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[id]

	return record, ok
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.records)
}

func (t *Tracker) set(id string, status Status, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[id] = Record{
		Status:    status,
		Reason:    reason,
		UpdatedAt: t.now(),
	}
}
