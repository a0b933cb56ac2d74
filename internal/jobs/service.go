package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/jobstore"
)

var (
	// ErrEmptyText indicates a submission without text to synthesize.
	ErrEmptyText = errors.New("missing or empty text")
	// ErrJobNotFound indicates that the job has no artifact (or is unknown).
	ErrJobNotFound = errors.New("job not found")
)

// Enqueuer accepts tasks for the worker.
type Enqueuer interface {
	Enqueue(task Task) error
}

// ArtifactStore is the subset of the job store the service needs.
type ArtifactStore interface {
	PathFor(jobID string) string
	Exists(jobID string) (bool, error)
	Open(jobID string) (*jobstore.Artifact, error)
	Remove(jobID string) error
}

// ArtifactMirror is an optional secondary copy of artifacts.
type ArtifactMirror interface {
	Delete(ctx context.Context, key string) error
}

// Snapshot is the reported state of one job.
type Snapshot struct {
	ID     string
	Status Status
	Reason string
}

// Service is what request handlers call; it owns the queue handle and the job store.
type Service struct {
	queue   Enqueuer
	store   ArtifactStore
	tracker *Tracker
	mirror  ArtifactMirror
	log     *logger.Logger
	now     func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithMirror removes mirrored copies when a job is deleted.
func WithMirror(mirror ArtifactMirror) ServiceOption {
	return func(s *Service) {
		s.mirror = mirror
	}
}

// NewService wires a service. The tracker is shared with the worker.
func NewService(
	queue Enqueuer,
	store ArtifactStore,
	tracker *Tracker,
	log *logger.Logger,
	opts ...ServiceOption,
) *Service {
	service := &Service{
		queue:   queue,
		store:   store,
		tracker: tracker,
		log:     log,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// Submit validates the text, assigns a new job id, and enqueues exactly one task.
// It never waits for synthesis.
func (s *Service) Submit(_ context.Context, text string) (Task, error) {
	if text == "" {
		return Task{}, ErrEmptyText
	}

	jobID := NewID()
	task := Task{
		ID:          jobID,
		Text:        text,
		OutputPath:  s.store.PathFor(jobID),
		SubmittedAt: s.now(),
	}

	// Pending must be recorded before the worker can see the task.
	s.tracker.MarkPending(jobID)

	enqueueErr := s.queue.Enqueue(task)
	if enqueueErr != nil {
		s.tracker.Forget(jobID)

		return Task{}, fmt.Errorf("failed to enqueue job %s: %w", jobID, enqueueErr)
	}

	s.log.Info("Job %s queued (%d characters)", jobID, len(text))

	return task, nil
}

// Open returns the finished artifact for the job.
func (s *Service) Open(_ context.Context, jobID string) (*jobstore.Artifact, error) {
	if !ValidID(jobID) {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, jobID)
	}

	artifact, err := s.store.Open(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}

		return nil, err
	}

	return artifact, nil
}

// Delete removes the artifact for the job. Any removal failure is reported as
// not found.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if !ValidID(jobID) {
		return fmt.Errorf("%w: %q", ErrJobNotFound, jobID)
	}

	removeErr := s.store.Remove(jobID)
	if removeErr != nil {
		// A failed job never gets a file; deleting it drops the record.
		record, tracked := s.tracker.Lookup(jobID)
		if tracked && record.Status == StatusFailed {
			s.tracker.Forget(jobID)
		}

		s.log.Warn("Failed to delete artifact for job %s: %v", jobID, removeErr)

		return fmt.Errorf("%w: %w", ErrJobNotFound, removeErr)
	}

	s.tracker.Forget(jobID)

	if s.mirror != nil {
		mirrorErr := s.mirror.Delete(ctx, jobstore.FileName(jobID))
		if mirrorErr != nil {
			s.log.Warn("Failed to delete mirrored artifact for job %s: %v", jobID, mirrorErr)
		}
	}

	s.log.Info("Job %s deleted", jobID)

	return nil
}

// Status reports where the job is in its lifecycle.
func (s *Service) Status(_ context.Context, jobID string) (Snapshot, error) {
	if !ValidID(jobID) {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrJobNotFound, jobID)
	}

	// The worker commits the file before it forgets the record, so the record
	// must be read first: a miss then means the file is already there or gone.
	record, tracked := s.tracker.Lookup(jobID)

	exists, err := s.store.Exists(jobID)
	if err != nil {
		return Snapshot{}, err
	}

	if exists {
		return Snapshot{ID: jobID, Status: StatusDone}, nil
	}

	if !tracked {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return Snapshot{ID: jobID, Status: record.Status, Reason: record.Reason}, nil
}
