// Package worker runs the single consumer that turns queued jobs into audio files.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/jobs"
	"github.com/book-expert/tts-job-service/internal/jobstore"
	"github.com/book-expert/tts-job-service/internal/queue"
)

const notifyTimeout = 10 * time.Second

var (
	// ErrNotReady indicates that Run was called before a successful Start.
	ErrNotReady = errors.New("worker is not ready")
	// ErrAlreadyStarted indicates that Start was called more than once.
	ErrAlreadyStarted = errors.New("worker already started")
	// ErrNilSynthesizer indicates that the loader returned no synthesizer.
	ErrNilSynthesizer = errors.New("loader returned a nil synthesizer")
)

// State is the worker lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TaskSource is the consumer side of the work queue.
type TaskSource interface {
	Dequeue(ctx context.Context) (jobs.Task, error)
	Done()
}

// ArtifactSink is where synthesized files land.
type ArtifactSink interface {
	StagingPath(jobID string) string
	Commit(jobID string) error
	Discard(jobID string) error
	PathFor(jobID string) string
}

// Worker owns the synthesizer and processes one task at a time.
type Worker struct {
	source      TaskSource
	sink        ArtifactSink
	loader      core.SynthesizerLoader
	synthesizer core.Synthesizer
	tracker     *jobs.Tracker
	notifier    core.JobNotifier
	mirror      core.ObjectStore
	normalize   func(string) string
	speakerRef  string
	options     map[string]any
	timeout     time.Duration
	log         *logger.Logger
	state       atomic.Int32
	started     atomic.Bool
}

// Option customizes a Worker.
type Option func(*Worker)

// WithTracker records per-job outcomes in tracker.
func WithTracker(tracker *jobs.Tracker) Option {
	return func(w *Worker) {
		w.tracker = tracker
	}
}

// WithNotifier publishes completion and failure events.
func WithNotifier(notifier core.JobNotifier) Option {
	return func(w *Worker) {
		w.notifier = notifier
	}
}

// WithMirror copies every finished artifact into an object store.
func WithMirror(mirror core.ObjectStore) Option {
	return func(w *Worker) {
		w.mirror = mirror
	}
}

// WithSpeakerReference sets the reference recording passed to the synthesizer.
func WithSpeakerReference(path string) Option {
	return func(w *Worker) {
		w.speakerRef = path
	}
}

// WithSynthesisOptions sets the engine parameters passed with every job.
func WithSynthesisOptions(options map[string]any) Option {
	return func(w *Worker) {
		w.options = options
	}
}

// WithTimeout bounds each synthesis call. Zero means no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(w *Worker) {
		w.timeout = timeout
	}
}

// WithTextNormalizer rewrites job text before synthesis.
func WithTextNormalizer(normalize func(string) string) Option {
	return func(w *Worker) {
		w.normalize = normalize
	}
}

// New creates a worker in the starting state.
func New(
	source TaskSource,
	sink ArtifactSink,
	loader core.SynthesizerLoader,
	log *logger.Logger,
	opts ...Option,
) *Worker {
	w := &Worker{
		source: source,
		sink:   sink,
		loader: loader,
		log:    log,
	}

	for _, opt := range opts {
		opt(w)
	}

	w.state.Store(int32(StateStarting))

	return w
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Start loads the synthesizer. A failure here is fatal for the service:
// nothing can be processed without the engine.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	w.log.Info("Initializing synthesis engine...")

	synthesizer, err := w.loader.Load(ctx)
	if err != nil {
		w.state.Store(int32(StateStopped))

		return fmt.Errorf("failed to initialize synthesis engine: %w", err)
	}

	if synthesizer == nil {
		w.state.Store(int32(StateStopped))

		return ErrNilSynthesizer
	}

	w.synthesizer = synthesizer
	w.state.Store(int32(StateReady))
	w.log.Info("Synthesis engine loaded and ready.")

	return nil
}

// Run consumes tasks until the queue delivers its shutdown sentinel or ctx is
// cancelled. A task that has been dequeued always runs to completion.
func (w *Worker) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateReady), int32(StateRunning)) {
		return fmt.Errorf("%w: state is %s", ErrNotReady, w.State())
	}

	defer w.state.Store(int32(StateStopped))

	for {
		task, err := w.source.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrShutdown) {
				w.log.Info("Shutdown requested, worker exiting.")

				return nil
			}

			if ctx.Err() != nil {
				w.log.Info("Worker context cancelled, exiting.")

				return nil
			}

			return fmt.Errorf("failed to dequeue task: %w", err)
		}

		w.handleTask(task)
	}
}

// handleTask processes one task and always marks it done on the queue.
func (w *Worker) handleTask(task jobs.Task) {
	defer w.source.Done()

	// Tasks run detached from the Run context: no in-flight cancellation.
	ctx := context.Background()

	processErr := w.processTask(ctx, task)
	if processErr != nil {
		w.log.Error("TTS generation failed for job %s: %v", task.ID, processErr)
		w.recordFailure(ctx, task, processErr)

		return
	}

	w.log.Info("Audio file generated: %s", task.OutputPath)
	w.recordSuccess(ctx, task)
}

func (w *Worker) processTask(ctx context.Context, task jobs.Task) error {
	if w.tracker != nil {
		w.tracker.MarkProcessing(task.ID)
	}

	text := task.Text
	if w.normalize != nil {
		text = w.normalize(text)
	}

	w.log.Info("Generating audio for job %s: %s", task.ID, text)

	synthCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc

		synthCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	request := core.SynthesisRequest{
		Text:             text,
		OutputPath:       w.sink.StagingPath(task.ID),
		SpeakerReference: w.speakerRef,
		Options:          w.options,
	}

	synthErr := w.synthesizer.Synthesize(synthCtx, request)
	if synthErr != nil {
		w.discard(task.ID)

		return fmt.Errorf("synthesis failed: %w", synthErr)
	}

	commitErr := w.sink.Commit(task.ID)
	if commitErr != nil {
		w.discard(task.ID)

		return commitErr
	}

	return nil
}

func (w *Worker) discard(jobID string) {
	discardErr := w.sink.Discard(jobID)
	if discardErr != nil {
		w.log.Warn("Failed to clean up staging output for job %s: %v", jobID, discardErr)
	}
}

func (w *Worker) recordFailure(ctx context.Context, task jobs.Task, cause error) {
	if w.tracker != nil {
		w.tracker.MarkFailed(task.ID, cause.Error())
	}

	if w.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	notifyErr := w.notifier.JobFailed(notifyCtx, task.ID, cause)
	if notifyErr != nil {
		w.log.Warn("Failed to publish failure event for job %s: %v", task.ID, notifyErr)
	}
}

func (w *Worker) recordSuccess(ctx context.Context, task jobs.Task) {
	if w.tracker != nil {
		w.tracker.Forget(task.ID)
	}

	audioKey := jobstore.FileName(task.ID)

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if w.mirror != nil {
		mirrorErr := w.mirrorArtifact(notifyCtx, task.ID, audioKey)
		if mirrorErr != nil {
			w.log.Warn("Failed to mirror artifact for job %s: %v", task.ID, mirrorErr)
		}
	}

	if w.notifier != nil {
		notifyErr := w.notifier.JobCompleted(notifyCtx, task.ID, audioKey)
		if notifyErr != nil {
			w.log.Warn("Failed to publish completion event for job %s: %v", task.ID, notifyErr)
		}
	}
}

func (w *Worker) mirrorArtifact(ctx context.Context, jobID, key string) error {
	data, err := os.ReadFile(w.sink.PathFor(jobID))
	if err != nil {
		return fmt.Errorf("failed to read artifact for mirroring: %w", err)
	}

	return w.mirror.Upload(ctx, key, data)
}
