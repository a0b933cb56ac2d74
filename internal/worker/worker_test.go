// Package worker_test tests the single-consumer TTS worker.
package worker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/jobs"
	"github.com/book-expert/tts-job-service/internal/jobstore"
	"github.com/book-expert/tts-job-service/internal/queue"
	"github.com/book-expert/tts-job-service/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

var (
	errMockLoad       = errors.New("mock load error")
	errMockSynthesize = errors.New("mock synthesize error")
)

// mockSynthesizer writes the text into the output file and records every call.
type mockSynthesizer struct {
	mu          sync.Mutex
	calls       []core.SynthesisRequest
	failTexts   map[string]bool
	block       bool
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, req core.SynthesisRequest) error {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	for {
		peak := m.maxInFlight.Load()
		if current <= peak || m.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	fail := m.failTexts[req.Text]
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()

		return ctx.Err()
	}

	// Leave a partial file behind to make sure failures clean up.
	if fail {
		_ = os.WriteFile(req.OutputPath, []byte("partial"), 0o600)

		return errMockSynthesize
	}

	return os.WriteFile(req.OutputPath, []byte("audio:"+req.Text), 0o600)
}

func (m *mockSynthesizer) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	texts := make([]string, 0, len(m.calls))
	for _, call := range m.calls {
		texts = append(texts, call.Text)
	}

	return texts
}

// mockLoader hands out the synthesizer once.
type mockLoader struct {
	synthesizer core.Synthesizer
	shouldFail  bool
	loads       atomic.Int32
}

func (m *mockLoader) Load(_ context.Context) (core.Synthesizer, error) {
	m.loads.Add(1)

	if m.shouldFail {
		return nil, errMockLoad
	}

	return m.synthesizer, nil
}

// mockNotifier records published outcomes.
type mockNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (m *mockNotifier) JobCompleted(_ context.Context, jobID, audioKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed = append(m.completed, jobID+"="+audioKey)

	return nil
}

func (m *mockNotifier) JobFailed(_ context.Context, jobID string, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = append(m.failed, jobID)

	return nil
}

// mockObjectStore records uploads.
type mockObjectStore struct {
	mu       sync.Mutex
	uploaded map[string][]byte
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploaded[key] = data

	return nil
}

func (m *mockObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.uploaded, key)

	return nil
}

type harness struct {
	worker      *worker.Worker
	queue       *queue.Queue
	store       *jobstore.FileStore
	tracker     *jobs.Tracker
	synthesizer *mockSynthesizer
	loader      *mockLoader
}

func setupTest(t *testing.T, opts ...worker.Option) *harness {
	t.Helper()

	store, err := jobstore.New(t.TempDir())
	require.NoError(t, err)

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	synthesizer := &mockSynthesizer{failTexts: map[string]bool{}}
	loader := &mockLoader{synthesizer: synthesizer}
	taskQueue := queue.New(0)
	tracker := jobs.NewTracker()

	opts = append([]worker.Option{worker.WithTracker(tracker)}, opts...)

	return &harness{
		worker:      worker.New(taskQueue, store, loader, testLogger, opts...),
		queue:       taskQueue,
		store:       store,
		tracker:     tracker,
		synthesizer: synthesizer,
		loader:      loader,
	}
}

func (h *harness) submit(t *testing.T, text string) jobs.Task {
	t.Helper()

	jobID := jobs.NewID()
	task := jobs.Task{ID: jobID, Text: text, OutputPath: h.store.PathFor(jobID)}

	h.tracker.MarkPending(jobID)
	require.NoError(t, h.queue.Enqueue(task))

	return task
}

// run starts the worker loop and returns a channel that receives Run's result.
func (h *harness) run(t *testing.T, ctx context.Context) <-chan error {
	t.Helper()

	require.NoError(t, h.worker.Start(ctx))

	errChan := make(chan error, 1)

	go func() {
		errChan <- h.worker.Run(ctx)
	}()

	return errChan
}

func (h *harness) drain(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, h.queue.Wait(ctx))
}

func TestStart_LoadsOnce(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	assert.Equal(t, worker.StateStarting, h.worker.State())

	require.NoError(t, h.worker.Start(context.Background()))
	assert.Equal(t, worker.StateReady, h.worker.State())

	require.ErrorIs(t, h.worker.Start(context.Background()), worker.ErrAlreadyStarted)
	assert.Equal(t, int32(1), h.loader.loads.Load())
}

func TestStart_LoadFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	h.loader.shouldFail = true

	err := h.worker.Start(context.Background())
	require.ErrorIs(t, err, errMockLoad)
	assert.Equal(t, worker.StateStopped, h.worker.State())

	require.ErrorIs(t, h.worker.Run(context.Background()), worker.ErrNotReady)
}

func TestRun_RequiresStart(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	require.ErrorIs(t, h.worker.Run(context.Background()), worker.ErrNotReady)
}

func TestRun_ProcessesInSubmissionOrder(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	const producers = 16

	var (
		orderMu  sync.Mutex
		accepted []string
		wg       sync.WaitGroup
	)

	for i := range producers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			text := fmt.Sprintf("text-%02d", i)
			task := jobs.Task{ID: jobs.NewID(), Text: text}
			task.OutputPath = h.store.PathFor(task.ID)

			// Holding the lock across Enqueue pins the queue order to the recorded order.
			orderMu.Lock()
			defer orderMu.Unlock()

			assert.NoError(t, h.queue.Enqueue(task))
			accepted = append(accepted, text)
		}()
	}

	wg.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := h.run(t, ctx)
	h.drain(t)

	assert.Equal(t, accepted, h.synthesizer.texts())
	assert.Equal(t, int32(1), h.synthesizer.maxInFlight.Load(), "synthesis must never overlap")

	cancel()
	require.NoError(t, <-errChan)
	assert.Equal(t, worker.StateStopped, h.worker.State())
}

func TestRun_MaterializesArtifact(t *testing.T) {
	t.Parallel()

	notifier := &mockNotifier{}
	mirror := &mockObjectStore{uploaded: map[string][]byte{}}
	h := setupTest(t,
		worker.WithNotifier(notifier),
		worker.WithMirror(mirror),
		worker.WithSpeakerReference("/voices/speaker.wav"),
		worker.WithSynthesisOptions(map[string]any{"language": "en"}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := h.run(t, ctx)
	task := h.submit(t, "hello")
	h.drain(t)

	data, err := os.ReadFile(task.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio:hello"), data)

	_, tracked := h.tracker.Lookup(task.ID)
	assert.False(t, tracked, "a finished job is known only through its file")

	h.synthesizer.mu.Lock()
	call := h.synthesizer.calls[0]
	h.synthesizer.mu.Unlock()

	assert.Equal(t, h.store.StagingPath(task.ID), call.OutputPath)
	assert.Equal(t, "/voices/speaker.wav", call.SpeakerReference)
	assert.Equal(t, map[string]any{"language": "en"}, call.Options)

	assert.Equal(t, []string{task.ID + "=" + task.ID + ".wav"}, notifier.completed)
	assert.Equal(t, []byte("audio:hello"), mirror.uploaded[task.ID+".wav"])

	cancel()
	require.NoError(t, <-errChan)
}

func TestRun_FailureDoesNotBlockLaterJobs(t *testing.T) {
	t.Parallel()

	notifier := &mockNotifier{}
	h := setupTest(t, worker.WithNotifier(notifier))
	h.synthesizer.failTexts["broken"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := h.run(t, ctx)
	failed := h.submit(t, "broken")
	next := h.submit(t, "fine")
	h.drain(t)

	_, err := os.Stat(failed.OutputPath)
	assert.True(t, os.IsNotExist(err), "no placeholder is written for a failed job")

	_, err = os.Stat(h.store.StagingPath(failed.ID))
	assert.True(t, os.IsNotExist(err), "partial output is discarded")

	record, ok := h.tracker.Lookup(failed.ID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusFailed, record.Status)
	assert.Contains(t, record.Reason, errMockSynthesize.Error())
	assert.Equal(t, []string{failed.ID}, notifier.failed)

	_, err = os.Stat(next.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "fine"}, h.synthesizer.texts(), "failed jobs are not retried")

	cancel()
	require.NoError(t, <-errChan)
}

func TestRun_TimeoutFailsJob(t *testing.T) {
	t.Parallel()

	h := setupTest(t, worker.WithTimeout(30*time.Millisecond))
	h.synthesizer.block = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := h.run(t, ctx)
	task := h.submit(t, "slow")
	h.drain(t)

	record, ok := h.tracker.Lookup(task.ID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusFailed, record.Status)
	assert.Contains(t, record.Reason, context.DeadlineExceeded.Error())

	cancel()
	require.NoError(t, <-errChan)
}

func TestRun_SentinelDrainsQueueThenStops(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	tasks := []jobs.Task{h.submit(t, "one"), h.submit(t, "two")}
	h.queue.Close()

	errChan := h.run(t, context.Background())

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("worker did not stop on the shutdown sentinel")
	}

	assert.Equal(t, worker.StateStopped, h.worker.State())

	for _, task := range tasks {
		_, err := os.Stat(task.OutputPath)
		require.NoError(t, err)
	}
}

func TestRun_NormalizesText(t *testing.T) {
	t.Parallel()

	h := setupTest(t, worker.WithTextNormalizer(strings.ToUpper))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := h.run(t, ctx)
	h.submit(t, "quiet")
	h.drain(t)

	assert.Equal(t, []string{"QUIET"}, h.synthesizer.texts())

	cancel()
	require.NoError(t, <-errChan)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "starting", worker.StateStarting.String())
	assert.Equal(t, "ready", worker.StateReady.String())
	assert.Equal(t, "running", worker.StateRunning.String())
	assert.Equal(t, "stopped", worker.StateStopped.String())
	assert.Equal(t, "state(9)", worker.State(9).String())
}
