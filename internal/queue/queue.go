// Package queue provides the FIFO that hands submitted jobs to the worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/tts-job-service/internal/jobs"
)

var (
	// ErrShutdown is returned by Dequeue once the shutdown sentinel reaches the head.
	ErrShutdown = errors.New("queue shut down")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("queue is closed")
	// ErrFull is returned by Enqueue when a depth limit is set and reached.
	ErrFull = errors.New("queue is full")
)

// entry is either a task or the shutdown sentinel.
type entry struct {
	task     jobs.Task
	sentinel bool
}

// Queue is a FIFO safe for concurrent producers. Enqueue never blocks;
// Dequeue blocks until a task is available.
type Queue struct {
	mu         sync.Mutex
	entries    []entry
	notify     chan struct{}
	maxDepth   int
	depth      int
	closed     bool
	unfinished int
	idle       chan struct{}
}

// New returns an empty queue. maxDepth <= 0 leaves the queue unbounded.
func New(maxDepth int) *Queue {
	idle := make(chan struct{})
	close(idle)

	return &Queue{
		notify:   make(chan struct{}, 1),
		maxDepth: maxDepth,
		idle:     idle,
	}
}

// Enqueue appends a task.
func (q *Queue) Enqueue(task jobs.Task) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return ErrClosed
	}

	if q.maxDepth > 0 && q.depth >= q.maxDepth {
		q.mu.Unlock()

		return fmt.Errorf("%w: %d tasks pending", ErrFull, q.depth)
	}

	q.entries = append(q.entries, entry{task: task})
	q.depth++

	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}

	q.unfinished++
	q.mu.Unlock()

	q.wake()

	return nil
}

// Dequeue removes and returns the oldest task. It returns ErrShutdown once the
// sentinel is at the head, and ctx.Err() if ctx ends first.
func (q *Queue) Dequeue(ctx context.Context) (jobs.Task, error) {
	for {
		task, ok, err := q.pop()
		if err != nil {
			return jobs.Task{}, err
		}

		if ok {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return jobs.Task{}, fmt.Errorf("dequeue interrupted: %w", ctx.Err())
		case <-q.notify:
		}
	}
}

// Close enqueues the shutdown sentinel behind every pending task and rejects
// further submissions. Calling Close more than once is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return
	}

	q.closed = true
	q.entries = append(q.entries, entry{sentinel: true})
	q.mu.Unlock()

	q.wake()
}

// Done marks one dequeued task as processed.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return
	}

	q.unfinished--
	if q.unfinished == 0 {
		close(q.idle)
	}
}

// Wait blocks until every enqueued task has been marked processed.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for queue to drain: %w", ctx.Err())
	}
}

// Len returns the number of tasks waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.depth
}

func (q *Queue) pop() (jobs.Task, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return jobs.Task{}, false, nil
	}

	head := q.entries[0]
	if head.sentinel {
		// The sentinel stays at the head so every later Dequeue also stops.
		q.wake()

		return jobs.Task{}, false, ErrShutdown
	}

	q.entries[0] = entry{}
	q.entries = q.entries[1:]
	q.depth--

	if len(q.entries) > 0 {
		// Let another blocked consumer look at the remaining entries.
		q.wake()
	}

	return head.task, true, nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
