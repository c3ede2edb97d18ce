// Package serial provides a single-worker FIFO task queue.
//
// Every component that owns mutable state (the store connection, the event
// controller, the trigger pipeline) funnels its work through one Queue so
// tasks never interleave. Callers on any goroutine Submit tasks; exactly one
// goroutine executes them, in submission order, inside Run.
package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned when work is submitted to a queue that no longer
// accepts it.
var ErrClosed = errors.New("serial queue closed")

// ErrTaskPanicked is returned by Call when the task panicked.
var ErrTaskPanicked = errors.New("serial task panicked")

// Task is a unit of work. ctx is the context passed to Run.
type Task func(ctx context.Context)

// Queue is an unbounded FIFO of tasks drained by a single worker.
//
// The queue is unbounded so producers (log, flush triggers, transmitter
// callbacks) never block on the worker.
//
// Thread-safety model:
//   - Submit(), Call(), Close(), Len(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Queue struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // Signals task availability (buffered, size 1)

	done     chan struct{} // Closed when Run returns
	doneOnce sync.Once
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for task panics.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// New creates an empty queue. name appears in log lines.
func New(name string, opts ...Option) *Queue {
	q := &Queue{
		name:   name,
		logger: slog.Default(),
		tasks:  make([]Task, 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit appends a task. Returns false if the queue is closed.
func (q *Queue) Submit(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Call submits fn and waits for its result.
//
// Returns ErrClosed if the queue does not accept the task or stops before
// running it, and ctx.Err() if ctx ends first. In the latter case fn may
// still run later.
func (q *Queue) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	ok := q.Submit(func(ctx context.Context) {
		err := ErrTaskPanicked
		defer func() { errc <- err }()
		err = fn(ctx)
	})
	if !ok {
		return ErrClosed
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

// Barrier waits until every task submitted before it has run.
func (q *Queue) Barrier(ctx context.Context) error {
	return q.Call(ctx, func(context.Context) error { return nil })
}

// Run executes tasks until the queue is closed and drained, or ctx ends.
//
// A panicking task is logged and the loop continues with the next task.
// On ctx cancellation the queue is closed and pending tasks are dropped.
func (q *Queue) Run(ctx context.Context) error {
	defer q.doneOnce.Do(func() { close(q.done) })

	for {
		if t, ok := q.tryDequeue(); ok {
			q.runTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			q.Close()
			q.logger.Debug("serial queue stopping: context cancelled", "queue", q.name)
			return ctx.Err()

		case <-q.signal:
			q.mu.Lock()
			drained := q.closed && len(q.tasks) == 0
			q.mu.Unlock()
			if drained {
				q.logger.Debug("serial queue stopping: closed", "queue", q.name)
				return nil
			}
		}
	}
}

func (q *Queue) runTask(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("serial task panicked",
				"queue", q.name,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	t(ctx)
}

func (q *Queue) tryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	q.tasks[0] = nil // Release the closure for GC

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Close stops accepting tasks. Run drains what is already queued, then
// returns.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // Wakes the worker
}

// Done is closed when Run has returned.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Start runs q on a new goroutine with a background context.
// Stop it with Close and wait on Done.
func Start(q *Queue) *Queue {
	go func() {
		_ = q.Run(context.Background())
	}()
	return q
}
