package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner executes background work submitted from request-handling paths.
// Submission never blocks and never reports failure to the submitter: a
// failed task is logged, dropped work is counted, and that is the whole
// contract. Distribution work that must eventually happen anyway is
// repaired by the reconciliation job, not by retrying here.
type Runner struct {
	logger *slog.Logger
	queue  chan task
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type task struct {
	name string
	fn   func(context.Context) error
}

// NewRunner starts workers goroutines draining a queue of the given size.
func NewRunner(workers, queueSize int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	r := &Runner{
		logger: logger,
		queue:  make(chan task, queueSize),
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.work()
	}
	return r
}

// Submit enqueues fn for background execution. It returns false when the
// task was dropped because the queue is full or the runner is closed.
func (r *Runner) Submit(name string, fn func(context.Context) error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("task dropped, runner closed", "task", name)
		return false
	}

	select {
	case r.queue <- task{name: name, fn: fn}:
		return true
	default:
		r.logger.Warn("task dropped, queue full", "task", name)
		return false
	}
}

// Close stops accepting new tasks, drains the queue and waits for in-flight
// work to finish.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) work() {
	defer r.wg.Done()
	for t := range r.queue {
		start := time.Now()
		if err := t.fn(context.Background()); err != nil {
			r.logger.Error("background task failed",
				"task", t.name,
				"duration", time.Since(start),
				"error", err,
			)
		}
	}
}
