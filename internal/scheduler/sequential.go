// Package scheduler serializes mutating jobs on a single worker and runs
// read-only jobs (saves, exports) on a bounded pool.
//
// Single-Writer Loop:
// Sequential runs jobs strictly one at a time in submission order on the
// goroutine that calls Run. A job's context is checked before the job
// starts; a running job is never interrupted.
//
// Thread-safety model:
//   - Submit: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Close: safe from any goroutine, idempotent
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// ErrClosed is returned for jobs submitted to, or still queued in, a closed
// executor.
var ErrClosed = errors.New("scheduler: closed")

// PanicError reports a panic recovered at a job boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// Sequential is a single-writer executor.
type Sequential struct {
	queue   *jobQueue
	logger  *slog.Logger
	running atomic.Bool
	done    chan struct{}
}

// Option configures a Sequential executor.
type Option func(*Sequential)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequential) {
		s.logger = l
	}
}

// NewSequential creates an executor. Call Run (or Start) to process jobs.
func NewSequential(opts ...Option) *Sequential {
	s := &Sequential{
		queue:  newJobQueue(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the loop on a new goroutine.
func (s *Sequential) Start(ctx context.Context) {
	go func() {
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sequential executor stopped", "error", err)
		}
	}()
}

// Run processes jobs until ctx is cancelled or Close is called.
//
// CRITICAL: Must be called from exactly ONE goroutine. Jobs queued when the
// loop stops fail with ErrClosed.
func (s *Sequential) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler: Run called twice")
	}
	defer close(s.done)
	s.logger.Debug("sequential executor starting")

	for {
		if j, ok := s.queue.TryDequeue(); ok {
			s.execute(j)
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("sequential executor stopping: context cancelled")
			s.failQueued(s.queue.Close())
			return ctx.Err()

		case <-s.queue.Wait():
			// The signal channel is closed with the queue; an empty queue
			// after a wakeup means the executor was closed.
			if s.queue.Len() == 0 && s.isClosed() {
				s.logger.Debug("sequential executor stopping: closed")
				return nil
			}
		}
	}
}

// Close stops accepting jobs and fails the queued ones with ErrClosed.
// A job already running completes normally.
func (s *Sequential) Close() {
	s.failQueued(s.queue.Close())
}

// Done is closed when Run returns.
func (s *Sequential) Done() <-chan struct{} {
	return s.done
}

// Len returns the number of queued jobs, excluding a running one.
func (s *Sequential) Len() int {
	return s.queue.Len()
}

func (s *Sequential) isClosed() bool {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	return s.queue.closed
}

// execute runs one job on the worker goroutine.
func (s *Sequential) execute(j job) {
	if err := j.ctx.Err(); err != nil {
		j.fail(err)
		return
	}
	j.run(j.ctx)
}

func (s *Sequential) failQueued(jobs []job) {
	for _, j := range jobs {
		j.fail(ErrClosed)
	}
	if len(jobs) > 0 {
		s.logger.Warn("failed queued jobs", "count", len(jobs), "reason", ErrClosed)
	}
}

// Submit queues fn on the executor and returns its pending result.
//
// fn runs on the worker goroutine after every previously submitted job.
// If ctx is done before fn starts, fn never runs and the result is ctx's
// error. A panic in fn is recovered and returned as a *PanicError.
func Submit[T any](s *Sequential, ctx context.Context, fn func(ctx context.Context) (T, error)) *Pending[T] {
	p := newPending[T]()
	var zero T
	ok := s.queue.Enqueue(job{
		ctx: ctx,
		run: func(ctx context.Context) {
			v, err := invoke(ctx, fn)
			p.complete(v, err)
		},
		fail: func(err error) {
			p.complete(zero, err)
		},
	})
	if !ok {
		p.complete(zero, ErrClosed)
	}
	return p
}

func invoke[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}
