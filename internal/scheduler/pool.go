package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs jobs concurrently, at most size at a time. It serves read-only
// work such as saves that capture an immutable model and need no ordering.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// DefaultPoolSize bounds concurrent saves when no size is given.
const DefaultPoolSize = 4

// NewPool creates a pool. A size below 1 selects DefaultPoolSize.
func NewPool(size int64) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{sem: semaphore.NewWeighted(size)}
}

// Wait blocks until every started job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Go runs fn on its own goroutine once a slot is free. If ctx is done
// before a slot is acquired, fn never runs and the result is ctx's error.
func Go[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) *Pending[T] {
	pending := newPending[T]()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			var zero T
			pending.complete(zero, err)
			return
		}
		defer p.sem.Release(1)
		v, err := invoke(ctx, fn)
		pending.complete(v, err)
	}()
	return pending
}
