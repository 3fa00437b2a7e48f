package scheduler

import (
	"context"
	"sync"
)

// Pending is the result of a job that completes on another goroutine.
type Pending[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{done: make(chan struct{})}
}

// Completed returns a Pending that is already resolved.
func Completed[T any](v T, err error) *Pending[T] {
	p := newPending[T]()
	p.complete(v, err)
	return p
}

// complete resolves p. Only the first call has an effect.
func (p *Pending[T]) complete(v T, err error) {
	p.once.Do(func() {
		p.val, p.err = v, err
		close(p.done)
	})
}

// Done is closed once the result is available.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the result is available or ctx is done. Giving up on
// the wait does not cancel the job.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the result is available.
func (p *Pending[T]) Result() (T, error) {
	<-p.done
	return p.val, p.err
}
