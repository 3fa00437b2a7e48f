package domain

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/notify"
	"github.com/roach88/tessera/internal/storage"
)

// AutoSave writes every published change to a storage incrementally.
//
// At most one save is in flight. Changes published while it runs are merged
// and written by the next save; changes that do not merge are queued and
// saved on their own, in publish order. A failed save stops the loop and
// keeps its changes at the head of the queue; they are retried on the next
// publish or Flush.
type AutoSave struct {
	dm   *DomainModel
	st   storage.Storage
	path string
	sub  *notify.Subscription

	mu      sync.Mutex
	pending []*model.ModelChanges
	saving  bool
	idle    chan struct{}
	err     error
}

// NewAutoSave attaches an auto-save listener to dm.
func NewAutoSave(dm *DomainModel, st storage.Storage, path string) (*AutoSave, error) {
	a := &AutoSave{dm: dm, st: st, path: path, idle: closedChan()}
	sub, err := dm.Subscriptions().SubscribeModel(a)
	if err != nil {
		return nil, err
	}
	a.sub = sub
	return a, nil
}

// OnModelChanges queues c for saving.
func (a *AutoSave) OnModelChanges(c *model.ModelChanges) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enqueue(c)
	a.kick()
}

// enqueue merges c into the last queued changes, or queues it on its own if
// they do not merge. a.mu must be held.
func (a *AutoSave) enqueue(c *model.ModelChanges) {
	if n := len(a.pending); n > 0 {
		merged, err := a.pending[n-1].Merge(c)
		if err == nil {
			a.pending[n-1] = merged
			return
		}
		a.dm.logger.Warn("auto-save merge failed, saving separately", "path", a.path, "error", err)
	}
	a.pending = append(a.pending, c)
}

// Flush retries failed changes and waits until nothing is pending. It
// returns the first save error since the previous Flush.
func (a *AutoSave) Flush(ctx context.Context) error {
	a.mu.Lock()
	a.kick()
	idle := a.idle
	a.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.err
	a.err = nil
	return err
}

// Close detaches the listener and flushes.
func (a *AutoSave) Close(ctx context.Context) error {
	a.sub.Unsubscribe()
	return a.Flush(ctx)
}

// kick starts the save loop if changes are pending. a.mu must be held.
func (a *AutoSave) kick() {
	if a.saving || len(a.pending) == 0 {
		return
	}
	a.saving = true
	a.idle = make(chan struct{})
	go a.loop()
}

func (a *AutoSave) loop() {
	for {
		a.mu.Lock()
		if len(a.pending) == 0 {
			a.stop()
			a.mu.Unlock()
			return
		}
		c := a.pending[0]
		a.pending = a.pending[1:]
		a.mu.Unlock()

		_, err := a.dm.SaveChanges(context.Background(), a.st, a.path, c).Result()
		if err == nil {
			continue
		}

		a.dm.logger.Error("auto-save failed", "path", a.path, "entries", c.Len(), "error", err)
		a.mu.Lock()
		if a.err == nil {
			a.err = err
		}
		a.pending = slices.Insert(a.pending, 0, c)
		a.stop()
		a.mu.Unlock()
		return
	}
}

// stop marks the loop idle. a.mu must be held.
func (a *AutoSave) stop() {
	a.saving = false
	close(a.idle)
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
