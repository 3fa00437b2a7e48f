// Package history records the changes of a DomainModel and reverts or
// re-applies them.
//
// A History subscribes at model level. Every published change it did not
// apply itself is pushed on the undo stack and clears the redo stack. Undo
// applies the inverse of the newest entry through DomainModel.Apply and
// moves it to the redo stack; Redo applies it again.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/tessera/internal/domain"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/notify"
)

var (
	// ErrNothingToUndo is returned by Undo on an empty undo stack.
	ErrNothingToUndo = errors.New("history: nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty redo stack.
	ErrNothingToRedo = errors.New("history: nothing to redo")

	// ErrBusy is returned while another Undo or Redo is in progress.
	ErrBusy = errors.New("history: step in progress")
)

// History holds the undo and redo stacks of one DomainModel.
type History struct {
	dm     *domain.DomainModel
	sub    *notify.Subscription
	limit  int
	logger *slog.Logger

	mu     sync.Mutex
	undo   []*model.ModelChanges
	redo   []*model.ModelChanges
	own    map[*model.ModelChanges]bool
	locked bool
}

// Option configures a History.
type Option func(*History)

// WithLimit keeps at most n undo entries, dropping the oldest. Zero means
// unbounded.
func WithLimit(n int) Option {
	return func(h *History) {
		h.limit = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *History) {
		h.logger = l
	}
}

// New attaches a history to dm.
func New(dm *domain.DomainModel, opts ...Option) (*History, error) {
	h := &History{
		dm:     dm,
		logger: slog.Default(),
		own:    map[*model.ModelChanges]bool{},
	}
	for _, opt := range opts {
		opt(h)
	}
	sub, err := dm.Subscriptions().SubscribeModel(h)
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// Close detaches the history from its model.
func (h *History) Close() {
	h.sub.Unsubscribe()
}

// OnModelChanges records c unless History applied it.
func (h *History) OnModelChanges(c *model.ModelChanges) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.own[c] {
		delete(h.own, c)
		return
	}
	h.undo = append(h.undo, c)
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo = append(h.undo[:0:0], h.undo[len(h.undo)-h.limit:]...)
	}
	h.redo = nil
}

// CanUndo reports whether Undo has an entry to revert.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0 && !h.locked
}

// CanRedo reports whether Redo has an entry to re-apply.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0 && !h.locked
}

// Len returns the sizes of the undo and redo stacks.
func (h *History) Len() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}

// Clear empties both stacks.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo, h.redo = nil, nil
}

// Undo reverts the newest recorded change and waits for it to be published.
func (h *History) Undo(ctx context.Context) error {
	return h.step(ctx, &h.undo, &h.redo, ErrNothingToUndo, func(c *model.ModelChanges) *model.ModelChanges {
		return c.Invert()
	})
}

// Redo re-applies the newest undone change and waits for it to be published.
func (h *History) Redo(ctx context.Context) error {
	return h.step(ctx, &h.redo, &h.undo, ErrNothingToRedo, func(c *model.ModelChanges) *model.ModelChanges {
		return c.Clone()
	})
}

// step pops from src, applies what toApply derives from the entry and pushes
// the entry on dst. On failure the entry goes back on src. Only one step runs
// at a time.
func (h *History) step(ctx context.Context, src, dst *[]*model.ModelChanges, empty error, toApply func(*model.ModelChanges) *model.ModelChanges) error {
	h.mu.Lock()
	if h.locked {
		h.mu.Unlock()
		return ErrBusy
	}
	if len(*src) == 0 {
		h.mu.Unlock()
		return empty
	}
	entry := (*src)[len(*src)-1]
	*src = (*src)[:len(*src)-1]
	c := toApply(entry)
	h.own[c] = true
	h.locked = true
	h.mu.Unlock()

	_, err := h.dm.Apply(ctx, c).Result()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.locked = false
	if err != nil {
		delete(h.own, c)
		*src = append(*src, entry)
		h.logger.Warn("history step failed", "error", err)
		return err
	}
	*dst = append(*dst, entry)
	return nil
}
