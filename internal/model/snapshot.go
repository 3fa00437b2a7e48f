package model

import (
	"fmt"
	"sync/atomic"
)

// View holds the single authoritative Model reference. Reads are a single
// atomic load; publication is a compare-and-swap in ApplySnapshot.
type View struct {
	current atomic.Pointer[Model]
	ids     IDGenerator
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithIDGenerator sets the generator used by AddNew in snapshots of the view.
func WithIDGenerator(g IDGenerator) ViewOption {
	return func(v *View) {
		v.ids = g
	}
}

// NewView creates a view publishing initial.
func NewView(initial *Model, opts ...ViewOption) *View {
	v := &View{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(v)
	}
	v.current.Store(initial)
	return v
}

// Model returns the current model.
func (v *View) Model() *Model {
	return v.current.Load()
}

// CreateSnapshot wraps the current model without copying anything.
// Shards are materialized lazily on first access through Shard.
func (v *View) CreateSnapshot(features ...Feature) *Snapshot {
	return &Snapshot{
		base:     v.current.Load(),
		features: features,
		ids:      v.ids,
		shards:   make(map[*ShardInfo]MutableShard),
		changes:  NewModelChanges(),
	}
}

// Commit is the result of publishing a snapshot.
type Commit struct {
	Old     *Model
	New     *Model
	Changes *ModelChanges
}

// ApplySnapshot freezes every materialized shard, builds the next model and
// publishes it. A snapshot whose base is no longer current fails with a
// concurrent-modification error and publishes nothing.
//
// A snapshot that materialized nothing publishes nothing; Old and New are
// then the same model.
func (v *View) ApplySnapshot(s *Snapshot) (Commit, error) {
	if err := s.finish(); err != nil {
		return Commit{}, err
	}
	if len(s.shards) == 0 {
		return Commit{Old: s.base, New: s.base, Changes: s.changes}, nil
	}
	frozen := make(map[*ShardInfo]Shard, len(s.shards))
	for info, ms := range s.shards {
		frozen[info] = ms.Freeze()
	}
	next := s.base.with(frozen)
	if !v.current.CompareAndSwap(s.base, next) {
		return Commit{}, &Error{
			Code:    ErrCodeConcurrentModification,
			Message: fmt.Sprintf("snapshot of generation %d is stale", s.base.generation),
		}
	}
	return Commit{Old: s.base, New: next, Changes: s.changes}, nil
}

// Snapshot is a transient copy-on-write overlay over an immutable Model.
// It is owned by one goroutine and is single-use: after ApplySnapshot or
// Discard it rejects further use.
type Snapshot struct {
	base     *Model
	features []Feature
	ids      IDGenerator
	shards   map[*ShardInfo]MutableShard
	changes  *ModelChanges
	done     bool
}

// Base returns the model the snapshot was created from.
func (s *Snapshot) Base() *Model { return s.base }

// Changes returns the changes recorded so far by the Tracking feature.
func (s *Snapshot) Changes() *ModelChanges { return s.changes }

// Materialized reports whether the shard has a mutable copy.
func (s *Snapshot) Materialized(info *ShardInfo) bool {
	_, ok := s.shards[info]
	return ok
}

// Shard returns the mutable copy of a shard, materializing it on first use.
func (s *Snapshot) Shard(info *ShardInfo) (MutableShard, error) {
	if s.done {
		return nil, &Error{Code: ErrCodeFrozen, Message: "snapshot already applied or discarded"}
	}
	if ms, ok := s.shards[info]; ok {
		return ms, nil
	}
	shard, ok := s.base.Shard(info)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownMember, Message: fmt.Sprintf("model has no shard %q", info.Name)}
	}
	ms := shard.Mutable(NewDecorator(info, s.changes, s.ids, s.features...))
	s.shards[info] = ms
	return ms, nil
}

// Discard abandons the snapshot. Nothing is published.
func (s *Snapshot) Discard() {
	s.done = true
}

func (s *Snapshot) finish() error {
	if s.done {
		return &Error{Code: ErrCodeFrozen, Message: "snapshot already applied or discarded"}
	}
	s.done = true
	return nil
}

// Edit returns the mutable copy of a shard as its concrete type.
//
//	lib, err := model.Edit[*fixture.MutableLibrary](snap, fixture.LibraryInfo)
func Edit[M MutableShard](s *Snapshot, info *ShardInfo) (M, error) {
	var zero M
	ms, err := s.Shard(info)
	if err != nil {
		return zero, err
	}
	typed, ok := ms.(M)
	if !ok {
		return zero, &Error{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("mutable shard %q is %T", info.Name, ms)}
	}
	return typed, nil
}
