package model

import "fmt"

// Model is an immutable, ordered set of shards, at most one per ShardInfo.
// It is the sole root from which collections and relations are reached.
//
// A published Model is never mutated; each successful mutation replaces it
// wholesale. Readers holding an old Model keep a consistent view.
type Model struct {
	shards     []Shard
	generation int64
}

// New builds a generation-zero model from shards.
func New(shards ...Shard) (*Model, error) {
	seen := make(map[*ShardInfo]bool, len(shards))
	names := make(map[string]bool, len(shards))
	for _, s := range shards {
		info := s.Info()
		if seen[info] || names[info.Name] {
			return nil, &Error{Code: ErrCodeDuplicateShard, Message: fmt.Sprintf("shard %q appears twice", info.Name)}
		}
		seen[info] = true
		names[info.Name] = true
	}
	return &Model{shards: append([]Shard(nil), shards...)}, nil
}

// Generation counts the publications that led to this model.
func (m *Model) Generation() int64 { return m.generation }

// Shards returns the shards in model order.
func (m *Model) Shards() []Shard {
	return append([]Shard(nil), m.shards...)
}

// Shard returns the shard described by info.
func (m *Model) Shard(info *ShardInfo) (Shard, bool) {
	for _, s := range m.shards {
		if s.Info() == info {
			return s, true
		}
	}
	return nil, false
}

// ShardByName returns the shard with the given name.
func (m *Model) ShardByName(name string) (Shard, bool) {
	for _, s := range m.shards {
		if s.Info().Name == name {
			return s, true
		}
	}
	return nil, false
}

// with returns a model of the next generation where the given shards
// replace their counterparts.
func (m *Model) with(replaced map[*ShardInfo]Shard) *Model {
	out := &Model{shards: make([]Shard, len(m.shards)), generation: m.generation + 1}
	for i, s := range m.shards {
		if r, ok := replaced[s.Info()]; ok {
			out.shards[i] = r
		} else {
			out.shards[i] = s
		}
	}
	return out
}

// Read returns the shard described by info as its concrete type.
//
//	lib, err := model.Read[*fixture.Library](m, fixture.LibraryInfo)
func Read[S Shard](m *Model, info *ShardInfo) (S, error) {
	var zero S
	s, ok := m.Shard(info)
	if !ok {
		return zero, &Error{Code: ErrCodeUnknownMember, Message: fmt.Sprintf("model has no shard %q", info.Name)}
	}
	typed, ok := s.(S)
	if !ok {
		return zero, &Error{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("shard %q is %T", info.Name, s)}
	}
	return typed, nil
}
