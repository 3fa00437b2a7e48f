package model

import (
	"iter"
	"maps"
	"slices"
)

// Mapping is a one-directional adjacency structure from keys to values.
// A Relation pairs two mappings (parent to child and child to parent); the
// variants injected on each side determine the relation's cardinality.
type Mapping interface {
	// CanAdd reports whether Add(key, val) would succeed.
	CanAdd(key, val Entity) bool
	Add(key, val Entity) error
	Remove(key, val Entity) error
	// Values returns the entities mapped from key in (type, id) order.
	Values(key Entity) []Entity
	ContainsKey(key Entity) bool
	Contains(key, val Entity) bool
	// Len returns the number of pairs.
	Len() int
	// All iterates pairs ordered by key, then value.
	All() iter.Seq2[Entity, Entity]
	Clear()
	// Copy returns an independent deep copy.
	Copy() Mapping
}

// SingleMapping maps each key to at most one value.
type SingleMapping struct {
	m map[Entity]Entity
}

// NewSingleMapping creates an empty one-to-one mapping.
func NewSingleMapping() *SingleMapping {
	return &SingleMapping{m: make(map[Entity]Entity)}
}

func (s *SingleMapping) CanAdd(key, _ Entity) bool {
	_, taken := s.m[key]
	return !taken
}

func (s *SingleMapping) Add(key, val Entity) error {
	if !s.CanAdd(key, val) {
		return &Error{Code: ErrCodeDuplicateRelation, Message: "key already mapped", Entity: key, Child: val}
	}
	s.m[key] = val
	return nil
}

func (s *SingleMapping) Remove(key, val Entity) error {
	if !s.Contains(key, val) {
		return &Error{Code: ErrCodeMissingRelation, Message: "pair not mapped", Entity: key, Child: val}
	}
	delete(s.m, key)
	return nil
}

func (s *SingleMapping) Values(key Entity) []Entity {
	if v, ok := s.m[key]; ok {
		return []Entity{v}
	}
	return nil
}

func (s *SingleMapping) ContainsKey(key Entity) bool {
	_, ok := s.m[key]
	return ok
}

func (s *SingleMapping) Contains(key, val Entity) bool {
	v, ok := s.m[key]
	return ok && v == val
}

func (s *SingleMapping) Len() int { return len(s.m) }

func (s *SingleMapping) All() iter.Seq2[Entity, Entity] {
	return orderedItems(s.m)
}

func (s *SingleMapping) Clear() { clear(s.m) }

func (s *SingleMapping) Copy() Mapping {
	return &SingleMapping{m: maps.Clone(s.m)}
}

// MultiMapping maps each key to a set of values.
type MultiMapping struct {
	m map[Entity]map[Entity]struct{}
	n int
}

// NewMultiMapping creates an empty one-to-many mapping.
func NewMultiMapping() *MultiMapping {
	return &MultiMapping{m: make(map[Entity]map[Entity]struct{})}
}

func (s *MultiMapping) CanAdd(key, val Entity) bool {
	return !s.Contains(key, val)
}

func (s *MultiMapping) Add(key, val Entity) error {
	if !s.CanAdd(key, val) {
		return &Error{Code: ErrCodeDuplicateRelation, Message: "pair already mapped", Entity: key, Child: val}
	}
	vals, ok := s.m[key]
	if !ok {
		vals = make(map[Entity]struct{})
		s.m[key] = vals
	}
	vals[val] = struct{}{}
	s.n++
	return nil
}

func (s *MultiMapping) Remove(key, val Entity) error {
	if !s.Contains(key, val) {
		return &Error{Code: ErrCodeMissingRelation, Message: "pair not mapped", Entity: key, Child: val}
	}
	vals := s.m[key]
	delete(vals, val)
	if len(vals) == 0 {
		delete(s.m, key)
	}
	s.n--
	return nil
}

func (s *MultiMapping) Values(key Entity) []Entity {
	vals, ok := s.m[key]
	if !ok {
		return nil
	}
	return sortedEntities(vals)
}

func (s *MultiMapping) ContainsKey(key Entity) bool {
	_, ok := s.m[key]
	return ok
}

func (s *MultiMapping) Contains(key, val Entity) bool {
	_, ok := s.m[key][val]
	return ok
}

func (s *MultiMapping) Len() int { return s.n }

func (s *MultiMapping) All() iter.Seq2[Entity, Entity] {
	return func(yield func(Entity, Entity) bool) {
		for _, key := range slices.SortedFunc(maps.Keys(s.m), Entity.Compare) {
			for _, val := range sortedEntities(s.m[key]) {
				if !yield(key, val) {
					return
				}
			}
		}
	}
}

func (s *MultiMapping) Clear() {
	clear(s.m)
	s.n = 0
}

func (s *MultiMapping) Copy() Mapping {
	out := &MultiMapping{m: make(map[Entity]map[Entity]struct{}, len(s.m)), n: s.n}
	for k, vals := range s.m {
		out.m[k] = maps.Clone(vals)
	}
	return out
}
