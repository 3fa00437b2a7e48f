package model

import (
	"fmt"
	"iter"
)

// RelationView is the type-erased read surface of a relation.
type RelationView interface {
	Member
	Info() *RelationInfo
	Len() int
	Contains(parent, child Entity) bool
	Pairs() iter.Seq2[Entity, Entity]
}

// Relation is a read-only set of parent/child pairs kept in two mappings
// that always agree: forward (parent to children) and backward (child to
// parents).
type Relation struct {
	info     *RelationInfo
	forward  Mapping
	backward Mapping
}

// NewRelation creates an empty relation whose mapping variants follow
// info.Cardinality.
func NewRelation(info *RelationInfo) *Relation {
	var fwd, back Mapping
	switch info.Cardinality {
	case OneToOne:
		fwd, back = NewSingleMapping(), NewSingleMapping()
	case OneToMany:
		fwd, back = NewMultiMapping(), NewSingleMapping()
	default:
		fwd, back = NewMultiMapping(), NewMultiMapping()
	}
	return NewRelationWith(info, fwd, back)
}

// NewRelationWith creates a relation over injected mappings. The mapping
// variants define the cardinality; both must be empty.
func NewRelationWith(info *RelationInfo, forward, backward Mapping) *Relation {
	return &Relation{info: info, forward: forward, backward: backward}
}

func (r *Relation) Info() *RelationInfo               { return r.info }
func (r *Relation) MemberInfo() MemberInfo            { return r.info }
func (r *Relation) Len() int                          { return r.forward.Len() }
func (r *Relation) Children(parent Entity) []Entity   { return r.forward.Values(parent) }
func (r *Relation) Parents(child Entity) []Entity     { return r.backward.Values(child) }
func (r *Relation) ContainsParent(parent Entity) bool { return r.forward.ContainsKey(parent) }
func (r *Relation) ContainsChild(child Entity) bool   { return r.backward.ContainsKey(child) }

// Contains reports whether the pair is present.
func (r *Relation) Contains(parent, child Entity) bool {
	return r.forward.Contains(parent, child)
}

// Pairs iterates parent/child pairs ordered by parent, then child.
func (r *Relation) Pairs() iter.Seq2[Entity, Entity] {
	return r.forward.All()
}

// Mutable returns an independent mutable copy decorated by d.
func (r *Relation) Mutable(d *Decorator) *MutableRelation {
	m := &MutableRelation{
		info:     r.info,
		forward:  r.forward.Copy(),
		backward: r.backward.Copy(),
	}
	m.mutator = d.Relation(&relationStore{r: m})
	return m
}

// MutableRelation is the mutable counterpart of Relation.
type MutableRelation struct {
	info     *RelationInfo
	forward  Mapping
	backward Mapping
	mutator  RelationMutator
	frozen   bool
}

// NewMutableRelation creates an empty, undecorated mutable relation.
func NewMutableRelation(info *RelationInfo) *MutableRelation {
	return NewRelation(info).Mutable(nil)
}

func (m *MutableRelation) Info() *RelationInfo               { return m.info }
func (m *MutableRelation) MemberInfo() MemberInfo            { return m.info }
func (m *MutableRelation) Len() int                          { return m.forward.Len() }
func (m *MutableRelation) Mutator() RelationMutator          { return m.mutator }
func (m *MutableRelation) Children(parent Entity) []Entity   { return m.forward.Values(parent) }
func (m *MutableRelation) Parents(child Entity) []Entity     { return m.backward.Values(child) }
func (m *MutableRelation) ContainsParent(parent Entity) bool { return m.forward.ContainsKey(parent) }
func (m *MutableRelation) ContainsChild(child Entity) bool   { return m.backward.ContainsKey(child) }

// Contains reports whether the pair is present.
func (m *MutableRelation) Contains(parent, child Entity) bool {
	return m.forward.Contains(parent, child)
}

// Pairs iterates parent/child pairs ordered by parent, then child.
func (m *MutableRelation) Pairs() iter.Seq2[Entity, Entity] {
	return m.forward.All()
}

// Add links parent to child. Fails with a duplicate-relation error if the
// pair exists or either side's cardinality would be violated; in that case
// neither side is changed.
func (m *MutableRelation) Add(parent, child Entity) error {
	return m.mutator.Add(parent, child)
}

// Remove unlinks the pair. Fails with a missing-relation error if absent.
func (m *MutableRelation) Remove(parent, child Entity) error {
	return m.mutator.Remove(parent, child)
}

// RemoveParent unlinks every child of parent.
func (m *MutableRelation) RemoveParent(parent Entity) error {
	for _, child := range m.forward.Values(parent) {
		if err := m.mutator.Remove(parent, child); err != nil {
			return err
		}
	}
	return nil
}

// RemoveChild unlinks every parent of child.
func (m *MutableRelation) RemoveChild(child Entity) error {
	for _, parent := range m.backward.Values(child) {
		if err := m.mutator.Remove(parent, child); err != nil {
			return err
		}
	}
	return nil
}

// Freeze converts m back to its read-only form. m must not be used afterwards.
func (m *MutableRelation) Freeze() *Relation {
	m.frozen = true
	return &Relation{info: m.info, forward: m.forward, backward: m.backward}
}

// relationStore is the innermost relation mutator. It checks both sides
// before mutating either.
type relationStore struct {
	r *MutableRelation
}

func (s *relationStore) Info() *RelationInfo { return s.r.info }
func (s *relationStore) Len() int            { return s.r.forward.Len() }

func (s *relationStore) Contains(parent, child Entity) bool {
	return s.r.forward.Contains(parent, child)
}

func (s *relationStore) Add(parent, child Entity) error {
	if err := s.check(parent, child); err != nil {
		return err
	}
	if !s.r.forward.CanAdd(parent, child) || !s.r.backward.CanAdd(child, parent) {
		return s.pairError(ErrCodeDuplicateRelation, "pair exists or violates "+s.r.info.Cardinality.String(), parent, child)
	}
	if err := s.r.forward.Add(parent, child); err != nil {
		return err
	}
	return s.r.backward.Add(child, parent)
}

func (s *relationStore) Remove(parent, child Entity) error {
	if err := s.check(parent, child); err != nil {
		return err
	}
	if !s.r.forward.Contains(parent, child) {
		return s.pairError(ErrCodeMissingRelation, "pair not found", parent, child)
	}
	if err := s.r.forward.Remove(parent, child); err != nil {
		return err
	}
	return s.r.backward.Remove(child, parent)
}

func (s *relationStore) check(parent, child Entity) error {
	if s.r.frozen {
		return newMemberError(ErrCodeFrozen, s.r.info, "relation is frozen")
	}
	if parent.Type != s.r.info.Parent || child.Type != s.r.info.Child {
		return s.pairError(ErrCodeTypeMismatch,
			fmt.Sprintf("pair (%s, %s), relation holds (%s, %s)", parent.Type, child.Type, s.r.info.Parent, s.r.info.Child),
			parent, child)
	}
	return nil
}

func (s *relationStore) pairError(code ErrorCode, msg string, parent, child Entity) *Error {
	return &Error{Code: code, Message: msg, Member: memberPath(s.r.info), Entity: parent, Child: child}
}
