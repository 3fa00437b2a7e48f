package model

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Member is anything a shard holds: a collection or a relation.
type Member interface {
	MemberInfo() MemberInfo
}

// CollectionView is the type-erased read surface of a collection, used by
// storage and tooling that do not know the Properties type.
type CollectionView interface {
	Member
	Info() *CollectionInfo
	Len() int
	Contains(e Entity) bool
	Rows() iter.Seq2[Entity, Properties]
}

// Collection is a read-only mapping from Entity to Properties.
// A Collection reachable from a published Model is never mutated.
type Collection[P Properties] struct {
	info  *CollectionInfo
	items map[Entity]P
}

// NewCollection creates an empty collection.
func NewCollection[P Properties](info *CollectionInfo) *Collection[P] {
	return &Collection[P]{info: info, items: make(map[Entity]P)}
}

func (c *Collection[P]) Info() *CollectionInfo  { return c.info }
func (c *Collection[P]) MemberInfo() MemberInfo { return c.info }
func (c *Collection[P]) Len() int               { return len(c.items) }

// Contains reports whether e is present.
func (c *Collection[P]) Contains(e Entity) bool {
	_, ok := c.items[e]
	return ok
}

// Lookup returns the properties of e, if present.
func (c *Collection[P]) Lookup(e Entity) (P, bool) {
	p, ok := c.items[e]
	return p, ok
}

// Get returns the properties of e or a missing-key error.
func (c *Collection[P]) Get(e Entity) (P, error) {
	p, ok := c.items[e]
	if !ok {
		return p, missingKey(c.info, e)
	}
	return p, nil
}

// Entities returns all entities in (type, id) order.
func (c *Collection[P]) Entities() []Entity {
	return sortedEntities(c.items)
}

// All iterates entity/properties pairs in (type, id) order.
func (c *Collection[P]) All() iter.Seq2[Entity, P] {
	return orderedItems(c.items)
}

// Rows iterates pairs as type-erased Properties.
func (c *Collection[P]) Rows() iter.Seq2[Entity, Properties] {
	return erasedItems(c.items)
}

// Mutable returns an independent mutable copy decorated by d.
func (c *Collection[P]) Mutable(d *Decorator) *MutableCollection[P] {
	m := &MutableCollection[P]{
		info:  c.info,
		items: maps.Clone(c.items),
		ids:   d.IDs(),
	}
	if m.items == nil {
		m.items = make(map[Entity]P)
	}
	m.mutator = d.Collection(&collectionStore[P]{c: m})
	return m
}

// MutableCollection is the mutable counterpart of Collection. Writes go
// through the decorated mutator chain; reads go directly to the items.
type MutableCollection[P Properties] struct {
	info    *CollectionInfo
	items   map[Entity]P
	ids     IDGenerator
	mutator CollectionMutator
	frozen  bool
}

// NewMutableCollection creates an empty, undecorated mutable collection.
func NewMutableCollection[P Properties](info *CollectionInfo) *MutableCollection[P] {
	return NewCollection[P](info).Mutable(nil)
}

func (m *MutableCollection[P]) Info() *CollectionInfo  { return m.info }
func (m *MutableCollection[P]) MemberInfo() MemberInfo { return m.info }
func (m *MutableCollection[P]) Len() int               { return len(m.items) }

// Mutator returns the decorated mutator chain.
func (m *MutableCollection[P]) Mutator() CollectionMutator { return m.mutator }

// Contains reports whether e is present.
func (m *MutableCollection[P]) Contains(e Entity) bool {
	_, ok := m.items[e]
	return ok
}

// Lookup returns the properties of e, if present.
func (m *MutableCollection[P]) Lookup(e Entity) (P, bool) {
	p, ok := m.items[e]
	return p, ok
}

// Get returns the properties of e or a missing-key error.
func (m *MutableCollection[P]) Get(e Entity) (P, error) {
	p, ok := m.items[e]
	if !ok {
		return p, missingKey(m.info, e)
	}
	return p, nil
}

// Entities returns all entities in (type, id) order.
func (m *MutableCollection[P]) Entities() []Entity {
	return sortedEntities(m.items)
}

// All iterates entity/properties pairs in (type, id) order.
func (m *MutableCollection[P]) All() iter.Seq2[Entity, P] {
	return orderedItems(m.items)
}

// Rows iterates pairs as type-erased Properties.
func (m *MutableCollection[P]) Rows() iter.Seq2[Entity, Properties] {
	return erasedItems(m.items)
}

// Add inserts e with properties p. Fails with a duplicate-key error if e
// is already present.
func (m *MutableCollection[P]) Add(e Entity, p P) error {
	return m.mutator.Add(e, p)
}

// AddNew inserts p under a freshly generated id of the collection's entity type.
func (m *MutableCollection[P]) AddNew(p P) (Entity, error) {
	e := Entity{Type: m.info.EntityType, ID: m.ids.NewID()}
	if err := m.mutator.Add(e, p); err != nil {
		return Entity{}, err
	}
	return e, nil
}

// Modify replaces the properties of e with fn(old). fn must be pure.
func (m *MutableCollection[P]) Modify(e Entity, fn func(P) P) error {
	return m.mutator.Modify(e, func(old Properties) (Properties, error) {
		typed, ok := old.(P)
		if !ok {
			return nil, typeMismatch(m.info, e, old)
		}
		return fn(typed), nil
	})
}

// Set replaces the properties of e.
func (m *MutableCollection[P]) Set(e Entity, p P) error {
	return m.Modify(e, func(P) P { return p })
}

// Remove deletes e. Fails with a missing-key error if e is absent.
func (m *MutableCollection[P]) Remove(e Entity) error {
	return m.mutator.Remove(e)
}

// Freeze converts m back to its read-only form. m must not be used afterwards.
func (m *MutableCollection[P]) Freeze() *Collection[P] {
	m.frozen = true
	return &Collection[P]{info: m.info, items: m.items}
}

// collectionStore is the innermost mutator: it enforces container
// invariants and writes to the backing map.
type collectionStore[P Properties] struct {
	c *MutableCollection[P]
}

func (s *collectionStore[P]) Info() *CollectionInfo { return s.c.info }
func (s *collectionStore[P]) Len() int              { return len(s.c.items) }

func (s *collectionStore[P]) Contains(e Entity) bool {
	_, ok := s.c.items[e]
	return ok
}

func (s *collectionStore[P]) Get(e Entity) (Properties, error) {
	p, ok := s.c.items[e]
	if !ok {
		return nil, missingKey(s.c.info, e)
	}
	return p, nil
}

func (s *collectionStore[P]) Add(e Entity, p Properties) error {
	if err := s.writable(); err != nil {
		return err
	}
	if e.Type != s.c.info.EntityType {
		return &Error{
			Code:    ErrCodeTypeMismatch,
			Message: fmt.Sprintf("entity type %q, collection holds %q", e.Type, s.c.info.EntityType),
			Member:  memberPath(s.c.info),
			Entity:  e,
		}
	}
	typed, ok := p.(P)
	if !ok {
		return typeMismatch(s.c.info, e, p)
	}
	if _, dup := s.c.items[e]; dup {
		return &Error{Code: ErrCodeDuplicateKey, Message: "entity already present", Member: memberPath(s.c.info), Entity: e}
	}
	s.c.items[e] = typed
	return nil
}

func (s *collectionStore[P]) Modify(e Entity, fn func(Properties) (Properties, error)) error {
	if err := s.writable(); err != nil {
		return err
	}
	old, ok := s.c.items[e]
	if !ok {
		return missingKey(s.c.info, e)
	}
	p, err := fn(old)
	if err != nil {
		return err
	}
	typed, ok := p.(P)
	if !ok {
		return typeMismatch(s.c.info, e, p)
	}
	s.c.items[e] = typed
	return nil
}

func (s *collectionStore[P]) Remove(e Entity) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, ok := s.c.items[e]; !ok {
		return missingKey(s.c.info, e)
	}
	delete(s.c.items, e)
	return nil
}

func (s *collectionStore[P]) writable() error {
	if s.c.frozen {
		return newMemberError(ErrCodeFrozen, s.c.info, "collection is frozen")
	}
	return nil
}

func missingKey(info *CollectionInfo, e Entity) *Error {
	return &Error{Code: ErrCodeMissingKey, Message: "entity not found", Member: memberPath(info), Entity: e}
}

func typeMismatch(info *CollectionInfo, e Entity, p Properties) *Error {
	return &Error{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("unexpected properties type %T", p),
		Member:  memberPath(info),
		Entity:  e,
	}
}

func sortedEntities[P any](items map[Entity]P) []Entity {
	return slices.SortedFunc(maps.Keys(items), Entity.Compare)
}

func orderedItems[P any](items map[Entity]P) iter.Seq2[Entity, P] {
	return func(yield func(Entity, P) bool) {
		for _, e := range sortedEntities(items) {
			if !yield(e, items[e]) {
				return
			}
		}
	}
}

func erasedItems[P Properties](items map[Entity]P) iter.Seq2[Entity, Properties] {
	return func(yield func(Entity, Properties) bool) {
		for _, e := range sortedEntities(items) {
			if !yield(e, items[e]) {
				return
			}
		}
	}
}
