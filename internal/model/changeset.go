package model

import (
	"fmt"
	"maps"
	"slices"
)

// Action is the kind of a recorded change.
type Action int

const (
	ActionAdded Action = iota + 1
	ActionRemoved
	ActionModified
	ActionLinked
	ActionUnlinked
)

var actionNames = map[Action]string{
	ActionAdded:    "added",
	ActionRemoved:  "removed",
	ActionModified: "modified",
	ActionLinked:   "linked",
	ActionUnlinked: "unlinked",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction parses the names produced by Action.String.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Inverse flips Added/Removed and Linked/Unlinked. Modified is its own inverse.
func (a Action) Inverse() Action {
	switch a {
	case ActionAdded:
		return ActionRemoved
	case ActionRemoved:
		return ActionAdded
	case ActionLinked:
		return ActionUnlinked
	case ActionUnlinked:
		return ActionLinked
	}
	return a
}

// ChangeSet is the invertible, mergeable diff log of one collection or
// relation. The implementations are *CollectionChangeSet and
// *RelationChangeSet.
type ChangeSet interface {
	Member() MemberInfo
	HasChanges() bool
	Len() int
	// Invert returns a set that undoes this one.
	Invert() ChangeSet
	// Merge returns a set equal in effect to applying this set, then later.
	Merge(later ChangeSet) (ChangeSet, error)
	// ApplyTo replays the set through the member's mutator in shard.
	ApplyTo(shard MutableShard) error
	clone() ChangeSet
}

// CollectionChange is one entry of a CollectionChangeSet. Old is unset for
// Added, New is unset for Removed.
type CollectionChange struct {
	Action Action
	Entity Entity
	Old    Properties
	New    Properties
}

// Invert returns the change that undoes c.
func (c CollectionChange) Invert() CollectionChange {
	return CollectionChange{Action: c.Action.Inverse(), Entity: c.Entity, Old: c.New, New: c.Old}
}

// CollectionChangeSet records Added, Removed and Modified entries for one
// collection, at most one per entity. Appending collapses a new entry into
// the pending one for the same entity so the set always holds the net effect.
type CollectionChangeSet struct {
	info    *CollectionInfo
	entries []CollectionChange
	index   map[Entity]int
}

// NewCollectionChangeSet creates an empty set for a collection.
func NewCollectionChangeSet(info *CollectionInfo) *CollectionChangeSet {
	return &CollectionChangeSet{info: info, index: make(map[Entity]int)}
}

func (s *CollectionChangeSet) Info() *CollectionInfo { return s.info }
func (s *CollectionChangeSet) Member() MemberInfo    { return s.info }
func (s *CollectionChangeSet) HasChanges() bool      { return len(s.entries) > 0 }
func (s *CollectionChangeSet) Len() int              { return len(s.entries) }

// Changes returns the entries in append order.
func (s *CollectionChangeSet) Changes() []CollectionChange {
	return slices.Clone(s.entries)
}

// Change returns the pending entry for e.
func (s *CollectionChangeSet) Change(e Entity) (CollectionChange, bool) {
	i, ok := s.index[e]
	if !ok {
		return CollectionChange{}, false
	}
	return s.entries[i], true
}

// Append records a change, collapsing it with a pending change of the same
// entity:
//
//	Added    + Modified -> Added (new properties)
//	Added    + Removed  -> nothing
//	Modified + Modified -> Modified, or nothing when the net effect is equal
//	Modified + Removed  -> Removed (original properties)
//	Removed  + Added    -> Modified, or nothing when the net effect is equal
//
// Any other combination is an invalid-change-sequence error. A Modified
// entry with equal old and new properties is never recorded.
func (s *CollectionChangeSet) Append(c CollectionChange) error {
	switch c.Action {
	case ActionAdded, ActionRemoved, ActionModified:
	default:
		return s.invalid(c, "not a collection action")
	}
	i, pending := s.index[c.Entity]
	if !pending {
		if c.Action == ActionModified && sameProperties(c.Old, c.New) {
			return nil
		}
		s.push(c)
		return nil
	}
	prev := s.entries[i]
	switch {
	case prev.Action == ActionAdded && c.Action == ActionModified:
		s.entries[i] = CollectionChange{Action: ActionAdded, Entity: c.Entity, New: c.New}
	case prev.Action == ActionAdded && c.Action == ActionRemoved:
		s.drop(i)
	case prev.Action == ActionModified && c.Action == ActionModified,
		prev.Action == ActionRemoved && c.Action == ActionAdded:
		if sameProperties(prev.Old, c.New) {
			s.drop(i)
		} else {
			s.entries[i] = CollectionChange{Action: ActionModified, Entity: c.Entity, Old: prev.Old, New: c.New}
		}
	case prev.Action == ActionModified && c.Action == ActionRemoved:
		s.entries[i] = CollectionChange{Action: ActionRemoved, Entity: c.Entity, Old: prev.Old}
	default:
		return s.invalid(c, fmt.Sprintf("%s after pending %s", c.Action, prev.Action))
	}
	return nil
}

// Invert returns a set that undoes s: entries in reverse order, each inverted.
func (s *CollectionChangeSet) Invert() ChangeSet {
	out := NewCollectionChangeSet(s.info)
	for i := len(s.entries) - 1; i >= 0; i-- {
		out.push(s.entries[i].Invert())
	}
	return out
}

// Merge replays every entry of later onto a copy of s.
func (s *CollectionChangeSet) Merge(later ChangeSet) (ChangeSet, error) {
	l, ok := later.(*CollectionChangeSet)
	if !ok || l.info != s.info {
		return nil, &Error{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("cannot merge %s into %s", later.Member(), s.info)}
	}
	out := s.clone().(*CollectionChangeSet)
	for _, c := range l.entries {
		if err := out.Append(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ApplyTo replays the entries through the collection's mutator in shard.
func (s *CollectionChangeSet) ApplyTo(shard MutableShard) error {
	m, err := CollectionMutatorOf(shard, s.info)
	if err != nil {
		return err
	}
	return s.Apply(m)
}

// Apply replays the entries through m.
func (s *CollectionChangeSet) Apply(m CollectionMutator) error {
	for _, c := range s.entries {
		var err error
		switch c.Action {
		case ActionAdded:
			err = m.Add(c.Entity, c.New)
		case ActionRemoved:
			err = m.Remove(c.Entity)
		case ActionModified:
			p := c.New
			err = m.Modify(c.Entity, func(Properties) (Properties, error) { return p, nil })
		}
		if err != nil {
			return fmt.Errorf("apply %s %s: %w", c.Action, c.Entity, err)
		}
	}
	return nil
}

func (s *CollectionChangeSet) clone() ChangeSet {
	return &CollectionChangeSet{info: s.info, entries: slices.Clone(s.entries), index: maps.Clone(s.index)}
}

func (s *CollectionChangeSet) push(c CollectionChange) {
	s.index[c.Entity] = len(s.entries)
	s.entries = append(s.entries, c)
}

func (s *CollectionChangeSet) drop(i int) {
	delete(s.index, s.entries[i].Entity)
	s.entries = slices.Delete(s.entries, i, i+1)
	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j].Entity] = j
	}
}

func (s *CollectionChangeSet) invalid(c CollectionChange, msg string) *Error {
	return &Error{Code: ErrCodeInvalidChangeSequence, Message: msg, Member: memberPath(s.info), Entity: c.Entity}
}

func sameProperties(a, b Properties) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// RelationChange is one entry of a RelationChangeSet.
type RelationChange struct {
	Action Action
	Parent Entity
	Child  Entity
}

// Invert returns the change that undoes c.
func (c RelationChange) Invert() RelationChange {
	return RelationChange{Action: c.Action.Inverse(), Parent: c.Parent, Child: c.Child}
}

type pairKey struct {
	parent, child Entity
}

// RelationChangeSet records Linked and Unlinked entries for one relation, at
// most one per pair. Opposite actions on the same pair cancel; repeating an
// action on a pair is an invalid-change-sequence error.
type RelationChangeSet struct {
	info    *RelationInfo
	entries []RelationChange
	index   map[pairKey]int
}

// NewRelationChangeSet creates an empty set for a relation.
func NewRelationChangeSet(info *RelationInfo) *RelationChangeSet {
	return &RelationChangeSet{info: info, index: make(map[pairKey]int)}
}

func (s *RelationChangeSet) Info() *RelationInfo { return s.info }
func (s *RelationChangeSet) Member() MemberInfo  { return s.info }
func (s *RelationChangeSet) HasChanges() bool    { return len(s.entries) > 0 }
func (s *RelationChangeSet) Len() int            { return len(s.entries) }

// Changes returns the entries in append order.
func (s *RelationChangeSet) Changes() []RelationChange {
	return slices.Clone(s.entries)
}

// Append records a link or unlink, cancelling it against a pending opposite
// action on the same pair.
func (s *RelationChangeSet) Append(c RelationChange) error {
	if c.Action != ActionLinked && c.Action != ActionUnlinked {
		return s.invalid(c, "not a relation action")
	}
	key := pairKey{c.Parent, c.Child}
	i, pending := s.index[key]
	if !pending {
		s.push(c)
		return nil
	}
	if prev := s.entries[i]; prev.Action == c.Action {
		return s.invalid(c, fmt.Sprintf("%s twice", c.Action))
	}
	// Unlinked then Linked drops both entries rather than keeping a Linked:
	// the pair held before the set, so replaying a lone Linked would fail
	// with DUPLICATE_RELATION.
	s.drop(i)
	return nil
}

// Invert returns a set that undoes s.
func (s *RelationChangeSet) Invert() ChangeSet {
	out := NewRelationChangeSet(s.info)
	for i := len(s.entries) - 1; i >= 0; i-- {
		out.push(s.entries[i].Invert())
	}
	return out
}

// Merge replays every entry of later onto a copy of s.
func (s *RelationChangeSet) Merge(later ChangeSet) (ChangeSet, error) {
	l, ok := later.(*RelationChangeSet)
	if !ok || l.info != s.info {
		return nil, &Error{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("cannot merge %s into %s", later.Member(), s.info)}
	}
	out := s.clone().(*RelationChangeSet)
	for _, c := range l.entries {
		if err := out.Append(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ApplyTo replays the entries through the relation's mutator in shard.
func (s *RelationChangeSet) ApplyTo(shard MutableShard) error {
	m, err := RelationMutatorOf(shard, s.info)
	if err != nil {
		return err
	}
	return s.Apply(m)
}

// Apply replays the entries through m.
func (s *RelationChangeSet) Apply(m RelationMutator) error {
	for _, c := range s.entries {
		var err error
		if c.Action == ActionLinked {
			err = m.Add(c.Parent, c.Child)
		} else {
			err = m.Remove(c.Parent, c.Child)
		}
		if err != nil {
			return fmt.Errorf("apply %s (%s, %s): %w", c.Action, c.Parent, c.Child, err)
		}
	}
	return nil
}

func (s *RelationChangeSet) clone() ChangeSet {
	return &RelationChangeSet{info: s.info, entries: slices.Clone(s.entries), index: maps.Clone(s.index)}
}

func (s *RelationChangeSet) push(c RelationChange) {
	s.index[pairKey{c.Parent, c.Child}] = len(s.entries)
	s.entries = append(s.entries, c)
}

func (s *RelationChangeSet) drop(i int) {
	c := s.entries[i]
	delete(s.index, pairKey{c.Parent, c.Child})
	s.entries = slices.Delete(s.entries, i, i+1)
	for j := i; j < len(s.entries); j++ {
		s.index[pairKey{s.entries[j].Parent, s.entries[j].Child}] = j
	}
}

func (s *RelationChangeSet) invalid(c RelationChange, msg string) *Error {
	return &Error{Code: ErrCodeInvalidChangeSequence, Message: msg, Member: memberPath(s.info), Entity: c.Parent, Child: c.Child}
}
