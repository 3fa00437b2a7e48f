package model

import (
	"fmt"

	"github.com/roach88/tessera/internal/value"
)

// MemberInfo is the static descriptor of a shard member: either a
// *CollectionInfo or a *RelationInfo.
//
// Descriptors are created once per member and compared by pointer. They are
// the correlation key between a member, its ChangeSet and its storage schema.
type MemberInfo interface {
	ShardName() string
	MemberName() string
	String() string
	memberInfo()
}

// FieldInfo describes one property of a collection.
type FieldInfo struct {
	Name     string
	Kind     value.Kind
	Nullable bool
}

// CollectionInfo describes a collection: where it lives, which entity type
// it holds and which fields its properties carry.
type CollectionInfo struct {
	Shard      string
	Name       string
	EntityType EntityType
	Fields     []FieldInfo

	decode func(value.Object) (Properties, error)
}

// NewCollectionInfo creates a collection descriptor. decode converts a
// validated property bag into the collection's Properties type.
func NewCollectionInfo[P Properties](shard, name string, entityType EntityType, fields []FieldInfo, decode func(value.Object) (P, error)) *CollectionInfo {
	return &CollectionInfo{
		Shard:      shard,
		Name:       name,
		EntityType: entityType,
		Fields:     fields,
		decode: func(bag value.Object) (Properties, error) {
			return decode(bag)
		},
	}
}

func (c *CollectionInfo) ShardName() string  { return c.Shard }
func (c *CollectionInfo) MemberName() string { return c.Name }
func (c *CollectionInfo) String() string     { return c.Shard + "." + c.Name }
func (*CollectionInfo) memberInfo()          {}

// Field returns the descriptor of a named field.
func (c *CollectionInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// Validate checks a property bag against the field descriptors.
// Int values are accepted for float fields.
func (c *CollectionInfo) Validate(bag value.Object) error {
	for _, f := range c.Fields {
		v, present := bag.Get(f.Name)
		if !present {
			if !f.Nullable {
				return c.invalid("field %q is required", f.Name)
			}
			continue
		}
		got := value.KindOf(v)
		if got != f.Kind && (f.Kind != value.KindFloat || got != value.KindInt) {
			return c.invalid("field %q: expected %s, got %s", f.Name, f.Kind, got)
		}
	}
	for name, v := range bag {
		if _, ok := c.Field(name); !ok && !value.IsNull(v) {
			return c.invalid("unknown field %q", name)
		}
	}
	return nil
}

// Decode validates a property bag and converts it into Properties. Int
// values of float fields are decoded as Float, the form stores read back.
func (c *CollectionInfo) Decode(bag value.Object) (Properties, error) {
	if err := c.Validate(bag); err != nil {
		return nil, err
	}
	bag = c.widenFloats(bag)
	if c.decode == nil {
		return NewRecord(bag), nil
	}
	p, err := c.decode(bag)
	if err != nil {
		return nil, c.invalid("%v", err)
	}
	return p, nil
}

func (c *CollectionInfo) widenFloats(bag value.Object) value.Object {
	var out value.Object
	for _, f := range c.Fields {
		if f.Kind != value.KindFloat {
			continue
		}
		i, ok := bag[f.Name].(value.Int)
		if !ok {
			continue
		}
		if out == nil {
			out = bag.Clone()
		}
		out[f.Name] = value.Float(i)
	}
	if out == nil {
		return bag
	}
	return out
}

func (c *CollectionInfo) invalid(format string, args ...any) *Error {
	return newMemberError(ErrCodeInvalidProperties, c, fmt.Sprintf(format, args...))
}

// Cardinality is the allowed shape of a relation.
type Cardinality int

const (
	// OneToOne allows at most one child per parent and one parent per child.
	OneToOne Cardinality = iota
	// OneToMany allows many children per parent and one parent per child.
	OneToMany
	// ManyToMany allows any pairs.
	ManyToMany
)

var cardinalityNames = [...]string{"one-to-one", "one-to-many", "many-to-many"}

func (c Cardinality) String() string {
	if c < 0 || int(c) >= len(cardinalityNames) {
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
	return cardinalityNames[c]
}

// ParseCardinality parses the names produced by Cardinality.String.
func ParseCardinality(s string) (Cardinality, error) {
	for i, name := range cardinalityNames {
		if name == s {
			return Cardinality(i), nil
		}
	}
	return 0, fmt.Errorf("unknown cardinality %q", s)
}

// RelationInfo describes a parent/child relation.
type RelationInfo struct {
	Shard       string
	Name        string
	Parent      EntityType
	Child       EntityType
	Cardinality Cardinality
}

func (r *RelationInfo) ShardName() string  { return r.Shard }
func (r *RelationInfo) MemberName() string { return r.Name }
func (r *RelationInfo) String() string     { return r.Shard + "." + r.Name }
func (*RelationInfo) memberInfo()          {}

// ShardInfo describes a shard: its name and its ordered members.
type ShardInfo struct {
	Name        string
	Collections []*CollectionInfo
	Relations   []*RelationInfo
}

// NewShardInfo groups member descriptors under a shard name.
//
// Panics if a member belongs to another shard or two members share a name.
// Shard descriptors are static program structure; a mismatch is a
// programming error.
func NewShardInfo(name string, members ...MemberInfo) *ShardInfo {
	s := &ShardInfo{Name: name}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m.ShardName() != name {
			panic(fmt.Sprintf("model: member %s does not belong to shard %q", m, name))
		}
		if seen[m.MemberName()] {
			panic(fmt.Sprintf("model: duplicate member %s", m))
		}
		seen[m.MemberName()] = true
		switch info := m.(type) {
		case *CollectionInfo:
			s.Collections = append(s.Collections, info)
		case *RelationInfo:
			s.Relations = append(s.Relations, info)
		}
	}
	return s
}

// Members returns collections first, then relations, in declaration order.
func (s *ShardInfo) Members() []MemberInfo {
	out := make([]MemberInfo, 0, len(s.Collections)+len(s.Relations))
	for _, c := range s.Collections {
		out = append(out, c)
	}
	for _, r := range s.Relations {
		out = append(out, r)
	}
	return out
}

// Collection finds a collection descriptor by name.
func (s *ShardInfo) Collection(name string) (*CollectionInfo, bool) {
	for _, c := range s.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Relation finds a relation descriptor by name.
func (s *ShardInfo) Relation(name string) (*RelationInfo, bool) {
	for _, r := range s.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Member finds a collection or relation descriptor by name.
func (s *ShardInfo) Member(name string) (MemberInfo, bool) {
	if c, ok := s.Collection(name); ok {
		return c, true
	}
	if r, ok := s.Relation(name); ok {
		return r, true
	}
	return nil, false
}

// Registry maps shard names to descriptors and empty shard prototypes.
// It resolves members when decoding persisted changes and builds empty models.
type Registry struct {
	prototypes []Shard
	byName     map[string]Shard
}

// NewRegistry registers empty shard prototypes.
func NewRegistry(prototypes ...Shard) (*Registry, error) {
	r := &Registry{byName: make(map[string]Shard, len(prototypes))}
	for _, p := range prototypes {
		name := p.Info().Name
		if _, dup := r.byName[name]; dup {
			return nil, &Error{Code: ErrCodeDuplicateShard, Message: fmt.Sprintf("shard %q registered twice", name)}
		}
		r.byName[name] = p
		r.prototypes = append(r.prototypes, p)
	}
	return r, nil
}

// Shards returns the registered descriptors in registration order.
func (r *Registry) Shards() []*ShardInfo {
	out := make([]*ShardInfo, len(r.prototypes))
	for i, p := range r.prototypes {
		out[i] = p.Info()
	}
	return out
}

// Shard returns a registered shard descriptor.
func (r *Registry) Shard(name string) (*ShardInfo, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownMember, Message: fmt.Sprintf("unknown shard %q", name)}
	}
	return p.Info(), nil
}

// Member resolves a member descriptor by shard and member name.
func (r *Registry) Member(shard, member string) (MemberInfo, error) {
	info, err := r.Shard(shard)
	if err != nil {
		return nil, err
	}
	m, ok := info.Member(member)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownMember, Message: fmt.Sprintf("unknown member %s.%s", shard, member)}
	}
	return m, nil
}

// NewModel returns a model holding every registered prototype.
func (r *Registry) NewModel() *Model {
	m, err := New(r.prototypes...)
	if err != nil {
		// Prototypes were deduplicated by NewRegistry.
		panic(err)
	}
	return m
}
