package model

// DynamicShard is a shard whose members are built from a ShardInfo at
// runtime. Collections hold Records.
type DynamicShard struct {
	info        *ShardInfo
	collections []*Collection[Record]
	relations   []*Relation
}

// NewDynamicShard creates an empty shard with one member per descriptor.
func NewDynamicShard(info *ShardInfo) *DynamicShard {
	s := &DynamicShard{info: info}
	for _, c := range info.Collections {
		s.collections = append(s.collections, NewCollection[Record](c))
	}
	for _, r := range info.Relations {
		s.relations = append(s.relations, NewRelation(r))
	}
	return s
}

func (s *DynamicShard) Info() *ShardInfo { return s.info }

func (s *DynamicShard) Members() []Member {
	out := make([]Member, 0, len(s.collections)+len(s.relations))
	for _, c := range s.collections {
		out = append(out, c)
	}
	for _, r := range s.relations {
		out = append(out, r)
	}
	return out
}

// Collection returns a collection by name.
func (s *DynamicShard) Collection(name string) (*Collection[Record], bool) {
	for _, c := range s.collections {
		if c.info.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Relation returns a relation by name.
func (s *DynamicShard) Relation(name string) (*Relation, bool) {
	for _, r := range s.relations {
		if r.info.Name == name {
			return r, true
		}
	}
	return nil, false
}

func (s *DynamicShard) Mutable(d *Decorator) MutableShard {
	m := &MutableDynamicShard{info: s.info}
	for _, c := range s.collections {
		m.collections = append(m.collections, c.Mutable(d))
	}
	for _, r := range s.relations {
		m.relations = append(m.relations, r.Mutable(d))
	}
	return m
}

// MutableDynamicShard is the mutable counterpart of DynamicShard.
type MutableDynamicShard struct {
	info        *ShardInfo
	collections []*MutableCollection[Record]
	relations   []*MutableRelation
}

func (s *MutableDynamicShard) Info() *ShardInfo { return s.info }

func (s *MutableDynamicShard) Members() []MutableMember {
	out := make([]MutableMember, 0, len(s.collections)+len(s.relations))
	for _, c := range s.collections {
		out = append(out, c)
	}
	for _, r := range s.relations {
		out = append(out, r)
	}
	return out
}

// Collection returns a mutable collection by name.
func (s *MutableDynamicShard) Collection(name string) (*MutableCollection[Record], bool) {
	for _, c := range s.collections {
		if c.info.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Relation returns a mutable relation by name.
func (s *MutableDynamicShard) Relation(name string) (*MutableRelation, bool) {
	for _, r := range s.relations {
		if r.info.Name == name {
			return r, true
		}
	}
	return nil, false
}

func (s *MutableDynamicShard) Freeze() Shard {
	out := &DynamicShard{info: s.info}
	for _, c := range s.collections {
		out.collections = append(out.collections, c.Freeze())
	}
	for _, r := range s.relations {
		out.relations = append(out.relations, r.Freeze())
	}
	return out
}
