package model

import "fmt"

// ChangesFrame holds one ChangeSet per member of a shard.
type ChangesFrame struct {
	shard *ShardInfo
	sets  []ChangeSet
}

// NewChangesFrame creates a frame with an empty set for every member.
func NewChangesFrame(shard *ShardInfo) *ChangesFrame {
	f := &ChangesFrame{shard: shard}
	for _, c := range shard.Collections {
		f.sets = append(f.sets, NewCollectionChangeSet(c))
	}
	for _, r := range shard.Relations {
		f.sets = append(f.sets, NewRelationChangeSet(r))
	}
	return f
}

// Shard returns the descriptor of the frame's shard.
func (f *ChangesFrame) Shard() *ShardInfo { return f.shard }

// Sets returns one set per member in shard order, including empty ones.
func (f *ChangesFrame) Sets() []ChangeSet {
	return append([]ChangeSet(nil), f.sets...)
}

// Set returns the set of a member.
func (f *ChangesFrame) Set(member MemberInfo) (ChangeSet, bool) {
	for _, s := range f.sets {
		if s.Member() == member {
			return s, true
		}
	}
	return nil, false
}

// Collection returns the set of a collection, or nil if it is not a member.
func (f *ChangesFrame) Collection(info *CollectionInfo) *CollectionChangeSet {
	s, ok := f.Set(info)
	if !ok {
		return nil
	}
	return s.(*CollectionChangeSet)
}

// Relation returns the set of a relation, or nil if it is not a member.
func (f *ChangesFrame) Relation(info *RelationInfo) *RelationChangeSet {
	s, ok := f.Set(info)
	if !ok {
		return nil
	}
	return s.(*RelationChangeSet)
}

// HasChanges reports whether any member has changes.
func (f *ChangesFrame) HasChanges() bool {
	for _, s := range f.sets {
		if s.HasChanges() {
			return true
		}
	}
	return false
}

// Len returns the total number of entries across members.
func (f *ChangesFrame) Len() int {
	n := 0
	for _, s := range f.sets {
		n += s.Len()
	}
	return n
}

// Invert returns a frame that undoes f.
func (f *ChangesFrame) Invert() *ChangesFrame {
	out := &ChangesFrame{shard: f.shard, sets: make([]ChangeSet, len(f.sets))}
	for i, s := range f.sets {
		out.sets[i] = s.Invert()
	}
	return out
}

// Merge returns a frame equal in effect to applying f, then later.
func (f *ChangesFrame) Merge(later *ChangesFrame) (*ChangesFrame, error) {
	if later.shard != f.shard {
		return nil, &Error{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("cannot merge frame of %q into %q", later.shard.Name, f.shard.Name)}
	}
	out := &ChangesFrame{shard: f.shard, sets: make([]ChangeSet, len(f.sets))}
	for i, s := range f.sets {
		merged, err := s.Merge(later.sets[i])
		if err != nil {
			return nil, err
		}
		out.sets[i] = merged
	}
	return out, nil
}

// ApplyTo replays every member's set into a mutable shard.
func (f *ChangesFrame) ApplyTo(shard MutableShard) error {
	for _, s := range f.sets {
		if !s.HasChanges() {
			continue
		}
		if err := s.ApplyTo(shard); err != nil {
			return err
		}
	}
	return nil
}

func (f *ChangesFrame) clone() *ChangesFrame {
	out := &ChangesFrame{shard: f.shard, sets: make([]ChangeSet, len(f.sets))}
	for i, s := range f.sets {
		out.sets[i] = s.clone()
	}
	return out
}

// ModelChanges is the set of frames produced by one mutation, at most one
// per shard name. It is mutated only by the snapshot that records it; Invert and
// Merge return new instances.
type ModelChanges struct {
	frames []*ChangesFrame
}

// NewModelChanges creates an empty change set.
func NewModelChanges() *ModelChanges {
	return &ModelChanges{}
}

// Add registers a frame. A second frame for the same shard is rejected.
func (c *ModelChanges) Add(frame *ChangesFrame) error {
	if _, dup := c.FrameByName(frame.shard.Name); dup {
		return &Error{Code: ErrCodeDuplicateShard, Message: fmt.Sprintf("frame for shard %q already present", frame.shard.Name)}
	}
	c.frames = append(c.frames, frame)
	return nil
}

// Frames returns the registered frames in registration order.
func (c *ModelChanges) Frames() []*ChangesFrame {
	return append([]*ChangesFrame(nil), c.frames...)
}

// Frame returns the frame of a shard.
func (c *ModelChanges) Frame(shard *ShardInfo) (*ChangesFrame, bool) {
	return c.FrameByName(shard.Name)
}

// FrameByName returns the frame of a shard by name.
func (c *ModelChanges) FrameByName(name string) (*ChangesFrame, bool) {
	if i := c.indexOf(name); i >= 0 {
		return c.frames[i], true
	}
	return nil, false
}

// Collection returns the set recorded for a collection, or nil.
func (c *ModelChanges) Collection(info *CollectionInfo) *CollectionChangeSet {
	f, ok := c.FrameByName(info.Shard)
	if !ok {
		return nil
	}
	return f.Collection(info)
}

// Relation returns the set recorded for a relation, or nil.
func (c *ModelChanges) Relation(info *RelationInfo) *RelationChangeSet {
	f, ok := c.FrameByName(info.Shard)
	if !ok {
		return nil
	}
	return f.Relation(info)
}

// HasChanges reports whether any frame has changes.
func (c *ModelChanges) HasChanges() bool {
	for _, f := range c.frames {
		if f.HasChanges() {
			return true
		}
	}
	return false
}

// Len returns the total number of entries.
func (c *ModelChanges) Len() int {
	n := 0
	for _, f := range c.frames {
		n += f.Len()
	}
	return n
}

// Invert returns changes that undo c.
func (c *ModelChanges) Invert() *ModelChanges {
	out := &ModelChanges{frames: make([]*ChangesFrame, len(c.frames))}
	for i, f := range c.frames {
		out.frames[i] = f.Invert()
	}
	return out
}

// Merge returns changes equal in effect to applying c, then later.
func (c *ModelChanges) Merge(later *ModelChanges) (*ModelChanges, error) {
	out := c.Clone()
	for _, lf := range later.frames {
		i := out.indexOf(lf.shard.Name)
		if i < 0 {
			out.frames = append(out.frames, lf.clone())
			continue
		}
		merged, err := out.frames[i].Merge(lf)
		if err != nil {
			return nil, err
		}
		out.frames[i] = merged
	}
	return out, nil
}

// ApplyTo replays every frame into the corresponding shards of a snapshot.
func (c *ModelChanges) ApplyTo(s *Snapshot) error {
	for _, f := range c.frames {
		if !f.HasChanges() {
			continue
		}
		ms, err := s.Shard(f.shard)
		if err != nil {
			return err
		}
		if err := f.ApplyTo(ms); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy.
func (c *ModelChanges) Clone() *ModelChanges {
	out := &ModelChanges{frames: make([]*ChangesFrame, len(c.frames))}
	for i, f := range c.frames {
		out.frames[i] = f.clone()
	}
	return out
}

// frameFor returns the frame of a shard, registering it on first use.
func (c *ModelChanges) frameFor(shard *ShardInfo) *ChangesFrame {
	if f, ok := c.Frame(shard); ok {
		return f
	}
	f := NewChangesFrame(shard)
	c.frames = append(c.frames, f)
	return f
}

func (c *ModelChanges) indexOf(name string) int {
	for i, f := range c.frames {
		if f.shard.Name == name {
			return i
		}
	}
	return -1
}
