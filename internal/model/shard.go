package model

import "fmt"

// Shard is a named, schema-fixed bundle of collections and relations in its
// read-only state.
type Shard interface {
	Info() *ShardInfo
	// Members returns collections then relations, in ShardInfo order.
	Members() []Member
	// Mutable returns an independent mutable copy whose mutators are
	// decorated by d.
	Mutable(d *Decorator) MutableShard
}

// MutableShard is the mutable counterpart of a Shard.
type MutableShard interface {
	Info() *ShardInfo
	Members() []MutableMember
	// Freeze converts the shard back to its read-only form.
	Freeze() Shard
}

// MutableMember is a mutable collection or relation.
type MutableMember interface {
	MemberInfo() MemberInfo
}

// MutableCollectionMember is implemented by every *MutableCollection[P].
type MutableCollectionMember interface {
	MutableMember
	Mutator() CollectionMutator
}

// MutableRelationMember is implemented by *MutableRelation.
type MutableRelationMember interface {
	MutableMember
	Mutator() RelationMutator
}

// CollectionMutatorOf returns the decorated mutator of a collection of s.
func CollectionMutatorOf(s MutableShard, info *CollectionInfo) (CollectionMutator, error) {
	for _, m := range s.Members() {
		if c, ok := m.(MutableCollectionMember); ok && c.MemberInfo() == MemberInfo(info) {
			return c.Mutator(), nil
		}
	}
	return nil, unknownMember(s.Info(), info)
}

// RelationMutatorOf returns the decorated mutator of a relation of s.
func RelationMutatorOf(s MutableShard, info *RelationInfo) (RelationMutator, error) {
	for _, m := range s.Members() {
		if r, ok := m.(MutableRelationMember); ok && r.MemberInfo() == MemberInfo(info) {
			return r.Mutator(), nil
		}
	}
	return nil, unknownMember(s.Info(), info)
}

// CollectionViewOf returns the read surface of a collection of s.
func CollectionViewOf(s Shard, info *CollectionInfo) (CollectionView, error) {
	for _, m := range s.Members() {
		if c, ok := m.(CollectionView); ok && c.Info() == info {
			return c, nil
		}
	}
	return nil, unknownMember(s.Info(), info)
}

// RelationViewOf returns the read surface of a relation of s.
func RelationViewOf(s Shard, info *RelationInfo) (RelationView, error) {
	for _, m := range s.Members() {
		if r, ok := m.(RelationView); ok && r.Info() == info {
			return r, nil
		}
	}
	return nil, unknownMember(s.Info(), info)
}

func unknownMember(shard *ShardInfo, member MemberInfo) *Error {
	return &Error{
		Code:    ErrCodeUnknownMember,
		Message: fmt.Sprintf("shard %q has no member %s", shard.Name, member),
	}
}
