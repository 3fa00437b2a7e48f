// Package storage defines how a whole model is persisted and loaded back.
//
// A Storage encodes every shard of a model at a path: sqlstore keeps one
// table per collection and one pair table per relation, yamldoc keeps one
// document per shard. Saves receive an immutable model captured when the
// save was requested and may run concurrently with later mutations. Loads
// fill the mutable shards of a snapshot, which must be empty.
package storage

import (
	"context"
	"fmt"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

// Storage persists models.
type Storage interface {
	// Save writes every shard of m, replacing what path held. A model
	// holding a dangling pair is rejected with MISSING_KEY, so whatever
	// Save accepts Load reads back.
	Save(ctx context.Context, path string, m *model.Model) error

	// SaveChanges brings path from the state before changes to m. Stores
	// that cannot apply changes incrementally rewrite the affected shards.
	// Dangling pairs in m are rejected as in Save.
	SaveChanges(ctx context.Context, path string, m *model.Model, changes *model.ModelChanges) error

	// Load reads path into every shard of the snapshot's base model.
	// Loading into a non-empty member fails with NON_EMPTY_LOAD.
	Load(ctx context.Context, path string, s *model.Snapshot) error
}

// Targets materializes every shard of the snapshot's base model and checks
// that all of them are empty.
func Targets(s *model.Snapshot) ([]model.MutableShard, error) {
	var out []model.MutableShard
	for _, shard := range s.Base().Shards() {
		ms, err := s.Shard(shard.Info())
		if err != nil {
			return nil, err
		}
		if err := CheckEmpty(ms); err != nil {
			return nil, err
		}
		out = append(out, ms)
	}
	return out, nil
}

// CheckEmpty fails with NON_EMPTY_LOAD if any member of ms holds data.
func CheckEmpty(ms model.MutableShard) error {
	for _, m := range ms.Members() {
		n := 0
		switch mm := m.(type) {
		case model.MutableCollectionMember:
			n = mm.Mutator().Len()
		case model.MutableRelationMember:
			n = mm.Mutator().Len()
		}
		if n > 0 {
			return model.NewNonEmptyLoadError(m.MemberInfo(), n)
		}
	}
	return nil
}

// AddRow decodes bag with the collection's descriptor and adds it.
func AddRow(m model.CollectionMutator, e model.Entity, bag value.Object) error {
	p, err := m.Info().Decode(bag)
	if err != nil {
		return fmt.Errorf("%s %s: %w", m.Info(), e, err)
	}
	return m.Add(e, p)
}

// KeySpace is a set of entities relation endpoints are checked against.
type KeySpace interface {
	Contains(e model.Entity) bool
}

// KeySpaceOf returns the union of every collection of shards holding
// entities of type t. A type no collection holds accepts any entity.
func KeySpaceOf(shards []model.MutableShard, t model.EntityType) (KeySpace, error) {
	var ks union
	for _, ms := range shards {
		for _, ci := range ms.Info().Collections {
			if ci.EntityType != t {
				continue
			}
			m, err := model.CollectionMutatorOf(ms, ci)
			if err != nil {
				return nil, err
			}
			ks = append(ks, m)
		}
	}
	if len(ks) == 0 {
		return anyEntity{}, nil
	}
	return ks, nil
}

// CheckPairs fails with MISSING_KEY on the first relation pair of m whose
// parent or child is not held by any collection of its entity type.
func CheckPairs(m *model.Model) error {
	shards := m.Shards()
	for _, shard := range shards {
		for _, member := range shard.Members() {
			rv, ok := member.(model.RelationView)
			if !ok {
				continue
			}
			info := rv.Info()
			parents := viewKeySpace(shards, info.Parent)
			children := viewKeySpace(shards, info.Child)
			for parent, child := range rv.Pairs() {
				if !parents.Contains(parent) {
					return model.NewDanglingPairError(info, "parent", parent, child)
				}
				if !children.Contains(child) {
					return model.NewDanglingPairError(info, "child", parent, child)
				}
			}
		}
	}
	return nil
}

func viewKeySpace(shards []model.Shard, t model.EntityType) KeySpace {
	var ks union
	for _, shard := range shards {
		for _, member := range shard.Members() {
			if cv, ok := member.(model.CollectionView); ok && cv.Info().EntityType == t {
				ks = append(ks, cv)
			}
		}
	}
	if len(ks) == 0 {
		return anyEntity{}
	}
	return ks
}

type union []KeySpace

func (u union) Contains(e model.Entity) bool {
	for _, ks := range u {
		if ks.Contains(e) {
			return true
		}
	}
	return false
}

type anyEntity struct{}

func (anyEntity) Contains(model.Entity) bool { return true }
