// Package repository defines the row-level persistence contract storages
// build on.
//
// A repository stores each collection as rows (entity id plus one value per
// field) and each relation as (parent id, child id) pairs. Loading fills
// mutable collections and relations, which must be empty. Relations load
// against key spaces holding the already-loaded parent and child entities,
// so a pair whose endpoint is missing is reported instead of dangling.
//
// Schema changes go through versioned migrations: the repository stores a
// version number and applies, in one transaction, every migration whose
// version exceeds it.
package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

// CollectionSchema is the storage layout of a collection.
type CollectionSchema struct {
	Info  *model.CollectionInfo
	Table string
}

// NewCollectionSchema derives the layout of a collection. The table is named
// "<shard>__<member>".
func NewCollectionSchema(info *model.CollectionInfo) *CollectionSchema {
	return &CollectionSchema{Info: info, Table: info.Shard + "__" + info.Name}
}

// RelationSchema is the storage layout of a relation.
type RelationSchema struct {
	Info  *model.RelationInfo
	Table string
}

// NewRelationSchema derives the layout of a relation.
func NewRelationSchema(info *model.RelationInfo) *RelationSchema {
	return &RelationSchema{Info: info, Table: info.Shard + "__" + info.Name}
}

// ShardSchema groups the layouts of every member of a shard.
type ShardSchema struct {
	Info        *model.ShardInfo
	Collections []*CollectionSchema
	Relations   []*RelationSchema
}

// NewShardSchema derives the layouts of every member of a shard.
func NewShardSchema(info *model.ShardInfo) *ShardSchema {
	s := &ShardSchema{Info: info}
	for _, c := range info.Collections {
		s.Collections = append(s.Collections, NewCollectionSchema(c))
	}
	for _, r := range info.Relations {
		s.Relations = append(s.Relations, NewRelationSchema(r))
	}
	return s
}

// Collection returns the layout of a collection of the shard.
func (s *ShardSchema) Collection(info *model.CollectionInfo) (*CollectionSchema, bool) {
	for _, c := range s.Collections {
		if c.Info == info {
			return c, true
		}
	}
	return nil, false
}

// Relation returns the layout of a relation of the shard.
func (s *ShardSchema) Relation(info *model.RelationInfo) (*RelationSchema, bool) {
	for _, r := range s.Relations {
		if r.Info == info {
			return r, true
		}
	}
	return nil, false
}

// Row is one stored collection entry.
type Row struct {
	Entity     model.Entity
	Properties value.Object
}

// Pair is one stored relation entry.
type Pair struct {
	Parent model.Entity
	Child  model.Entity
}

// KeySpace is the set of entities a relation endpoint may refer to.
// Collection mutators satisfy it.
type KeySpace interface {
	Contains(e model.Entity) bool
}

// Tables reads and writes rows and pairs.
type Tables interface {
	Insert(ctx context.Context, s *CollectionSchema, rows []Row) error
	Update(ctx context.Context, s *CollectionSchema, rows []Row) error
	Delete(ctx context.Context, s *CollectionSchema, entities []model.Entity) error
	// Truncate removes every row or pair of the table.
	Truncate(ctx context.Context, table string) error

	InsertPairs(ctx context.Context, s *RelationSchema, pairs []Pair) error
	DeletePairs(ctx context.Context, s *RelationSchema, pairs []Pair) error

	// SelectCollection adds every stored row to target, which must be empty.
	SelectCollection(ctx context.Context, s *CollectionSchema, target model.CollectionMutator) error

	// SelectRelation adds every stored pair to target, which must be empty.
	// Each parent must be in parents and each child in children.
	SelectRelation(ctx context.Context, s *RelationSchema, target model.RelationMutator, parents, children KeySpace) error
}

// Repository is a versioned store of rows and pairs.
type Repository interface {
	Tables

	// Transact runs fn in one transaction, committed only if fn succeeds.
	Transact(ctx context.Context, fn func(Tables) error) error

	// Version returns the stored schema version; zero for a new store.
	Version(ctx context.Context) (int, error)

	// Migrate applies, in one transaction, every migration whose version
	// exceeds the stored version, then stores the highest version. It
	// returns the number of migrations applied.
	Migrate(ctx context.Context, migrations []Migration) (int, error)

	Close() error
}

// Migration is one step of the schema history.
type Migration struct {
	Version int
	Name    string
	// Script is executed statement by statement.
	Script []string
}

// ValidateMigrations checks that versions are positive and strictly
// increasing.
func ValidateMigrations(migrations []Migration) error {
	prev := 0
	for _, m := range migrations {
		if m.Version <= prev {
			return fmt.Errorf("migration %q: version %d must be greater than %d", m.Name, m.Version, prev)
		}
		prev = m.Version
	}
	return nil
}

// Pending returns the migrations whose version exceeds current, in order.
func Pending(migrations []Migration, current int) []Migration {
	i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version > current })
	if i < 0 {
		return nil
	}
	return migrations[i:]
}

// RequireEmpty fails with NON_EMPTY_LOAD if a load target holds data.
func RequireEmpty(member model.MemberInfo, size int) error {
	if size > 0 {
		return model.NewNonEmptyLoadError(member, size)
	}
	return nil
}
