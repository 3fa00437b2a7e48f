// Package sqlstore implements storage.Storage on the SQLite repository.
//
// The path names a database file. Each collection is a table and each
// relation a pair table (see package sqlite). Save rewrites every table of
// the model in one transaction. SaveChanges replays a ModelChanges as
// inserts, updates and deletes, so the database must hold the state the
// changes were recorded against. Load reads collections first, then
// relations, whose endpoints must exist among the loaded entities.
//
// Databases are opened on first use and kept open until Close. Every open
// runs the configured migrations; by default a single migration creating
// the tables of the model's shards.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/repository"
	"github.com/roach88/tessera/internal/repository/sqlite"
	"github.com/roach88/tessera/internal/storage"
)

// Store is a SQLite storage.
type Store struct {
	logger     *slog.Logger
	migrations []repository.Migration

	mu  sync.Mutex
	dbs map[string]*sqlite.DB
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMigrations replaces the default schema migration.
func WithMigrations(ms ...repository.Migration) Option {
	return func(s *Store) { s.migrations = ms }
}

// New creates a store.
func New(opts ...Option) *Store {
	s := &Store{logger: slog.Default(), dbs: map[string]*sqlite.DB{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes every database the store opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for path, db := range s.dbs {
		errs = append(errs, db.Close())
		delete(s.dbs, path)
	}
	return errors.Join(errs...)
}

// Save writes every shard of m, replacing the stored rows and pairs.
func (s *Store) Save(ctx context.Context, path string, m *model.Model) error {
	if err := storage.CheckPairs(m); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	db, err := s.open(ctx, path, infos(m))
	if err != nil {
		return err
	}
	return db.Transact(ctx, func(tx repository.Tables) error {
		for _, shard := range m.Shards() {
			if err := saveShard(ctx, tx, shard); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveChanges replays changes against the stored rows and pairs.
func (s *Store) SaveChanges(ctx context.Context, path string, m *model.Model, changes *model.ModelChanges) error {
	if !changes.HasChanges() {
		return nil
	}
	if err := storage.CheckPairs(m); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	db, err := s.open(ctx, path, infos(m))
	if err != nil {
		return err
	}
	return db.Transact(ctx, func(tx repository.Tables) error {
		for _, frame := range changes.Frames() {
			if err := saveFrame(ctx, tx, frame); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the database at path into every shard of the snapshot.
func (s *Store) Load(ctx context.Context, path string, snap *model.Snapshot) error {
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	targets, err := storage.Targets(snap)
	if err != nil {
		return err
	}
	shards := make([]*model.ShardInfo, len(targets))
	for i, ms := range targets {
		shards[i] = ms.Info()
	}
	db, err := s.open(ctx, path, shards)
	if err != nil {
		return err
	}
	return db.Transact(ctx, func(tx repository.Tables) error {
		for _, ms := range targets {
			if err := loadCollections(ctx, tx, ms); err != nil {
				return err
			}
		}
		for _, ms := range targets {
			if err := loadRelations(ctx, tx, ms, targets); err != nil {
				return err
			}
		}
		return nil
	})
}

// open returns the database at path, opening and migrating it on first use.
func (s *Store) open(ctx context.Context, path string, shards []*model.ShardInfo) (*sqlite.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[path]; ok {
		return db, nil
	}

	cfg := sqlite.DefaultConfig(path)
	cfg.Logger = s.logger
	db, err := sqlite.Open(cfg)
	if err != nil {
		return nil, err
	}
	migrations := s.migrations
	if migrations == nil {
		migrations = []repository.Migration{sqlite.SchemaMigration(1, "initial", shards...)}
	}
	n, err := db.Migrate(ctx, migrations)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("database opened", "path", path, "migrations", n)
	s.dbs[path] = db
	return db, nil
}

func infos(m *model.Model) []*model.ShardInfo {
	var out []*model.ShardInfo
	for _, shard := range m.Shards() {
		out = append(out, shard.Info())
	}
	return out
}

func saveShard(ctx context.Context, tx repository.Tables, shard model.Shard) error {
	schema := repository.NewShardSchema(shard.Info())
	for _, cs := range schema.Collections {
		view, err := model.CollectionViewOf(shard, cs.Info)
		if err != nil {
			return err
		}
		if err := tx.Truncate(ctx, cs.Table); err != nil {
			return err
		}
		var rows []repository.Row
		for e, p := range view.Rows() {
			rows = append(rows, repository.Row{Entity: e, Properties: p.Bag()})
		}
		if err := tx.Insert(ctx, cs, rows); err != nil {
			return err
		}
	}
	for _, rs := range schema.Relations {
		view, err := model.RelationViewOf(shard, rs.Info)
		if err != nil {
			return err
		}
		if err := tx.Truncate(ctx, rs.Table); err != nil {
			return err
		}
		var pairs []repository.Pair
		for parent, child := range view.Pairs() {
			pairs = append(pairs, repository.Pair{Parent: parent, Child: child})
		}
		if err := tx.InsertPairs(ctx, rs, pairs); err != nil {
			return err
		}
	}
	return nil
}

func saveFrame(ctx context.Context, tx repository.Tables, frame *model.ChangesFrame) error {
	schema := repository.NewShardSchema(frame.Shard())
	for _, set := range frame.Sets() {
		switch set := set.(type) {
		case *model.CollectionChangeSet:
			cs, ok := schema.Collection(set.Info())
			if !ok {
				return fmt.Errorf("shard %s has no collection %s", frame.Shard().Name, set.Info())
			}
			if err := saveCollectionChanges(ctx, tx, cs, set); err != nil {
				return err
			}
		case *model.RelationChangeSet:
			rs, ok := schema.Relation(set.Info())
			if !ok {
				return fmt.Errorf("shard %s has no relation %s", frame.Shard().Name, set.Info())
			}
			if err := saveRelationChanges(ctx, tx, rs, set); err != nil {
				return err
			}
		}
	}
	return nil
}

func saveCollectionChanges(ctx context.Context, tx repository.Tables, cs *repository.CollectionSchema, set *model.CollectionChangeSet) error {
	for _, c := range set.Changes() {
		var err error
		switch c.Action {
		case model.ActionAdded:
			err = tx.Insert(ctx, cs, []repository.Row{{Entity: c.Entity, Properties: c.New.Bag()}})
		case model.ActionModified:
			err = tx.Update(ctx, cs, []repository.Row{{Entity: c.Entity, Properties: c.New.Bag()}})
		case model.ActionRemoved:
			err = tx.Delete(ctx, cs, []model.Entity{c.Entity})
		default:
			err = fmt.Errorf("%s: unexpected action %s", cs.Info, c.Action)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func saveRelationChanges(ctx context.Context, tx repository.Tables, rs *repository.RelationSchema, set *model.RelationChangeSet) error {
	for _, c := range set.Changes() {
		pair := []repository.Pair{{Parent: c.Parent, Child: c.Child}}
		var err error
		switch c.Action {
		case model.ActionLinked:
			err = tx.InsertPairs(ctx, rs, pair)
		case model.ActionUnlinked:
			err = tx.DeletePairs(ctx, rs, pair)
		default:
			err = fmt.Errorf("%s: unexpected action %s", rs.Info, c.Action)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func loadCollections(ctx context.Context, tx repository.Tables, ms model.MutableShard) error {
	schema := repository.NewShardSchema(ms.Info())
	for _, cs := range schema.Collections {
		target, err := model.CollectionMutatorOf(ms, cs.Info)
		if err != nil {
			return err
		}
		if err := tx.SelectCollection(ctx, cs, target); err != nil {
			return err
		}
	}
	return nil
}

func loadRelations(ctx context.Context, tx repository.Tables, ms model.MutableShard, all []model.MutableShard) error {
	schema := repository.NewShardSchema(ms.Info())
	for _, rs := range schema.Relations {
		target, err := model.RelationMutatorOf(ms, rs.Info)
		if err != nil {
			return err
		}
		parents, err := storage.KeySpaceOf(all, rs.Info.Parent)
		if err != nil {
			return err
		}
		children, err := storage.KeySpaceOf(all, rs.Info.Child)
		if err != nil {
			return err
		}
		if err := tx.SelectRelation(ctx, rs, target, parents, children); err != nil {
			return err
		}
	}
	return nil
}

// IsNotExist reports whether a Load failed because nothing was saved at
// the path.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
