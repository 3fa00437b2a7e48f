// Package yamldoc implements storage.Storage as a directory of YAML
// documents, one per shard, named "<shard>.yaml":
//
//	shard: library
//	collections:
//	  books:
//	    - id: 0190a1b2-...
//	      title: Dune
//	relations:
//	  written:
//	    - parent: 0190a1b2-...
//	      child: 0190a1b3-...
//
// Rows and pairs are written in entity order, so saving the same model
// twice produces identical files. Shards are written in parallel; each
// file is replaced atomically through a temporary file and a rename.
// SaveChanges rewrites only the shards the changes touch.
package yamldoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/storage"
	"github.com/roach88/tessera/internal/value"
)

// Ext is the extension of shard documents.
const Ext = ".yaml"

// document is the on-disk form of one shard.
type document struct {
	Shard       string                      `yaml:"shard"`
	Collections map[string][]map[string]any `yaml:"collections,omitempty"`
	Relations   map[string][]pair           `yaml:"relations,omitempty"`
}

type pair struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// Store is a YAML document storage.
type Store struct {
	logger *slog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store.
func New(opts ...Option) *Store {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// File returns the document path of a shard in dir.
func File(dir, shard string) string {
	return filepath.Join(dir, shard+Ext)
}

// Save writes a document for every shard of m.
func (s *Store) Save(ctx context.Context, dir string, m *model.Model) error {
	if err := storage.CheckPairs(m); err != nil {
		return fmt.Errorf("save %s: %w", dir, err)
	}
	return s.write(ctx, dir, m.Shards())
}

// SaveChanges rewrites the documents of the shards changes touch.
func (s *Store) SaveChanges(ctx context.Context, dir string, m *model.Model, changes *model.ModelChanges) error {
	var shards []model.Shard
	for _, frame := range changes.Frames() {
		if !frame.HasChanges() {
			continue
		}
		shard, ok := m.Shard(frame.Shard())
		if !ok {
			return fmt.Errorf("model has no shard %q", frame.Shard().Name)
		}
		shards = append(shards, shard)
	}
	if len(shards) == 0 {
		return nil
	}
	if err := storage.CheckPairs(m); err != nil {
		return fmt.Errorf("save %s: %w", dir, err)
	}
	return s.write(ctx, dir, shards)
}

func (s *Store) write(ctx context.Context, dir string, shards []model.Shard) error {
	if len(shards) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := Encode(shard)
			if err != nil {
				return err
			}
			path := File(dir, shard.Info().Name)
			if err := writeFile(path, data); err != nil {
				return err
			}
			s.logger.Debug("shard saved", "path", path, "bytes", len(data))
			return nil
		})
	}
	return g.Wait()
}

// Load reads the documents in dir into every shard of the snapshot. A
// shard without a document loads empty; a missing dir is an error.
func (s *Store) Load(ctx context.Context, dir string, snap *model.Snapshot) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("load %s: %w", dir, err)
	}
	targets, err := storage.Targets(snap)
	if err != nil {
		return err
	}

	docs := make([]*document, len(targets))
	for i, ms := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := File(dir, ms.Info().Name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no document for shard", "path", path)
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		doc, err := decode(data)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		if doc.Shard != ms.Info().Name {
			return fmt.Errorf("load %s: document holds shard %q", path, doc.Shard)
		}
		if err := loadCollections(doc, ms); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		docs[i] = doc
	}
	for i, ms := range targets {
		if docs[i] == nil {
			continue
		}
		if err := loadRelations(docs[i], ms, targets); err != nil {
			return fmt.Errorf("load %s: %w", File(dir, ms.Info().Name), err)
		}
	}
	return nil
}

// Encode renders the document of a shard.
func Encode(shard model.Shard) ([]byte, error) {
	info := shard.Info()
	doc := document{
		Shard:       info.Name,
		Collections: map[string][]map[string]any{},
		Relations:   map[string][]pair{},
	}
	for _, ci := range info.Collections {
		view, err := model.CollectionViewOf(shard, ci)
		if err != nil {
			return nil, err
		}
		rows := []map[string]any{}
		for e, p := range view.Rows() {
			row := map[string]any{"id": e.ID.String()}
			for name, v := range p.Bag() {
				if value.IsNull(v) {
					continue
				}
				row[name] = value.ToAny(v)
			}
			rows = append(rows, row)
		}
		doc.Collections[ci.Name] = rows
	}
	for _, ri := range info.Relations {
		view, err := model.RelationViewOf(shard, ri)
		if err != nil {
			return nil, err
		}
		pairs := []pair{}
		for parent, child := range view.Pairs() {
			pairs = append(pairs, pair{Parent: parent.ID.String(), Child: child.ID.String()})
		}
		doc.Relations[ri.Name] = pairs
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode shard %s: %w", info.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode shard %s: %w", info.Name, err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &doc, nil
}

func loadCollections(doc *document, ms model.MutableShard) error {
	info := ms.Info()
	for name := range doc.Collections {
		if _, ok := info.Collection(name); !ok {
			return fmt.Errorf("shard %s has no collection %q", info.Name, name)
		}
	}
	for _, ci := range info.Collections {
		target, err := model.CollectionMutatorOf(ms, ci)
		if err != nil {
			return err
		}
		for i, row := range doc.Collections[ci.Name] {
			e, bag, err := decodeRow(ci, row)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", ci, i, err)
			}
			if err := storage.AddRow(target, e, bag); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeRow(ci *model.CollectionInfo, row map[string]any) (model.Entity, value.Object, error) {
	raw, ok := row["id"].(string)
	if !ok {
		return model.Entity{}, nil, errors.New("missing id")
	}
	e, err := entity(ci.EntityType, raw)
	if err != nil {
		return model.Entity{}, nil, err
	}
	bag := value.Object{}
	for name, v := range row {
		if name == "id" {
			continue
		}
		val, err := value.FromAny(v)
		if err != nil {
			return model.Entity{}, nil, fmt.Errorf("field %q: %w", name, err)
		}
		if value.IsNull(val) {
			continue
		}
		// Whole floats are written without a fraction and read back as ints.
		if f, ok := ci.Field(name); ok && f.Kind == value.KindFloat {
			if n, isInt := val.(value.Int); isInt {
				val = value.Float(n)
			}
		}
		bag[name] = val
	}
	return e, bag, nil
}

func loadRelations(doc *document, ms model.MutableShard, all []model.MutableShard) error {
	info := ms.Info()
	for name := range doc.Relations {
		if _, ok := info.Relation(name); !ok {
			return fmt.Errorf("shard %s has no relation %q", info.Name, name)
		}
	}
	for _, ri := range info.Relations {
		target, err := model.RelationMutatorOf(ms, ri)
		if err != nil {
			return err
		}
		parents, err := storage.KeySpaceOf(all, ri.Parent)
		if err != nil {
			return err
		}
		children, err := storage.KeySpaceOf(all, ri.Child)
		if err != nil {
			return err
		}
		for i, p := range doc.Relations[ri.Name] {
			parent, err := entity(ri.Parent, p.Parent)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", ri, i, err)
			}
			child, err := entity(ri.Child, p.Child)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", ri, i, err)
			}
			if !parents.Contains(parent) {
				return model.NewDanglingPairError(ri, "parent", parent, child)
			}
			if !children.Contains(child) {
				return model.NewDanglingPairError(ri, "child", parent, child)
			}
			if err := target.Add(parent, child); err != nil {
				return err
			}
		}
	}
	return nil
}

func entity(t model.EntityType, id string) (model.Entity, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return model.Entity{}, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return model.NewEntity(t, u), nil
}

// writeFile replaces path with data through a temporary file in the same
// directory.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
