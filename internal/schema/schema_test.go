package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

var libraryDir = filepath.Join("..", "..", "testdata", "library")

func TestLoad_LibrarySchema(t *testing.T) {
	s, err := Load(libraryDir)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Version)
	assert.Equal(t, 2, s.Files)
	require.Len(t, s.Shards, 2)

	lib, ok := s.Shard("library")
	require.True(t, ok)
	require.Len(t, lib.Collections, 2)
	books := lib.Collections[0]
	assert.Equal(t, "books", books.Name)
	assert.Equal(t, model.EntityType("book"), books.EntityType)
	assert.Equal(t, []model.FieldInfo{
		{Name: "title", Kind: value.KindString},
		{Name: "year", Kind: value.KindInt, Nullable: true},
	}, books.Fields)

	written, ok := lib.Relation("written")
	require.True(t, ok)
	assert.Equal(t, model.EntityType("author"), written.Parent)
	assert.Equal(t, model.EntityType("book"), written.Child)
	assert.Equal(t, model.ManyToMany, written.Cardinality)
	sequel, ok := lib.Relation("sequel")
	require.True(t, ok)
	assert.Equal(t, model.OneToOne, sequel.Cardinality)

	catalog, ok := s.Shard("catalog")
	require.True(t, ok)
	shelves, ok := catalog.Collection("shelves")
	require.True(t, ok)
	assert.Equal(t, []model.FieldInfo{
		{Name: "label", Kind: value.KindString},
		{Name: "capacity", Kind: value.KindInt},
		{Name: "width_cm", Kind: value.KindFloat},
		{Name: "tags", Kind: value.KindArray, Nullable: true},
		{Name: "location", Kind: value.KindObject, Nullable: true},
		{Name: "public", Kind: value.KindBool},
	}, shelves.Fields)
	holds, ok := catalog.Relation("holds")
	require.True(t, ok)
	assert.Equal(t, model.OneToMany, holds.Cardinality)
}

func TestSchema_RegistryAndModel(t *testing.T) {
	s, err := Load(libraryDir)
	require.NoError(t, err)

	reg, err := s.Registry()
	require.NoError(t, err)
	info, err := reg.Shard("library")
	require.NoError(t, err)
	lib, _ := s.Shard("library")
	assert.Same(t, lib, info)

	m, err := s.NewModel()
	require.NoError(t, err)
	assert.Len(t, m.Shards(), 2)

	v := model.NewView(m)
	snap := v.CreateSnapshot(model.CopyOnWrite)
	shard, err := model.Edit[*model.MutableDynamicShard](snap, lib)
	require.NoError(t, err)
	books, ok := shard.Collection("books")
	require.True(t, ok)
	require.NoError(t, books.Mutator().Add(
		model.NewEntity("book", [16]byte{15: 1}),
		model.NewRecord(value.Object{"title": value.String("Dune")}),
	))
	_, err = books.Info().Decode(value.Object{"year": value.Int(1965)})
	assert.ErrorIs(t, err, model.ErrInvalidProperties, "title is required")
	snap.Discard()
}

func TestCompileString_Defaults(t *testing.T) {
	s, err := CompileString(`
		shard: inventory: {
			collection: items: {
				entity: "item"
			}
			relation: parts: {
				parent: "item"
				child:  "item"
			}
		}
	`, "inline.cue")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Version)
	inv, ok := s.Shard("inventory")
	require.True(t, ok)
	assert.Empty(t, inv.Collections[0].Fields)
	assert.Equal(t, model.ManyToMany, inv.Relations[0].Cardinality)
}

func TestCompileString_Version(t *testing.T) {
	s, err := CompileString(`
		version: 3
		shard: a: collection: b: entity: "c"
	`, "v.cue")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Version)
}

func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no shards", `version: 1`, "at least one shard"},
		{"empty shard", `shard: a: {}`, "at least one collection or relation"},
		{"reserved field", `shard: a: collection: b: {entity: "c", fields: id: string}`, `"id" is reserved`},
		{"missing entity", `shard: a: collection: b: fields: x: string`, "entity is required"},
		{"bad entity type", `shard: a: collection: b: entity: "Bad Type"`, "invalid entity type"},
		{"bad shard name", `shard: Bad: collection: b: entity: "c"`, "invalid shard name"},
		{"double underscore", `shard: a__b: collection: b: entity: "c"`, "invalid shard name"},
		{"unsupported kind", `shard: a: collection: b: {entity: "c", fields: x: _}`, "unsupported type kind"},
		{"bad cardinality", `shard: a: relation: r: {parent: "p", child: "c", cardinality: "some"}`, "unknown cardinality"},
		{"missing child", `shard: a: relation: r: parent: "p"`, "child is required"},
		{"duplicate member", `shard: a: {collection: x: entity: "c", relation: x: {parent: "p", child: "c"}}`, `duplicate member "x"`},
		{"bad version", `version: 0, shard: a: collection: b: entity: "c"`, "must be positive"},
		{"cue conflict", `shard: a: collection: b: {entity: "c", entity: "d"}`, "conflicting values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src, "bad.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompileString_ReportsEveryShard(t *testing.T) {
	_, err := CompileString(`
		shard: a: collection: b: {entity: "c", fields: id: string}
		shard: d: relation: r: parent: "p"
	`, "two.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"id" is reserved`)
	assert.Contains(t, err.Error(), "child is required")

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.True(t, serr.Pos.IsValid(), "errors carry a source position")
	assert.Equal(t, "two.cue", serr.Pos.Filename())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := t.TempDir()
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrNoFiles)

	file := filepath.Join(t.TempDir(), "x.cue")
	require.NoError(t, os.WriteFile(file, []byte("package x"), 0o644))
	_, err = Load(file)
	assert.ErrorContains(t, err, "not a directory")

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "bad.cue"), []byte("package test\n\nshard: {"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
