package model_test

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/fixture"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

var (
	dune   = fixture.Book{Title: "Dune", Year: 1965}
	dune2  = fixture.Book{Title: "Dune", Year: 1966}
	dune3  = fixture.Book{Title: "Dune", Year: 1967}
	added  = model.ActionAdded
	remove = model.ActionRemoved
	modify = model.ActionModified
)

func change(a model.Action, n uint64, before, after model.Properties) model.CollectionChange {
	return model.CollectionChange{Action: a, Entity: book(n), Old: before, New: after}
}

func TestCollectionChangeSet_Collapsing(t *testing.T) {
	tests := []struct {
		name  string
		first model.CollectionChange
		then  model.CollectionChange
		want  []model.CollectionChange
	}{
		{"add then modify", change(added, 1, nil, dune), change(modify, 1, dune, dune2),
			[]model.CollectionChange{change(added, 1, nil, dune2)}},
		{"add then remove", change(added, 1, nil, dune), change(remove, 1, dune, nil),
			nil},
		{"modify then modify", change(modify, 1, dune, dune2), change(modify, 1, dune2, dune3),
			[]model.CollectionChange{change(modify, 1, dune, dune3)}},
		{"modify then modify back", change(modify, 1, dune, dune2), change(modify, 1, dune2, dune),
			nil},
		{"modify then remove", change(modify, 1, dune, dune2), change(remove, 1, dune2, nil),
			[]model.CollectionChange{change(remove, 1, dune, nil)}},
		{"remove then add", change(remove, 1, dune, nil), change(added, 1, nil, dune2),
			[]model.CollectionChange{change(modify, 1, dune, dune2)}},
		{"remove then add same", change(remove, 1, dune, nil), change(added, 1, nil, dune),
			nil},
		{"different entities", change(added, 1, nil, dune), change(added, 2, nil, dune2),
			[]model.CollectionChange{change(added, 1, nil, dune), change(added, 2, nil, dune2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := model.NewCollectionChangeSet(fixture.BooksInfo)
			require.NoError(t, set.Append(tt.first))
			require.NoError(t, set.Append(tt.then))
			if tt.want == nil {
				assert.False(t, set.HasChanges())
				assert.Empty(t, set.Changes())
				return
			}
			assert.Equal(t, tt.want, set.Changes())
		})
	}
}

func TestCollectionChangeSet_InvalidSequences(t *testing.T) {
	tests := []struct {
		name  string
		first model.CollectionChange
		then  model.CollectionChange
	}{
		{"add twice", change(added, 1, nil, dune), change(added, 1, nil, dune2)},
		{"remove twice", change(remove, 1, dune, nil), change(remove, 1, dune, nil)},
		{"modify after remove", change(remove, 1, dune, nil), change(modify, 1, dune, dune2)},
		{"add after modify", change(modify, 1, dune, dune2), change(added, 1, nil, dune)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := model.NewCollectionChangeSet(fixture.BooksInfo)
			require.NoError(t, set.Append(tt.first))
			err := set.Append(tt.then)
			assert.True(t, model.IsInvalidChangeSequence(err), "got %v", err)
			assert.Equal(t, 1, set.Len(), "a rejected entry leaves the set unchanged")
		})
	}
}

func TestCollectionChangeSet_NoOpModifyNotRecorded(t *testing.T) {
	set := model.NewCollectionChangeSet(fixture.BooksInfo)
	require.NoError(t, set.Append(change(modify, 1, dune, dune)))
	assert.False(t, set.HasChanges())
}

func TestCollectionChangeSet_DropKeepsIndexConsistent(t *testing.T) {
	set := model.NewCollectionChangeSet(fixture.BooksInfo)
	require.NoError(t, set.Append(change(added, 1, nil, dune)))
	require.NoError(t, set.Append(change(added, 2, nil, dune)))
	require.NoError(t, set.Append(change(added, 3, nil, dune)))

	require.NoError(t, set.Append(change(remove, 1, dune, nil)))
	require.NoError(t, set.Append(change(modify, 3, dune, dune2)))

	c, ok := set.Change(book(3))
	require.True(t, ok)
	assert.Equal(t, change(added, 3, nil, dune2), c)
	assert.Equal(t, 2, set.Len())
}

func TestCollectionChangeSet_InvertIsInvolutive(t *testing.T) {
	set := model.NewCollectionChangeSet(fixture.BooksInfo)
	require.NoError(t, set.Append(change(added, 1, nil, dune)))
	require.NoError(t, set.Append(change(modify, 2, dune, dune2)))
	require.NoError(t, set.Append(change(remove, 3, dune3, nil)))

	inv := set.Invert().(*model.CollectionChangeSet)
	assert.Equal(t, []model.CollectionChange{
		change(added, 3, nil, dune3),
		change(modify, 2, dune2, dune),
		change(remove, 1, dune, nil),
	}, inv.Changes())

	back := inv.Invert().(*model.CollectionChangeSet)
	assert.Equal(t, set.Changes(), back.Changes())
}

func TestCollectionChangeSet_MergeCancelsComplementaryOps(t *testing.T) {
	a := model.NewCollectionChangeSet(fixture.BooksInfo)
	require.NoError(t, a.Append(change(added, 1, nil, dune)))
	b := model.NewCollectionChangeSet(fixture.BooksInfo)
	require.NoError(t, b.Append(change(remove, 1, dune, nil)))

	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.False(t, merged.HasChanges())
	assert.True(t, a.HasChanges(), "merge must not modify its inputs")
}

func TestCollectionChangeSet_MergeRejectsForeignSet(t *testing.T) {
	a := model.NewCollectionChangeSet(fixture.BooksInfo)
	_, err := a.Merge(model.NewCollectionChangeSet(fixture.AuthorsInfo))
	assert.Error(t, err)
	_, err = a.Merge(model.NewRelationChangeSet(fixture.WrittenInfo))
	assert.Error(t, err)
}

func link(p, c uint64) model.RelationChange {
	return model.RelationChange{Action: model.ActionLinked, Parent: author(p), Child: book(c)}
}

func unlink(p, c uint64) model.RelationChange {
	return model.RelationChange{Action: model.ActionUnlinked, Parent: author(p), Child: book(c)}
}

func TestRelationChangeSet_Collapsing(t *testing.T) {
	set := model.NewRelationChangeSet(fixture.WrittenInfo)
	require.NoError(t, set.Append(link(1, 1)))
	require.NoError(t, set.Append(link(1, 2)))
	require.NoError(t, set.Append(unlink(1, 1)))
	assert.Equal(t, []model.RelationChange{link(1, 2)}, set.Changes())

	set = model.NewRelationChangeSet(fixture.WrittenInfo)
	require.NoError(t, set.Append(unlink(1, 1)))
	require.NoError(t, set.Append(link(1, 1)))
	assert.False(t, set.HasChanges(), "unlink then link of an existing pair has no net effect")
}

func TestRelationChangeSet_InvalidSequences(t *testing.T) {
	set := model.NewRelationChangeSet(fixture.WrittenInfo)
	require.NoError(t, set.Append(link(1, 1)))
	assert.True(t, model.IsInvalidChangeSequence(set.Append(link(1, 1))))

	set = model.NewRelationChangeSet(fixture.WrittenInfo)
	require.NoError(t, set.Append(unlink(1, 1)))
	assert.True(t, model.IsInvalidChangeSequence(set.Append(unlink(1, 1))))
}

func TestRelationChangeSet_InvertAndMerge(t *testing.T) {
	set := model.NewRelationChangeSet(fixture.WrittenInfo)
	require.NoError(t, set.Append(link(1, 1)))
	require.NoError(t, set.Append(unlink(2, 2)))

	inv := set.Invert()
	assert.Equal(t, []model.RelationChange{link(2, 2), unlink(1, 1)}, inv.(*model.RelationChangeSet).Changes())

	merged, err := set.Merge(inv)
	require.NoError(t, err)
	assert.False(t, merged.HasChanges(), "a set merged with its inverse is empty")
}

func TestModelChanges_InvertApplyRestoresModel(t *testing.T) {
	v := newView(t)
	commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Add(book(1), dune))
		require.NoError(t, lib.Authors.Add(author(1), fixture.Author{Name: "Herbert"}))
	})
	before := v.Model()

	c := commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Set(book(1), dune2))
		require.NoError(t, lib.Books.Add(book(2), dune3))
		require.NoError(t, lib.Written.Add(author(1), book(1)))
		require.NoError(t, lib.Authors.Remove(author(1)))
	})
	require.True(t, c.Changes.HasChanges())

	snap := v.CreateSnapshot(model.CopyOnWrite)
	require.NoError(t, c.Changes.Invert().ApplyTo(snap))
	_, err := v.ApplySnapshot(snap)
	require.NoError(t, err)

	assertSameLibrary(t, library(t, before), library(t, v.Model()))
}

func TestModelChanges_MergeEqualsSequentialApplication(t *testing.T) {
	v := newView(t)
	start := v.Model()
	first := commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Add(book(1), dune))
		require.NoError(t, lib.Books.Add(book(2), dune))
		require.NoError(t, lib.Written.Add(author(1), book(1)))
	})
	second := commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Set(book(1), dune2))
		require.NoError(t, lib.Books.Remove(book(2)))
		require.NoError(t, lib.Written.Remove(author(1), book(1)))
		require.NoError(t, lib.Written.Add(author(2), book(1)))
	})

	merged, err := first.Changes.Merge(second.Changes)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len(), "book(1) added as dune2 and one link")

	replay := model.NewView(start)
	snap := replay.CreateSnapshot(model.CopyOnWrite)
	require.NoError(t, merged.ApplyTo(snap))
	_, err = replay.ApplySnapshot(snap)
	require.NoError(t, err)

	assertSameLibrary(t, library(t, v.Model()), library(t, replay.Model()))
}

func TestModelChanges_InvertIsInvolutive(t *testing.T) {
	v := newView(t)
	c := commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Add(book(1), dune))
		require.NoError(t, lib.Written.Add(author(1), book(1)))
	})

	twice := c.Changes.Invert().Invert()
	assert.Equal(t, encode(t, c.Changes), encode(t, twice))
}

func assertSameLibrary(t *testing.T, want, got *fixture.Library) {
	t.Helper()
	assert.Equal(t, collect(want.Books.All()), collect(got.Books.All()))
	assert.Equal(t, collect(want.Authors.All()), collect(got.Authors.All()))
	assert.Equal(t, collect(want.Written.Pairs()), collect(got.Written.Pairs()))
	assert.Equal(t, collect(want.Sequel.Pairs()), collect(got.Sequel.Pairs()))
}

type kv[K, V any] struct {
	Key K
	Val V
}

func collect[K, V any](seq iter.Seq2[K, V]) []kv[K, V] {
	var out []kv[K, V]
	for k, v := range seq {
		out = append(out, kv[K, V]{k, v})
	}
	return out
}

func encode(t *testing.T, c *model.ModelChanges) string {
	t.Helper()
	data, err := model.MarshalChanges(c)
	require.NoError(t, err)
	return string(data)
}

func TestModelChanges_FramesKeyedByShardName(t *testing.T) {
	books := model.NewCollectionInfo("library", "books", fixture.BookType,
		[]model.FieldInfo{{Name: "title", Kind: value.KindString}}, model.DecodeRecord)
	other := model.NewShardInfo("library", books)

	a := model.NewModelChanges()
	require.NoError(t, a.Add(model.NewChangesFrame(fixture.LibraryInfo)))
	err := a.Add(model.NewChangesFrame(other))
	assert.True(t, model.HasCode(err, model.ErrCodeDuplicateShard), "got %v", err)

	f, ok := a.Frame(other)
	require.True(t, ok)
	assert.Same(t, fixture.LibraryInfo, f.Shard())

	b := model.NewModelChanges()
	require.NoError(t, b.Add(model.NewChangesFrame(other)))
	_, err = a.Merge(b)
	assert.True(t, model.HasCode(err, model.ErrCodeTypeMismatch), "got %v", err)

	merged, err := a.Merge(a)
	require.NoError(t, err)
	assert.Len(t, merged.Frames(), 1)
}
