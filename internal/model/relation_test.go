package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/fixture"
	"github.com/roach88/tessera/internal/model"
)

func TestRelation_Symmetry(t *testing.T) {
	written := model.NewMutableRelation(fixture.WrittenInfo)

	require.NoError(t, written.Add(author(1), book(1)))
	assert.Contains(t, written.Children(author(1)), book(1))
	assert.Contains(t, written.Parents(book(1)), author(1))
	assert.True(t, written.Contains(author(1), book(1)))
	assert.True(t, written.ContainsParent(author(1)))
	assert.True(t, written.ContainsChild(book(1)))

	require.NoError(t, written.Remove(author(1), book(1)))
	assert.NotContains(t, written.Children(author(1)), book(1))
	assert.NotContains(t, written.Parents(book(1)), author(1))
	assert.False(t, written.ContainsParent(author(1)))
	assert.Equal(t, 0, written.Len())
}

func TestRelation_ManyToMany(t *testing.T) {
	written := model.NewMutableRelation(fixture.WrittenInfo)

	require.NoError(t, written.Add(author(1), book(1)))
	require.NoError(t, written.Add(author(1), book(2)))
	require.NoError(t, written.Add(author(2), book(1)))

	assert.Equal(t, []model.Entity{book(1), book(2)}, written.Children(author(1)))
	assert.Equal(t, []model.Entity{author(1), author(2)}, written.Parents(book(1)))
	assert.Equal(t, 3, written.Len())

	err := written.Add(author(1), book(1))
	assert.True(t, model.IsDuplicateRelation(err))
}

func TestRelation_OneToOneViolationMutatesNeitherSide(t *testing.T) {
	sequel := model.NewMutableRelation(fixture.SequelInfo)
	require.NoError(t, sequel.Add(book(1), book(2)))

	// book(3) -> book(2) passes the forward check but fails the backward one.
	err := sequel.Add(book(3), book(2))
	require.Error(t, err)
	assert.True(t, model.IsDuplicateRelation(err))
	assert.False(t, sequel.ContainsParent(book(3)), "forward side must be untouched")
	assert.Equal(t, []model.Entity{book(1)}, sequel.Parents(book(2)))

	// book(1) -> book(4) fails the forward check.
	err = sequel.Add(book(1), book(4))
	assert.True(t, model.IsDuplicateRelation(err))
	assert.False(t, sequel.ContainsChild(book(4)), "backward side must be untouched")
	assert.Equal(t, 1, sequel.Len())
}

func TestRelation_OneToMany(t *testing.T) {
	info := &model.RelationInfo{Shard: "library", Name: "shelf", Parent: "shelf", Child: fixture.BookType, Cardinality: model.OneToMany}
	shelf := model.NewMutableRelation(info)
	s1 := model.NewEntity("shelf", book(1).ID)
	s2 := model.NewEntity("shelf", book(2).ID)

	require.NoError(t, shelf.Add(s1, book(1)))
	require.NoError(t, shelf.Add(s1, book(2)))

	err := shelf.Add(s2, book(1))
	assert.True(t, model.IsDuplicateRelation(err), "a book sits on one shelf")
}

func TestRelation_InjectedMappings(t *testing.T) {
	info := &model.RelationInfo{Shard: "library", Name: "custom", Parent: fixture.AuthorType, Child: fixture.BookType, Cardinality: model.ManyToMany}
	rel := model.NewRelationWith(info, model.NewSingleMapping(), model.NewMultiMapping()).Mutable(nil)

	require.NoError(t, rel.Add(author(1), book(1)))
	err := rel.Add(author(1), book(2))
	assert.True(t, model.IsDuplicateRelation(err), "the injected forward mapping allows one child")
}

func TestRelation_MissingRelation(t *testing.T) {
	written := model.NewMutableRelation(fixture.WrittenInfo)

	err := written.Remove(author(1), book(1))
	assert.True(t, model.IsMissingRelation(err))

	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, author(1), me.Entity)
	assert.Equal(t, book(1), me.Child)
}

func TestRelation_TypeChecked(t *testing.T) {
	written := model.NewMutableRelation(fixture.WrittenInfo)

	err := written.Add(book(1), author(1))
	assert.True(t, model.HasCode(err, model.ErrCodeTypeMismatch))
}

func TestRelation_RemoveParentAndChild(t *testing.T) {
	written := model.NewMutableRelation(fixture.WrittenInfo)
	require.NoError(t, written.Add(author(1), book(1)))
	require.NoError(t, written.Add(author(1), book(2)))
	require.NoError(t, written.Add(author(2), book(2)))

	require.NoError(t, written.RemoveParent(author(1)))
	assert.Equal(t, 1, written.Len())

	require.NoError(t, written.RemoveChild(book(2)))
	assert.Equal(t, 0, written.Len())
}

func TestRelation_MutableIsIndependentCopy(t *testing.T) {
	m := model.NewMutableRelation(fixture.WrittenInfo)
	require.NoError(t, m.Add(author(1), book(1)))
	original := m.Freeze()

	c := original.Mutable(nil)
	require.NoError(t, c.Remove(author(1), book(1)))
	require.NoError(t, c.Add(author(2), book(2)))

	assert.True(t, original.Contains(author(1), book(1)))
	assert.False(t, original.Contains(author(2), book(2)))
	assert.Equal(t, []model.Entity{author(1)}, original.Parents(book(1)))
}

func TestRelation_PairsOrdered(t *testing.T) {
	m := model.NewMutableRelation(fixture.WrittenInfo)
	require.NoError(t, m.Add(author(2), book(1)))
	require.NoError(t, m.Add(author(1), book(2)))
	require.NoError(t, m.Add(author(1), book(1)))

	type pair struct{ p, c model.Entity }
	var got []pair
	for p, c := range m.Pairs() {
		got = append(got, pair{p, c})
	}
	assert.Equal(t, []pair{
		{author(1), book(1)},
		{author(1), book(2)},
		{author(2), book(1)},
	}, got)
}

func TestMapping_CopyAndClear(t *testing.T) {
	multi := model.NewMultiMapping()
	require.NoError(t, multi.Add(author(1), book(1)))
	require.NoError(t, multi.Add(author(1), book(2)))

	cp := multi.Copy()
	multi.Clear()

	assert.Equal(t, 0, multi.Len())
	assert.Equal(t, 2, cp.Len())
	assert.Equal(t, []model.Entity{book(1), book(2)}, cp.Values(author(1)))

	single := model.NewSingleMapping()
	require.NoError(t, single.Add(book(1), book(2)))
	assert.False(t, single.CanAdd(book(1), book(3)))
	assert.True(t, single.Contains(book(1), book(2)))
	assert.False(t, single.Contains(book(1), book(3)))
	assert.True(t, model.IsMissingRelation(single.Remove(book(1), book(3))))
}
