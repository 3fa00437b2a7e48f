package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/fixture"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/testutil"
)

func TestCollection_AddGet(t *testing.T) {
	books := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)

	require.NoError(t, books.Add(book(1), fixture.Book{Title: "Dune", Year: 1965}))

	got, err := books.Get(book(1))
	require.NoError(t, err)
	assert.Equal(t, fixture.Book{Title: "Dune", Year: 1965}, got)
	assert.True(t, books.Contains(book(1)))
	assert.Equal(t, 1, books.Len())
}

func TestCollection_DuplicateKey(t *testing.T) {
	books := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)
	require.NoError(t, books.Add(book(1), fixture.Book{Title: "Dune"}))

	err := books.Add(book(1), fixture.Book{Title: "Other"})
	require.Error(t, err)
	assert.True(t, model.IsDuplicateKey(err))
	assert.True(t, errors.Is(err, model.ErrDuplicateKey))

	got, _ := books.Get(book(1))
	assert.Equal(t, "Dune", got.Title, "failed add must not overwrite")
}

func TestCollection_MissingKey(t *testing.T) {
	books := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)

	_, err := books.Get(book(9))
	assert.True(t, model.IsMissingKey(err))

	err = books.Modify(book(9), func(b fixture.Book) fixture.Book { return b })
	assert.True(t, model.IsMissingKey(err))

	err = books.Remove(book(9))
	assert.True(t, model.IsMissingKey(err))

	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "library.books", me.Member)
	assert.Equal(t, book(9), me.Entity)
}

func TestCollection_AddNewUsesGenerator(t *testing.T) {
	ids := testutil.NewSequentialIDs()
	v := model.NewView(fixture.NewModel(), model.WithIDGenerator(ids))
	snap := v.CreateSnapshot(model.CopyOnWrite)
	lib, err := fixture.Edit(snap)
	require.NoError(t, err)

	e, err := lib.Books.AddNew(fixture.Book{Title: "Dune"})
	require.NoError(t, err)
	assert.Equal(t, book(1), e)

	e, err = lib.Books.AddNew(fixture.Book{Title: "Emma"})
	require.NoError(t, err)
	assert.Equal(t, book(2), e)
}

func TestCollection_ModifyAndRemove(t *testing.T) {
	books := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)
	require.NoError(t, books.Add(book(1), fixture.Book{Title: "Dune"}))

	require.NoError(t, books.Modify(book(1), func(b fixture.Book) fixture.Book {
		b.Year = 1965
		return b
	}))
	got, _ := books.Get(book(1))
	assert.Equal(t, int64(1965), got.Year)

	require.NoError(t, books.Set(book(1), fixture.Book{Title: "Dune Messiah"}))
	got, _ = books.Get(book(1))
	assert.Equal(t, fixture.Book{Title: "Dune Messiah"}, got)

	require.NoError(t, books.Remove(book(1)))
	assert.False(t, books.Contains(book(1)))
	assert.Equal(t, 0, books.Len())
}

func TestCollection_EntityTypeChecked(t *testing.T) {
	books := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)

	err := books.Add(author(1), fixture.Book{Title: "Dune"})
	assert.True(t, model.HasCode(err, model.ErrCodeTypeMismatch))
}

func TestCollection_MutatorRejectsWrongProperties(t *testing.T) {
	books := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)

	err := books.Mutator().Add(book(1), fixture.Author{Name: "Herbert"})
	assert.True(t, model.HasCode(err, model.ErrCodeTypeMismatch))
	assert.Equal(t, 0, books.Len())
}

func TestCollection_FrozenRejectsMutation(t *testing.T) {
	books := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)
	frozen := books.Freeze()
	assert.Equal(t, 0, frozen.Len())

	err := books.Add(book(1), fixture.Book{Title: "Dune"})
	assert.True(t, errors.Is(err, model.ErrFrozen))
}

func TestCollection_MutableIsIndependentCopy(t *testing.T) {
	m := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)
	require.NoError(t, m.Add(book(1), fixture.Book{Title: "Dune"}))
	original := m.Freeze()

	copy1 := original.Mutable(nil)
	require.NoError(t, copy1.Add(book(2), fixture.Book{Title: "Emma"}))
	require.NoError(t, copy1.Remove(book(1)))

	assert.Equal(t, 1, original.Len())
	assert.True(t, original.Contains(book(1)))
	assert.False(t, original.Contains(book(2)))
}

func TestCollection_AllIsOrdered(t *testing.T) {
	m := model.NewMutableCollection[fixture.Book](fixture.BooksInfo)
	for _, n := range []uint64{3, 1, 2} {
		require.NoError(t, m.Add(book(n), fixture.Book{Title: "t"}))
	}

	var got []model.Entity
	for e := range m.All() {
		got = append(got, e)
	}
	assert.Equal(t, []model.Entity{book(1), book(2), book(3)}, got)
	assert.Equal(t, got, m.Entities())

	var rows int
	for _, p := range m.Freeze().Rows() {
		assert.IsType(t, fixture.Book{}, p)
		rows++
	}
	assert.Equal(t, 3, rows)
}

func TestEntity_ParseRoundTrip(t *testing.T) {
	e := book(42)
	parsed, err := model.ParseEntity(e.String())
	require.NoError(t, err)
	assert.Equal(t, e, parsed)

	_, err = model.ParseEntity("no-separator")
	assert.Error(t, err)
	_, err = model.ParseEntity("book/not-a-uuid")
	assert.Error(t, err)
}

func TestEntity_Compare(t *testing.T) {
	assert.Equal(t, 0, book(1).Compare(book(1)))
	assert.Equal(t, -1, book(1).Compare(book(2)))
	assert.Equal(t, -1, author(9).Compare(book(1)), "type orders before id")
	assert.True(t, model.Entity{}.IsZero())
}
