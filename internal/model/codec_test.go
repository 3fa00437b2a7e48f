package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/fixture"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

func TestChangesCodec_RoundTrip(t *testing.T) {
	v := newView(t)
	commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Add(book(1), dune))
	})
	c := commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Set(book(1), dune2))
		require.NoError(t, lib.Books.Add(book(2), fixture.Book{Title: "Untitled"}))
		require.NoError(t, lib.Written.Add(author(1), book(2)))
	})

	data, err := model.MarshalChanges(c.Changes)
	require.NoError(t, err)

	decoded, err := model.UnmarshalChanges(fixture.NewRegistry(), data)
	require.NoError(t, err)

	assert.Equal(t, c.Changes.Collection(fixture.BooksInfo).Changes(), decoded.Collection(fixture.BooksInfo).Changes())
	assert.Equal(t, c.Changes.Relation(fixture.WrittenInfo).Changes(), decoded.Relation(fixture.WrittenInfo).Changes())

	again, err := model.MarshalChanges(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestChangesCodec_OmitsEmptySets(t *testing.T) {
	v := newView(t)
	c := commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Authors.Add(author(1), fixture.Author{Name: "Le Guin"}))
	})

	bag := model.EncodeChanges(c.Changes)
	frames := bag["frames"].(value.Array)
	require.Len(t, frames, 1)
	members := frames[0].(value.Object)["members"].(value.Array)
	require.Len(t, members, 1)
	assert.Equal(t, value.String("authors"), members[0].(value.Object)["member"])
}

func TestChangesCodec_UnknownMember(t *testing.T) {
	_, err := model.UnmarshalChanges(fixture.NewRegistry(),
		[]byte(`{"frames":[{"shard":"library","members":[{"member":"shelves","changes":[]}]}]}`))
	assert.True(t, model.HasCode(err, model.ErrCodeUnknownMember))

	_, err = model.UnmarshalChanges(fixture.NewRegistry(), []byte(`{"frames":[{"shard":"nope","members":[]}]}`))
	assert.True(t, model.HasCode(err, model.ErrCodeUnknownMember))
}

func TestChangesCodec_InvalidProperties(t *testing.T) {
	data := `{"frames":[{"shard":"library","members":[{"member":"books","changes":[
		{"action":"added","entity":"book/00000000-0000-0000-0000-000000000001","new":{"year":1965}}
	]}]}]}`
	_, err := model.UnmarshalChanges(fixture.NewRegistry(), []byte(data))
	assert.True(t, model.HasCode(err, model.ErrCodeInvalidProperties))
}

func TestDigestChanges_Stable(t *testing.T) {
	v := newView(t)
	c := commit(t, v, func(lib *fixture.MutableLibrary) {
		require.NoError(t, lib.Books.Add(book(1), dune))
	})

	a, err := model.DigestChanges(c.Changes)
	require.NoError(t, err)
	b, err := model.DigestChanges(c.Changes.Clone())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	inv, err := model.DigestChanges(c.Changes.Invert())
	require.NoError(t, err)
	assert.NotEqual(t, a, inv)
}
