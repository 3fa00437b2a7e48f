package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/fixture"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/testutil"
)

func newView(t *testing.T) *model.View {
	t.Helper()
	return model.NewView(fixture.NewModel(), model.WithIDGenerator(testutil.NewSequentialIDs()))
}

// commit runs fn against a tracked snapshot and publishes it.
func commit(t *testing.T, v *model.View, fn func(lib *fixture.MutableLibrary)) model.Commit {
	t.Helper()
	snap := v.CreateSnapshot(model.CopyOnWrite, model.Tracking)
	lib, err := fixture.Edit(snap)
	require.NoError(t, err)
	fn(lib)
	c, err := v.ApplySnapshot(snap)
	require.NoError(t, err)
	return c
}

func library(t *testing.T, m *model.Model) *fixture.Library {
	t.Helper()
	lib, err := fixture.Read(m)
	require.NoError(t, err)
	return lib
}

func book(n uint64) model.Entity   { return testutil.Entity(fixture.BookType, n) }
func author(n uint64) model.Entity { return testutil.Entity(fixture.AuthorType, n) }
