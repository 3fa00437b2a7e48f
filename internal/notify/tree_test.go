package notify_test

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/fixture"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/notify"
	"github.com/roach88/tessera/internal/testutil"
)

func book(n uint64) model.Entity   { return testutil.Entity(fixture.BookType, n) }
func author(n uint64) model.Entity { return testutil.Entity(fixture.AuthorType, n) }

// changes builds a ModelChanges for the library shard.
func changes(t *testing.T, books []model.CollectionChange, written []model.RelationChange) *model.ModelChanges {
	t.Helper()
	frame := model.NewChangesFrame(fixture.LibraryInfo)
	for _, c := range books {
		require.NoError(t, frame.Collection(fixture.BooksInfo).Append(c))
	}
	for _, c := range written {
		require.NoError(t, frame.Relation(fixture.WrittenInfo).Append(c))
	}
	out := model.NewModelChanges()
	require.NoError(t, out.Add(frame))
	return out
}

func modified(e model.Entity, before, after string) model.CollectionChange {
	return model.CollectionChange{
		Action: model.ActionModified,
		Entity: e,
		Old:    fixture.Book{Title: before},
		New:    fixture.Book{Title: after},
	}
}

func TestTree_DispatchOrder(t *testing.T) {
	tree := notify.NewTree()
	var got []string

	_, err := tree.SubscribeEntity(fixture.BooksInfo, book(1), notify.EntityFunc(func(model.CollectionChange) {
		got = append(got, "entity")
	}))
	require.NoError(t, err)
	_, err = tree.SubscribeCollection(fixture.BooksInfo, notify.CollectionFunc(func(*model.CollectionChangeSet) {
		got = append(got, "books")
	}))
	require.NoError(t, err)
	_, err = tree.SubscribeShard(fixture.LibraryInfo, notify.ShardFunc(func(*model.ChangesFrame) {
		got = append(got, "shard")
	}))
	require.NoError(t, err)
	_, err = tree.SubscribeModel(notify.ModelFunc(func(*model.ModelChanges) {
		got = append(got, "model")
	}))
	require.NoError(t, err)

	tree.Publish(changes(t, []model.CollectionChange{modified(book(1), "a", "b")}, nil))

	assert.Equal(t, []string{"model", "shard", "books", "entity"}, got)
}

func TestTree_MemberFiltering(t *testing.T) {
	tree := notify.NewTree()
	var books, written int

	_, err := tree.SubscribeCollection(fixture.BooksInfo, notify.CollectionFunc(func(*model.CollectionChangeSet) {
		books++
	}))
	require.NoError(t, err)
	_, err = tree.SubscribeRelation(fixture.WrittenInfo, notify.RelationFunc(func(s *model.RelationChangeSet) {
		written++
		assert.Equal(t, 1, s.Len())
	}))
	require.NoError(t, err)

	tree.Publish(changes(t, nil, []model.RelationChange{
		{Action: model.ActionLinked, Parent: author(1), Child: book(1)},
	}))

	assert.Equal(t, 0, books)
	assert.Equal(t, 1, written)
}

func TestTree_EmptyChangesNotDispatched(t *testing.T) {
	tree := notify.NewTree()
	called := false
	_, err := tree.SubscribeModel(notify.ModelFunc(func(*model.ModelChanges) { called = true }))
	require.NoError(t, err)

	tree.Publish(model.NewModelChanges())
	tree.Publish(changes(t, nil, nil))
	tree.Publish(nil)

	assert.False(t, called)
}

func TestTree_EntityReceivesOnlyModify(t *testing.T) {
	tree := notify.NewTree()
	var got []model.Action
	_, err := tree.SubscribeEntity(fixture.BooksInfo, book(1), notify.EntityFunc(func(c model.CollectionChange) {
		got = append(got, c.Action)
	}))
	require.NoError(t, err)

	tree.Publish(changes(t, []model.CollectionChange{
		{Action: model.ActionAdded, Entity: book(1), New: fixture.Book{Title: "a"}},
	}, nil))
	tree.Publish(changes(t, []model.CollectionChange{modified(book(2), "x", "y")}, nil))
	tree.Publish(changes(t, []model.CollectionChange{modified(book(1), "a", "b")}, nil))

	assert.Equal(t, []model.Action{model.ActionModified}, got)
}

func TestTree_EntityDroppedOnRemove(t *testing.T) {
	tree := notify.NewTree()
	calls := 0
	sub, err := tree.SubscribeEntity(fixture.BooksInfo, book(1), notify.EntityFunc(func(model.CollectionChange) {
		calls++
	}))
	require.NoError(t, err)
	_, err = tree.SubscribeEntity(fixture.BooksInfo, book(2), notify.EntityFunc(func(model.CollectionChange) {}))
	require.NoError(t, err)
	require.Equal(t, 2, tree.Len())

	tree.Publish(changes(t, []model.CollectionChange{
		{Action: model.ActionRemoved, Entity: book(1), Old: fixture.Book{Title: "a"}},
	}, nil))
	assert.Equal(t, 1, tree.Len())

	tree.Publish(changes(t, []model.CollectionChange{modified(book(1), "a", "b")}, nil))
	assert.Equal(t, 0, calls)

	sub.Unsubscribe()
	assert.Equal(t, 1, tree.Len())
}

func TestTree_EntityTypeChecked(t *testing.T) {
	tree := notify.NewTree()
	_, err := tree.SubscribeEntity(fixture.BooksInfo, author(1), notify.EntityFunc(func(model.CollectionChange) {}))
	assert.ErrorIs(t, err, model.ErrTypeMismatch)
}

func TestTree_DuplicateSubscription(t *testing.T) {
	tree := notify.NewTree()
	h := notify.ModelFunc(func(*model.ModelChanges) {})

	_, err := tree.SubscribeModel(h)
	require.NoError(t, err)
	_, err = tree.SubscribeModel(h)
	assert.ErrorIs(t, err, notify.ErrDuplicateSubscription)

	// The same handler on a different target is allowed.
	s := notify.ShardFunc(func(*model.ChangesFrame) {})
	_, err = tree.SubscribeShard(fixture.LibraryInfo, s)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Len())
}

func TestTree_NilHandler(t *testing.T) {
	tree := notify.NewTree()
	_, err := tree.SubscribeModel(nil)
	assert.Error(t, err)

	var h *counter
	_, err = tree.SubscribeModel(h)
	assert.Error(t, err)
}

type counter struct{ n int }

func (c *counter) OnModelChanges(*model.ModelChanges) { c.n++ }

func TestTree_Unsubscribe(t *testing.T) {
	tree := notify.NewTree()
	c := &counter{}
	sub, err := tree.SubscribeModel(c)
	require.NoError(t, err)

	tree.Publish(changes(t, []model.CollectionChange{modified(book(1), "a", "b")}, nil))
	sub.Unsubscribe()
	sub.Unsubscribe()
	tree.Publish(changes(t, []model.CollectionChange{modified(book(1), "b", "c")}, nil))

	assert.Equal(t, 1, c.n)
	assert.Equal(t, 0, tree.Len())

	// Re-registering after unsubscribe is allowed.
	_, err = tree.SubscribeModel(c)
	assert.NoError(t, err)
}

func TestTree_PanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	tree := notify.NewTree(notify.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, err := tree.SubscribeModel(notify.ModelFunc(func(*model.ModelChanges) { panic("boom") }))
	require.NoError(t, err)
	c := &counter{}
	_, err = tree.SubscribeModel(c)
	require.NoError(t, err)

	tree.Publish(changes(t, []model.CollectionChange{modified(book(1), "a", "b")}, nil))

	assert.Equal(t, 1, c.n)
	assert.Contains(t, buf.String(), "subscriber panicked")
	assert.Contains(t, buf.String(), "boom")
}

func TestTree_ConcurrentSubscribe(t *testing.T) {
	tree := notify.NewTree()
	c := changes(t, []model.CollectionChange{modified(book(1), "a", "b")}, nil)
	var calls atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := tree.SubscribeModel(notify.ModelFunc(func(*model.ModelChanges) { calls.Add(1) }))
			assert.NoError(t, err)
			tree.Publish(c)
			if i%2 == 0 {
				sub.Unsubscribe()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, tree.Len())
	assert.Positive(t, calls.Load())
}
