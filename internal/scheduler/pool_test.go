package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	ctx := context.Background()

	var active, maxActive atomic.Int32
	var results []*Pending[int]
	for i := 0; i < 10; i++ {
		results = append(results, Go(p, ctx, func(context.Context) (int, error) {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return i, nil
		}))
	}
	p.Wait()

	for i, r := range results {
		v, err := r.Result()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.LessOrEqual(t, maxActive.Load(), int32(2))
}

func TestPool_CancelledBeforeSlot(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	first := Go(p, context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	second := Go(p, ctx, func(context.Context) (int, error) {
		ran.Store(true)
		return 2, nil
	})
	cancel()

	_, err := second.Result()
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
	_, err = first.Result()
	require.NoError(t, err)
	assert.False(t, ran.Load())
}

func TestPool_DefaultSize(t *testing.T) {
	p := NewPool(0)
	v, err := Go(p, context.Background(), func(context.Context) (string, error) { return "ok", nil }).Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
