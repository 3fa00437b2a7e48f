package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(id int, ran *[]int) job {
	return job{
		ctx:  context.Background(),
		run:  func(context.Context) { *ran = append(*ran, id) },
		fail: func(error) {},
	}
}

func TestJobQueue_FIFO(t *testing.T) {
	q := newJobQueue()
	var ran []int
	for i := 1; i <= 3; i++ {
		require.True(t, q.Enqueue(testJob(i, &ran)))
	}
	assert.Equal(t, 3, q.Len())

	for {
		j, ok := q.TryDequeue()
		if !ok {
			break
		}
		j.run(context.Background())
	}
	assert.Equal(t, []int{1, 2, 3}, ran)
	assert.Equal(t, 0, q.Len())
}

func TestJobQueue_CloseReturnsQueuedAndRejects(t *testing.T) {
	q := newJobQueue()
	var ran []int
	q.Enqueue(testJob(1, &ran))
	q.Enqueue(testJob(2, &ran))

	rest := q.Close()
	assert.Len(t, rest, 2)
	assert.Nil(t, q.Close(), "second close is a no-op")
	assert.False(t, q.Enqueue(testJob(3, &ran)))

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait channel not closed")
	}
}

func TestJobQueue_SignalCoalesces(t *testing.T) {
	q := newJobQueue()
	var ran []int
	q.Enqueue(testJob(1, &ran))
	q.Enqueue(testJob(2, &ran))

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
}
