package parallel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkStealingQueue(t *testing.T) {
	q := newWorkStealingQueue()
	_, ok := q.popLocal()
	assert.False(t, ok)
	_, ok = q.steal()
	assert.False(t, ok)

	q.pushLocal(span{0, 10})
	q.pushLocal(span{10, 20})
	q.pushLocal(span{20, 30})
	assert.Equal(t, 3, q.len())

	// Owner takes the newest, thieves take the oldest.
	s, ok := q.popLocal()
	require.True(t, ok)
	assert.Equal(t, span{20, 30}, s)

	s, ok = q.steal()
	require.True(t, ok)
	assert.Equal(t, span{0, 10}, s)

	assert.Equal(t, 1, q.len())
}

// TestFunctionalWorkStealing checks that idle workers take ranges from a
// busy worker's deque.
func TestFunctionalWorkStealing(t *testing.T) {
	pool, err := NewPool(Config{Threads: 4, MinSplit: 1})
	require.NoError(t, err)
	defer pool.Close()

	var processed atomic.Int64
	err = pool.DynamicWithGrain(64, 1, func(lo, hi int) {
		// Uneven task cost forces imbalance.
		if lo%7 == 0 {
			time.Sleep(5 * time.Millisecond)
		} else {
			time.Sleep(200 * time.Microsecond)
		}
		processed.Add(int64(hi - lo))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(64), processed.Load())

	m := pool.Metrics()
	t.Logf("Work stealing count: %d", m.WorkStealingCount)
	assert.Greater(t, m.WorkStealingCount, int64(0), "Work stealing should have occurred")
}

func TestStealingJob_Finished(t *testing.T) {
	j := newStealingJob(2, 1, 5, func(int, int) {})
	j.finished(3)
	select {
	case <-j.done:
		t.Fatal("job finished early")
	default:
	}
	j.finished(2)
	<-j.done
	// Abort after completion is a no-op.
	j.abort()
}

func TestIdleBackoff(t *testing.T) {
	var b idleBackoff
	for i := 0; i < idleSpins; i++ {
		assert.Zero(t, b.next(), "round %d should only yield", i)
	}

	want := minIdleBackoff
	for want < maxIdleBackoff {
		assert.Equal(t, want, b.next())
		want *= 2
	}
	assert.Equal(t, maxIdleBackoff, b.next())
	assert.Equal(t, maxIdleBackoff, b.next())

	b.reset()
	assert.Zero(t, b.next())
}

func TestDynamic_IdleWorkersExitWithLongTail(t *testing.T) {
	pool, err := NewPool(Config{Threads: 4, MinSplit: 1})
	require.NoError(t, err)
	defer pool.Close()

	// One slow index keeps three workers idle long enough to reach the
	// sleeping backoff; they must still return once the job is done.
	start := time.Now()
	err = pool.DynamicWithGrain(4, 1, func(lo, _ int) {
		if lo == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
