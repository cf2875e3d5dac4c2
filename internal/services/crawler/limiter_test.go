package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchLimiter_ThirdAcquireBlocksUntilRelease(t *testing.T) {
	limiter := NewLaunchLimiter(2)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx))
	require.NoError(t, limiter.Acquire(ctx))
	assert.Equal(t, 2, limiter.InUse())

	acquired := make(chan struct{})
	go func() {
		if err := limiter.Acquire(ctx); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block while capacity is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	limiter.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("third acquire should proceed after a release")
	}
}

func TestLaunchLimiter_NeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	const workers = 20

	limiter := NewLaunchLimiter(capacity)
	ctx := context.Background()

	var current, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, limiter.Acquire(ctx)) {
				return
			}
			defer limiter.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.Equal(t, 0, limiter.InUse())
}

func TestLaunchLimiter_AcquireRespectsCancellation(t *testing.T) {
	limiter := NewLaunchLimiter(1)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, limiter.InUse())

	limiter.Release()
	assert.Equal(t, 0, limiter.InUse())
}

func TestLaunchLimiter_TryAcquire(t *testing.T) {
	limiter := NewLaunchLimiter(1)

	assert.True(t, limiter.TryAcquire())
	assert.False(t, limiter.TryAcquire())

	limiter.Release()
	assert.True(t, limiter.TryAcquire())
}

func TestNewLaunchLimiter_DefaultCapacity(t *testing.T) {
	limiter := NewLaunchLimiter(0)
	assert.Equal(t, DefaultBrowserLimit, limiter.Capacity())
}
