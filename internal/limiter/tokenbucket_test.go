package limiter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucket_Burst(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := NewTokenBucketWithClock(5, 10, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "request %d", i)
	}
	assert.False(t, tb.Allow())
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := NewTokenBucketWithClock(5, 10, clock.Now)
	for tb.Allow() {
	}

	// 50ms 只補半個令牌
	clock.Advance(50 * time.Millisecond)
	assert.False(t, tb.Allow())

	// 累積到一個
	clock.Advance(50 * time.Millisecond)
	assert.True(t, tb.Allow())

	// 不超過容量
	clock.Advance(time.Hour)
	assert.Equal(t, int64(5), tb.Tokens())
}

func TestTokenBucket_Concurrent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := NewTokenBucketWithClock(100, 1, clock.Now)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tb.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), allowed.Load())
}

func TestNewTokenBucket(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	assert.Equal(t, int64(3), tb.Tokens())
}
