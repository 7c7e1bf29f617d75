package risk

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAdmitsUpToLimit(t *testing.T) {
	l := NewSlidingWindowLimiter(5, time.Hour)
	now := time.Now()

	for i := 0; i < 5; i++ {
		assert.True(t, l.TryExecute(now), "attempt %d should be admitted", i+1)
	}
	assert.False(t, l.TryExecute(now), "sixth attempt must be rejected")
	assert.Equal(t, 5, l.Count(now))
}

func TestLimiterZeroLimitAdmitsNothing(t *testing.T) {
	l := NewSlidingWindowLimiter(0, time.Hour)
	assert.False(t, l.TryExecute(time.Now()))
}

func TestLimiterRejectionLeavesNoTrace(t *testing.T) {
	l := NewSlidingWindowLimiter(1, time.Hour)
	now := time.Now()

	assert.True(t, l.TryExecute(now))
	for i := 0; i < 3; i++ {
		assert.False(t, l.TryExecute(now))
	}
	assert.Equal(t, 1, l.Count(now))
}

func TestLimiterWindowSlides(t *testing.T) {
	l := NewSlidingWindowLimiter(2, time.Hour)
	start := time.Now()

	assert.True(t, l.TryExecute(start))
	assert.True(t, l.TryExecute(start.Add(30*time.Minute)))
	assert.False(t, l.TryExecute(start.Add(59*time.Minute)))

	// The first action has left the window, freeing one slot.
	assert.True(t, l.TryExecute(start.Add(61*time.Minute)))
	assert.False(t, l.TryExecute(start.Add(62*time.Minute)))
}

func TestLimiterConcurrentAccessNeverOverAdmits(t *testing.T) {
	const limit = 10
	l := NewSlidingWindowLimiter(limit, time.Hour)
	now := time.Now()

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryExecute(now) {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted)
}
