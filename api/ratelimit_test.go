package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time         { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*loginRateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	rl := newLoginRateLimiter()
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterLocksAfterMaxFailures(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("agent1")
		blocked, _ := rl.check("agent1")
		assert.False(t, blocked, "failure %d", i+1)
	}
	rl.recordFailure("agent1")
	blocked, retry := rl.check("agent1")
	assert.True(t, blocked)
	assert.Equal(t, baseLockout, retry)

	blocked, _ = rl.check("someone-else")
	assert.False(t, blocked)
}

func TestRateLimiterBackoff(t *testing.T) {
	rl, clock := newTestLimiter()

	for range maxFailures {
		rl.recordFailure("agent1")
	}
	clock.advance(baseLockout)
	blocked, _ := rl.check("agent1")
	assert.False(t, blocked)

	rl.recordFailure("agent1")
	_, retry := rl.check("agent1")
	assert.Equal(t, 2*baseLockout, retry)

	for range 10 {
		rl.recordFailure("agent1")
	}
	_, retry = rl.check("agent1")
	assert.Equal(t, maxLockout, retry)
}

func TestRateLimiterSuccessAndExpiry(t *testing.T) {
	rl, clock := newTestLimiter()

	for range maxFailures {
		rl.recordFailure("agent1")
	}
	rl.recordSuccess("agent1")
	blocked, _ := rl.check("agent1")
	assert.False(t, blocked)

	rl.recordFailure("agent2")
	clock.advance(attemptExpiry + time.Second)
	rl.sweep()
	assert.Empty(t, rl.attempts)
}

func TestWriteRateLimited(t *testing.T) {
	w := httptest.NewRecorder()
	writeRateLimited(w, 1500*time.Millisecond)
	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	writeRateLimited(w, 0)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestLockoutFor(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{maxFailures - 1, 0},
		{maxFailures, baseLockout},
		{maxFailures + 1, 2 * baseLockout},
		{maxFailures + 3, 8 * baseLockout},
		{maxFailures + 4, maxLockout},
		{maxFailures + 40, maxLockout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lockoutFor(tt.failures), "failures=%d", tt.failures)
	}
}

func TestStaleFailuresStartOver(t *testing.T) {
	rl, clock := newTestLimiter()
	for range maxFailures - 1 {
		rl.recordFailure("agent1")
	}
	clock.advance(attemptExpiry + time.Second)
	rl.recordFailure("agent1")
	blocked, _ := rl.check("agent1")
	assert.False(t, blocked)
	assert.Equal(t, 1, rl.attempts["agent1"].count)
}
