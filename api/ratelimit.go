package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	// maxFailures provider rejections in a row start the lockout.
	maxFailures   = 5
	baseLockout   = time.Minute
	maxLockout    = 15 * time.Minute
	attemptExpiry = time.Hour
)

// loginRateLimiter locks a username out of the login route after repeated
// provider rejections. The provider locks the CRM account itself after a
// handful of bad passwords, so the local API stops forwarding guesses first.
// Each rejection past maxFailures doubles the lockout up to maxLockout.
type loginRateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*usernameFailures
	now      func() time.Time
}

type usernameFailures struct {
	count       int
	last        time.Time
	lockedUntil time.Time
}

func (f *usernameFailures) stale(now time.Time) bool {
	return now.Sub(f.last) > attemptExpiry
}

func newLoginRateLimiter() *loginRateLimiter {
	return &loginRateLimiter{
		attempts: make(map[string]*usernameFailures),
		now:      time.Now,
	}
}

// lockoutFor returns the lockout after the given number of consecutive
// failures, or zero below the threshold.
func lockoutFor(failures int) time.Duration {
	if failures < maxFailures {
		return 0
	}
	d := baseLockout
	for n := failures - maxFailures; n > 0 && d < maxLockout; n-- {
		d *= 2
	}
	return min(d, maxLockout)
}

// check reports whether username is locked out and for how long.
func (rl *loginRateLimiter) check(username string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	f, ok := rl.attempts[username]
	if !ok {
		return false, 0
	}
	now := rl.now()
	if f.stale(now) {
		delete(rl.attempts, username)
		return false, 0
	}
	if wait := f.lockedUntil.Sub(now); wait > 0 {
		return true, wait
	}
	return false, 0
}

func (rl *loginRateLimiter) recordFailure(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	f, ok := rl.attempts[username]
	if !ok || f.stale(now) {
		f = &usernameFailures{}
		rl.attempts[username] = f
	}
	f.count++
	f.last = now
	if d := lockoutFor(f.count); d > 0 {
		f.lockedUntil = now.Add(d)
	}
}

func (rl *loginRateLimiter) recordSuccess(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, username)
}

// sweep drops usernames whose last failure has expired.
func (rl *loginRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for username, f := range rl.attempts {
		if f.stale(now) {
			delete(rl.attempts, username)
		}
	}
}

// writeRateLimited answers 429 with a Retry-After in whole seconds.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retryAfter.Seconds()))))
	writeError(w, http.StatusTooManyRequests, "Too many failed login attempts. Try again later.")
}
