package imapsync

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff produces jittered exponential reconnect delays. The Nth
// consecutive delay is base·2^(N-1) with up to 50% upward jitter, clamped
// to the cap, so the delay always falls in [base·2^(N-1), cap].
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	mu      sync.Mutex
	attempt int
	rng     *rand.Rand
}

// NewBackoff creates a Backoff with the given bounds. Non-positive bounds
// fall back to 1s base and 60s cap.
func NewBackoff(base, cap time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = time.Minute
	}
	return &Backoff{
		Base: base,
		Cap:  cap,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay for the next attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.Base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	b.attempt++

	if d >= b.Cap {
		return b.Cap
	}

	// Jitter spreads reconnect storms without dipping below the
	// exponential floor.
	jitter := time.Duration(b.rng.Int63n(int64(d)/2 + 1))
	if d+jitter > b.Cap {
		return b.Cap
	}
	return d + jitter
}

// Reset clears the attempt counter after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

// Attempts returns the number of consecutive failures recorded so far.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
