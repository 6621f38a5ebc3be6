// Package breaker implements the per-client circuit breaker from §4.11:
// a request is rejected immediately while open; failures past a
// threshold open it for a fixed timeout; success or a 4xx response
// resets it.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow when the breaker is currently open.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a mutex-guarded circuit breaker instance, one per HTTP
// client (§5: "circuit-breaker state: guarded by one mutex per client
// instance").
type Breaker struct {
	mu            sync.Mutex
	threshold     int
	timeout       time.Duration
	failureCount  int
	openUntil     time.Time
}

// New creates a Breaker that opens after threshold consecutive failures
// and stays open for timeout.
func New(threshold int, timeout time.Duration) *Breaker {
	return &Breaker{threshold: threshold, timeout: timeout}
}

// Allow reports whether a request may proceed. Time source is
// monotonic (time.Time from time.Now()), per §4.11.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.openUntil.IsZero() && time.Now().Before(b.openUntil) {
		return ErrOpen
	}
	return nil
}

// RecordSuccess resets the breaker, used on 2xx or any 4xx response
// (§4.11: "a 4xx ... is not a service failure").
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.openUntil = time.Time{}
}

// RecordFailure increments the failure count on a 5xx or transport
// error, opening the breaker once threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	if b.failureCount >= b.threshold {
		b.openUntil = time.Now().Add(b.timeout)
	}
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// OpenUntil returns the time the breaker reopens for probing, or the
// zero Time if the breaker is not open.
func (b *Breaker) OpenUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openUntil
}
