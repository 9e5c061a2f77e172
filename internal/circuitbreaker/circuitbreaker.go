// Package circuitbreaker stops calling a shop whose admin API keeps failing
// with server errors, and lets a single probe through after a cooldown.
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
type ErrCircuitOpen struct {
	Name    string
	LastErr string
	RetryIn time.Duration
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("admin API for %s is failing (last error: %s); not calling again for %s",
		e.Name, e.LastErr, e.RetryIn.Truncate(time.Second))
}

// Stats is a point-in-time view of the breaker.
type Stats struct {
	State            string `json:"state"`
	ConsecutiveFails int    `json:"consecutive_failures"`
	TotalFailures    int64  `json:"total_failures"`
	TotalSuccesses   int64  `json:"total_successes"`
	LastFailureTime  string `json:"last_failure_time,omitempty"`
	LastFailureError string `json:"last_failure_error,omitempty"`
}

// Breaker guards calls to one shop. It is safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	state       State
	probing     bool
	fails       int
	failures    int64
	successes   int64
	lastFailure time.Time
	lastErr     string
	openedAt    time.Time

	// nowFunc allows tests to inject a fake clock.
	nowFunc func() time.Time
}

// New creates a breaker that opens after threshold consecutive failures
// (0 disables it) and stays open for cooldown.
func New(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, nowFunc: time.Now}
}

// Allow returns nil when a call may proceed. In the half-open state only the
// first caller gets through until that probe is recorded.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.threshold <= 0 || b.state == Closed {
		return nil
	}
	now := b.nowFunc()
	if b.state == Open {
		if elapsed := now.Sub(b.openedAt); elapsed < b.cooldown {
			return b.rejectLocked(b.cooldown - elapsed)
		}
		b.state = HalfOpen
		b.probing = false
	}
	if b.probing {
		return b.rejectLocked(b.cooldown)
	}
	b.probing = true
	return nil
}

func (b *Breaker) rejectLocked(retryIn time.Duration) error {
	return &ErrCircuitOpen{Name: b.name, LastErr: b.lastErr, RetryIn: retryIn}
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails = 0
	b.successes++
	b.state = Closed
	b.probing = false
}

// RecordFailure counts a failure and opens the breaker once the threshold is
// reached, or immediately when a half-open probe fails.
func (b *Breaker) RecordFailure(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	b.fails++
	b.failures++
	b.lastFailure = now
	b.lastErr = "unknown error"
	if err != nil {
		b.lastErr = err.Error()
	}
	if b.threshold <= 0 {
		return
	}
	if b.state == HalfOpen || b.fails >= b.threshold {
		b.state = Open
		b.openedAt = now
		b.probing = false
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		State:            b.state.String(),
		ConsecutiveFails: b.fails,
		TotalFailures:    b.failures,
		TotalSuccesses:   b.successes,
	}
	if !b.lastFailure.IsZero() {
		s.LastFailureTime = b.lastFailure.Format(time.RFC3339)
		s.LastFailureError = b.lastErr
	}
	return s
}
