// Package ratelimit keeps a client-side copy of the platform's per-shop
// leaky bucket so calls are spaced out before the server starts answering 429.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HeaderCallLimit carries "used/cap" on every admin API response.
const HeaderCallLimit = "X-Shopify-Shop-Api-Call-Limit"

// CallLimit is a parsed call-limit header.
type CallLimit struct {
	Used int `json:"calls"`
	Cap  int `json:"cap"`
}

// Remaining is the number of calls left before the bucket overflows.
func (c CallLimit) Remaining() int {
	if r := c.Cap - c.Used; r > 0 {
		return r
	}
	return 0
}

// Exceeded reports whether the bucket is full.
func (c CallLimit) Exceeded() bool { return c.Used >= c.Cap }

func (c CallLimit) String() string { return fmt.Sprintf("%d/%d", c.Used, c.Cap) }

// ParseCallLimit parses "32/40". Anything else reports false.
func ParseCallLimit(header string) (CallLimit, bool) {
	used, limit, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok {
		return CallLimit{}, false
	}
	u, err := strconv.Atoi(strings.TrimSpace(used))
	if err != nil || u < 0 {
		return CallLimit{}, false
	}
	c, err := strconv.Atoi(strings.TrimSpace(limit))
	if err != nil || c <= 0 {
		return CallLimit{}, false
	}
	return CallLimit{Used: u, Cap: c}, true
}

// ErrRateLimited is returned when the server asked the client to back off
// for longer than the caller's context allows.
type ErrRateLimited struct {
	Shop       string
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Shop, e.RetryAfter.Truncate(time.Millisecond))
}

// Bucket is a leaky bucket of size calls draining leakRate calls per second.
type Bucket struct {
	shop     string
	size     float64
	leakRate float64

	mu           sync.Mutex
	level        float64
	last         time.Time
	blockedUntil time.Time

	// nowFunc allows tests to inject a fake clock.
	nowFunc func() time.Time
}

// New creates a bucket. A size of 0 disables limiting.
func New(shop string, size int, leakRate float64) *Bucket {
	return &Bucket{
		shop:     shop,
		size:     float64(size),
		leakRate: leakRate,
		nowFunc:  time.Now,
	}
}

// Wait blocks until a call fits in the bucket or ctx is done. When the
// required wait exceeds the context deadline it fails fast with
// *ErrRateLimited.
func (b *Bucket) Wait(ctx context.Context) error {
	if b == nil || b.size <= 0 {
		return nil
	}
	for {
		wait := b.tryAcquire()
		if wait == 0 {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return &ErrRateLimited{Shop: b.shop, RetryAfter: wait}
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// tryAcquire takes a slot and returns 0, or returns how long to wait.
func (b *Bucket) tryAcquire() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	if now.Before(b.blockedUntil) {
		return b.blockedUntil.Sub(now)
	}
	b.leak(now)
	if b.level+1 > b.size {
		if b.leakRate <= 0 {
			return time.Second
		}
		wait := time.Duration((b.level + 1 - b.size) / b.leakRate * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		return wait
	}
	b.level++
	return 0
}

func (b *Bucket) leak(now time.Time) {
	if !b.last.IsZero() {
		b.level -= now.Sub(b.last).Seconds() * b.leakRate
		if b.level < 0 {
			b.level = 0
		}
	}
	b.last = now
}

// Observe syncs the bucket with the server's view. The server is
// authoritative for both level and capacity.
func (b *Bucket) Observe(c CallLimit) {
	if b == nil || c.Cap <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leak(b.nowFunc())
	b.size = float64(c.Cap)
	b.level = float64(c.Used)
}

// Throttle blocks every caller for d, as asked by a Retry-After header.
func (b *Bucket) Throttle(d time.Duration) {
	if b == nil || d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if until := b.nowFunc().Add(d); until.After(b.blockedUntil) {
		b.blockedUntil = until
	}
}

// Stats returns the current bucket state for observability.
type Stats struct {
	Shop     string  `json:"shop"`
	Size     float64 `json:"size"`
	Level    float64 `json:"level"`
	LeakRate float64 `json:"leak_rate"`
	Blocked  bool    `json:"blocked"`
}

func (b *Bucket) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	level := b.level
	if !b.last.IsZero() {
		level -= now.Sub(b.last).Seconds() * b.leakRate
		if level < 0 {
			level = 0
		}
	}
	return Stats{
		Shop:     b.shop,
		Size:     b.size,
		Level:    level,
		LeakRate: b.leakRate,
		Blocked:  now.Before(b.blockedUntil),
	}
}
