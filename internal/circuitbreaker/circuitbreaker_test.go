package circuitbreaker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFake(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("demo.myshopify.com", threshold, cooldown)
	b.nowFunc = clock.now
	return b, clock
}

func trip(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Allow()
		b.RecordFailure(fmt.Errorf("HTTP request returned status code 503"))
	}
}

func TestStartsClosedAndAllows(t *testing.T) {
	b := New("demo.myshopify.com", 5, 30*time.Second)
	for i := 0; i < 10; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d should be allowed: %v", i, err)
		}
		b.RecordSuccess()
	}
	if s := b.State(); s != Closed {
		t.Fatalf("expected Closed, got %s", s)
	}
}

func TestTripsAfterThreshold(t *testing.T) {
	b, _ := newFake(3, 30*time.Second)
	trip(b, 3)
	if s := b.State(); s != Open {
		t.Fatalf("expected Open, got %s", s)
	}

	err := b.Allow()
	var open *ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected *ErrCircuitOpen, got %T: %v", err, err)
	}
	if open.Name != "demo.myshopify.com" || open.RetryIn != 30*time.Second {
		t.Fatalf("unexpected error fields: %+v", open)
	}
	if !strings.Contains(err.Error(), "status code 503") {
		t.Fatalf("expected last error in message, got %q", err.Error())
	}
}

func TestHalfOpenLetsOneProbeThrough(t *testing.T) {
	b, clock := newFake(2, 10*time.Second)
	trip(b, 2)
	clock.advance(10 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	if s := b.State(); s != HalfOpen {
		t.Fatalf("expected HalfOpen, got %s", s)
	}
	if err := b.Allow(); err == nil {
		t.Fatal("second caller during probe should be rejected")
	}
}

func TestSuccessfulProbeCloses(t *testing.T) {
	b, clock := newFake(2, 10*time.Second)
	trip(b, 2)
	clock.advance(10 * time.Second)
	_ = b.Allow()
	b.RecordSuccess()

	if s := b.State(); s != Closed {
		t.Fatalf("expected Closed, got %s", s)
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected calls to flow again: %v", err)
	}
}

func TestFailedProbeReopens(t *testing.T) {
	b, clock := newFake(3, 10*time.Second)
	trip(b, 3)
	clock.advance(10 * time.Second)
	_ = b.Allow()
	b.RecordFailure(errors.New("still down"))

	if s := b.State(); s != Open {
		t.Fatalf("expected Open, got %s", s)
	}
	clock.advance(5 * time.Second)
	err := b.Allow()
	var open *ErrCircuitOpen
	if !errors.As(err, &open) || open.RetryIn != 5*time.Second {
		t.Fatalf("expected 5s remaining, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newFake(3, time.Second)
	trip(b, 2)
	b.RecordSuccess()
	trip(b, 2)
	if s := b.State(); s != Closed {
		t.Fatalf("expected Closed, got %s", s)
	}
}

func TestDisabledBreakerNeverTrips(t *testing.T) {
	b, _ := newFake(0, time.Second)
	trip(b, 100)
	if err := b.Allow(); err != nil {
		t.Fatalf("disabled breaker should allow: %v", err)
	}
}

func TestNilBreakerIsNoop(t *testing.T) {
	var b *Breaker
	if err := b.Allow(); err != nil {
		t.Fatalf("nil breaker should allow: %v", err)
	}
	b.RecordFailure(errors.New("x"))
	b.RecordSuccess()
}

func TestStats(t *testing.T) {
	b, _ := newFake(5, time.Second)
	b.RecordSuccess()
	b.RecordFailure(nil)

	s := b.Stats()
	if s.State != "closed" || s.ConsecutiveFails != 1 || s.TotalFailures != 1 || s.TotalSuccesses != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.LastFailureError != "unknown error" || s.LastFailureTime == "" {
		t.Fatalf("unexpected failure details: %+v", s)
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := New("demo.myshopify.com", 50, time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if b.Allow() != nil {
					continue
				}
				if (i+j)%3 == 0 {
					b.RecordFailure(errors.New("boom"))
				} else {
					b.RecordSuccess()
				}
			}
		}(i)
	}
	wg.Wait()
	_ = b.Stats()
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
