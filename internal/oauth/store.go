package oauth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const stateExpiry = 10 * time.Minute

// pendingState is an install flow started for one shop.
type pendingState struct {
	shop      string
	expiresAt time.Time
}

// StateStore holds the random state values handed out by Begin until the
// matching callback consumes them. Each state is single-use.
type StateStore struct {
	mu      sync.Mutex
	states  map[string]pendingState
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewStateStore creates a store whose states expire after ttl (ten minutes
// when ttl is zero).
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = stateExpiry
	}
	return &StateStore{
		states:  make(map[string]pendingState),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Issue records a fresh state bound to shop.
func (s *StateStore) Issue(shop string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked()
	state := uuid.NewString()
	s.states[state] = pendingState{shop: shop, expiresAt: s.nowFunc().Add(s.ttl)}
	return state
}

// Consume reports whether state was issued for shop and has not expired.
// The state is removed either way.
func (s *StateStore) Consume(state, shop string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	if s.nowFunc().After(p.expiresAt) {
		return false
	}
	return p.shop == shop
}

// Len returns the number of outstanding states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *StateStore) cleanupLocked() {
	now := s.nowFunc()
	for k, p := range s.states {
		if now.After(p.expiresAt) {
			delete(s.states, k)
		}
	}
}
