package cache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/valora-bff/internal/domain/oauth"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// ExpiredStateGrace is how long a state outlives its TTL in a store. The
// service checks ExpiresAt itself; the extra window lets a late callback be
// reported as expired rather than unknown.
const ExpiredStateGrace = 5 * time.Minute

// MemoryStateStore keeps states in process. Entries past their TTL and grace
// are swept on every save, so the map only grows with live flows.
type MemoryStateStore struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[string]memoryEntry
}

type memoryEntry struct {
	state    oauth.State
	deadline time.Time
}

var _ repository.OAuthStateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore constructs an empty in-process store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{now: time.Now, states: make(map[string]memoryEntry)}
}

// SaveState stores the state until ttl plus ExpiredStateGrace elapses.
func (s *MemoryStateStore) SaveState(_ context.Context, key string, state oauth.State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	s.states[key] = memoryEntry{state: state, deadline: now.Add(ttl + ExpiredStateGrace)}
	return nil
}

// ConsumeState returns and removes the state. Entries past their deadline
// are returned as well so callers can tell expiry apart from reuse.
func (s *MemoryStateStore) ConsumeState(_ context.Context, key string) (*oauth.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[key]
	if !ok {
		return nil, nil
	}
	delete(s.states, key)
	state := entry.state
	return &state, nil
}

// Len reports the number of stored states.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *MemoryStateStore) sweepLocked(now time.Time) {
	for key, entry := range s.states {
		if now.After(entry.deadline) {
			delete(s.states, key)
		}
	}
}
