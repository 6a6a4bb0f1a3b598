package dispatch

import (
	"sync"
	"time"
)

// CooldownStore tracks per-item last-attempt timestamps so handlers can
// refuse re-triggers inside the cooldown window. Purely in-memory: losing it
// on restart degrades to one extra allowed retry, not a correctness
// violation.
type CooldownStore struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewCooldownStore creates an empty cooldown store.
func NewCooldownStore() *CooldownStore {
	return &CooldownStore{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// RecordAttempt stamps a processing attempt for the item, success or failure.
func (s *CooldownStore) RecordAttempt(itemKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[itemKey] = s.now()
}

// SecondsSinceLast returns the seconds since the last recorded attempt for
// the item, and false if the item has never been attempted.
func (s *CooldownStore) SecondsSinceLast(itemKey string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.last[itemKey]
	if !ok {
		return 0, false
	}
	return s.now().Sub(at).Seconds(), true
}

// Elapsed reports whether the cooldown window has passed for the item.
// Items never attempted are always eligible.
func (s *CooldownStore) Elapsed(itemKey string, cooldown time.Duration) bool {
	since, ok := s.SecondsSinceLast(itemKey)
	if !ok {
		return true
	}
	return since > cooldown.Seconds()
}
