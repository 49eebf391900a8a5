package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process blacklist for single-instance dev setups.
// Expired entries are dropped lazily on lookup and on every write.
type MemoryStore struct {
	base

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{base: newBase(opts), entries: make(map[string]time.Time)}
}

func (s *MemoryStore) Blacklist(ctx context.Context, refreshToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ttl, err := s.remaining(refreshToken)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		s.observe("already_expired")
		return nil
	}
	now := s.now()

	s.mu.Lock()
	s.sweepLocked(now)
	s.entries[s.key(refreshToken)] = now.Add(ttl)
	s.mu.Unlock()

	s.observe("stored")
	return nil
}

func (s *MemoryStore) IsBlacklisted(ctx context.Context, refreshToken string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := s.key(refreshToken)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.entries[k]
	if !ok {
		return false, nil
	}
	if !now.Before(until) {
		delete(s.entries, k)
		return false, nil
	}
	return true, nil
}

// TTL reports the remaining lifetime of the entry for refreshToken.
func (s *MemoryStore) TTL(refreshToken string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.entries[s.key(refreshToken)]
	if !ok {
		return 0, false
	}
	return until.Sub(s.now()), true
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, until := range s.entries {
		if !now.Before(until) {
			delete(s.entries, k)
		}
	}
}
