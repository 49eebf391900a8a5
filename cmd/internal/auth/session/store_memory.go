package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"huddle/cmd/identity/ids"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemoryStore returns an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{sessions: make(map[string]Session), now: now}
}

func (s *MemoryStore) Create(ctx context.Context, identityID, userAgent string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Session{}, ErrInvalidInput
	}
	now := s.now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:         id,
		IdentityID: identityID,
		Valid:      true,
		UserAgent:  clampUserAgent(userAgent),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Find(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemoryStore) SetValid(ctx context.Context, sessionID string, valid bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Valid = valid
	sess.UpdatedAt = s.now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

func (s *MemoryStore) InvalidateAll(ctx context.Context, identityID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now().UTC()
	for id, sess := range s.sessions {
		if sess.IdentityID != identityID || !sess.Valid {
			continue
		}
		sess.Valid = false
		sess.UpdatedAt = now
		s.sessions[id] = sess
		n++
	}
	return n, nil
}
