package contacts

import (
	"context"
	"sort"
	"sync"
	"time"

	"huddle/cmd/identity/ids"
)

type edgeKey struct{ from, to string }

// MemoryStore keeps contact edges in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	edges map[edgeKey]Contact
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{edges: make(map[edgeKey]Contact)}
}

func (s *MemoryStore) Get(ctx context.Context, userID, contactID string) (Contact, error) {
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.edges[edgeKey{userID, contactID}]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) CreatePending(ctx context.Context, userID, contactID string, now time.Time) (Contact, error) {
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Contact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := edgeKey{userID, contactID}
	if _, ok := s.edges[k]; ok {
		return Contact{}, ErrExists
	}
	c := Contact{ID: id, UserID: userID, ContactID: contactID, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	s.edges[k] = c
	return c, nil
}

func (s *MemoryStore) Accept(ctx context.Context, userID, requesterID string, now time.Time) (Contact, error) {
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.edges[edgeKey{requesterID, userID}]
	if !ok || req.Status != StatusPending {
		return Contact{}, ErrNoRequest
	}
	req.Status = StatusAccepted
	req.UpdatedAt = now
	s.edges[edgeKey{requesterID, userID}] = req

	rk := edgeKey{userID, requesterID}
	rev, ok := s.edges[rk]
	if !ok {
		id, err := ids.NewULID(now)
		if err != nil {
			return Contact{}, err
		}
		rev = Contact{ID: id, UserID: userID, ContactID: requesterID, CreatedAt: now}
	}
	rev.Status = StatusAccepted
	rev.UpdatedAt = now
	s.edges[rk] = rev
	return rev, nil
}

func (s *MemoryStore) ListAccepted(ctx context.Context, userID string) ([]Contact, error) {
	return s.list(ctx, func(c Contact) bool { return c.UserID == userID && c.Status == StatusAccepted })
}

func (s *MemoryStore) ListIncoming(ctx context.Context, userID string) ([]Contact, error) {
	return s.list(ctx, func(c Contact) bool { return c.ContactID == userID && c.Status == StatusPending })
}

func (s *MemoryStore) list(ctx context.Context, keep func(Contact) bool) ([]Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Contact, 0)
	for _, c := range s.edges {
		if keep(c) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
