package identity

import (
	"context"
	"sync"
	"time"

	"huddle/cmd/identity/ids"
)

// MemoryStore keeps users in process memory. Used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[in.Email]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	u := User{
		ID:           id,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}
	s.byID[id] = u
	s.byEmail[in.Email] = id
	return u, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByEmail", Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindIdentity(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.FindIdentity", Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (User, error) {
	const op = "identity.UpdateProfile"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	upd, err := validateUpdate(op, upd)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	applyUpdate(&u, upd)
	u.UpdatedAt = now
	s.byID[id] = u
	return u, nil
}

func (s *MemoryStore) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.SetOnline", Resource: "user"}
	}
	u.IsOnline = online
	if !online {
		t := at
		u.LastSeen = &t
	}
	s.byID[id] = u
	return nil
}
