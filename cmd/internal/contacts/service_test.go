package contacts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"huddle/cmd/identity"
	v1 "huddle/shared/contracts/realtime/v1"
)

type relayed struct {
	to, event string
	payload   any
}

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	sent   []relayed
}

func newFakePresence(online ...string) *fakePresence {
	p := &fakePresence{online: map[string]bool{}}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePresence) Relay(id, event string, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, relayed{id, event, payload})
	return p.online[id]
}

func (p *fakePresence) Online(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

func mkUser(t *testing.T, users *identity.MemoryStore, email string) identity.User {
	t.Helper()
	u, err := users.CreateUser(context.Background(), identity.CreateUserInput{Email: email, FullName: email, PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestService_AddAndAccept(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := identity.NewMemoryStore()
	alice, bob := mkUser(t, users, "alice@example.com"), mkUser(t, users, "bob@example.com")
	p := newFakePresence(bob.ID)

	svc, err := NewService(NewMemoryStore(), users, p)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	c, err := svc.Add(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(p.sent) != 1 || p.sent[0].to != bob.ID || p.sent[0].event != v1.TypeFriendRequest {
		t.Fatalf("friend_request not relayed: %+v", p.sent)
	}
	fr := p.sent[0].payload.(v1.FriendRequestPayload)
	if fr.From.ID != alice.ID || fr.ContactID != c.ID {
		t.Fatalf("payload: %+v", fr)
	}

	reqs, err := svc.Requests(ctx, bob.ID)
	if err != nil || len(reqs) != 1 || reqs[0].User.ID != alice.ID {
		t.Fatalf("Requests: %v %+v", err, reqs)
	}

	if _, err := svc.Accept(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	last := p.sent[len(p.sent)-1]
	if last.to != alice.ID || last.event != v1.TypeFriendRequestAccepted {
		t.Fatalf("accept not relayed: %+v", last)
	}

	list, err := svc.List(ctx, alice.ID)
	if err != nil || len(list) != 1 || list[0].User.ID != bob.ID || !list[0].Online {
		t.Fatalf("List(alice): %v %+v", err, list)
	}
	list, _ = svc.List(ctx, bob.ID)
	if len(list) != 1 || list[0].User.ID != alice.ID || list[0].Online {
		t.Fatalf("List(bob): %+v", list)
	}
}

func TestService_AddRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := identity.NewMemoryStore()
	alice, bob := mkUser(t, users, "alice@example.com"), mkUser(t, users, "bob@example.com")
	p := newFakePresence()
	svc, _ := NewService(NewMemoryStore(), users, p)

	if _, err := svc.Add(ctx, alice.ID, alice.ID); !errors.Is(err, ErrSelf) {
		t.Fatalf("self: %v", err)
	}
	if _, err := svc.Add(ctx, alice.ID, "01J0000000000000000000GHOST"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown: %v", err)
	}
	if _, err := svc.Add(ctx, alice.ID, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank: %v", err)
	}
	if _, err := svc.Add(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := svc.Add(ctx, alice.ID, bob.ID); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := svc.Add(ctx, bob.ID, alice.ID); !errors.Is(err, ErrExists) {
		t.Fatalf("reverse duplicate: %v", err)
	}
	if len(p.sent) != 1 {
		t.Fatalf("rejected adds must not relay: %+v", p.sent)
	}
	if _, err := svc.Accept(ctx, alice.ID, bob.ID); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("accept own request: %v", err)
	}
}

type failingUsers struct{}

func (failingUsers) FindIdentity(context.Context, string) (identity.User, error) {
	return identity.User{}, errors.New("db down")
}

func (failingUsers) GetByEmail(context.Context, string) (identity.User, error) {
	return identity.User{}, errors.New("db down")
}

func TestService_StoreFailurePropagates(t *testing.T) {
	t.Parallel()
	svc, _ := NewService(NewMemoryStore(), failingUsers{}, newFakePresence())
	_, err := svc.Add(context.Background(), "a", "b")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	_, err = svc.AddByEmail(context.Background(), "a", "b@example.com")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}

func TestService_AddByEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := identity.NewMemoryStore()
	alice, bob := mkUser(t, users, "alice@example.com"), mkUser(t, users, "bob@example.com")
	p := newFakePresence(bob.ID)
	svc, _ := NewService(NewMemoryStore(), users, p)

	c, err := svc.AddByEmail(ctx, alice.ID, "  Bob@Example.com ")
	if err != nil {
		t.Fatalf("AddByEmail: %v", err)
	}
	if c.UserID != alice.ID || c.ContactID != bob.ID || c.Status != StatusPending {
		t.Fatalf("unexpected edge: %+v", c)
	}
	if len(p.sent) != 1 || p.sent[0].to != bob.ID || p.sent[0].event != v1.TypeFriendRequest {
		t.Fatalf("relay: %+v", p.sent)
	}

	cases := []struct {
		name  string
		email string
		want  error
	}{
		{"self", "alice@example.com", ErrSelf},
		{"existing", "bob@example.com", ErrExists},
		{"unknown", "ghost@example.com", ErrNotFound},
		{"malformed", "not-an-email", ErrInvalidInput},
		{"blank", " ", ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, err := svc.AddByEmail(ctx, alice.ID, tc.email); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
	if len(p.sent) != 1 {
		t.Fatalf("rejected adds must not relay: %+v", p.sent)
	}
}
