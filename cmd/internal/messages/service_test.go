package messages

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"huddle/cmd/identity"
	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// storeCheckingRelay records whether each relayed message was already stored.
type storeCheckingRelay struct {
	t      *testing.T
	store  Store
	online bool
	events []string
}

func (r *storeCheckingRelay) Relay(id, event string, payload any) bool {
	r.events = append(r.events, event)
	p := payload.(v1.MessagePayload)
	msgs, err := r.store.Between(context.Background(), p.SenderID, p.ReceiverID, Page{})
	if err != nil || len(msgs) == 0 || msgs[len(msgs)-1].ID != p.ID {
		r.t.Errorf("message %s relayed before it was stored", p.ID)
	}
	return r.online
}

func setup(t *testing.T, online bool) (*Service, *storeCheckingRelay, identity.User, identity.User) {
	t.Helper()
	users := identity.NewMemoryStore()
	mk := func(email string) identity.User {
		u, err := users.CreateUser(context.Background(), identity.CreateUserInput{Email: email, FullName: email, PasswordHash: "h"})
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		return u
	}
	store := NewMemoryStore()
	relay := &storeCheckingRelay{t: t, store: store, online: online}
	svc, err := NewService(store, users, relay, WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, relay, mk("a@example.com"), mk("b@example.com")
}

func TestSend_PersistsThenRelays(t *testing.T) {
	t.Parallel()
	svc, relay, a, b := setup(t, true)

	m, delivered, err := svc.Send(context.Background(), a.ID, b.ID, "  hello  ", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !delivered || m.Text != "hello" || m.ID == "" {
		t.Fatalf("unexpected result: %+v delivered=%v", m, delivered)
	}
	if len(relay.events) != 1 || relay.events[0] != v1.TypeNewMessage {
		t.Fatalf("events: %v", relay.events)
	}
	if got := testutil.ToFloat64(svc.sent.WithLabelValues("true")); got != 1 {
		t.Fatalf("sent{delivered=true} = %v", got)
	}
}

func TestSend_OfflineReceiverStillStored(t *testing.T) {
	t.Parallel()
	svc, _, a, b := setup(t, false)

	_, delivered, err := svc.Send(context.Background(), a.ID, b.ID, "", "https://cdn.example.com/cat.png")
	if err != nil || delivered {
		t.Fatalf("Send: delivered=%v err=%v", delivered, err)
	}
	msgs, err := svc.Conversation(context.Background(), b.ID, a.ID, Page{})
	if err != nil || len(msgs) != 1 || msgs[0].Image == "" {
		t.Fatalf("Conversation: %v %+v", err, msgs)
	}
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()
	svc, relay, a, b := setup(t, true)

	cases := []struct {
		name        string
		to          string
		text, image string
		want        error
	}{
		{"empty", b.ID, "   ", "", ErrEmpty},
		{"self", a.ID, "hi", "", ErrSelf},
		{"too long", b.ID, strings.Repeat("é", maxTextRunes+1), "", ErrTooLong},
		{"bad image", b.ID, "", "javascript:alert(1)", ErrInvalidInput},
		{"unknown receiver", "01J0000000000000000000GHOST", "hi", "", ErrNotFound},
		{"blank receiver", "", "hi", "", ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, _, err := svc.Send(context.Background(), a.ID, tc.to, tc.text, tc.image); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
	if len(relay.events) != 0 {
		t.Fatalf("rejected sends must not relay")
	}

	// Exactly at the limit is fine.
	if _, _, err := svc.Send(context.Background(), a.ID, b.ID, strings.Repeat("é", maxTextRunes), ""); err != nil {
		t.Fatalf("max length: %v", err)
	}
}

func TestConversation_PageClamp(t *testing.T) {
	t.Parallel()
	svc, _, a, b := setup(t, false)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	svc.now = func() time.Time { n++; return base.Add(time.Duration(n) * time.Second) }

	for i := 0; i < maxPageSize+5; i++ {
		if _, _, err := svc.Send(context.Background(), a.ID, b.ID, "m", ""); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	msgs, _ := svc.Conversation(context.Background(), a.ID, b.ID, Page{Limit: 10_000})
	if len(msgs) != maxPageSize {
		t.Fatalf("expected clamp to %d, got %d", maxPageSize, len(msgs))
	}
	msgs, _ = svc.Conversation(context.Background(), a.ID, b.ID, Page{})
	if len(msgs) != defaultPageSize {
		t.Fatalf("expected default page %d, got %d", defaultPageSize, len(msgs))
	}
}
