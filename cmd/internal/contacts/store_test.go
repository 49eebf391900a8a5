package contacts

import (
	"context"
	"errors"
	"testing"
	"time"
)

func runStoreContract(t *testing.T, s Store, a, b, c string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if _, err := s.Get(ctx, a, b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: %v", err)
	}

	p, err := s.CreatePending(ctx, a, b, now)
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if p.Status != StatusPending || p.UserID != a || p.ContactID != b || p.ID == "" {
		t.Fatalf("unexpected pending edge: %+v", p)
	}
	if _, err := s.CreatePending(ctx, a, b, now); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate CreatePending: %v", err)
	}
	if _, err := s.CreatePending(ctx, c, b, now); err != nil {
		t.Fatalf("second requester: %v", err)
	}

	in, err := s.ListIncoming(ctx, b)
	if err != nil || len(in) != 2 {
		t.Fatalf("ListIncoming: %v %+v", err, in)
	}

	if _, err := s.Accept(ctx, a, b, now); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("Accept in the wrong direction: %v", err)
	}

	rev, err := s.Accept(ctx, b, a, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if rev.UserID != b || rev.ContactID != a || rev.Status != StatusAccepted {
		t.Fatalf("unexpected reverse edge: %+v", rev)
	}
	fwd, err := s.Get(ctx, a, b)
	if err != nil || fwd.Status != StatusAccepted {
		t.Fatalf("forward edge not accepted: %+v %v", fwd, err)
	}
	if _, err := s.Accept(ctx, b, a, now); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("double Accept: %v", err)
	}

	for _, who := range []string{a, b} {
		acc, err := s.ListAccepted(ctx, who)
		if err != nil || len(acc) != 1 {
			t.Fatalf("ListAccepted(%s): %v %+v", who, err, acc)
		}
	}
	in, _ = s.ListIncoming(ctx, b)
	if len(in) != 1 || in[0].UserID != c {
		t.Fatalf("remaining incoming: %+v", in)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryStore(), "user-a", "user-b", "user-c")
}
