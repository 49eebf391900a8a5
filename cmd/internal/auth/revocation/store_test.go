package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/token"
	"huddle/cmd/internal/auth/token/tokentest"
	sectoken "huddle/cmd/security/token"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func issueRefresh(t *testing.T, iss *token.Issuer, ttl time.Duration) string {
	t.Helper()
	tok, _, err := iss.Issue(token.Claims{Identity: identity.Snapshot{ID: "u1"}, SessionID: "s1"}, ttl)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func TestRedisStore_TTLMatchesRemainingLifetime(t *testing.T) {
	t.Parallel()

	clock := tokentest.NewClock(time.Now().UTC().Truncate(time.Second))
	iss := tokentest.NewIssuer(t, clock.Now)
	mr, rdb := newRedis(t)
	s := NewRedisStore(rdb, WithClock(clock.Now))
	ctx := context.Background()

	tok := issueRefresh(t, iss, 7*24*time.Hour)

	// Three days into a seven day credential.
	clock.Advance(72 * time.Hour)
	if err := s.Blacklist(ctx, tok); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}

	got := mr.TTL(KeyPrefix + sectoken.HashSHA256Hex(tok))
	want := 4 * 24 * time.Hour
	if d := got - want; d < -time.Second || d > time.Second {
		t.Fatalf("ttl=%v want %v within 1s", got, want)
	}

	ok, err := s.IsBlacklisted(ctx, tok)
	if err != nil || !ok {
		t.Fatalf("IsBlacklisted=%v,%v want true", ok, err)
	}

	// The entry dies with the credential.
	mr.FastForward(want + time.Second)
	ok, err = s.IsBlacklisted(ctx, tok)
	if err != nil || ok {
		t.Fatalf("IsBlacklisted after expiry=%v,%v want false", ok, err)
	}
}

func TestRedisStore_ExpiredTokenIsNoop(t *testing.T) {
	t.Parallel()

	clock := tokentest.NewClock(time.Now().UTC().Truncate(time.Second))
	iss := tokentest.NewIssuer(t, clock.Now)
	mr, rdb := newRedis(t)
	reg := prometheus.NewRegistry()
	s := NewRedisStore(rdb, WithClock(clock.Now), WithRegisterer(reg))

	tok := issueRefresh(t, iss, time.Hour)
	clock.Advance(time.Hour)

	if err := s.Blacklist(context.Background(), tok); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if n := len(mr.Keys()); n != 0 {
		t.Fatalf("expected no keys, got %d", n)
	}
	if v := testutil.ToFloat64(s.revoked.WithLabelValues("already_expired")); v != 1 {
		t.Fatalf("already_expired counter=%v", v)
	}
}

func TestRedisStore_UndecodableToken(t *testing.T) {
	t.Parallel()

	_, rdb := newRedis(t)
	s := NewRedisStore(rdb)
	if err := s.Blacklist(context.Background(), "garbage"); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected ErrUndecodable, got %v", err)
	}
}

func TestRedisStore_UnavailableReturnsError(t *testing.T) {
	t.Parallel()

	iss := tokentest.NewIssuer(t, nil)
	mr, rdb := newRedis(t)
	s := NewRedisStore(rdb)
	tok := issueRefresh(t, iss, time.Hour)

	mr.Close()

	if _, err := s.IsBlacklisted(context.Background(), tok); err == nil {
		t.Fatalf("expected error when redis is down")
	}
	if err := s.Blacklist(context.Background(), tok); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestRedisStore_HMACKeys(t *testing.T) {
	t.Parallel()

	iss := tokentest.NewIssuer(t, nil)
	mr, rdb := newRedis(t)
	h := sectoken.NewHasher([]byte("0123456789abcdef0123456789abcdef"))
	s := NewRedisStore(rdb, WithHasher(h))
	tok := issueRefresh(t, iss, time.Hour)

	if err := s.Blacklist(context.Background(), tok); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if !mr.Exists(KeyPrefix + h.Hex(tok)) {
		t.Fatalf("expected HMAC keyed entry")
	}
	if mr.Exists(KeyPrefix + sectoken.HashSHA256Hex(tok)) {
		t.Fatalf("plain SHA-256 key must not be written in HMAC mode")
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	clock := tokentest.NewClock(time.Now().UTC().Truncate(time.Second))
	iss := tokentest.NewIssuer(t, clock.Now)
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	tok := issueRefresh(t, iss, 2*time.Hour)
	other := issueRefresh(t, iss, 2*time.Hour)
	clock.Advance(30 * time.Minute)

	if err := s.Blacklist(ctx, tok); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	ttl, ok := s.TTL(tok)
	if !ok || ttl != 90*time.Minute {
		t.Fatalf("TTL=%v,%v want 90m", ttl, ok)
	}
	if ok, _ := s.IsBlacklisted(ctx, tok); !ok {
		t.Fatalf("expected blacklisted")
	}
	if ok, _ := s.IsBlacklisted(ctx, other); ok {
		t.Fatalf("unrelated token must not be blacklisted")
	}

	clock.Advance(90 * time.Minute)
	if ok, _ := s.IsBlacklisted(ctx, tok); ok {
		t.Fatalf("entry must expire with the token")
	}

	expired := issueRefresh(t, iss, time.Minute)
	clock.Advance(2 * time.Minute)
	if err := s.Blacklist(ctx, expired); err != nil {
		t.Fatalf("Blacklist expired: %v", err)
	}
	if _, ok := s.TTL(expired); ok {
		t.Fatalf("expired token must not be stored")
	}
}
