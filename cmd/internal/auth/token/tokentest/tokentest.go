// Package tokentest provides an Issuer backed by a process-wide throwaway key
// pair. For tests only.
package tokentest

import (
	"sync"
	"testing"
	"time"

	"huddle/cmd/internal/auth/token"
)

var (
	once    sync.Once
	privPEM []byte
	pubPEM  []byte
	genErr  error
)

// KeyPair returns PEM encoded test keys, generated once per test binary.
func KeyPair(t testing.TB) (priv, pub string) {
	t.Helper()
	once.Do(func() {
		privPEM, pubPEM, genErr = token.GenerateRSA(2048)
	})
	if genErr != nil {
		t.Fatalf("generate test key: %v", genErr)
	}
	return string(privPEM), string(pubPEM)
}

// NewIssuer returns an Issuer using the default lifetimes and the given clock.
// A nil clock uses time.Now.
func NewIssuer(t testing.TB, now func() time.Time) *token.Issuer {
	t.Helper()
	priv, pub := KeyPair(t)

	cfg := token.DefaultConfig()
	cfg.PrivateKey = priv
	cfg.PublicKey = pub

	iss, err := token.NewIssuerFromConfig(cfg, token.WithClock(now))
	if err != nil {
		t.Fatalf("NewIssuerFromConfig: %v", err)
	}
	return iss
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a Clock at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
