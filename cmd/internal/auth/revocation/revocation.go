// Package revocation blacklists refresh credentials until their natural expiry.
//
// Entries are keyed by a digest of the credential, never the credential
// itself, and carry a TTL equal to the credential's remaining lifetime so the
// store cleans itself up without a sweeper.
package revocation

import (
	"context"
	"errors"
	"time"

	"huddle/cmd/internal/auth/token"
	sectoken "huddle/cmd/security/token"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrUndecodable is returned by Blacklist when the credential cannot be parsed.
	ErrUndecodable = errors.New("revocation: undecodable token")

	// ErrNoExpiry is returned by Blacklist when the credential has no exp claim.
	ErrNoExpiry = errors.New("revocation: token has no expiry")
)

// KeyPrefix namespaces blacklist entries.
const KeyPrefix = "bl:"

// Store is the revocation boundary consumed by the resolver and logout.
type Store interface {
	// Blacklist records refreshToken until its exp. Already expired tokens are a no-op.
	Blacklist(ctx context.Context, refreshToken string) error

	// IsBlacklisted reports whether refreshToken was revoked. A non-nil error
	// means the answer is unknown and callers must deny.
	IsBlacklisted(ctx context.Context, refreshToken string) (bool, error)
}

// Option configures a store.
type Option func(*base)

// WithHasher sets how credentials are digested into keys (default SHA-256).
func WithHasher(h sectoken.Hasher) Option {
	return func(b *base) { b.hasher = h }
}

// WithClock overrides the time source used to compute TTLs.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithRegisterer registers revocation metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *base) { b.reg = reg }
}

// base holds what both implementations share.
type base struct {
	hasher sectoken.Hasher
	now    func() time.Time
	reg    prometheus.Registerer

	revoked *prometheus.CounterVec
}

func newBase(opts []Option) base {
	b := base{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	b.revoked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "revocation",
		Name:      "blacklist_total",
		Help:      "Blacklist calls by result (stored, already_expired, error).",
	}, []string{"result"})
	if b.reg != nil {
		b.reg.MustRegister(b.revoked)
	}
	return b
}

func (b base) key(refreshToken string) string {
	return KeyPrefix + b.hasher.Hex(refreshToken)
}

// remaining returns exp - now for refreshToken without verifying its signature.
func (b base) remaining(refreshToken string) (time.Duration, error) {
	claims, err := token.Decode(refreshToken)
	if err != nil {
		return 0, ErrUndecodable
	}
	if claims.ExpiresAt == nil {
		return 0, ErrNoExpiry
	}
	return claims.ExpiresAt.Sub(b.now()), nil
}

func (b base) observe(result string) {
	b.revoked.WithLabelValues(result).Inc()
}
