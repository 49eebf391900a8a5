// Package resolver establishes the caller identity of a request.
//
// Resolve is a pure step from credentials to a tagged Result. It never rejects
// anything: Middleware attaches whatever identity it found and always calls
// the next handler, and RequireIdentity is the separate gate that fails closed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/auth/token"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the terminal state of one resolution.
type State string

const (
	StateNoAccessToken    State = "no_access_token"
	StateAccessInvalid    State = "access_invalid"
	StateAccessValid      State = "access_valid"
	StateExpiredNoRefresh State = "expired_no_refresh"
	StateRenewed          State = "renewed"
	StateRenewalDenied    State = "renewal_denied"
)

// Identity is what gets attached to a request.
type Identity struct {
	identity.Snapshot
	SessionID string `json:"session_id"`
}

// Input carries the raw credentials found on a request.
type Input struct {
	AccessToken  string
	RefreshToken string
}

// Result is the outcome of Resolve. Identity is nil unless State is
// StateAccessValid or StateRenewed.
type Result struct {
	Identity           *Identity
	RenewedAccessToken string
	RenewedExpiresAt   time.Time
	State              State
	Reason             error
}

// Credentials verifies and mints access credentials.
type Credentials interface {
	Verify(tok string) token.Result
	Issue(c token.Claims, ttl time.Duration) (string, time.Time, error)
	AccessTTL() time.Duration
}

// SessionFinder loads session records.
type SessionFinder interface {
	Find(ctx context.Context, sessionID string) (session.Session, error)
}

// RevocationChecker answers whether a refresh credential was blacklisted.
type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, refreshToken string) (bool, error)
}

// Resolver implements the request identity state machine.
type Resolver struct {
	creds      Credentials
	sessions   SessionFinder
	revoked    RevocationChecker
	identities identity.Finder

	log      *slog.Logger
	outcomes *prometheus.CounterVec
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for renewal events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithRegisterer registers the outcome counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Resolver) {
		if reg != nil {
			reg.MustRegister(r.outcomes)
		}
	}
}

// New builds a Resolver. All collaborators are required.
func New(creds Credentials, sessions SessionFinder, revoked RevocationChecker, identities identity.Finder, opts ...Option) (*Resolver, error) {
	if creds == nil || sessions == nil || revoked == nil || identities == nil {
		return nil, errors.New("resolver: missing collaborator")
	}
	r := &Resolver{
		creds:      creds,
		sessions:   sessions,
		revoked:    revoked,
		identities: identities,
		log:        slog.New(slog.DiscardHandler),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Subsystem: "resolver",
			Name:      "outcomes_total",
			Help:      "Request identity resolutions by terminal state.",
		}, []string{"state"}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Resolve maps the request credentials to an identity, renewing the access
// credential from the refresh credential when the former has merely expired.
func (r *Resolver) Resolve(ctx context.Context, in Input) Result {
	res := r.resolve(ctx, in)
	r.outcomes.WithLabelValues(string(res.State)).Inc()
	return res
}

func (r *Resolver) resolve(ctx context.Context, in Input) Result {
	if in.AccessToken == "" {
		return Result{State: StateNoAccessToken}
	}

	v := r.creds.Verify(in.AccessToken)
	switch {
	case v.Valid:
		return Result{
			State:    StateAccessValid,
			Identity: &Identity{Snapshot: v.Claims.Identity, SessionID: v.Claims.SessionID},
		}
	case !v.Expired:
		return Result{State: StateAccessInvalid, Reason: ErrSignatureInvalid}
	case in.RefreshToken == "":
		return Result{State: StateExpiredNoRefresh, Reason: ErrExpired}
	}

	return r.Renew(ctx, in.RefreshToken)
}

// Renew mints a fresh access credential from a refresh credential. The
// result is either StateRenewed or StateRenewalDenied.
//
// Every store failure denies; a transient outage must never resurrect a
// revoked session.
func (r *Resolver) Renew(ctx context.Context, refreshToken string) Result {
	res := r.renew(ctx, refreshToken)
	if res.State == StateRenewalDenied {
		r.log.DebugContext(ctx, "resolver.renew.denied", "reason", res.Reason)
	}
	return res
}

func (r *Resolver) renew(ctx context.Context, refreshToken string) Result {
	if refreshToken == "" {
		return denied(ErrSignatureInvalid)
	}

	revoked, err := r.revoked.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		r.log.WarnContext(ctx, "resolver.revocation.unavailable", "err", err)
		return denied(fmt.Errorf("%w: %v", ErrRevocationUnavailable, err))
	}
	if revoked {
		return denied(ErrRevoked)
	}

	v := r.creds.Verify(refreshToken)
	if !v.Valid {
		if v.Expired {
			return denied(ErrExpired)
		}
		return denied(ErrSignatureInvalid)
	}
	claims := v.Claims

	sess, err := r.sessions.Find(ctx, claims.SessionID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			r.log.WarnContext(ctx, "resolver.session.lookup.fail", "err", err)
		}
		return denied(fmt.Errorf("%w: %v", ErrSessionInvalid, err))
	}
	if !sess.Valid || sess.IdentityID != claims.Identity.ID {
		return denied(ErrSessionInvalid)
	}

	// The embedded snapshot may be stale; the store is authoritative.
	user, err := r.identities.FindIdentity(ctx, claims.Identity.ID)
	if err != nil {
		if !identity.IsNotFound(err) {
			r.log.WarnContext(ctx, "resolver.identity.lookup.fail", "err", err)
		}
		return denied(fmt.Errorf("%w: %v", ErrIdentitySourceUnavailable, err))
	}

	fresh := user.Snapshot()
	tok, exp, err := r.creds.Issue(token.Claims{Identity: fresh, SessionID: sess.ID}, r.creds.AccessTTL())
	if err != nil {
		r.log.ErrorContext(ctx, "resolver.issue.fail", "err", err)
		return denied(err)
	}

	r.log.DebugContext(ctx, "resolver.renew.ok", "user_id", fresh.ID, "session_id", sess.ID)
	return Result{
		State:              StateRenewed,
		Identity:           &Identity{Snapshot: fresh, SessionID: sess.ID},
		RenewedAccessToken: tok,
		RenewedExpiresAt:   exp,
	}
}

func denied(reason error) Result {
	return Result{State: StateRenewalDenied, Reason: reason}
}
