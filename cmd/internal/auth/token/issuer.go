package token

import (
	"crypto/rsa"
	"errors"
	"time"

	"huddle/cmd/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload shared by access and refresh credentials.
type Claims struct {
	Identity  identity.Snapshot `json:"identity"`
	SessionID string            `json:"session_id"`
	jwt.RegisteredClaims
}

// Result is the outcome of Verify.
//
// Exactly one of the following holds:
//   - Valid: Claims is populated.
//   - Expired: signature and structure are fine but exp has passed; Claims is nil.
//   - neither: the token is untrustworthy.
type Result struct {
	Valid   bool
	Claims  *Claims
	Expired bool
}

// Pair is an access/refresh credential pair sharing one session.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Issuer signs credentials with an RSA private key and verifies them with the paired public key.
type Issuer struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
	cfg  Config
	now  func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp and verification.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer builds an Issuer from an explicit key pair.
func NewIssuer(priv *rsa.PrivateKey, pub *rsa.PublicKey, cfg Config, opts ...Option) (*Issuer, error) {
	if priv == nil || pub == nil {
		return nil, ErrInvalidKey
	}
	if !validTTL(cfg.AccessTTL) || !validTTL(cfg.RefreshTTL) {
		return nil, ErrConfig
	}
	i := &Issuer{priv: priv, pub: pub, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// NewIssuerFromConfig parses cfg's PEM keys and builds an Issuer.
func NewIssuerFromConfig(cfg Config, opts ...Option) (*Issuer, error) {
	priv, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, err
	}
	return NewIssuer(priv, pub, cfg, opts...)
}

// AccessTTL returns the configured access credential lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// RefreshTTL returns the configured refresh credential lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// Issue signs c with the given lifetime. Registered claims are filled in here;
// any the caller set are overwritten. NumericDate carries whole seconds only,
// so ttl must be a positive whole number of seconds and the returned expiry is
// exactly the exp claim.
func (i *Issuer) Issue(c Claims, ttl time.Duration) (string, time.Time, error) {
	if !validTTL(ttl) {
		return "", time.Time{}, ErrConfig
	}
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   c.Identity.ID,
		Issuer:    i.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(i.priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

func validTTL(d time.Duration) bool {
	return d >= time.Second && d%time.Second == 0
}

// IssuePair mints the access and refresh credentials for one session.
func (i *Issuer) IssuePair(snap identity.Snapshot, sessionID string) (Pair, error) {
	c := Claims{Identity: snap, SessionID: sessionID}

	access, accessExp, err := i.Issue(c, i.cfg.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := i.Issue(c, i.cfg.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

// Verify checks signature, algorithm and registered claims.
func (i *Issuer) Verify(tok string) Result {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, i.keyFunc, i.parserOptions(i.now)...)
	if err == nil && parsed.Valid {
		return Result{Valid: true, Claims: claims}
	}

	// Signature is checked before claims, so ErrTokenExpired implies an
	// authentic token. It only counts as expired when nothing else is wrong.
	if errors.Is(err, jwt.ErrTokenExpired) && i.onlyExpired(claims) {
		return Result{Expired: true}
	}
	return Result{}
}

// Decode parses claims without verifying the signature. Callers must not
// trust the result for anything but reading exp.
func (i *Issuer) Decode(tok string) (*Claims, error) {
	return Decode(tok)
}

// Decode parses claims without verifying the signature.
func Decode(tok string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (i *Issuer) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, ErrInvalidKey
	}
	return i.pub, nil
}

func (i *Issuer) parserOptions(now func() time.Time) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}
	return opts
}

// onlyExpired re-runs claim validation at the last instant the token was alive.
func (i *Issuer) onlyExpired(c *Claims) bool {
	if c.ExpiresAt == nil {
		return false
	}
	at := c.ExpiresAt.Add(-time.Second)
	return jwt.NewValidator(i.parserOptions(func() time.Time { return at })...).Validate(c) == nil
}
