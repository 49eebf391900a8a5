package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/resolver"
	"huddle/cmd/internal/auth/revocation"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/auth/token"
	"huddle/cmd/internal/httpx"
	"huddle/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
)

// Credentials mints credential pairs for new sessions.
type Credentials interface {
	IssuePair(snap identity.Snapshot, sessionID string) (token.Pair, error)
	Issue(c token.Claims, ttl time.Duration) (string, time.Time, error)
	Verify(tok string) token.Result
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// Renewer exchanges a refresh credential for a new access credential.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) resolver.Result
}

// Deps are the collaborators a Handler needs. All fields are required.
type Deps struct {
	Users     identity.Store
	Sessions  session.Store
	Revoked   revocation.Store
	Issuer    Credentials
	Renewer   Renewer
	Passwords password.Config
}

// Handler wires HTTP auth endpoints to the identity and session stores.
type Handler struct {
	log *slog.Logger
	cfg Config
	now func() time.Time

	users     identity.Store
	sessions  session.Store
	revoked   revocation.Store
	issuer    Credentials
	renewer   Renewer
	passwords password.Config

	loginLimiter  *ipLimiter
	signupLimiter *ipLimiter

	attempts *prometheus.CounterVec

	dummyHash string
}

// HandlerOption configures optional handler behavior.
type HandlerOption func(*Handler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithRegisterer registers the handler metrics on reg.
func WithRegisterer(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) {
		if reg != nil {
			reg.MustRegister(h.attempts)
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, deps Deps, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if deps.Users == nil || deps.Sessions == nil || deps.Revoked == nil || deps.Issuer == nil || deps.Renewer == nil {
		return nil, errors.New("authapi: missing dependency")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}

	h := &Handler{
		log:           log,
		cfg:           cfg,
		now:           time.Now,
		users:         deps.Users,
		sessions:      deps.Sessions,
		revoked:       deps.Revoked,
		issuer:        deps.Issuer,
		renewer:       deps.Renewer,
		passwords:     deps.Passwords,
		loginLimiter:  newIPLimiter(cfg.LoginIPMax, cfg.LoginIPWindow),
		signupLimiter: newIPLimiter(cfg.SignupIPMax, cfg.SignupIPWindow),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Signup, login and refresh attempts by result.",
		}, []string{"op", "result"}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := h.passwords.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}
	return h, nil
}

// Register wires auth routes onto mux. The resolver middleware must wrap mux
// for the identity-gated routes to see a caller.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signup", h.handleSignup)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/auth/refresh", h.handleRefresh)
	mux.Handle("POST /api/auth/logout-all", resolver.RequireIdentityFunc(h.handleLogoutAll))
	mux.Handle("GET /api/auth/me", resolver.RequireIdentityFunc(h.handleMe))
	mux.Handle("PATCH /api/auth/me", resolver.RequireIdentityFunc(h.handleUpdateMe))
}

// SweepLimiters drops idle rate limit buckets. Call it periodically.
func (h *Handler) SweepLimiters() int {
	now := h.now()
	return h.loginLimiter.sweep(now) + h.signupLimiter.sweep(now)
}

// ---- handlers ----

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	ip := httpx.ClientIP(r, h.cfg.TrustProxy)
	if ok, retry := h.signupLimiter.allow(ip, h.now()); !ok {
		h.attempts.WithLabelValues("signup", "rate_limited").Inc()
		httpx.WriteRateLimited(w, retry)
		return
	}

	var req signupRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.FullName) == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email, full_name and password are required")
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong), errors.Is(err, password.ErrWeakPassword):
			httpx.WriteError(w, http.StatusBadRequest, "weak_password", err.Error())
		default:
			h.log.Error("auth.signup.hash.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	ctx := r.Context()
	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		Now:          h.now().UTC(),
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.attempts.WithLabelValues("signup", "conflict").Inc()
			httpx.WriteError(w, http.StatusConflict, "email_taken", "email already registered")
		case identity.IsInvalidInput(err):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			h.log.Error("auth.signup.create.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.attempts.WithLabelValues("signup", "ok").Inc()
	h.log.Info("auth.signup.ok", "user_id", u.ID)
	h.startSession(w, r, u, http.StatusCreated, "signup")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := httpx.ClientIP(r, h.cfg.TrustProxy)
	if ok, retry := h.loginLimiter.allow(ip, h.now()); !ok {
		h.attempts.WithLabelValues("login", "rate_limited").Inc()
		h.log.Info("auth.login.rate_limited", "ip", ip.String())
		httpx.WriteRateLimited(w, retry)
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	u, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !identity.IsNotFound(err) && !identity.IsInvalidInput(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return
		}
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = h.passwords.Verify(h.dummyHash, req.Password)
		}
		h.loginFailed(w, "not_found")
		return
	}

	ok, err := h.passwords.Verify(u.PasswordHash, req.Password)
	if err != nil || !ok {
		h.loginFailed(w, "bad_password")
		return
	}

	h.attempts.WithLabelValues("login", "ok").Inc()
	h.log.Info("auth.login.ok", "user_id", u.ID)
	h.startSession(w, r, u, http.StatusOK, "login")
}

func (h *Handler) loginFailed(w http.ResponseWriter, reason string) {
	h.attempts.WithLabelValues("login", "invalid").Inc()
	h.log.Info("auth.login.fail", "reason", reason)
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
}

// startSession creates a session for u, issues both credentials from the
// stored record, and writes the auth response.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u identity.User, status int, op string) {
	ctx := r.Context()
	sess, err := h.sessions.Create(ctx, u.ID, r.UserAgent())
	if err != nil {
		h.log.Error("auth."+op+".session.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	pair, err := h.issuer.IssuePair(u.Snapshot(), sess.ID)
	if err != nil {
		h.log.Error("auth."+op+".issue.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExp)
	httpx.WriteJSON(w, status, authResponse{
		User:            toUserResponse(u),
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExp,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := refreshFromCookie(r)
	if refresh == "" {
		h.attempts.WithLabelValues("refresh", "missing").Inc()
		httpx.WriteError(w, http.StatusUnauthorized, "no_refresh_token", "refresh token required")
		return
	}

	res := h.renewer.Renew(r.Context(), refresh)
	if res.State != resolver.StateRenewed {
		h.attempts.WithLabelValues("refresh", "denied").Inc()
		h.log.Info("auth.refresh.denied", "reason", res.Reason)
		httpx.WriteError(w, http.StatusUnauthorized, "refresh_denied", "refresh token not accepted")
		return
	}

	h.attempts.WithLabelValues("refresh", "ok").Inc()
	httpx.WriteJSON(w, http.StatusOK, refreshResponse{
		AccessToken:     res.RenewedAccessToken,
		AccessExpiresAt: res.RenewedExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// The resolver may have renewed an expired access credential from the
	// cookie being revoked here; it must not outlive the logout.
	w.Header().Del(resolver.RenewedTokenHeader)
	if refresh := refreshFromCookie(r); refresh != "" {
		h.revoke(r.Context(), refresh)
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// revoke blacklists refresh. If the blacklist is unreachable the session the
// credential belongs to is invalidated instead, which also stops renewal.
func (h *Handler) revoke(ctx context.Context, refresh string) {
	err := h.revoked.Blacklist(ctx, refresh)
	switch {
	case err == nil:
		return
	case errors.Is(err, revocation.ErrUndecodable), errors.Is(err, revocation.ErrNoExpiry):
		h.log.Info("auth.logout.undecodable")
		return
	}

	h.log.Warn("auth.logout.blacklist.fail", "err", err)
	v := h.issuer.Verify(refresh)
	if !v.Valid {
		return
	}
	if err := h.sessions.SetValid(ctx, v.Claims.SessionID, false); err != nil {
		h.log.Error("auth.logout.invalidate.fail", "err", err, "session_id", v.Claims.SessionID)
	}
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Del(resolver.RenewedTokenHeader)
	id, _ := resolver.FromContext(r.Context())
	ctx := r.Context()

	n, err := h.sessions.InvalidateAll(ctx, id.ID)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if refresh := refreshFromCookie(r); refresh != "" {
		h.revoke(ctx, refresh)
	}

	h.log.Info("auth.logout_all.ok", "user_id", id.ID, "sessions", n)
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())

	u, err := h.users.FindIdentity(r.Context(), id.ID)
	if err != nil {
		if identity.IsNotFound(err) {
			httpx.WriteError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())

	var req updateMeRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	upd := req.toUpdate()
	if upd.Empty() {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}

	ctx := r.Context()
	u, err := h.users.UpdateProfile(ctx, id.ID, upd, h.now().UTC())
	if err != nil {
		switch {
		case identity.IsInvalidInput(err):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case identity.IsNotFound(err):
			httpx.WriteError(w, http.StatusUnauthorized, "not_found", "user not found")
		default:
			h.log.Error("auth.me.update.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	// The caller's access credential embeds the old profile; hand out one
	// that matches the stored record.
	tok, _, err := h.issuer.Issue(token.Claims{Identity: u.Snapshot(), SessionID: id.SessionID}, h.issuer.AccessTTL())
	if err != nil {
		h.log.Warn("auth.me.reissue.fail", "err", err)
	} else {
		w.Header().Set(resolver.RenewedTokenHeader, tok)
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}
