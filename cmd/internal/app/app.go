// Package app wires the Huddle server runtime: config, logging, persistence,
// HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	authapi "huddle/cmd/internal/auth/api"
	"huddle/cmd/internal/auth/resolver"
	"huddle/cmd/internal/auth/revocation"
	"huddle/cmd/internal/contacts"
	"huddle/cmd/internal/messages"
	"huddle/cmd/internal/presence"
	"huddle/cmd/internal/realtime"
	"huddle/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// limiterSweepEvery is how often idle per-IP auth limiter buckets are evicted.
const limiterSweepEvery = 5 * time.Minute

// App is the Huddle server runtime. It owns the backends it opened and
// closes them on shutdown.
type App struct {
	cfg Config
	log Logger

	db  *pgxpool.Pool
	rdb *redis.Client
	reg *prometheus.Registry

	presence *presence.Registry
	auth     *authapi.Handler
	handler  http.Handler
}

// New constructs a fully wired App. Postgres and Redis are used when their
// URLs are configured; otherwise everything runs in memory.
func New(ctx context.Context, cfg Config, log Logger) (a *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}
	a = &App{cfg: cfg, log: log, reg: newMetricsRegistry()}
	defer func() {
		if err != nil {
			a.closeBackends()
		}
	}()

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		if a.db, err = NewDBPool(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		if a.rdb, err = NewRedisClient(ctx, cfg.RedisURL); err != nil {
			return nil, err
		}
	}

	hasher, err := newTokenHasher(cfg)
	if err != nil {
		return nil, err
	}
	issuer, err := newIssuer(log)
	if err != nil {
		return nil, err
	}
	st, err := newStores(cfg, a.db, a.rdb,
		revocation.WithHasher(hasher),
		revocation.WithRegisterer(a.reg),
	)
	if err != nil {
		return nil, err
	}

	res, err := resolver.New(issuer, st.sessions, st.revoked, st.users,
		resolver.WithLogger(log.With("component", "resolver")),
		resolver.WithRegisterer(a.reg),
	)
	if err != nil {
		return nil, err
	}

	a.presence = presence.NewRegistry(
		presence.WithOnlineMarker(st.users),
		presence.WithLogger(log.With("component", "presence")),
		presence.WithRegisterer(a.reg),
	)

	wsCfg, err := realtime.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	gateway, err := realtime.NewGateway(log.With("component", "realtime"), a.presence, wsCfg)
	if err != nil {
		return nil, err
	}

	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	a.auth, err = authapi.NewHandler(log.With("component", "auth"), authapi.Deps{
		Users:     st.users,
		Sessions:  st.sessions,
		Revoked:   st.revoked,
		Issuer:    issuer,
		Renewer:   res,
		Passwords: pwCfg,
	}, authCfg, authapi.WithRegisterer(a.reg))
	if err != nil {
		return nil, err
	}

	contactSvc, err := contacts.NewService(st.contacts, st.users, a.presence,
		contacts.WithLogger(log.With("component", "contacts")),
	)
	if err != nil {
		return nil, err
	}
	messageSvc, err := messages.NewService(st.messages, st.users, a.presence,
		messages.WithLogger(log.With("component", "messages")),
		messages.WithRegisterer(a.reg),
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:      log,
		cfg:      cfg,
		db:       a.db,
		rdb:      a.rdb,
		metrics:  a.reg,
		gateway:  gateway,
		auth:     a.auth,
		contacts: contacts.NewHandler(log, contactSvc),
		messages: messages.NewHandler(log, messageSvc),
	})

	a.handler = WithRequestLogging(
		WithSecurityHeaders(
			WithCORS(res.Middleware(mux), cfg, log),
		),
		log,
	)

	log.Info("app.ready",
		"db_enabled", a.db != nil,
		"redis_enabled", a.rdb != nil,
		"token_hmac", hasher.Keyed(),
	)
	return a, nil
}

// Handler returns the fully decorated HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run listens on cfg.HTTPAddr and serves until ctx is cancelled or the
// server fails. Backends are closed before it returns.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.closeBackends()
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer a.closeBackends()

	// Hijacked websocket connections are invisible to Shutdown; cancelling
	// the base context is what ends them.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"url", base,
		"ws_url", wsBaseURL(base)+"/ws",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go a.sweepLimiters(baseCtx)

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	cancelBase()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped", "connections_left", a.presence.Count())
	return nil
}

func (a *App) sweepLimiters(ctx context.Context) {
	t := time.NewTicker(limiterSweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.auth.SweepLimiters(); n > 0 {
				a.log.Debug("auth.limiter.sweep", "evicted", n)
			}
		}
	}
}

func (a *App) closeBackends() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
// Wildcard binds map to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
