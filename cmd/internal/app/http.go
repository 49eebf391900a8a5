package app

import (
	"net/http"
	"time"

	authapi "huddle/cmd/internal/auth/api"
	"huddle/cmd/internal/contacts"
	"huddle/cmd/internal/httpx"
	"huddle/cmd/internal/messages"
	"huddle/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type routes struct {
	log Logger
	cfg Config

	db      *pgxpool.Pool
	rdb     *redis.Client
	metrics *prometheus.Registry

	gateway  *realtime.Gateway
	auth     *authapi.Handler
	contacts *contacts.Handler
	messages *messages.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		ready := true

		switch {
		case rt.db != nil:
			if err := PingDB(r.Context(), rt.db, 2*time.Second); err != nil {
				rt.log.Warn("readyz.db.not_ready", "err", err)
				checks["db"], ready = "down", false
			} else {
				checks["db"] = "ok"
			}
		case rt.cfg.ReadinessRequireDB:
			checks["db"], ready = "not_configured", false
		default:
			checks["db"] = "memory"
		}

		if rt.rdb != nil {
			if err := PingRedis(r.Context(), rt.rdb, 2*time.Second); err != nil {
				rt.log.Warn("readyz.redis.not_ready", "err", err)
				checks["redis"], ready = "down", false
			} else {
				checks["redis"] = "ok"
			}
		} else {
			checks["redis"] = "memory"
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, status, map[string]any{"ready": ready, "checks": checks})
	})

	if rt.cfg.MetricsEnabled && rt.metrics != nil {
		mux.Handle("GET /metrics", metricsHandler(rt.metrics))
	}

	rt.auth.Register(mux)
	rt.contacts.Register(mux)
	rt.messages.Register(mux)

	mux.Handle("GET /ws", rt.gateway)
}
