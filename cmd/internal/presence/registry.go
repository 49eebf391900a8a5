// Package presence tracks which identities hold a live realtime connection
// and pushes targeted events to them.
//
// The registry is process-local and best-effort. A restart forgets every
// entry, and a push to an identity that is not connected is simply dropped.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"huddle/cmd/identity"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Channel is a live connection able to receive events.
type Channel interface {
	// ID identifies this connection, distinct from the identity owning it.
	ID() string

	// Send enqueues an event without blocking and reports whether it was accepted.
	Send(event string, payload json.RawMessage) bool

	// Close tells the connection to end. It is called on a channel that has
	// been replaced by a newer one and must be idempotent.
	Close()
}

// Registry maps identity id to its current channel. At most one channel is
// held per identity; a newer connection replaces the older one.
type Registry struct {
	entries cmap.ConcurrentMap[string, Channel]
	owners  cmap.ConcurrentMap[string, string]

	online  identity.OnlineMarker
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration

	connected prometheus.Gauge
	relayed   *prometheus.CounterVec
}

// Option configures a Registry.
type Option func(*Registry)

// WithOnlineMarker keeps the durable online flag in step with connections.
func WithOnlineMarker(m identity.OnlineMarker) Option {
	return func(r *Registry) { r.online = m }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the time recorded as last seen.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegisterer registers presence metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		if reg != nil {
			reg.MustRegister(r.connected, r.relayed)
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: cmap.New[Channel](),
		owners:  cmap.New[string](),
		log:     slog.New(slog.DiscardHandler),
		now:     time.Now,
		timeout: 5 * time.Second,
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle",
			Subsystem: "presence",
			Name:      "connected_identities",
			Help:      "Identities with a registered realtime channel.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Subsystem: "presence",
			Name:      "relay_total",
			Help:      "Relay attempts by event and result (delivered, offline, dropped, encode_error).",
		}, []string{"event", "result"}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Connect registers ch for identityID, replacing any previous channel.
func (r *Registry) Connect(ctx context.Context, identityID string, ch Channel) {
	if identityID == "" || ch == nil {
		return
	}
	r.owners.Set(ch.ID(), identityID)

	var replaced Channel
	r.entries.Upsert(identityID, ch, func(exist bool, old, nw Channel) Channel {
		if exist {
			replaced = old
		}
		return nw
	})

	if replaced == nil {
		r.connected.Inc()
	} else if replaced.ID() != ch.ID() {
		r.owners.Remove(replaced.ID())
		replaced.Close()
		r.log.DebugContext(ctx, "presence.replace", "user_id", identityID, "old_conn", replaced.ID(), "new_conn", ch.ID())
	}
	r.log.DebugContext(ctx, "presence.connect", "user_id", identityID, "conn", ch.ID())

	r.markOnline(ctx, identityID, true)
}

// Disconnect removes ch if it is still the current channel of its owner and
// reports whether it did. A late disconnect of a replaced channel is a no-op.
func (r *Registry) Disconnect(ctx context.Context, ch Channel) bool {
	if ch == nil {
		return false
	}
	owner, ok := r.owners.Pop(ch.ID())
	if !ok {
		return false
	}

	removed := r.entries.RemoveCb(owner, func(_ string, cur Channel, exists bool) bool {
		return exists && cur.ID() == ch.ID()
	})
	if !removed {
		return false
	}

	r.connected.Dec()
	r.log.DebugContext(ctx, "presence.disconnect", "user_id", owner, "conn", ch.ID())
	r.markOnline(ctx, owner, false)
	return true
}

// Lookup returns the current channel of identityID.
func (r *Registry) Lookup(identityID string) (Channel, bool) {
	return r.entries.Get(identityID)
}

// Online reports whether identityID currently has a channel.
func (r *Registry) Online(identityID string) bool {
	return r.entries.Has(identityID)
}

// Count returns the number of connected identities.
func (r *Registry) Count() int {
	return r.entries.Count()
}

// Relay pushes event to the current channel of identityID and reports
// whether the channel accepted it. It never queues, retries or persists.
func (r *Registry) Relay(identityID, event string, payload any) bool {
	ch, ok := r.entries.Get(identityID)
	if !ok {
		r.relayed.WithLabelValues(event, "offline").Inc()
		return false
	}

	raw, err := encode(payload)
	if err != nil {
		r.relayed.WithLabelValues(event, "encode_error").Inc()
		r.log.Error("presence.relay.encode.fail", "event", event, "err", err)
		return false
	}

	if !ch.Send(event, raw) {
		r.relayed.WithLabelValues(event, "dropped").Inc()
		return false
	}
	r.relayed.WithLabelValues(event, "delivered").Inc()
	return true
}

func encode(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// markOnline is best-effort: failures are logged, never returned.
func (r *Registry) markOnline(ctx context.Context, identityID string, online bool) {
	if r.online == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.online.SetOnline(ctx, identityID, online, r.now().UTC()); err != nil {
		r.log.WarnContext(ctx, "presence.online.mark.fail", "user_id", identityID, "online", online, "err", err)
	}
}
