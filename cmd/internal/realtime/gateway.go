// Package realtime is the WebSocket transport. Each authenticated connection
// becomes the presence channel of its identity; inbound typing events are
// relayed to their receiver.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"huddle/cmd/internal/auth/resolver"
	"huddle/cmd/internal/httpx"
	"huddle/cmd/internal/presence"
	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

// Presence is the registry surface the gateway drives.
type Presence interface {
	Connect(ctx context.Context, identityID string, ch presence.Channel)
	Disconnect(ctx context.Context, ch presence.Channel) bool
	Relay(identityID, event string, payload any) bool
}

// Gateway is the WebSocket entrypoint. It expects resolver.Middleware to run
// before it so the caller identity is already on the request context.
type Gateway struct {
	log      *slog.Logger
	presence Presence
	cfg      Config
	patterns []string
}

// NewGateway constructs a gateway.
func NewGateway(log *slog.Logger, p Presence, cfg Config) (*Gateway, error) {
	if p == nil {
		return nil, errors.New("realtime: nil presence")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.SendQueueSize < minSendQueueSize {
		cfg.SendQueueSize = minSendQueueSize
	}
	if cfg.RateEvents <= 0 || cfg.RateWindow <= 0 {
		cfg.RateEvents, cfg.RateWindow = rateLimitEvents, rateLimitWindow
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = presence.TypingQuietWindow
	}
	return &Gateway{log: log, presence: p, cfg: cfg, patterns: originPatterns(cfg.AllowedOrigins)}, nil
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := resolver.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.patterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	connID, err := NewConnID(time.Now().UTC())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "id")
		return
	}
	g.serve(r.Context(), conn, NewClient(connID, id.ID, id.SessionID, g.cfg.SendQueueSize))
}

func (g *Gateway) serve(parent context.Context, conn *websocket.Conn, client *Client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := g.log.With("conn", client.ConnID, "user_id", client.UserID)

	g.presence.Connect(ctx, client.UserID, client)
	log.Info("ws.connect")

	var closeOnce sync.Once
	// shutdown is idempotent. Unregistering happens before the client closes
	// so the registry never hands out a dead channel for long.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.presence.Disconnect(context.WithoutCancel(ctx), client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			log.Info("ws.disconnect", "reason", reason)
		})
	}

	// The registry closes a client once a newer connection replaces it.
	// Any other client close comes from shutdown itself and is a no-op here.
	go func() {
		select {
		case <-ctx.Done():
		case <-client.Done():
			shutdown(StatusReplaced, "replaced")
		}
	}()

	ack, _ := json.Marshal(v1.HelloAckPayload{SessionID: client.SessionID, UserID: client.UserID})
	client.Send(v1.TypeHelloAck, ack)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.queue:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, client, log, shutdown)
	}()

	limiter := rate.NewLimiter(rate.Every(g.cfg.RateWindow/time.Duration(g.cfg.RateEvents)), g.cfg.RateEvents)
	typing := newTypingRelay(g, client.UserID)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.sendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !limiter.Allow() {
			g.sendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.sendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeTyping:
			if err := g.onTyping(client, typing, env); err != nil {
				g.sendError(client, "typing_failed", err.Error())
			}
		case v1.TypePing:
			pong, _ := json.Marshal(v1.PongPayload{ServerTS: time.Now().UTC()})
			client.Send(v1.TypePong, pong)
		default:
			g.sendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	typing.stopAll()
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client, log *slog.Logger, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()

			if err == nil {
				failures = 0
				continue
			}
			failures++
			log.Info("ws.ping.fail", "failures", failures, "err", err)
			if failures >= maxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (g *Gateway) onTyping(client *Client, typing *typingRelay, env v1.Envelope) error {
	var p v1.TypingSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	to := strings.TrimSpace(p.ReceiverID)
	if to == "" {
		return errors.New("missing receiver_id")
	}
	if to == client.UserID {
		return errors.New("cannot type to yourself")
	}
	typing.update(to, p.IsTyping)
	return nil
}

func (g *Gateway) sendError(client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	client.Send(v1.TypeError, p)
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, errBadJSON{err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return "bad json: " + e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
