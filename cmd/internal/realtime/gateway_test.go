package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/resolver"
	"huddle/cmd/internal/auth/revocation"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/auth/token"
	"huddle/cmd/internal/auth/token/tokentest"
	"huddle/cmd/internal/presence"
	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

type harness struct {
	srv      *httptest.Server
	registry *presence.Registry
	users    *identity.MemoryStore
	issuer   *token.Issuer
	sessions *session.MemoryStore
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		users:    identity.NewMemoryStore(),
		sessions: session.NewMemoryStore(nil),
		issuer:   tokentest.NewIssuer(t, nil),
	}
	h.registry = presence.NewRegistry(presence.WithOnlineMarker(h.users))

	res, err := resolver.New(h.issuer, h.sessions, revocation.NewMemoryStore(), h.users)
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}

	cfg := DefaultConfig()
	cfg.OriginRequired = false
	if mutate != nil {
		mutate(&cfg)
	}
	gw, err := NewGateway(nil, h.registry, cfg)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	h.srv = httptest.NewServer(res.Middleware(gw))
	t.Cleanup(h.srv.Close)
	return h
}

// login creates a user with a session and returns its id and access token.
func (h *harness) login(t *testing.T, email string) (string, string) {
	t.Helper()
	ctx := context.Background()

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{Email: email, FullName: email, PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	sess, err := h.sessions.Create(ctx, u.ID, "test")
	if err != nil {
		t.Fatalf("session Create: %v", err)
	}
	pair, err := h.issuer.IssuePair(u.Snapshot(), sess.ID)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	return u.ID, pair.AccessToken
}

func (h *harness) dial(t *testing.T, access string, hdr http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	if hdr == nil {
		hdr = http.Header{}
	}
	if access != "" {
		hdr.Set("Authorization", "Bearer "+access)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   hdr,
	})
	if conn != nil {
		t.Cleanup(func() { _ = conn.CloseNow() })
	}
	return conn, resp, err
}

func readEnv(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func writeEnv(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, _ := json.Marshal(payload)
	b, _ := json.Marshal(v1.Envelope{V: v1.Version, Type: typ, Payload: raw})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGateway_RejectsAnonymous(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, resp, err := h.dial(t, "", nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.OriginRequired = true })
	_, access := h.login(t, "o@example.com")

	_, resp, err := h.dial(t, access, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestGateway_HelloTypingPing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	aliceID, aliceTok := h.login(t, "alice@example.com")
	bobID, bobTok := h.login(t, "bob@example.com")

	alice, _, err := h.dial(t, aliceTok, nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	bob, _, err := h.dial(t, bobTok, nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}

	for _, c := range []struct {
		conn *websocket.Conn
		id   string
	}{{alice, aliceID}, {bob, bobID}} {
		env := readEnv(t, c.conn)
		var ack v1.HelloAckPayload
		_ = json.Unmarshal(env.Payload, &ack)
		if env.Type != v1.TypeHelloAck || ack.UserID != c.id || ack.SessionID == "" {
			t.Fatalf("unexpected hello: %+v %+v", env, ack)
		}
	}

	u, err := h.users.FindIdentity(context.Background(), aliceID)
	if err != nil || !u.IsOnline {
		t.Fatalf("alice should be marked online: %+v %v", u, err)
	}

	writeEnv(t, alice, v1.TypeTyping, v1.TypingSendPayload{ReceiverID: bobID, IsTyping: true})
	env := readEnv(t, bob)
	var typing v1.TypingPayload
	_ = json.Unmarshal(env.Payload, &typing)
	if env.Type != v1.TypeTyping || typing.UserID != aliceID || !typing.IsTyping {
		t.Fatalf("bob got %+v %+v", env, typing)
	}

	writeEnv(t, alice, v1.TypePing, struct{}{})
	if env := readEnv(t, alice); env.Type != v1.TypePong {
		t.Fatalf("expected pong, got %s", env.Type)
	}

	writeEnv(t, alice, v1.TypeTyping, v1.TypingSendPayload{ReceiverID: aliceID})
	if env := readEnv(t, alice); env.Type != v1.TypeError {
		t.Fatalf("expected error for self typing, got %s", env.Type)
	}

	writeEnv(t, alice, v1.TypeNewMessage, struct{}{})
	if env := readEnv(t, alice); env.Type != v1.TypeError {
		t.Fatalf("expected error for client-sent newMessage, got %s", env.Type)
	}

	// REST-side relay reaches the live connection.
	if !h.registry.Relay(bobID, v1.TypeNewMessage, v1.MessagePayload{ID: "m1", SenderID: aliceID, ReceiverID: bobID, Text: "hi"}) {
		t.Fatalf("relay to connected bob should deliver")
	}
	if env := readEnv(t, bob); env.Type != v1.TypeNewMessage {
		t.Fatalf("expected newMessage, got %s", env.Type)
	}

	_ = bob.Close(websocket.StatusNormalClosure, "done")
	waitFor(t, "bob marked offline", func() bool {
		u, _ := h.users.FindIdentity(context.Background(), bobID)
		return !u.IsOnline && u.LastSeen != nil
	})
	if h.registry.Online(bobID) || h.registry.Relay(bobID, v1.TypeNewMessage, nil) {
		t.Fatalf("bob must be unreachable after disconnect")
	}
}

func TestGateway_NewConnectionReplacesOld(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	id, tok := h.login(t, "carol@example.com")

	first, _, err := h.dial(t, tok, nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	readEnv(t, first)
	ch1, _ := h.registry.Lookup(id)

	second, _, err := h.dial(t, tok, nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	readEnv(t, second)
	ch2, _ := h.registry.Lookup(id)
	if ch1.ID() == ch2.ID() {
		t.Fatalf("second connection should replace the first")
	}

	// The server ends the old connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, _, err := first.Read(ctx)
		if err == nil {
			continue
		}
		if got := websocket.CloseStatus(err); got != StatusReplaced {
			t.Fatalf("old connection close status = %v (err %v), want %v", got, err, StatusReplaced)
		}
		break
	}

	// The replacement stays registered and served.
	cur, ok := h.registry.Lookup(id)
	if !ok || cur.ID() != ch2.ID() {
		t.Fatalf("closing the old connection removed the new registration")
	}
	writeEnv(t, second, v1.TypePing, struct{}{})
	if env := readEnv(t, second); env.Type != v1.TypePong {
		t.Fatalf("second connection: got %s, want pong", env.Type)
	}
}

func TestGateway_RateLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) {
		c.RateEvents = 3
		c.RateWindow = time.Minute
	})
	_, tok := h.login(t, "dave@example.com")

	conn, _, err := h.dial(t, tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readEnv(t, conn)

	for i := 0; i < 3; i++ {
		writeEnv(t, conn, v1.TypePing, struct{}{})
		if env := readEnv(t, conn); env.Type != v1.TypePong {
			t.Fatalf("ping %d: got %s", i, env.Type)
		}
	}
	writeEnv(t, conn, v1.TypePing, struct{}{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
				t.Fatalf("expected policy violation close, got %v", err)
			}
			return
		}
	}
}

func readTyping(t *testing.T, conn *websocket.Conn) v1.TypingPayload {
	t.Helper()
	env := readEnv(t, conn)
	if env.Type != v1.TypeTyping {
		t.Fatalf("expected typing, got %s", env.Type)
	}
	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode typing: %v", err)
	}
	return p
}

func TestGateway_TypingExpiresWithoutRefresh(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.TypingExpiry = 50 * time.Millisecond })
	aliceID, aliceTok := h.login(t, "alice@example.com")
	bobID, bobTok := h.login(t, "bob@example.com")

	alice, _, err := h.dial(t, aliceTok, nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	bob, _, err := h.dial(t, bobTok, nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	readEnv(t, alice)
	readEnv(t, bob)

	writeEnv(t, alice, v1.TypeTyping, v1.TypingSendPayload{ReceiverID: bobID, IsTyping: true})
	if p := readTyping(t, bob); p.UserID != aliceID || !p.IsTyping {
		t.Fatalf("first indicator = %+v", p)
	}
	if p := readTyping(t, bob); p.UserID != aliceID || p.IsTyping {
		t.Fatalf("expiry indicator = %+v", p)
	}
}

func TestGateway_TypingClearedOnDisconnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.TypingExpiry = time.Minute })
	aliceID, aliceTok := h.login(t, "alice@example.com")
	bobID, bobTok := h.login(t, "bob@example.com")

	alice, _, err := h.dial(t, aliceTok, nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	bob, _, err := h.dial(t, bobTok, nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	readEnv(t, alice)
	readEnv(t, bob)

	writeEnv(t, alice, v1.TypeTyping, v1.TypingSendPayload{ReceiverID: bobID, IsTyping: true})
	if p := readTyping(t, bob); !p.IsTyping {
		t.Fatalf("first indicator = %+v", p)
	}

	_ = alice.Close(websocket.StatusNormalClosure, "gone")
	if p := readTyping(t, bob); p.UserID != aliceID || p.IsTyping {
		t.Fatalf("disconnect must clear the indicator, got %+v", p)
	}
}

func TestGateway_TypingExplicitStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.TypingExpiry = time.Minute })
	_, aliceTok := h.login(t, "alice@example.com")
	bobID, bobTok := h.login(t, "bob@example.com")

	alice, _, err := h.dial(t, aliceTok, nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	bob, _, err := h.dial(t, bobTok, nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	readEnv(t, alice)
	readEnv(t, bob)

	writeEnv(t, alice, v1.TypeTyping, v1.TypingSendPayload{ReceiverID: bobID, IsTyping: true})
	readTyping(t, bob)
	writeEnv(t, alice, v1.TypeTyping, v1.TypingSendPayload{ReceiverID: bobID, IsTyping: false})
	if p := readTyping(t, bob); p.IsTyping {
		t.Fatalf("explicit stop not relayed: %+v", p)
	}
	// Stopping again with nothing pending still reaches the receiver.
	writeEnv(t, alice, v1.TypeTyping, v1.TypingSendPayload{ReceiverID: bobID, IsTyping: false})
	if p := readTyping(t, bob); p.IsTyping {
		t.Fatalf("repeat stop not relayed: %+v", p)
	}
}
