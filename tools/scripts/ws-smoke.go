// Package main provides a CI-friendly end-to-end smoke test against a running
// Huddle server.
//
// It validates:
//   - signup for two fresh accounts
//   - handshake + subprotocol selection + hello.ack
//   - ping -> pong
//   - typing relay between the two accounts
//   - REST send -> newMessage push to the receiver
//   - history fetch
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type account struct {
	name   string
	id     string
	access string
}

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		text    = flag.String("text", "hello huddle 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}

	root := context.Background()
	suffix := time.Now().UnixNano()

	a := mustSignup(root, base, "A", fmt.Sprintf("smoke-a-%d@example.com", suffix), *timeout)
	b := mustSignup(root, base, "B", fmt.Sprintf("smoke-b-%d@example.com", suffix), *timeout)
	if *verbose {
		fmt.Printf("signed up: A=%s B=%s\n", a.id, b.id)
	}

	ca := mustConnect(root, a, wsURL(base), *origin, *timeout)
	defer closeWS(ca.conn)
	cb := mustConnect(root, b, wsURL(base), *origin, *timeout)
	defer closeWS(cb.conn)

	mustWriteWithTimeout(root, ca.conn, envelope(v1.TypePing, nil), *timeout)
	ca.mustReadUntilType(root, v1.TypePong, *timeout)

	mustWriteWithTimeout(root, ca.conn, envelope(v1.TypeTyping, v1.TypingSendPayload{ReceiverID: b.id, IsTyping: true}), *timeout)
	typing := cb.mustReadUntilType(root, v1.TypeTyping, *timeout)
	var tp v1.TypingPayload
	mustUnmarshal(typing.Payload, &tp, "typing")
	if tp.UserID != a.id || !tp.IsTyping {
		fatalf("typing mismatch: %+v", tp)
	}

	var sent struct {
		Message   v1.MessagePayload `json:"message"`
		Delivered bool              `json:"delivered"`
	}
	mustCall(root, base, http.MethodPost, "/api/messages/send/"+b.id, a.access, map[string]string{"text": *text}, http.StatusCreated, &sent, *timeout)
	if !sent.Delivered {
		fatalf("send: receiver connected but delivered=false")
	}

	pushed := cb.mustReadUntilType(root, v1.TypeNewMessage, *timeout)
	var mp v1.MessagePayload
	mustUnmarshal(pushed.Payload, &mp, "newMessage")
	if mp.ID != sent.Message.ID || mp.Text != *text || mp.SenderID != a.id {
		fatalf("newMessage mismatch: got=%+v want=%+v", mp, sent.Message)
	}

	var history []v1.MessagePayload
	mustCall(root, base, http.MethodGet, "/api/messages/"+a.id, b.access, nil, http.StatusOK, &history, *timeout)
	if len(history) == 0 || history[len(history)-1].ID != sent.Message.ID {
		fatalf("history missing sent message (%d entries)", len(history))
	}

	fmt.Printf("OK: A=%s B=%s message_id=%s\n", a.id, b.id, sent.Message.ID)
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func wsURL(base *url.URL) string {
	u := *base
	u.Scheme = map[string]string{"http": "ws", "https": "wss"}[base.Scheme]
	u.Path = "/ws"
	return u.String()
}

func mustSignup(parent context.Context, base *url.URL, name, email string, stepTimeout time.Duration) account {
	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		AccessToken string `json:"access_token"`
	}
	mustCall(parent, base, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":     email,
		"full_name": "Smoke " + name,
		"password":  "smoke-test-" + name + "-passphrase",
	}, http.StatusCreated, &out, stepTimeout)

	if out.User.ID == "" || out.AccessToken == "" {
		fatalf("signup %s: incomplete response", name)
	}
	return account{name: name, id: out.User.ID, access: out.AccessToken}
}

func mustCall(parent context.Context, base *url.URL, method, path, access string, body any, want int, out any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(mustJSON(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, base.String()+path, rdr)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode != want {
		fatalf("%s %s: status=%d want=%d body=%s", method, path, resp.StatusCode, want, raw)
	}
	if out != nil {
		mustUnmarshal(raw, out, method+" "+path)
	}
}

func mustConnect(parent context.Context, acc account, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+acc.access)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", acc.name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  acc.name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout)
	var p v1.HelloAckPayload
	mustUnmarshal(ack.Payload, &p, "hello.ack")
	if p.UserID != acc.id || strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello.ack mismatch (%s): %+v", acc.name, p)
	}
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if env.V != v1.Version {
				c.fail(fmt.Errorf("bad envelope version: %q", env.V))
				return
			}
			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustReadUntilType skips unrelated frames (presence notifications and the like).
func (c *smokeClient) mustReadUntilType(parent context.Context, typ string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %s (%s)", typ, c.name)
		case err := <-c.errCh:
			fatalf("read %s: %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed waiting for %s (%s)", typ, c.name)
			}
			if env.Type == v1.TypeError {
				fatalf("server error frame (%s): %s", c.name, env.Payload)
			}
			if env.Type == typ {
				return env
			}
		}
	}
}

func envelope(typ string, payload any) v1.Envelope {
	env := v1.Envelope{V: v1.Version, Type: typ, TS: time.Now().UTC()}
	if payload != nil {
		env.Payload = mustJSON(payload)
	}
	return env
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, mustJSON(env)); err != nil {
		fatalf("write %s: %v", env.Type, err)
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	return b
}

func mustUnmarshal(data []byte, v any, what string) {
	if err := json.Unmarshal(data, v); err != nil {
		fatalf("unmarshal %s: %v", what, err)
	}
}

func closeWS(conn *websocket.Conn) {
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
