package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"huddle/cmd/identity"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type sent struct {
	event   string
	payload json.RawMessage
}

type fakeChannel struct {
	id     string
	mu     sync.Mutex
	got    []sent
	refuse bool
	closed int
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Send(event string, payload json.RawMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refuse {
		return false
	}
	c.got = append(c.got, sent{event, payload})
	return true
}

func (c *fakeChannel) received() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.got...)
}

type markCall struct {
	id     string
	online bool
}

type fakeMarker struct {
	mu    sync.Mutex
	calls []markCall
	err   error
}

func (m *fakeMarker) SetOnline(_ context.Context, id string, online bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, markCall{id, online})
	return m.err
}

var _ identity.OnlineMarker = (*fakeMarker)(nil)

func TestRegistry_LastWriterWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry()
	a := &fakeChannel{id: "conn-a"}
	b := &fakeChannel{id: "conn-b"}

	r.Connect(ctx, "u1", a)
	r.Connect(ctx, "u1", b)

	got, ok := r.Lookup("u1")
	if !ok || got.ID() != "conn-b" {
		t.Fatalf("Lookup=%v,%v want conn-b", got, ok)
	}
	if r.Count() != 1 {
		t.Fatalf("Count=%d want 1", r.Count())
	}
	if n := a.closeCount(); n != 1 {
		t.Fatalf("replaced channel closed %d times, want 1", n)
	}
	if n := b.closeCount(); n != 0 {
		t.Fatalf("current channel closed %d times, want 0", n)
	}

	// Reconnecting the same channel does not close it.
	r.Connect(ctx, "u1", b)
	if n := b.closeCount(); n != 0 {
		t.Fatalf("re-registered channel was closed")
	}

	// The late disconnect of A must not remove B.
	if r.Disconnect(ctx, a) {
		t.Fatalf("Disconnect(a) must be a no-op")
	}
	got, ok = r.Lookup("u1")
	if !ok || got.ID() != "conn-b" {
		t.Fatalf("B was removed by A's disconnect")
	}

	if !r.Disconnect(ctx, b) {
		t.Fatalf("Disconnect(b) should remove")
	}
	if r.Online("u1") || r.Count() != 0 {
		t.Fatalf("u1 should be offline")
	}
	if r.Disconnect(ctx, b) {
		t.Fatalf("second Disconnect(b) must be a no-op")
	}
}

func TestRegistry_RelayOffline(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	marker := &fakeMarker{}
	r := NewRegistry(WithRegisterer(reg), WithOnlineMarker(marker))

	if r.Relay("nobody", "newMessage", map[string]string{"text": "hi"}) {
		t.Fatalf("relay to absent identity must report false")
	}
	if r.Count() != 0 || len(marker.calls) != 0 {
		t.Fatalf("relay must have no side effects")
	}
	if v := testutil.ToFloat64(r.relayed.WithLabelValues("newMessage", "offline")); v != 1 {
		t.Fatalf("offline counter=%v", v)
	}
}

func TestRegistry_RelayDelivers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry()
	a := &fakeChannel{id: "conn-a"}
	r.Connect(ctx, "u1", a)

	if !r.Relay("u1", "typing", map[string]any{"user_id": "u2", "is_typing": true}) {
		t.Fatalf("relay should deliver")
	}
	got := a.received()
	if len(got) != 1 || got[0].event != "typing" || string(got[0].payload) != `{"is_typing":true,"user_id":"u2"}` {
		t.Fatalf("received=%+v", got)
	}

	if !r.Relay("u1", "ping", nil) || string(a.received()[1].payload) != `{}` {
		t.Fatalf("nil payload should encode as {}")
	}

	a.refuse = true
	if r.Relay("u1", "typing", json.RawMessage(`{}`)) {
		t.Fatalf("full channel must report false")
	}
	if r.Relay("u1", "bad", func() {}) {
		t.Fatalf("unencodable payload must report false")
	}
}

func TestRegistry_OnlineMarker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	marker := &fakeMarker{}
	r := NewRegistry(WithOnlineMarker(marker))
	a := &fakeChannel{id: "conn-a"}
	b := &fakeChannel{id: "conn-b"}

	r.Connect(ctx, "u1", a)
	r.Connect(ctx, "u1", b)
	r.Disconnect(ctx, a)
	r.Disconnect(ctx, b)

	want := []markCall{{"u1", true}, {"u1", true}, {"u1", false}}
	if fmt.Sprint(marker.calls) != fmt.Sprint(want) {
		t.Fatalf("calls=%v want %v", marker.calls, want)
	}
}

func TestRegistry_MarkerFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry(WithOnlineMarker(&fakeMarker{err: errors.New("db down")}))
	a := &fakeChannel{id: "conn-a"}

	r.Connect(ctx, "u1", a)
	if !r.Online("u1") {
		t.Fatalf("connect must succeed when the marker fails")
	}
	if !r.Disconnect(ctx, a) {
		t.Fatalf("disconnect must succeed when the marker fails")
	}
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	r := NewRegistry(WithRegisterer(reg))

	const identities, conns = 16, 50
	var wg sync.WaitGroup
	for i := 0; i < identities; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			for j := 0; j < conns; j++ {
				ch := &fakeChannel{id: fmt.Sprintf("%s-c%d", id, j)}
				r.Connect(ctx, id, ch)
				r.Relay(id, "typing", nil)
				if j%2 == 0 {
					r.Disconnect(ctx, ch)
				}
			}
		}(i)
	}
	wg.Wait()

	// The last connection of every identity (odd j) is still registered.
	if r.Count() != identities {
		t.Fatalf("Count=%d want %d", r.Count(), identities)
	}
	if v := testutil.ToFloat64(r.connected); v != identities {
		t.Fatalf("gauge=%v want %d", v, identities)
	}
}
