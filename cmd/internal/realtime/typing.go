package realtime

import (
	"huddle/cmd/internal/presence"
	v1 "huddle/shared/contracts/realtime/v1"
)

// typingRelay forwards one connection's typing indicators. An indicator that
// is not refreshed within TypingExpiry is turned off for the receiver, and
// every indicator still on is turned off when the connection ends.
//
// It is owned by the connection's read loop; only the debouncer timers run
// elsewhere, and they touch nothing but the presence registry.
type typingRelay struct {
	g      *Gateway
	from   string
	active map[string]*presence.TypingDebouncer
}

func newTypingRelay(g *Gateway, from string) *typingRelay {
	return &typingRelay{g: g, from: from, active: make(map[string]*presence.TypingDebouncer)}
}

func (t *typingRelay) update(to string, isTyping bool) {
	d, ok := t.active[to]
	if !isTyping {
		if ok {
			d.Stop()
			delete(t.active, to)
			return
		}
		// Best effort: an offline receiver simply misses the indicator.
		t.send(to, false)
		return
	}
	if !ok {
		d = presence.NewTypingDebouncer(t.g.cfg.TypingExpiry, func(on bool) { t.send(to, on) })
		t.active[to] = d
	}
	d.Keystroke()
}

func (t *typingRelay) stopAll() {
	for to, d := range t.active {
		d.Stop()
		delete(t.active, to)
	}
}

func (t *typingRelay) send(to string, on bool) {
	t.g.presence.Relay(to, v1.TypeTyping, v1.TypingPayload{UserID: t.from, IsTyping: on})
}
