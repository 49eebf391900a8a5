package contacts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/resolver"
)

func serve(t *testing.T, h *Handler, as *identity.User, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	return serveBody(t, h, as, method, path, "")
}

func serveBody(t *testing.T, h *Handler, as *identity.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rd)
	if as != nil {
		r = r.WithContext(resolver.WithIdentity(r.Context(), resolver.Identity{Snapshot: as.Snapshot(), SessionID: "s"}))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestHandler_Flow(t *testing.T) {
	t.Parallel()
	users := identity.NewMemoryStore()
	alice, bob := mkUser(t, users, "alice@example.com"), mkUser(t, users, "bob@example.com")
	svc, _ := NewService(NewMemoryStore(), users, newFakePresence())
	h := NewHandler(nil, svc)

	if w := serve(t, h, nil, http.MethodGet, "/api/contacts"); w.Code != http.StatusForbidden {
		t.Fatalf("anonymous list: %d", w.Code)
	}

	w := serve(t, h, &alice, http.MethodPost, "/api/contacts/"+bob.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	if w := serve(t, h, &alice, http.MethodPost, "/api/contacts/"+bob.ID); w.Code != http.StatusConflict {
		t.Fatalf("duplicate add: %d", w.Code)
	}
	if w := serve(t, h, &alice, http.MethodPost, "/api/contacts/"+alice.ID); w.Code != http.StatusBadRequest {
		t.Fatalf("self add: %d", w.Code)
	}
	if w := serve(t, h, &alice, http.MethodPost, "/api/contacts/nobody"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown add: %d", w.Code)
	}

	w = serve(t, h, &bob, http.MethodGet, "/api/contacts/requests")
	var reqs []entryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &reqs)
	if w.Code != http.StatusOK || len(reqs) != 1 || reqs[0].UserID != alice.ID {
		t.Fatalf("requests: %d %s", w.Code, w.Body.String())
	}

	if w := serve(t, h, &alice, http.MethodPost, "/api/contacts/"+bob.ID+"/accept"); w.Code != http.StatusNotFound {
		t.Fatalf("accepting own request: %d", w.Code)
	}
	if w := serve(t, h, &bob, http.MethodPost, "/api/contacts/"+alice.ID+"/accept"); w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}

	w = serve(t, h, &alice, http.MethodGet, "/api/contacts")
	var list []entryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].UserID != bob.ID || list[0].Email != "bob@example.com" {
		t.Fatalf("list: %s", w.Body.String())
	}
}

func TestHandler_AddByEmail(t *testing.T) {
	t.Parallel()
	users := identity.NewMemoryStore()
	alice, bob := mkUser(t, users, "alice@example.com"), mkUser(t, users, "bob@example.com")
	p := newFakePresence()
	svc, _ := NewService(NewMemoryStore(), users, p)
	h := NewHandler(nil, svc)

	if w := serveBody(t, h, nil, http.MethodPost, "/api/contacts", `{"email":"bob@example.com"}`); w.Code != http.StatusForbidden {
		t.Fatalf("anonymous add: %d", w.Code)
	}

	w := serveBody(t, h, &alice, http.MethodPost, "/api/contacts", `{"email":"BOB@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add by email: %d %s", w.Code, w.Body.String())
	}
	var got contactResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ContactID != bob.ID || got.Status != StatusPending {
		t.Fatalf("unexpected contact: %+v", got)
	}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"duplicate", `{"email":"bob@example.com"}`, http.StatusConflict},
		{"self", `{"email":"alice@example.com"}`, http.StatusBadRequest},
		{"unknown", `{"email":"ghost@example.com"}`, http.StatusNotFound},
		{"malformed", `{"email":"nope"}`, http.StatusBadRequest},
		{"unknown field", `{"id":"x"}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := serveBody(t, h, &alice, http.MethodPost, "/api/contacts", tc.body); w.Code != tc.want {
			t.Fatalf("%s: %d %s", tc.name, w.Code, w.Body.String())
		}
	}
	if len(p.sent) != 1 {
		t.Fatalf("relays = %d, want 1", len(p.sent))
	}
}
