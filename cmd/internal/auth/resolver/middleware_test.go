package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"huddle/cmd/identity"
)

// whoami echoes the resolved identity.
func whoami(w http.ResponseWriter, r *http.Request) {
	id, _ := FromContext(r.Context())
	_ = json.NewEncoder(w).Encode(id)
}

func request(access, refresh string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	if access != "" {
		r.Header.Set("Authorization", "Bearer "+access)
	}
	if refresh != "" {
		r.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: refresh})
	}
	return r
}

func TestMiddleware_SilentRenewalAfterOneDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := f.r.Middleware(RequireIdentityFunc(whoami))

	// The profile changes after the credentials were minted.
	name := "Xavier Renamed"
	if _, err := f.users.UpdateProfile(context.Background(), f.user.ID, identity.ProfileUpdate{FullName: &name}, f.clock.Now()); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	f.clock.Advance(24*time.Hour + time.Second)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(f.pair.AccessToken, f.pair.RefreshToken))

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	renewed := w.Header().Get(RenewedTokenHeader)
	if renewed == "" {
		t.Fatalf("missing %s header", RenewedTokenHeader)
	}
	var got Identity
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != f.user.ID || got.FullName != name || got.SessionID != f.sess.ID {
		t.Fatalf("identity=%+v want fresh profile of %s", got, f.user.ID)
	}

	// The renewed credential works on its own.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, request(renewed, ""))
	if w.Code != http.StatusOK || w.Header().Get(RenewedTokenHeader) != "" {
		t.Fatalf("renewed token rejected: status=%d", w.Code)
	}
}

func TestMiddleware_LoggedOutRefreshIsForbidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := f.r.Middleware(RequireIdentityFunc(whoami))

	if err := f.revoked.Blacklist(context.Background(), f.pair.RefreshToken); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	f.clock.Advance(24*time.Hour + time.Second)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(f.pair.AccessToken, f.pair.RefreshToken))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d want 403", w.Code)
	}
	if w.Header().Get(RenewedTokenHeader) != "" {
		t.Fatalf("revoked refresh must not renew")
	}
}

func TestMiddleware_AlwaysCallsNext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	called := 0
	h := f.r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		if _, ok := FromContext(r.Context()); ok {
			t.Fatalf("no identity expected")
		}
	}))

	for _, r := range []*http.Request{request("", ""), request("junk", "junk"), request("junk", "")} {
		h.ServeHTTP(httptest.NewRecorder(), r)
	}
	if called != 3 {
		t.Fatalf("next called %d times, want 3", called)
	}
}

func TestCredentialsFrom_WebSocketQueryToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/ws?access_token=abc", nil)
	if got := CredentialsFrom(r).AccessToken; got != "" {
		t.Fatalf("query token honored on plain request: %q", got)
	}
	r.Header.Set("Upgrade", "websocket")
	if got := CredentialsFrom(r).AccessToken; got != "abc" {
		t.Fatalf("query token ignored on upgrade: %q", got)
	}
	r.Header.Set("Authorization", "Bearer hdr")
	if got := CredentialsFrom(r).AccessToken; got != "hdr" {
		t.Fatalf("header must win: %q", got)
	}
}
