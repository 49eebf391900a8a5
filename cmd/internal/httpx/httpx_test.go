package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                   "",
		"Bearer abc":         "abc",
		"bearer   abc  ":     "abc",
		"Basic dXNlcjpwYXNz": "",
		"Bearer":             "",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := BearerToken(r); got != want {
			t.Fatalf("BearerToken(%q)=%q want %q", header, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := ClientIP(r, false); got.String() != "10.0.0.1" {
		t.Fatalf("untrusted proxy: got %v", got)
	}
	if got := ClientIP(r, true); got.String() != "203.0.113.9" {
		t.Fatalf("trusted proxy: got %v", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		Name string `json:"name"`
	}
	cases := []struct {
		in      string
		wantErr bool
	}{
		{`{"name":"x"}`, false},
		{`{"name":"x"}{"name":"y"}`, true},
		{`{"name":"x","extra":1}`, true},
		{``, true},
		{`{"name":"` + strings.Repeat("a", 100) + `"}`, true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.in))
		w := httptest.NewRecorder()
		var dst body
		err := DecodeJSON(w, r, 64, &dst)
		if (err != nil) != tc.wantErr {
			t.Fatalf("DecodeJSON(%q) err=%v wantErr=%v", tc.in, err, tc.wantErr)
		}
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(httptest.NewRecorder(), r, 0, &body{}); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestWriteRateLimited(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	WriteRateLimited(w, 1500*time.Millisecond)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After=%q want 2", got)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Error.Code != "rate_limited" {
		t.Fatalf("body=%s err=%v", w.Body.String(), err)
	}
}
