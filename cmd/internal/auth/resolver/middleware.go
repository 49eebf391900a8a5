package resolver

import (
	"net/http"
	"strings"

	"huddle/cmd/internal/httpx"
)

const (
	// RefreshCookieName carries the refresh credential.
	RefreshCookieName = "refreshToken"

	// RenewedTokenHeader carries a silently renewed access credential.
	RenewedTokenHeader = "x-access-token"

	// accessTokenQueryParam lets browser WebSocket clients, which cannot set
	// headers, present the access credential.
	accessTokenQueryParam = "access_token"
)

// CredentialsFrom pulls the raw credentials off a request.
func CredentialsFrom(r *http.Request) Input {
	in := Input{AccessToken: httpx.BearerToken(r)}
	if in.AccessToken == "" && isWebSocketUpgrade(r) {
		in.AccessToken = strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam))
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		in.RefreshToken = strings.TrimSpace(c.Value)
	}
	return in
}

// Middleware resolves the caller, attaches any identity to the request
// context, publishes a renewed access credential in RenewedTokenHeader, and
// always calls next.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		res := r.Resolve(req.Context(), CredentialsFrom(req))

		if res.RenewedAccessToken != "" {
			w.Header().Set(RenewedTokenHeader, res.RenewedAccessToken)
		}
		if res.Identity != nil {
			req = req.WithContext(WithIdentity(req.Context(), *res.Identity))
		}
		next.ServeHTTP(w, req)
	})
}

// RequireIdentity rejects requests without an attached identity with 403.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentityFunc is RequireIdentity for handler functions.
func RequireIdentityFunc(next http.HandlerFunc) http.Handler {
	return RequireIdentity(next)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
