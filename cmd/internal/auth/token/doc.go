// Package token issues and verifies the signed access and refresh credentials.
//
// Both credentials are RS256 JWTs carrying the same payload: an identity
// snapshot and the session id they belong to. Only the expiry differs.
// Verification distinguishes a credential that is merely expired (signature
// and structure intact) from one that cannot be trusted at all; only the
// former may lead to a silent renewal.
package token
