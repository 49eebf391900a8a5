package resolver

import "errors"

// Reasons a request ends up without an identity. They are recorded on Result
// and in logs; none of them is ever returned to a handler.
var (
	ErrSignatureInvalid          = errors.New("credential signature or structure invalid")
	ErrExpired                   = errors.New("credential expired")
	ErrRevoked                   = errors.New("refresh credential revoked")
	ErrSessionInvalid            = errors.New("session missing or invalid")
	ErrIdentitySourceUnavailable = errors.New("identity source unavailable")
	ErrRevocationUnavailable     = errors.New("revocation store unavailable")
)
