package token

import "errors"

var (
	// ErrInvalidKey is returned when PEM data or key type is unusable.
	ErrInvalidKey = errors.New("invalid key")

	// ErrMalformed is returned by Decode when the token cannot be parsed.
	ErrMalformed = errors.New("malformed token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
