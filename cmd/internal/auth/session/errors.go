package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session has the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidInput is returned for empty identity ids.
	ErrInvalidInput = errors.New("invalid session input")
)
