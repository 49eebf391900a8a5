package messages

import "errors"

var (
	ErrInvalidInput = errors.New("messages: invalid input")
	ErrEmpty        = errors.New("messages: text or image is required")
	ErrTooLong      = errors.New("messages: text too long")
	ErrSelf         = errors.New("messages: cannot message yourself")
	ErrNotFound     = errors.New("messages: user not found")
)
