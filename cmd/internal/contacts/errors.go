package contacts

import "errors"

var (
	ErrInvalidInput = errors.New("contacts: invalid input")
	ErrSelf         = errors.New("contacts: cannot add yourself")
	ErrNotFound     = errors.New("contacts: user not found")
	ErrExists       = errors.New("contacts: contact already exists")
	ErrNoRequest    = errors.New("contacts: no pending request")
)
