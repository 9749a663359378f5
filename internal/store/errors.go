package store

import "errors"

var (
	// ErrSessionNotFound indicates the session record could not be found.
	ErrSessionNotFound = errors.New("session not found")
)
