package store

import "errors"

var (
	// ErrNotFound is returned when a room or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a room code is already taken.
	ErrConflict = errors.New("conflict")
)
