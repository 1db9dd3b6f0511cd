package identity

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("identity: not found")
	// ErrConflict indicates a uniqueness or referential constraint
	// violation reported by the store.
	ErrConflict = errors.New("identity: constraint violation")
)
