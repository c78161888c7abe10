package store

import "errors"

// Store errors.
var (
	// ErrNotFound indicates no record exists for the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates the code is already used by another record of
	// the same kind.
	ErrConflict = errors.New("record code already in use")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidRecord indicates a record or patch failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidFilter indicates a list filter could not be applied.
	ErrInvalidFilter = errors.New("invalid filter")
)
