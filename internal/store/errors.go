package store

import "errors"

var (
	// ErrNotFound is returned when no record matches the given identifier
	// or filter.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned when an identifier is not a valid ObjectID.
	ErrInvalidID = errors.New("invalid id")

	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("duplicate key")
)
