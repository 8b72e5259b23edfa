package common

import "errors"

var (
	// ErrSourceUnavailable marks a document whose text could not be read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrStoreUnavailable marks a graph store that could not be reached or
	// rejected a query.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound marks a lookup for a key that does not exist.
	ErrNotFound = errors.New("not found")
)
