package model

import "errors"

var (
	// ErrNotFound signals a miss on any lookup. Implementations may also
	// return (nil, nil); the engine treats both the same way.
	ErrNotFound = errors.New("not found")
	// ErrNotImplemented is returned by adapters for operations their
	// backend cannot support.
	ErrNotImplemented = errors.New("not implemented")
)
