package storage

import "errors"

var (
	// ErrInvalidBackend is returned when an invalid backend type is specified
	ErrInvalidBackend = errors.New("invalid storage backend")

	// ErrNotFound is returned when nothing has been persisted for a key
	ErrNotFound = errors.New("not found")

	// ErrUnknownKey is returned when a backend has no slot for a key
	ErrUnknownKey = errors.New("unknown storage key")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed is returned when connection to storage fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrCorrupt is returned when persisted data cannot be parsed
	ErrCorrupt = errors.New("corrupt stored value")

	// ErrClosed is returned when attempting to use a closed storage
	ErrClosed = errors.New("storage is closed")
)
