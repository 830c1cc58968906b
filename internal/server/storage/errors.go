package storage

import "errors"

// Common storage errors
var (
	// ErrTaskNotFound indicates that the task was not found in storage
	ErrTaskNotFound = errors.New("task not found")

	// ErrVersionMismatch indicates that compare-and-swap failed because the
	// stored version differs from the expected one
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrUnavailable indicates that the storage backend cannot be reached.
	// A sync call failing with this error acknowledges nothing and is safe
	// to retry whole-batch.
	ErrUnavailable = errors.New("storage unavailable")
)
