package repository

import "errors"

var (
	// ErrNotFound is returned when no submission exists for the given id
	ErrNotFound = errors.New("submission not found")

	// ErrStatusConflict is returned when a conditional status update loses:
	// the record exists but its status no longer matches the expected one
	ErrStatusConflict = errors.New("submission status conflict")

	// ErrInvalidCursor is returned for pagination cursors that fail to decode
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)
