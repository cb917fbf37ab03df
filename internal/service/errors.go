package service

import "errors"

var (
	// ErrValidation is returned for malformed or missing request fields
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyPaid is returned when payment is recorded twice for the
	// same submission. The first recording wins; retries are rejected.
	ErrAlreadyPaid = errors.New("submission already paid")

	// ErrNotApproved is returned when payment is attempted against a
	// submission that never reached the approved state
	ErrNotApproved = errors.New("submission not approved")
)
