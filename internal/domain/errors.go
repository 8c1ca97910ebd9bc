package domain

import "errors"

var (
	// ErrInvalidReading marks input with a missing or non-numeric mandatory
	// field. Nothing is mutated when it is returned.
	ErrInvalidReading = errors.New("invalid reading")

	// ErrUnauthorized is returned for a bad reset credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDownstreamWrite wraps failures of the durable store or the
	// notification sender.
	ErrDownstreamWrite = errors.New("downstream write failed")
)
