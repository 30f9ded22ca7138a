package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidJobState is returned when a job state is not one of the
	// recognized states.
	ErrInvalidJobState = errors.New("invalid job state")

	// ErrInvalidTransition is returned when a job state change is not
	// permitted by the lifecycle rules.
	ErrInvalidTransition = errors.New("invalid job state transition")
)
