package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrCardNotFound, ErrGuideNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrCardNotFound indicates that the requested card does not exist in the store.
	ErrCardNotFound = fmt.Errorf("%w: card", ErrNotFound)

	// ErrGuideNotFound indicates that the requested guide does not exist in the store.
	ErrGuideNotFound = fmt.Errorf("%w: guide", ErrNotFound)

	// ErrJobNotFound indicates that the requested analysis job does not exist in the store.
	ErrJobNotFound = fmt.Errorf("%w: analysis job", ErrNotFound)

	// Backlog protocol errors

	// ErrJobAlreadyExists is returned by Enqueue when a job for the card
	// already exists in a state that does not permit re-enqueueing.
	ErrJobAlreadyExists = fmt.Errorf("%w: analysis job", ErrDuplicate)

	// ErrNoJobAvailable signals that no pending job and no expired-lease
	// claimed job qualifies for claiming. It is an empty-result signal,
	// not a failure.
	ErrNoJobAvailable = errors.New("no job available")

	// ErrNotJobOwner is returned when a worker attempts to renew, submit,
	// or fail a job it does not currently hold. This is the benign
	// lost-the-race outcome: the late writer must lose.
	ErrNotJobOwner = errors.New("worker does not own job claim")

	// ErrJobAlreadyDone is returned when a submit targets a job already in
	// the done state. Callers retrying a submit after a network timeout
	// treat this as success.
	ErrJobAlreadyDone = errors.New("job already done")
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
