package generation

import "errors"

// Common errors returned by generation backends
var (
	// ErrInvalidResponse is returned when the backend response is malformed,
	// empty, or implausibly short. Permanent: retrying the same request is
	// expected to produce the same defect.
	ErrInvalidResponse = errors.New("invalid response from generation backend")

	// ErrContentBlocked is returned when the backend blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by generation backend safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during guide generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// IsPermanent reports whether the error should not be retried: the job
// moves to its failure path instead of burning further attempts.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrInvalidConfig)
}
