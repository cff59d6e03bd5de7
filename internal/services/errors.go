package services

import "errors"

// Engine error taxonomy. Callers branch with errors.Is; details are
// attached by wrapping with fmt.Errorf("%w: ...").
var (
	// ErrValidation covers malformed definitions and out-of-shape input,
	// rejected before anything is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrLocked marks structural edits attempted after grading has started
	// and writes against records that have left an editable status.
	ErrLocked = errors.New("record locked")

	// ErrOutOfRange marks a raw score outside [0, max] that no grace
	// allowance covers.
	ErrOutOfRange = errors.New("marks out of range")

	// ErrConcurrentModification signals a stale-state transition attempt.
	// Retryable by the caller; the engine never retries internally.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrCapability signals a missing approval capability. Not retryable.
	ErrCapability = errors.New("capability required")

	ErrNotFound = errors.New("not found")
)
