package identity

import "errors"

// sentinel errors shared by the service and its store implementations
var (
	// ErrConflict signals a unique-index collision on a generated pseudonym.
	// It marks an expected race; callers retry with a fresh candidate.
	ErrConflict = errors.New("pseudonym conflict")

	// ErrAccountExists signals that a concurrent first login already
	// inserted the account row. The caller falls back to the update path.
	ErrAccountExists = errors.New("account already exists")

	// ErrAllocationExhausted means the retry budget was spent without
	// landing a unique pseudonym. Not expected in normal operation.
	ErrAllocationExhausted = errors.New("pseudonym allocation exhausted")
)
