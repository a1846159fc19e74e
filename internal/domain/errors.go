package domain

import "errors"

// Error kinds for the request boundary. Services wrap these with
// fmt.Errorf("%w: ...") so callers classify with errors.Is while keeping a
// human-readable message. Store failures that match none of them propagate
// as internal errors.
var (
	// ErrNotFound is returned when a quiz, event, participant or attempt is missing.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned for illegal state transitions and uniqueness races.
	ErrConflict = errors.New("conflict")
	// ErrForbidden is returned when the caller lacks host/owner/admin privilege.
	ErrForbidden = errors.New("forbidden")

	// ErrJoinCodeTaken signals a join-code uniqueness collision on event
	// creation; the generator redraws and retries. It never escapes the
	// create path.
	ErrJoinCodeTaken = errors.New("join code already in use")
)
