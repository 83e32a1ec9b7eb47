// internal/apperr/errors.go
package apperr

import "errors"

// Sentinel errors shared by the core packages. Specific failures wrap one of these
// with fmt.Errorf("...: %w", ...) so callers can classify them with errors.Is.
var (
	// ErrNotFound indicates a session, participant, target, challenge or pool is absent.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a privileged action by a non-owner or a bad password.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates the request is incompatible with the current state.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation error")

	// ErrPoolExhausted indicates an object pool has fewer distinct names than requested.
	ErrPoolExhausted = errors.New("object pool exhausted")
)

// Kind returns the sentinel err wraps, or nil for unclassified (internal) errors.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrUnauthorized, ErrConflict, ErrValidation, ErrPoolExhausted} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
