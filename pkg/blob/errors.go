package blob

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no readable blob exists for an ID.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidState is wrapped by InvalidStateError.
	ErrInvalidState = errors.New("invalid blob state")

	// ErrBusy is returned when a concurrent insert or deletion did not settle
	// within the reinsert wait.
	ErrBusy = errors.New("blob busy")

	// ErrInvalidID is returned for malformed content identifiers.
	ErrInvalidID = errors.New("invalid blob id")

	// ErrTooLarge is returned when a blob exceeds the configured maximum size.
	ErrTooLarge = errors.New("blob too large")

	// ErrSizeMismatch is returned when the stream length differs from the
	// declared length.
	ErrSizeMismatch = errors.New("blob size mismatch")

	// ErrDigestMismatch is returned when digest verification is enabled and
	// the stream does not hash to its ID.
	ErrDigestMismatch = errors.New("blob digest mismatch")

	// ErrBackend is wrapped by BackendError.
	ErrBackend = errors.New("blob backend failure")

	// errDetached tells the store the record it holds has left the registry.
	errDetached = errors.New("record detached from registry")
)

// InvalidStateError reports an operation attempted from a state that does
// not allow it. From and To are the current and requested states.
type InvalidStateError struct {
	Op   string
	ID   ID
	From State
	To   State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: invalid transition %s -> %s", e.Op, e.ID, e.From, e.To)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// BackendError wraps a failure of the physical backend.
type BackendError struct {
	Op      string
	ID      ID
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s on %s backend: %v", e.Op, e.ID, e.Backend, e.Err)
}

// Unwrap exposes both ErrBackend and the underlying cause to errors.Is.
func (e *BackendError) Unwrap() []error {
	return []error{ErrBackend, e.Err}
}

// IsNotFound reports whether err means the blob is not readable.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(id ID) error {
	return fmt.Errorf("%s: %w", id, ErrNotFound)
}
