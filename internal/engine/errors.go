package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/snapstate/internal/state"
)

// ErrStopped is returned for mutations submitted after shutdown, and for
// mutations still queued when the Run loop's context is cancelled.
var ErrStopped = errors.New("engine stopped")

// StateValidationError reports a mutation rejected because a candidate field
// failed the fixed schema, or because the updater itself failed.
//
// The current snapshot is unchanged when this error is returned.
type StateValidationError struct {
	// Field identifies the offending field. Zero when the updater failed
	// before producing a patch.
	Field state.Field

	// Reason is a human-readable description.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *StateValidationError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("state validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("state validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *StateValidationError) Unwrap() error {
	return e.Err
}

// SubscriberError reports a callback that failed or panicked during
// notification. It is logged, never returned to the mutation's submitter.
type SubscriberError struct {
	Topic Topic
	Seq   int64
	Err   error
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %s failed at seq=%d: %v", e.Topic, e.Seq, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed durable read or write.
// Background writes log it; PersistNow returns it.
type PersistenceError struct {
	// Op is "read", "write", "encode" or "decode".
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is a StateValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *StateValidationError
	return errors.As(err, &ve)
}

// IsSubscriberError returns true if err is a SubscriberError.
func IsSubscriberError(err error) bool {
	var se *SubscriberError
	return errors.As(err, &se)
}

// IsPersistenceError returns true if err is a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// validationFailure converts an updater or schema failure into a
// StateValidationError, keeping an existing one as-is.
func validationFailure(err error) *StateValidationError {
	var ve *StateValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var fe *state.ValidationError
	if errors.As(err, &fe) {
		return &StateValidationError{Field: fe.Field, Reason: fe.Reason, Err: err}
	}
	return &StateValidationError{Reason: err.Error(), Err: err}
}
