package offline

import (
	"errors"
	"fmt"
)

// ReplayError reports the queued action whose remote call halted a replay.
// The action and every action after it are still queued.
type ReplayError struct {
	ActionID string
	Type     string

	// Replayed is the number of actions confirmed before the failure.
	Replayed int

	Err error
}

// Error implements the error interface.
func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay halted at %s (%s) after %d: %v", e.ActionID, e.Type, e.Replayed, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReplayError) Unwrap() error {
	return e.Err
}

// IsReplayError returns true if err is a ReplayError.
// Uses errors.As to handle wrapped errors.
func IsReplayError(err error) bool {
	var re *ReplayError
	return errors.As(err, &re)
}
