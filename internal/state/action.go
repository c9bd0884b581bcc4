package state

import (
	"slices"
	"time"

	"github.com/roach88/snapstate/internal/value"
)

// PendingAction is an action that must eventually reach the remote service.
// Actions are replayed strictly in enqueue order.
type PendingAction struct {
	ID             string       `json:"id"`
	Type           string       `json:"type"`
	Payload        value.Object `json:"payload"`
	EnqueuedAt     time.Time    `json:"enqueued_at"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

// Equal compares every field; payloads structurally.
func (a PendingAction) Equal(o PendingAction) bool {
	return a.ID == o.ID &&
		a.Type == o.Type &&
		a.EnqueuedAt.Equal(o.EnqueuedAt) &&
		a.IdempotencyKey == o.IdempotencyKey &&
		value.EqualObjects(a.Payload, o.Payload)
}

// EqualActions compares two pending lists element-wise, in order.
func EqualActions(a, b []PendingAction) bool {
	return slices.EqualFunc(a, b, PendingAction.Equal)
}

// WithoutAction returns a copy of list without the action whose ID is id.
func WithoutAction(list []PendingAction, id string) []PendingAction {
	out := make([]PendingAction, 0, len(list))
	for _, a := range list {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
