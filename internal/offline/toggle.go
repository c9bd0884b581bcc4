package offline

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/snapstate/internal/engine"
	"github.com/roach88/snapstate/internal/remote"
	"github.com/roach88/snapstate/internal/state"
	"github.com/roach88/snapstate/internal/value"
)

// Action types sent for the built-in toggles.
const (
	ActionLike = "like"
	ActionSave = "save"
)

// ToggleResult describes a committed optimistic toggle.
type ToggleResult struct {
	// Member is id's membership after the toggle.
	Member bool

	// Queued is set when the device was offline and the action was queued
	// instead of sent.
	Queued bool

	// Action is the queued action when Queued is set.
	Action state.PendingAction
}

// Toggle flips id's membership in a set-valued field optimistically.
//
// The flip commits first, so subscribers see it before any network traffic.
// Online, the action is then sent; if the call fails, a compensating commit
// restores the prior membership and the failure is returned as a
// *remote.CallError. Offline, the action is queued and nil is returned.
//
// The remote payload is {"id": id, "active": <membership after the flip>}.
//
// ctx bounds the remote call only. The commits always run to completion, so
// a caller that goes away mid-toggle never leaves the flip without its
// rollback or its queued action.
func (q *Queue) Toggle(ctx context.Context, f state.Field, id, actionType string) (ToggleResult, error) {
	commitCtx := context.WithoutCancel(ctx)

	var before bool
	snap, err := q.eng.Apply(commitCtx, engine.Toggle(f, id, &before))
	if err != nil {
		return ToggleResult{}, fmt.Errorf("toggle %s %s: %w", f, id, err)
	}
	after := !before
	payload := value.Obj(
		value.P("id", value.String(id)),
		value.P("active", value.Bool(after)),
	)

	if !snap.Online() {
		a, err := q.Enqueue(commitCtx, actionType, payload)
		if err != nil && a.ID == "" {
			return ToggleResult{Member: after}, err
		}
		return ToggleResult{Member: after, Queued: true, Action: a}, nil
	}

	callErr := q.dispatcher.Call(ctx, actionType, payload)
	if callErr == nil {
		q.logger.Debug("toggle confirmed", "field", f.String(), "id", id, "member", after)
		return ToggleResult{Member: after}, nil
	}

	// Restore the prior membership rather than flipping again, so a toggle
	// that committed in between is not undone twice.
	if _, err := q.eng.Apply(commitCtx, engine.SetMembership(f, id, before)); err != nil {
		q.logger.Error("toggle rollback failed", "field", f.String(), "id", id, "error", err)
		return ToggleResult{Member: after}, errors.Join(asCallError(actionType, callErr), err)
	}
	q.logger.Warn("toggle rolled back",
		"field", f.String(),
		"id", id,
		"member", before,
		"error", callErr)

	return ToggleResult{Member: before}, asCallError(actionType, callErr)
}

// ToggleLike flips id in the liked set.
func (q *Queue) ToggleLike(ctx context.Context, id string) (ToggleResult, error) {
	return q.Toggle(ctx, state.FieldLiked, id, ActionLike)
}

// ToggleSave flips id in the saved set.
func (q *Queue) ToggleSave(ctx context.Context, id string) (ToggleResult, error) {
	return q.Toggle(ctx, state.FieldSaved, id, ActionSave)
}

func asCallError(actionType string, err error) error {
	var ce *remote.CallError
	if errors.As(err, &ce) {
		return err
	}
	return &remote.CallError{Type: actionType, Err: err}
}
