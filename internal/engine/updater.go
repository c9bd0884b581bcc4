package engine

import (
	"github.com/roach88/snapstate/internal/state"
)

// Updater computes the candidate fields of the next snapshot from the current
// one. It must be pure: it runs on the mutation loop and may be called with
// any committed snapshot.
//
// Returning an error rejects the mutation and leaves state unchanged.
type Updater func(cur state.Snapshot) (state.Patch, error)

// Replace returns an Updater that ignores the current snapshot and applies p.
func Replace(p state.Patch) Updater {
	return func(state.Snapshot) (state.Patch, error) {
		return p, nil
	}
}

// Set returns an Updater that replaces a single field.
func Set(f state.Field, v any) Updater {
	return Replace(state.Patch{f: v})
}

// Toggle returns an Updater that flips id's membership in a set-valued field.
// The membership before the flip is written to *before when the updater runs.
func Toggle(f state.Field, id string, before *bool) Updater {
	return func(cur state.Snapshot) (state.Patch, error) {
		set, ok := cur.Membership(f)
		if !ok {
			return nil, &StateValidationError{Field: f, Reason: "not a set-valued field"}
		}
		was := set.Has(id)
		if before != nil {
			*before = was
		}
		return state.Patch{f: set.WithMembership(id, !was)}, nil
	}
}

// SetMembership returns an Updater that forces id's membership in f.
func SetMembership(f state.Field, id string, member bool) Updater {
	return func(cur state.Snapshot) (state.Patch, error) {
		set, ok := cur.Membership(f)
		if !ok {
			return nil, &StateValidationError{Field: f, Reason: "not a set-valued field"}
		}
		return state.Patch{f: set.WithMembership(id, member)}, nil
	}
}
