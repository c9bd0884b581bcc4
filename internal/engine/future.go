package engine

import (
	"context"

	"github.com/roach88/snapstate/internal/state"
)

// Future is the pending outcome of a submitted mutation.
//
// Cancellation is not supported: once submitted, the mutation runs and the
// future resolves. A context passed to Wait only bounds how long the caller
// waits.
type Future struct {
	done chan struct{}
	snap state.Snapshot
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve is called exactly once, from the Run loop (or on shutdown).
func (f *Future) resolve(snap state.Snapshot, err error) {
	f.snap = snap
	f.err = err
	close(f.done)
}

// Done is closed once the mutation committed or was rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the mutation resolves or ctx is done.
// On success it returns the committed snapshot.
func (f *Future) Wait(ctx context.Context) (state.Snapshot, error) {
	select {
	case <-f.done:
		return f.snap, f.err
	case <-ctx.Done():
		return state.Snapshot{}, ctx.Err()
	}
}
