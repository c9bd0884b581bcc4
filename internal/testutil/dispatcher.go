package testutil

import (
	"context"
	"sync"

	"github.com/roach88/snapstate/internal/value"
)

// Call is one recorded remote call.
type Call struct {
	Type    string
	Payload value.Object
}

// RecordingDispatcher records every remote call and fails the ones named in
// Fail. It satisfies remote.Dispatcher.
//
// Thread-safety: All methods are safe for concurrent use.
type RecordingDispatcher struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

// NewRecordingDispatcher creates a dispatcher where every call succeeds.
func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{fail: make(map[string]error)}
}

// FailOn makes calls whose payload "id" equals id return err.
// A nil err clears the failure.
func (d *RecordingDispatcher) FailOn(id string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, id)
		return
	}
	d.fail[id] = err
}

// Call records the call and returns the configured failure, if any.
func (d *RecordingDispatcher) Call(_ context.Context, actionType string, payload value.Object) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, Call{Type: actionType, Payload: payload.Clone()})
	if id, ok := payload["id"].(value.String); ok {
		if err, fail := d.fail[string(id)]; fail {
			return err
		}
	}
	return nil
}

// Calls returns the recorded calls in order.
func (d *RecordingDispatcher) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// IDs returns the payload "id" of every recorded call, in order.
func (d *RecordingDispatcher) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		id, _ := c.Payload["id"].(value.String)
		out = append(out, string(id))
	}
	return out
}
