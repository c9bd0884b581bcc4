package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/snapstate/internal/state"
)

// DefaultDebounce is the quiet period before dirty fields are written.
const DefaultDebounce = 250 * time.Millisecond

// Persistence is the durable key/value store the engine writes persisted
// fields to. Keys are namespaced field names (see state.Key); values are the
// field's JSON encoding.
type Persistence interface {
	// Read returns the stored bytes for key. ok is false when key is absent.
	Read(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Write replaces the stored bytes for key.
	Write(ctx context.Context, key string, data []byte) error
}

// persister coalesces bursts of commits into one write per dirty field.
//
// Each commit marks its changed persisted fields dirty and re-arms the timer.
// When the timer fires, the latest committed value of every dirty field is
// written, so only the final value of a burst reaches the store.
//
// The engine is assumed to be the only writer of its namespace: a field whose
// encoding hashes the same as the last stored bytes is not written again.
type persister struct {
	mu      sync.Mutex
	dirty   map[state.Field]struct{}
	timer   *time.Timer
	window  time.Duration
	closed  bool
	firing  int        // timer writes in progress; guarded by mu
	idle    *sync.Cond // signalled when firing drops to zero
	writeMu sync.Mutex // serializes writes to the store
	stored  map[string]uint64

	store     Persistence
	namespace string
	current   func() state.Snapshot
	logger    *slog.Logger
}

func newPersister(store Persistence, namespace string, window time.Duration, current func() state.Snapshot, logger *slog.Logger) *persister {
	p := &persister{
		dirty:     make(map[state.Field]struct{}),
		stored:    make(map[string]uint64),
		window:    window,
		store:     store,
		namespace: namespace,
		current:   current,
		logger:    logger,
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// mark records fields as dirty and restarts the debounce window.
// Non-persisted fields are ignored.
func (p *persister) mark(fields []state.Field) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	added := false
	for _, f := range fields {
		if !persisted(f) {
			continue
		}
		p.dirty[f] = struct{}{}
		added = true
	}
	if !added {
		return
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.window, p.fire)
}

// fire is called when the debounce window expires.
func (p *persister) fire() {
	p.mu.Lock()
	if len(p.dirty) == 0 {
		p.timer = nil
		p.mu.Unlock()
		return
	}
	fields := p.takeLocked()
	p.timer = nil
	p.firing++
	p.mu.Unlock()

	// Background write: failures are logged only.
	_ = p.write(context.Background(), fields)

	p.mu.Lock()
	p.firing--
	if p.firing == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

// Flush writes all dirty fields now and blocks until done, including a timer
// write that had already taken its fields.
func (p *persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	fields := p.takeLocked()
	p.mu.Unlock()

	err := p.write(ctx, fields)

	p.mu.Lock()
	for p.firing > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
	return err
}

// Close stops accepting new writes and flushes pending ones. When it returns
// no write is in progress and no timer is armed.
func (p *persister) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Flush(ctx)
}

// writeNow writes fields immediately, clearing them from the dirty set.
func (p *persister) writeNow(ctx context.Context, fields []state.Field) error {
	p.mu.Lock()
	for _, f := range fields {
		delete(p.dirty, f)
	}
	p.mu.Unlock()

	return p.write(ctx, fields)
}

// remember records data as the stored value of key.
func (p *persister) remember(key string, data []byte) {
	p.writeMu.Lock()
	p.stored[key] = xxhash.Sum64(data)
	p.writeMu.Unlock()
}

// takeLocked empties the dirty set, returning fields in declaration order.
// Caller must hold p.mu.
func (p *persister) takeLocked() []state.Field {
	out := make([]state.Field, 0, len(p.dirty))
	for _, f := range state.Fields {
		if _, ok := p.dirty[f]; ok {
			out = append(out, f)
		}
	}
	clear(p.dirty)
	return out
}

// write encodes each field from the latest snapshot and stores it.
// Every field is attempted; the first error is returned.
func (p *persister) write(ctx context.Context, fields []state.Field) error {
	if len(fields) == 0 {
		return nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	snap := p.current()
	var first error
	for _, f := range fields {
		key := state.Key(p.namespace, f)
		data, err := state.EncodeField(snap, f)
		if err != nil {
			perr := &PersistenceError{Op: "encode", Key: key, Err: err}
			p.logger.Error("persist field failed", "error", perr, "field", f.String())
			if first == nil {
				first = perr
			}
			continue
		}

		sum := xxhash.Sum64(data)
		if last, ok := p.stored[key]; ok && last == sum {
			p.logger.Debug("persist skipped: unchanged", "field", f.String())
			continue
		}

		if err := p.store.Write(ctx, key, data); err != nil {
			perr := &PersistenceError{Op: "write", Key: key, Err: err}
			p.logger.Error("persist field failed", "error", perr, "field", f.String())
			if first == nil {
				first = perr
			}
			continue
		}
		p.stored[key] = sum
		p.logger.Debug("persisted field", "field", f.String(), "version", snap.Version(), "bytes", len(data))
	}
	return first
}

func persisted(f state.Field) bool {
	for _, pf := range state.PersistedFields {
		if pf == f {
			return true
		}
	}
	return false
}
