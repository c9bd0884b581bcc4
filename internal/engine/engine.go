package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/snapstate/internal/state"
)

// DefaultNamespace prefixes every persisted key.
const DefaultNamespace = "snapstate:"

// Engine is the single-writer application-state engine.
//
// CRITICAL: All commits happen in the Run loop goroutine.
// External callers use Submit() or Apply() to request changes.
//
// Thread-safety model:
//   - Submit(), Apply(), Current(), History(), Subscribe(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Load(): must be called before Run()
//
// INVARIANTS:
//   - Mutations commit in submission order
//   - A rejected mutation never changes the current snapshot
//   - Snapshot versions strictly increase with each commit
type Engine struct {
	mu      sync.RWMutex
	current state.Snapshot
	history *state.History

	queue    *mutationQueue
	clock    *Clock
	now      func() time.Time
	registry *Registry
	running  atomic.Bool

	store     Persistence
	namespace string
	debounce  time.Duration
	persister *persister

	historyLimit int
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryLimit bounds the number of retained commits.
//
// Default: 50 (state.DefaultHistoryLimit)
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.historyLimit = n
	}
}

// WithNamespace sets the prefix of persisted keys.
//
// Default: "snapstate:"
func WithNamespace(ns string) Option {
	return func(e *Engine) {
		e.namespace = ns
	}
}

// WithPersistence enables debounced durable writes of persisted fields.
func WithPersistence(p Persistence) Option {
	return func(e *Engine) {
		e.store = p
	}
}

// WithDebounce sets the quiet period before dirty fields are written.
//
// Default: 250ms (DefaultDebounce)
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// WithNow overrides the wall clock used for history timestamps.
// Tests use testutil.FakeClock.Now.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine holding state.Default().
func New(opts ...Option) *Engine {
	e := &Engine{
		current:      state.Default(),
		queue:        newMutationQueue(),
		clock:        NewClock(),
		now:          time.Now,
		namespace:    DefaultNamespace,
		debounce:     DefaultDebounce,
		historyLimit: state.DefaultHistoryLimit,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.history = state.NewHistory(e.historyLimit)
	e.registry = NewRegistry(e.logger)
	if e.store != nil {
		e.persister = newPersister(e.store, e.namespace, e.debounce, e.Current, e.logger)
	}

	return e
}

// Namespace returns the persisted key prefix.
func (e *Engine) Namespace() string {
	return e.namespace
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Current returns the most recently committed snapshot.
func (e *Engine) Current() state.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// History returns the retained commits, oldest first.
func (e *Engine) History() []state.HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.Entries()
}

// Subscribe registers cb for topic. See Registry.Subscribe.
func (e *Engine) Subscribe(topic Topic, cb Callback) func() {
	return e.registry.Subscribe(topic, cb)
}

// Subscribers returns the number of subscribers for topic.
func (e *Engine) Subscribers(topic Topic) int {
	return e.registry.Len(topic)
}

// Pending returns the number of queued, not yet committed, mutations.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Load restores persisted fields from the store into the current snapshot.
//
// Missing keys keep their defaults. A field that fails to read, decode or
// validate is logged and skipped; the remaining fields still load. Restoring
// commits one snapshot but neither notifies subscribers nor re-persists.
//
// Must be called before Run.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if e.running.Load() {
		return errors.New("engine: Load called while running")
	}

	patch := make(state.Patch)
	for _, f := range state.PersistedFields {
		key := state.Key(e.namespace, f)
		data, ok, err := e.store.Read(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("restore field skipped",
				"error", &PersistenceError{Op: "read", Key: key, Err: err},
				"field", f.String())
			continue
		}
		if !ok {
			continue
		}

		v, err := state.DecodeField(f, data)
		if err == nil {
			err = (state.Patch{f: v}).Validate()
		}
		if err != nil {
			e.logger.Warn("restore field skipped",
				"error", &PersistenceError{Op: "decode", Key: key, Err: err},
				"field", f.String())
			continue
		}
		patch[f] = v
		e.persister.remember(key, data)
	}

	if len(patch) == 0 {
		return nil
	}

	e.mu.Lock()
	prev := e.current
	seq := e.clock.Next()
	e.current = prev.Merge(patch, seq)
	e.history.Append(state.HistoryEntry{
		Seq:       seq,
		Timestamp: e.now(),
		Previous:  prev,
		Current:   e.current,
		Changed:   state.Diff(prev, e.current),
	})
	e.mu.Unlock()

	e.logger.Info("state restored", "fields", len(patch), "version", seq)
	return nil
}

// Submit queues u and returns a Future for its outcome.
// Thread-safe: may be called from any goroutine, including from updaters and
// subscriber callbacks. Those must not Wait on the future: the loop that would
// resolve it is the one running them.
//
// After shutdown the returned future is already resolved with ErrStopped.
func (e *Engine) Submit(u Updater) *Future {
	m := &mutation{updater: u, future: newFuture()}
	if !e.queue.Enqueue(m) {
		m.future.resolve(state.Snapshot{}, ErrStopped)
	}
	return m.future
}

// Apply submits u and waits for it to commit.
func (e *Engine) Apply(ctx context.Context, u Updater) (state.Snapshot, error) {
	return e.Submit(u).Wait(ctx)
}

// Run starts the single-writer mutation loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// On Stop the loop first commits everything already queued. On cancellation
// queued mutations are rejected with ErrStopped. Either way dirty fields are
// flushed to the store before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: Run called twice")
	}
	e.logger.Info("engine starting", "version", e.Current().Version())

	for {
		if ctx.Err() != nil {
			return e.abort(ctx)
		}

		// Try non-blocking dequeue first
		m, ok := e.queue.TryDequeue()
		if ok {
			e.commit(m)
			continue
		}

		// No mutation ready - wait for signal or context cancellation
		select {
		case <-ctx.Done():
			return e.abort(ctx)

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which will cause this case to fire immediately
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				e.shutdown()
				return nil
			}
		}
	}
}

// Stop stops accepting mutations. Run commits what is already queued, then
// returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Flush writes every dirty persisted field now.
func (e *Engine) Flush(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	return e.persister.Flush(ctx)
}

// PersistNow writes fields immediately, bypassing the debounce window.
// With no fields, every persisted field is written.
//
// Unlike background writes, the first failure is returned.
func (e *Engine) PersistNow(ctx context.Context, fields ...state.Field) error {
	if e.persister == nil {
		return nil
	}
	if len(fields) == 0 {
		fields = state.PersistedFields
	}
	return e.persister.writeNow(ctx, fields)
}

// abort rejects everything still queued and shuts down.
func (e *Engine) abort(ctx context.Context) error {
	e.logger.Info("engine stopping: context cancelled")
	rejected := e.queue.Drain()
	for _, m := range rejected {
		m.future.resolve(state.Snapshot{}, ErrStopped)
	}
	if len(rejected) > 0 {
		e.logger.Warn("queued mutations rejected", "count", len(rejected))
	}
	e.shutdown()
	return ctx.Err()
}

func (e *Engine) shutdown() {
	if e.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.persister.Close(ctx); err != nil {
		e.logger.Error("final flush failed", "error", err)
	}
}

// commit runs one mutation to completion.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) commit(m *mutation) {
	prev := e.Current()

	patch, err := runUpdater(m.updater, prev)
	if err == nil {
		err = patch.Validate()
	}
	if err != nil {
		verr := validationFailure(err)
		e.logger.Warn("mutation rejected", "error", verr, "version", prev.Version())
		m.future.resolve(prev, verr)
		return
	}

	seq := e.clock.Next()
	next := prev.Merge(patch, seq)
	changed := state.Diff(prev, next)

	e.mu.Lock()
	e.current = next
	e.history.Append(state.HistoryEntry{
		Seq:       seq,
		Timestamp: e.now(),
		Previous:  prev,
		Current:   next,
		Changed:   changed,
	})
	e.mu.Unlock()

	e.logger.Debug("mutation committed",
		"seq", seq,
		"changed", fieldNames(changed),
	)

	e.registry.Notify(seq, prev, next, changed)

	if e.persister != nil {
		e.persister.mark(changed)
	}

	m.future.resolve(next, nil)
}

// runUpdater calls u, converting a panic into an error.
func runUpdater(u Updater, cur state.Snapshot) (p state.Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("updater panic: %v", r)
		}
	}()
	if u == nil {
		return nil, errors.New("nil updater")
	}
	return u(cur)
}

func fieldNames(fields []state.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}
