package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/snapstate/internal/engine"
	"github.com/roach88/snapstate/internal/remote"
	"github.com/roach88/snapstate/internal/state"
	"github.com/roach88/snapstate/internal/value"
)

// Engine is the part of the state engine the queue needs.
type Engine interface {
	Current() state.Snapshot
	Apply(ctx context.Context, u engine.Updater) (state.Snapshot, error)
	PersistNow(ctx context.Context, fields ...state.Field) error
}

// Queue is the durable FIFO of actions awaiting remote confirmation.
//
// Thread-safety: all methods are safe for concurrent use. ReplayAll calls
// never overlap; a second call waits for the first to finish.
type Queue struct {
	eng        Engine
	dispatcher remote.Dispatcher
	ids        IDGenerator
	now        func() time.Time
	logger     *slog.Logger

	replayMu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithIDGenerator overrides the action id source.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) {
		q.ids = g
	}
}

// WithNow overrides the wall clock used for EnqueuedAt.
func WithNow(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// NewQueue creates a Queue that replays through dispatcher.
func NewQueue(eng Engine, dispatcher remote.Dispatcher, opts ...Option) *Queue {
	q := &Queue{
		eng:        eng,
		dispatcher: dispatcher,
		ids:        UUIDv7Generator{},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Pending returns the queued actions in replay order.
func (q *Queue) Pending() []state.PendingAction {
	return q.eng.Current().Pending()
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	return len(q.eng.Current().Pending())
}

// Enqueue appends an action to the queue and writes the pending list to the
// store immediately.
//
// The returned action is committed even when the immediate write fails; in
// that case the PersistenceError is returned alongside it and the debounced
// writer retries with the next commit.
func (q *Queue) Enqueue(ctx context.Context, actionType string, payload value.Object) (state.PendingAction, error) {
	if actionType == "" {
		return state.PendingAction{}, errors.New("enqueue: action type is required")
	}
	if payload == nil {
		payload = value.Object{}
	}

	a := state.PendingAction{
		ID:         q.ids.Generate(),
		Type:       actionType,
		Payload:    payload.Clone(),
		EnqueuedAt: q.now().UTC(),
	}
	key, err := IdempotencyKey(a)
	if err != nil {
		return state.PendingAction{}, fmt.Errorf("enqueue %s: %w", actionType, err)
	}
	a.IdempotencyKey = key

	_, err = q.eng.Apply(ctx, func(cur state.Snapshot) (state.Patch, error) {
		return state.Patch{state.FieldPending: append(cur.Pending(), a)}, nil
	})
	if err != nil {
		return state.PendingAction{}, fmt.Errorf("enqueue %s: %w", actionType, err)
	}

	q.logger.Info("action queued", "id", a.ID, "type", a.Type)

	if err := q.eng.PersistNow(ctx, state.FieldPending); err != nil {
		q.logger.Error("queued action not yet durable", "id", a.ID, "error", err)
		return a, err
	}
	return a, nil
}

// ReplayAll sends queued actions to the remote service in enqueue order.
//
// Each confirmed action is removed by id in its own commit. The first failed
// call halts replay and returns a ReplayError; that action and everything
// queued after it remain, to be retried by the next ReplayAll. Actions
// enqueued while a replay is running are replayed by the same run.
//
// Returns the number of actions confirmed.
func (q *Queue) ReplayAll(ctx context.Context) (int, error) {
	q.replayMu.Lock()
	defer q.replayMu.Unlock()

	replayed := 0
	for {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		pending := q.eng.Current().Pending()
		if len(pending) == 0 {
			break
		}
		a := pending[0]

		callCtx := remote.WithIdempotencyKey(ctx, a.IdempotencyKey)
		if err := q.dispatcher.Call(callCtx, a.Type, a.Payload); err != nil {
			rerr := &ReplayError{ActionID: a.ID, Type: a.Type, Replayed: replayed, Err: err}
			q.logger.Warn("replay halted",
				"error", rerr,
				"id", a.ID,
				"remaining", len(pending))
			return replayed, rerr
		}

		_, err := q.eng.Apply(ctx, func(cur state.Snapshot) (state.Patch, error) {
			return state.Patch{state.FieldPending: state.WithoutAction(cur.Pending(), a.ID)}, nil
		})
		if err != nil {
			return replayed, fmt.Errorf("replay: remove %s: %w", a.ID, err)
		}
		replayed++

		if err := q.eng.PersistNow(ctx, state.FieldPending); err != nil {
			q.logger.Error("replayed action removal not yet durable", "id", a.ID, "error", err)
		}
		q.logger.Debug("action replayed", "id", a.ID, "type", a.Type)
	}

	if replayed > 0 {
		q.logger.Info("replay complete", "replayed", replayed)
	}
	return replayed, nil
}

// SetOnline commits the connectivity flag. When online it replays the queue
// and returns the replay's error, if any: on an offline to online transition,
// and also when the device was already online but actions are still queued,
// as happens for actions restored at startup.
func (q *Queue) SetOnline(ctx context.Context, online bool) error {
	var was bool
	snap, err := q.eng.Apply(ctx, func(cur state.Snapshot) (state.Patch, error) {
		was = cur.Online()
		return state.Patch{state.FieldOnline: online}, nil
	})
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}

	if was != online {
		q.logger.Info("connectivity changed", "online", online)
	}
	if !online {
		return nil
	}
	if was && len(snap.Pending()) == 0 {
		return nil
	}
	_, err = q.ReplayAll(ctx)
	return err
}

// IdempotencyKey derives the action's key from its id, type and payload.
// Replaying the same action always presents the same key.
func IdempotencyKey(a state.PendingAction) (string, error) {
	return value.Digest(value.DomainAction, value.Obj(
		value.P("id", value.String(a.ID)),
		value.P("type", value.String(a.Type)),
		value.P("payload", a.Payload),
	))
}
