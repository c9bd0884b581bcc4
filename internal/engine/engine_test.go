package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snapstate/internal/state"
	"github.com/roach88/snapstate/internal/value"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startEngine runs e in the background and stops it when the test ends.
func startEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Run(ctx)
	}()
	t.Cleanup(func() {
		e.Stop()
		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Error("engine did not stop")
		}
		cancel()
	})
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	startEngine(t, e)
	return e
}

func TestEngine_New_Defaults(t *testing.T) {
	e := New()

	cur := e.Current()
	assert.Equal(t, int64(0), cur.Version())
	assert.True(t, cur.Online())
	assert.Equal(t, 0, cur.Liked().Len())
	assert.Equal(t, DefaultNamespace, e.Namespace())
	assert.Empty(t, e.History())
}

func TestEngine_Apply_Commits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	snap, err := e.Apply(ctx, Set(state.FieldLiked, state.NewSet("v1")))
	require.NoError(t, err)

	assert.Equal(t, int64(1), snap.Version())
	assert.True(t, snap.Liked().Has("v1"))
	assert.Equal(t, snap.Version(), e.Current().Version())
}

func TestEngine_VersionsStrictlyIncrease(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		snap, err := e.Apply(ctx, Set(state.FieldOnline, i%2 == 0))
		require.NoError(t, err)
		assert.Greater(t, snap.Version(), last)
		last = snap.Version()
	}
}

func TestEngine_SubmissionOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Each updater checks it observes its predecessor's commit.
	const n = 50
	futures := make([]*Future, n)
	for i := 0; i < n; i++ {
		i := i
		futures[i] = e.Submit(func(cur state.Snapshot) (state.Patch, error) {
			if i > 0 && !cur.Liked().Has(fmt.Sprintf("v%d", i-1)) {
				return nil, fmt.Errorf("update %d ran before its predecessor", i)
			}
			return state.Patch{state.FieldLiked: cur.Liked().With(fmt.Sprintf("v%d", i))}, nil
		})
	}

	for i, f := range futures {
		_, err := f.Wait(ctx)
		require.NoError(t, err, "update %d", i)
	}
	assert.Equal(t, n, e.Current().Liked().Len())
}

func TestEngine_ConcurrentSubmitsNoLostUpdates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	increment := func(cur state.Snapshot) (state.Patch, error) {
		n, _ := cur.Progress().Get("counter")
		return state.Patch{state.FieldProgress: cur.Progress().With("counter", n+1)}, nil
	}

	const goroutines = 20
	const perGoroutine = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, err := e.Apply(ctx, increment)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, ok := e.Current().Progress().Get("counter")
	require.True(t, ok)
	assert.Equal(t, int64(goroutines*perGoroutine), n)
	assert.Equal(t, int64(goroutines*perGoroutine), e.Current().Version())
}

func TestEngine_ValidationFailureLeavesStateUnchanged(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	before, err := e.Apply(ctx, Set(state.FieldLiked, state.NewSet("keep")))
	require.NoError(t, err)

	notified := 0
	e.Subscribe(TopicAll, func(Change) error {
		notified++
		return nil
	})

	_, err = e.Apply(ctx, Replace(state.Patch{
		state.FieldSaved: state.NewSet("x"),
		state.FieldLiked: "not-a-set",
	}))

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	var ve *StateValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, state.FieldLiked, ve.Field)

	after := e.Current()
	assert.Equal(t, before.Version(), after.Version())
	assert.True(t, after.Liked().Has("keep"))
	assert.Equal(t, 0, after.Saved().Len(), "no partial merge")
	assert.Equal(t, 0, notified)
	assert.Len(t, e.History(), 1)
}

func TestEngine_UpdaterErrorRejects(t *testing.T) {
	e := newTestEngine(t)
	boom := errors.New("boom")

	_, err := e.Apply(context.Background(), func(state.Snapshot) (state.Patch, error) {
		return nil, boom
	})

	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), e.Current().Version())
}

func TestEngine_UpdaterPanicRejectsAndLoopContinues(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Apply(ctx, func(state.Snapshot) (state.Patch, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	_, err = e.Apply(ctx, Set(state.FieldOnline, false))
	require.NoError(t, err)
	assert.False(t, e.Current().Online())
}

func TestEngine_NilUpdaterRejected(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Apply(context.Background(), nil)
	assert.True(t, IsValidationError(err))
}

func TestEngine_SubscriberIsolation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var order []string
	e.Subscribe(On(state.FieldItems), func(Change) error {
		order = append(order, "items")
		panic("subscriber bug")
	})
	e.Subscribe(On(state.FieldLiked), func(Change) error {
		order = append(order, "liked")
		return nil
	})
	var wildcard Change
	e.Subscribe(TopicAll, func(c Change) error {
		order = append(order, "*")
		wildcard = c
		return nil
	})

	items := state.NewCollection(map[string]value.Object{
		"v1": value.Obj(value.P("title", value.String("Intro"))),
	})
	snap, err := e.Apply(ctx, Set(state.FieldItems, items))

	require.NoError(t, err, "subscriber failure never reaches the submitter")
	assert.Equal(t, []string{"items", "*"}, order)
	assert.Equal(t, []state.Field{state.FieldItems}, wildcard.Changed)
	assert.Equal(t, TopicAll, wildcard.Topic)
	assert.Equal(t, snap.Version(), wildcard.Seq)
	assert.Equal(t, int64(0), wildcard.Previous.Version())
	assert.Equal(t, 1, e.Current().Items().Len())
}

func TestEngine_FieldSubscribersBeforeWildcard(t *testing.T) {
	e := newTestEngine(t)

	var order []string
	e.Subscribe(TopicAll, func(Change) error {
		order = append(order, "*")
		return nil
	})
	e.Subscribe(On(state.FieldSaved), func(Change) error {
		order = append(order, "saved")
		return nil
	})
	e.Subscribe(On(state.FieldLiked), func(Change) error {
		order = append(order, "liked")
		return nil
	})

	_, err := e.Apply(context.Background(), Replace(state.Patch{
		state.FieldSaved: state.NewSet("a"),
		state.FieldLiked: state.NewSet("b"),
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"liked", "saved", "*"}, order)
}

func TestEngine_UnchangedFieldNotNotified(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	calls := 0
	e.Subscribe(On(state.FieldLiked), func(Change) error {
		calls++
		return nil
	})
	var wildcard []Change
	e.Subscribe(TopicAll, func(c Change) error {
		wildcard = append(wildcard, c)
		return nil
	})

	_, err := e.Apply(ctx, Set(state.FieldLiked, state.NewSet("a")))
	require.NoError(t, err)
	snap, err := e.Apply(ctx, Set(state.FieldLiked, state.NewSet("a")))
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "equal value is not a change")
	assert.Equal(t, int64(2), snap.Version(), "commit still advances the version")
	require.Len(t, wildcard, 2, "wildcard hears the no-op commit too")
	assert.Equal(t, int64(2), wildcard[1].Seq)
	assert.Empty(t, wildcard[1].Changed)
	assert.Len(t, e.History(), 2)
}

func TestEngine_Unsubscribe(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	calls := 0
	unsubscribe := e.Subscribe(On(state.FieldOnline), func(Change) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, e.Subscribers(On(state.FieldOnline)))

	_, err := e.Apply(ctx, Set(state.FieldOnline, false))
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, e.Subscribers(On(state.FieldOnline)))

	_, err = e.Apply(ctx, Set(state.FieldOnline, true))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEngine_SubmitFromSubscriber(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.Subscribe(On(state.FieldLiked), func(c Change) error {
		if c.Current.Liked().Has("v1") && !c.Current.Saved().Has("v1") {
			e.Submit(Set(state.FieldSaved, state.NewSet("v1")))
		}
		return nil
	})

	_, err := e.Apply(ctx, Set(state.FieldLiked, state.NewSet("v1")))
	require.NoError(t, err)

	// Follow-up mutation is queued behind; a second Apply waits for it.
	snap, err := e.Apply(ctx, Replace(state.Patch{}))
	require.NoError(t, err)
	assert.True(t, snap.Saved().Has("v1"))
}

func TestEngine_HistoryBounded(t *testing.T) {
	e := newTestEngine(t, WithHistoryLimit(3))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.Apply(ctx, Set(state.FieldProgress, state.NewIndex(map[string]int64{"v": int64(i)})))
		require.NoError(t, err)
	}

	h := e.History()
	require.Len(t, h, 3)
	assert.Equal(t, int64(3), h[0].Seq)
	assert.Equal(t, int64(5), h[2].Seq)
	assert.Equal(t, int64(4), h[2].Previous.Version())
	assert.Equal(t, int64(5), h[2].Current.Version())
}

func TestEngine_HistoryTimestamps(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithNow(func() time.Time { return fixed }))

	_, err := e.Apply(context.Background(), Set(state.FieldOnline, false))
	require.NoError(t, err)

	h := e.History()
	require.Len(t, h, 1)
	assert.Equal(t, fixed, h[0].Timestamp)
	assert.Equal(t, []state.Field{state.FieldOnline}, h[0].Changed)
}

func TestEngine_SubmitAfterStop(t *testing.T) {
	e := New(WithLogger(quietLogger()))
	e.Stop()

	_, err := e.Apply(context.Background(), Set(state.FieldOnline, false))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_StopCommitsQueued(t *testing.T) {
	e := New(WithLogger(quietLogger()))

	futures := []*Future{
		e.Submit(Set(state.FieldOnline, false)),
		e.Submit(Set(state.FieldLiked, state.NewSet("a"))),
	}
	e.Stop()

	err := e.Run(context.Background())
	require.NoError(t, err)

	for _, f := range futures {
		_, err := f.Wait(context.Background())
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(2), e.Current().Version())
}

func TestEngine_CancelRejectsQueued(t *testing.T) {
	e := New(WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	first := e.Submit(func(cur state.Snapshot) (state.Patch, error) {
		close(started)
		<-release
		return state.Patch{state.FieldOnline: false}, nil
	})
	second := e.Submit(Set(state.FieldLiked, state.NewSet("never")))

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	<-started
	cancel()
	close(release)

	assert.ErrorIs(t, <-errCh, context.Canceled)

	_, err := first.Wait(context.Background())
	assert.NoError(t, err, "in-flight mutation completes")
	_, err = second.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, e.Current().Liked().Has("never"))
}

func TestEngine_RunTwice(t *testing.T) {
	e := newTestEngine(t)
	// Wait until the background Run has claimed the engine.
	_, err := e.Apply(context.Background(), Replace(state.Patch{}))
	require.NoError(t, err)

	err = e.Run(context.Background())
	assert.Error(t, err)
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-f.Done():
		t.Fatal("future resolved without a commit")
	default:
	}
}
