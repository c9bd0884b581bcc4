package offline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/roach88/snapstate/internal/engine"
	"github.com/roach88/snapstate/internal/remote"
	"github.com/roach88/snapstate/internal/remote/mocks"
	"github.com/roach88/snapstate/internal/state"
	"github.com/roach88/snapstate/internal/testutil"
	"github.com/roach88/snapstate/internal/value"
)

func TestToggleLike_OptimisticThenRollback(t *testing.T) {
	inCall := make(chan bool, 1)
	release := make(chan struct{})
	var f *fixture
	d := remote.DispatcherFunc(func(context.Context, string, value.Object) error {
		// Observe the committed state while the remote call is outstanding.
		inCall <- f.eng.Current().Liked().Has("X")
		<-release
		return errors.New("503")
	})
	f = setup(t, d)

	var changes []bool
	f.eng.Subscribe(engine.On(state.FieldLiked), func(c engine.Change) error {
		changes = append(changes, c.Current.Liked().Has("X"))
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := f.queue.ToggleLike(context.Background(), "X")
		errCh <- err
	}()

	assert.True(t, <-inCall, "membership is true before the remote call resolves")
	close(release)
	err := <-errCh

	require.Error(t, err)
	assert.True(t, remote.IsCallError(err))
	assert.False(t, f.eng.Current().Liked().Has("X"), "rolled back")
	assert.Equal(t, []bool{true, false}, changes)
}

func TestToggleLike_ConfirmedKeepsFlip(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)
	d.EXPECT().
		Call(gomock.Any(), ActionLike, value.Obj(value.P("id", value.String("v1")), value.P("active", value.Bool(true)))).
		Return(nil)
	f := setup(t, d)

	res, err := f.queue.ToggleLike(context.Background(), "v1")

	require.NoError(t, err)
	assert.True(t, res.Member)
	assert.False(t, res.Queued)
	assert.True(t, f.eng.Current().Liked().Has("v1"))
}

func TestToggleSave_UnsavePayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)
	gomock.InOrder(
		d.EXPECT().Call(gomock.Any(), ActionSave, value.Obj(value.P("id", value.String("v1")), value.P("active", value.Bool(true)))).Return(nil),
		d.EXPECT().Call(gomock.Any(), ActionSave, value.Obj(value.P("id", value.String("v1")), value.P("active", value.Bool(false)))).Return(nil),
	)
	f := setup(t, d)
	ctx := context.Background()

	_, err := f.queue.ToggleSave(ctx, "v1")
	require.NoError(t, err)
	res, err := f.queue.ToggleSave(ctx, "v1")
	require.NoError(t, err)

	assert.False(t, res.Member)
	assert.False(t, f.eng.Current().Saved().Has("v1"))
}

func TestToggle_OfflineQueues(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl) // no calls expected while offline
	f := setup(t, d)
	ctx := context.Background()
	require.NoError(t, f.queue.SetOnline(ctx, false))

	res, err := f.queue.ToggleLike(ctx, "v9")

	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.Member)
	assert.Equal(t, ActionLike, res.Action.Type)
	assert.True(t, f.eng.Current().Liked().Has("v9"), "optimistic flip stays while queued")
	assert.Equal(t, []string{res.Action.ID}, ids(f.queue.Pending()))
}

func TestToggle_OfflineThenOnlineReplays(t *testing.T) {
	d := testutil.NewRecordingDispatcher()
	f := setup(t, d)
	ctx := context.Background()

	require.NoError(t, f.queue.SetOnline(ctx, false))
	_, err := f.queue.ToggleLike(ctx, "v1")
	require.NoError(t, err)
	_, err = f.queue.ToggleSave(ctx, "v2")
	require.NoError(t, err)
	assert.Empty(t, d.Calls())

	require.NoError(t, f.queue.SetOnline(ctx, true))

	calls := d.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ActionLike, calls[0].Type)
	assert.Equal(t, ActionSave, calls[1].Type)
	assert.Empty(t, f.queue.Pending())
}

func TestToggle_CallerCancelledDuringCallStillRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := remote.DispatcherFunc(func(ctx context.Context, _ string, _ value.Object) error {
		cancel() // client went away while the call was in flight
		return ctx.Err()
	})
	f := setup(t, d)

	res, err := f.queue.ToggleLike(ctx, "X")

	require.Error(t, err)
	var ce *remote.CallError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "rollback")
	assert.False(t, res.Member)
	assert.False(t, f.eng.Current().Liked().Has("X"), "rollback committed")
}

func TestToggle_OfflineWithCancelledContextStillQueues(t *testing.T) {
	f := setup(t, testutil.NewRecordingDispatcher())
	require.NoError(t, f.queue.SetOnline(context.Background(), false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.queue.ToggleSave(ctx, "v9")

	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.Member)
	assert.Equal(t, []string{res.Action.ID}, ids(f.queue.Pending()))
	assert.True(t, f.eng.Current().Saved().Has("v9"))
}

func TestToggle_RejectsNonSetField(t *testing.T) {
	f := setup(t, testutil.NewRecordingDispatcher())

	_, err := f.queue.Toggle(context.Background(), state.FieldUser, "v1", "x")

	assert.True(t, engine.IsValidationError(err))
}
