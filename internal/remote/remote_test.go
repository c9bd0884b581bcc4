package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/roach88/snapstate/internal/remote/mocks"
	"github.com/roach88/snapstate/internal/value"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouter_RegisteredTakesPriority(t *testing.T) {
	ctrl := gomock.NewController(t)
	like := mocks.NewMockDispatcher(ctrl)
	fallback := mocks.NewMockDispatcher(ctrl)

	payload := value.Obj(value.P("id", value.String("v1")))
	like.EXPECT().Call(gomock.Any(), "like", payload).Return(nil)
	fallback.EXPECT().Call(gomock.Any(), "save", gomock.Any()).Return(nil)

	r := NewRouter(WithLogger(quietLogger()))
	r.Register("like", like)
	r.SetFallback(fallback)

	require.NoError(t, r.Call(context.Background(), "like", payload))
	require.NoError(t, r.Call(context.Background(), "save", payload))
}

func TestRouter_NoRoute(t *testing.T) {
	r := NewRouter(WithLogger(quietLogger()))

	err := r.Call(context.Background(), "like", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRoute)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "like", ce.Type)
	assert.False(t, ce.Temporary())
}

func TestRouter_WrapsPlainErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewRouter(WithLogger(quietLogger()))
	r.Register("like", DispatcherFunc(func(context.Context, string, value.Object) error {
		return boom
	}))

	err := r.Call(context.Background(), "like", nil)

	assert.True(t, IsCallError(err))
	assert.ErrorIs(t, err, boom)
}

func TestCallError_Temporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{404, false},
		{409, false},
	}
	for _, tt := range tests {
		err := &CallError{Type: "x", Status: tt.status, Err: errors.New("e")}
		assert.Equal(t, tt.want, err.Temporary(), "status %d", tt.status)
	}
}

func TestCallError_Message(t *testing.T) {
	assert.Equal(t, "remote call like: status 500: down",
		(&CallError{Type: "like", Status: 500, Err: errors.New("down")}).Error())
	assert.Equal(t, "remote call like: down",
		(&CallError{Type: "like", Err: errors.New("down")}).Error())
}

func TestIdempotencyKey(t *testing.T) {
	ctx := context.Background()

	_, ok := IdempotencyKey(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithIdempotencyKey(ctx, ""), "empty key leaves ctx untouched")

	key, ok := IdempotencyKey(WithIdempotencyKey(ctx, "abc"))
	require.True(t, ok)
	assert.Equal(t, "abc", key)
}
