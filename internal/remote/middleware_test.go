package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snapstate/internal/value"
)

func flaky(failures int, err error, calls *int) Dispatcher {
	return DispatcherFunc(func(context.Context, string, value.Object) error {
		*calls++
		if *calls <= failures {
			return err
		}
		return nil
	})
}

func TestWithRetry_RecoversFromTemporaryFailure(t *testing.T) {
	calls := 0
	d := Chain(flaky(2, &CallError{Type: "like", Status: 503, Err: errors.New("busy")}, &calls),
		WithRetry(3, time.Millisecond, quietLogger()))

	require.NoError(t, d.Call(context.Background(), "like", nil))
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	d := Chain(flaky(10, errors.New("reset"), &calls), WithRetry(2, time.Millisecond, nil))

	err := d.Call(context.Background(), "like", nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls, "one attempt plus two retries")
}

func TestWithRetry_PermanentFailureNotRetried(t *testing.T) {
	calls := 0
	d := Chain(flaky(10, &CallError{Type: "like", Status: 400, Err: errors.New("bad")}, &calls),
		WithRetry(5, time.Millisecond, nil))

	err := d.Call(context.Background(), "like", nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	d := Chain(DispatcherFunc(func(context.Context, string, value.Object) error {
		calls++
		cancel()
		return errors.New("reset")
	}), WithRetry(5, time.Hour, nil))

	err := d.Call(ctx, "like", nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithTimeout(t *testing.T) {
	d := Chain(DispatcherFunc(func(ctx context.Context, _ string, _ value.Object) error {
		<-ctx.Done()
		return ctx.Err()
	}), WithTimeout(10*time.Millisecond))

	err := d.Call(context.Background(), "like", nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Dispatcher) Dispatcher {
			return DispatcherFunc(func(ctx context.Context, typ string, p value.Object) error {
				order = append(order, name)
				return next.Call(ctx, typ, p)
			})
		}
	}

	d := Chain(DispatcherFunc(func(context.Context, string, value.Object) error {
		order = append(order, "base")
		return nil
	}), mark("outer"), mark("inner"))

	require.NoError(t, d.Call(context.Background(), "x", nil))
	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}
