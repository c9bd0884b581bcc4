package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snapstate/internal/engine"
	"github.com/roach88/snapstate/internal/testutil"
	"github.com/roach88/snapstate/internal/value"
)

func setup(t *testing.T) (*Cache, *engine.Engine, *testutil.FakeClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFakeClock(time.Time{})
	eng := engine.New(engine.WithLogger(logger), engine.WithNow(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		eng.Stop()
		<-done
		cancel()
	})

	return New(eng, WithNow(clock.Now), WithLogger(logger)), eng, clock
}

func counting(calls *atomic.Int32, v value.Value) Producer {
	return func(context.Context) (value.Value, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestGetOrCompute_TTL(t *testing.T) {
	c, _, clock := setup(t)
	ctx := context.Background()
	var calls atomic.Int32
	produce := counting(&calls, value.String("payload"))

	v, err := c.GetOrCompute(ctx, "k", 1000*time.Millisecond, produce)
	require.NoError(t, err)
	assert.Equal(t, value.String("payload"), v)

	clock.Advance(999 * time.Millisecond)
	_, err = c.GetOrCompute(ctx, "k", 1000*time.Millisecond, produce)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "fresh entry is reused")

	clock.Advance(101 * time.Millisecond) // 1100ms after insertion
	_, err = c.GetOrCompute(ctx, "k", 1000*time.Millisecond, produce)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "stale entry is recomputed")
}

func TestGetOrCompute_ExpiresExactlyAtTTL(t *testing.T) {
	c, _, clock := setup(t)
	ctx := context.Background()
	var calls atomic.Int32
	produce := counting(&calls, value.Int(1))

	_, err := c.GetOrCompute(ctx, "k", time.Second, produce)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = c.GetOrCompute(ctx, "k", time.Second, produce)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_CommitsToSnapshot(t *testing.T) {
	c, eng, clock := setup(t)

	_, err := c.GetOrCompute(context.Background(), "videos:home", time.Minute, func(context.Context) (value.Value, error) {
		return value.Arr(value.String("v1"), value.String("v2")), nil
	})
	require.NoError(t, err)

	e, ok := eng.Current().Cache().Get("videos:home")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), e.InsertedAt)
	assert.True(t, value.Equal(value.Arr(value.String("v1"), value.String("v2")), e.Data))
}

func TestGetOrCompute_ProducerErrorNotCached(t *testing.T) {
	c, eng, _ := setup(t)
	ctx := context.Background()
	boom := errors.New("network down")

	_, err := c.GetOrCompute(ctx, "k", time.Minute, func(context.Context) (value.Value, error) {
		return nil, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, eng.Current().Cache().Len())

	var calls atomic.Int32
	_, err = c.GetOrCompute(ctx, "k", time.Minute, counting(&calls, value.Bool(true)))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrCompute_NilBecomesNull(t *testing.T) {
	c, _, _ := setup(t)

	v, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (value.Value, error) {
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, value.Null{}, v)
}

func TestGetOrCompute_ConcurrentCallsShareProducer(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	produce := func(context.Context) (value.Value, error) {
		calls.Add(1)
		<-release
		return value.String("shared"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]value.Value, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(ctx, "k", time.Minute, produce)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let the callers pile up behind the first producer call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, value.String("shared"), v)
	}
}

func TestPeek(t *testing.T) {
	c, _, clock := setup(t)
	ctx := context.Background()

	_, ok := c.Peek("k", time.Second)
	assert.False(t, ok)

	_, err := c.GetOrCompute(ctx, "k", time.Second, func(context.Context) (value.Value, error) {
		return value.Int(7), nil
	})
	require.NoError(t, err)

	v, ok := c.Peek("k", time.Second)
	require.True(t, ok)
	assert.Equal(t, value.Int(7), v)

	clock.Advance(2 * time.Second)
	_, ok = c.Peek("k", time.Second)
	assert.False(t, ok)
}

func TestInvalidate_BySubstring(t *testing.T) {
	c, eng, _ := setup(t)
	ctx := context.Background()

	for _, k := range []string{"videos:home", "user:videos:42", "profile:me", "channels"} {
		_, err := c.GetOrCompute(ctx, k, time.Minute, func(context.Context) (value.Value, error) {
			return value.String(k), nil
		})
		require.NoError(t, err)
	}

	removed, err := c.Invalidate(ctx, "videos")
	require.NoError(t, err)

	assert.Equal(t, []string{"user:videos:42", "videos:home"}, removed)
	assert.Equal(t, []string{"channels", "profile:me"}, eng.Current().Cache().Keys())
}

func TestInvalidate_SingleCommit(t *testing.T) {
	c, eng, _ := setup(t)
	ctx := context.Background()

	for _, k := range []string{"a1", "a2", "a3"} {
		_, err := c.GetOrCompute(ctx, k, time.Minute, func(context.Context) (value.Value, error) {
			return value.Null{}, nil
		})
		require.NoError(t, err)
	}
	before := eng.Current().Version()

	_, err := c.Invalidate(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, before+1, eng.Current().Version())
	assert.Equal(t, 0, eng.Current().Cache().Len())
}

func TestInvalidate_NoMatch(t *testing.T) {
	c, _, _ := setup(t)

	removed, err := c.Invalidate(context.Background(), "nothing")

	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPrune(t *testing.T) {
	c, eng, clock := setup(t)
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, "old", time.Hour, func(context.Context) (value.Value, error) { return value.Int(1), nil })
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = c.GetOrCompute(ctx, "new", time.Hour, func(context.Context) (value.Value, error) { return value.Int(2), nil })
	require.NoError(t, err)

	n, err := c.Prune(ctx, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"new"}, eng.Current().Cache().Keys())
}
