package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/snapstate/internal/cache"
	"github.com/roach88/snapstate/internal/engine"
	"github.com/roach88/snapstate/internal/offline"
	"github.com/roach88/snapstate/internal/remote"
	"github.com/roach88/snapstate/internal/state"
	"github.com/roach88/snapstate/internal/store"
	"github.com/roach88/snapstate/internal/testutil"
	"github.com/roach88/snapstate/internal/value"
)

// ErrRemoteUnavailable is returned by remote calls a fail_remote step targets.
var ErrRemoteUnavailable = errors.New("remote unavailable")

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine *engine.Engine
	queue  *offline.Queue
	cache  *cache.Cache
	remote *testutil.RecordingDispatcher
	clock  *testutil.FakeClock
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a new engine backed by an in-memory store.
// Deterministic helpers ensure reproducible results.
//
// Step failures do not stop the run: they are recorded in the trace and
// checked against the step's expect clause. The returned error is reserved
// for harness failures.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewFakeClock(time.Time{})
	mem := store.NewMemory()

	eng := engine.New(
		engine.WithPersistence(mem),
		engine.WithNow(clock.Now),
		engine.WithLogger(logger),
	)

	h := &Harness{
		engine: eng,
		remote: testutil.NewRecordingDispatcher(),
		clock:  clock,
		result: NewResult(),
	}
	h.queue = offline.NewQueue(eng, remote.DispatcherFunc(h.dispatch),
		offline.WithIDGenerator(testutil.NewSequentialIDs("act")),
		offline.WithNow(clock.Now),
		offline.WithLogger(logger),
	)
	h.cache = cache.New(eng, cache.WithNow(clock.Now), cache.WithLogger(logger))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(runCtx)
	}()

	for i, step := range scenario.Flow {
		if err := h.execute(runCtx, i, step); err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Do, err)
		}
	}

	eng.Stop()
	if err := <-done; err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	if err := h.captureState(); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// dispatch records the call in the trace before handing it to the recorder.
func (h *Harness) dispatch(ctx context.Context, actionType string, payload value.Object) error {
	args := make(map[string]any, len(payload))
	for k, v := range payload {
		args[k] = v
	}
	h.result.AddDispatchTrace(actionType, args, h.engine.Current().Version())
	return h.remote.Call(ctx, actionType, payload)
}

// execute runs one step and checks its expect clause.
func (h *Harness) execute(ctx context.Context, index int, step Step) error {
	args, result, stepErr, err := h.perform(ctx, step)
	if err != nil {
		return err
	}

	var errMsg string
	if stepErr != nil {
		errMsg = stepErr.Error()
	}
	h.result.AddStepTrace(step.Do, args, result, errMsg, h.engine.Current().Version())

	for _, msg := range checkExpect(step.Expect, result, errMsg) {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: %s", index, step.Do, msg))
	}
	return nil
}

// perform runs step. stepErr is the operation's own failure; err means the
// step could not be run at all.
func (h *Harness) perform(ctx context.Context, step Step) (args, result map[string]any, stepErr, err error) {
	switch step.Do {
	case StepSet:
		f, _ := state.ParseField(step.Field)
		v, err := decodeFieldValue(f, step.Value)
		if err != nil {
			return nil, nil, nil, err
		}
		_, stepErr = h.engine.Apply(ctx, engine.Set(f, v))
		return map[string]any{"field": step.Field, "value": step.Value}, nil, stepErr, nil

	case StepToggleLike, StepToggleSave:
		toggle := h.queue.ToggleLike
		if step.Do == StepToggleSave {
			toggle = h.queue.ToggleSave
		}
		res, stepErr := toggle(ctx, step.ID)
		result = map[string]any{"member": res.Member, "queued": res.Queued}
		if res.Queued {
			result["action"] = res.Action.ID
		}
		return map[string]any{"id": step.ID}, result, stepErr, nil

	case StepOnline, StepOffline:
		stepErr = h.queue.SetOnline(ctx, step.Do == StepOnline)
		return nil, map[string]any{"pending": h.queue.Len()}, stepErr, nil

	case StepEnqueue:
		payload, err := toObject(step.Payload)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("payload: %w", err)
		}
		a, stepErr := h.queue.Enqueue(ctx, step.Type, payload)
		args = map[string]any{"type": step.Type}
		if len(step.Payload) > 0 {
			args["payload"] = step.Payload
		}
		return args, map[string]any{"id": a.ID}, stepErr, nil

	case StepReplay:
		n, stepErr := h.queue.ReplayAll(ctx)
		return nil, map[string]any{"replayed": n, "pending": h.queue.Len()}, stepErr, nil

	case StepFailRemote:
		h.remote.FailOn(step.ID, ErrRemoteUnavailable)
		return map[string]any{"id": step.ID}, nil, nil, nil

	case StepHealRemote:
		h.remote.FailOn(step.ID, nil)
		return map[string]any{"id": step.ID}, nil, nil, nil

	case StepCache:
		ttl, _ := time.ParseDuration(step.TTL)
		produced, err := value.FromGo(step.Value)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("value: %w", err)
		}
		computed := false
		v, stepErr := h.cache.GetOrCompute(ctx, step.Key, ttl, func(context.Context) (value.Value, error) {
			computed = true
			return produced, nil
		})
		result = map[string]any{"computed": computed}
		if v != nil {
			result["value"] = v
		}
		return map[string]any{"key": step.Key, "ttl": step.TTL}, result, stepErr, nil

	case StepInvalidate:
		removed, stepErr := h.cache.Invalidate(ctx, step.Pattern)
		if removed == nil {
			removed = []string{}
		}
		return map[string]any{"pattern": step.Pattern}, map[string]any{"removed": removed}, stepErr, nil

	case StepAdvance:
		d, _ := time.ParseDuration(step.Duration)
		h.clock.Advance(d)
		return map[string]any{"duration": step.Duration}, nil, nil, nil
	}

	return nil, nil, nil, fmt.Errorf("unknown step %q", step.Do)
}

// captureState records every field of the final snapshot in its persisted
// JSON form.
func (h *Harness) captureState() error {
	snap := h.engine.Current()
	for _, f := range state.Fields {
		data, err := state.EncodeField(snap, f)
		if err != nil {
			return fmt.Errorf("capture state: %w", err)
		}
		v, err := value.Parse(data)
		if err != nil {
			return fmt.Errorf("capture state %s: %w", f, err)
		}
		h.result.State[f.String()] = v
	}
	return nil
}

// checkExpect compares a step's outcome against its expect clause.
func checkExpect(expect, result map[string]any, errMsg string) []string {
	var failures []string

	want, wantErr := expect["error"]
	switch {
	case wantErr && errMsg == "":
		failures = append(failures, fmt.Sprintf("expected error containing %v, got success", want))
	case wantErr && !strings.Contains(errMsg, fmt.Sprint(want)):
		failures = append(failures, fmt.Sprintf("expected error containing %v, got %q", want, errMsg))
	case !wantErr && errMsg != "":
		failures = append(failures, fmt.Sprintf("unexpected error: %s", errMsg))
	}

	for _, k := range slices.Sorted(maps.Keys(expect)) {
		if k == "error" {
			continue
		}
		got, ok := result[k]
		if !ok {
			failures = append(failures, fmt.Sprintf("result has no %q", k))
			continue
		}
		if !equalLoose(expect[k], got) {
			failures = append(failures, fmt.Sprintf("%s: expected %v, got %v", k, expect[k], got))
		}
	}
	return failures
}

// equalLoose compares YAML-decoded data with a result value structurally.
func equalLoose(want, got any) bool {
	w, err := value.FromGo(want)
	if err != nil {
		return false
	}
	g, err := value.FromGo(got)
	if err != nil {
		return false
	}
	return value.Equal(w, g)
}

// decodeFieldValue converts YAML data into a patch value for f by way of the
// field's persisted encoding.
func decodeFieldValue(f state.Field, raw any) (any, error) {
	v, err := value.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	data, err := value.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return state.DecodeField(f, data)
}

func toObject(m map[string]any) (value.Object, error) {
	if m == nil {
		return value.Object{}, nil
	}
	v, err := value.FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(value.Object), nil
}
