package harness

// Trace event types.
const (
	EventStep     = "step"
	EventDispatch = "dispatch"
)

// TraceEvent is one entry of a scenario trace: either an executed step or a
// remote call made while executing it.
type TraceEvent struct {
	Type    string         `json:"type"`
	Step    string         `json:"step,omitempty"`
	Action  string         `json:"action,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Version int64          `json:"version"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains steps and remote calls in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final value of every field, keyed by field name.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace records an executed step.
func (r *Result) AddStepTrace(step string, args, result map[string]any, errMsg string, version int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventStep,
		Step:    step,
		Args:    args,
		Result:  result,
		Error:   errMsg,
		Version: version,
	})
}

// AddDispatchTrace records a remote call.
func (r *Result) AddDispatchTrace(action string, args map[string]any, version int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventDispatch,
		Action:  action,
		Args:    args,
		Version: version,
	})
}

// Dispatches returns only the remote-call events, in order.
func (r *Result) Dispatches() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventDispatch {
			out = append(out, e)
		}
	}
	return out
}
