package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/snapstate/internal/state"
)

// Scenario is a scripted run of the engine.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Flow is executed in order against one engine.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted operation. Which fields apply depends on Do.
type Step struct {
	Do string `yaml:"do"`

	ID       string         `yaml:"id,omitempty"`
	Type     string         `yaml:"type,omitempty"`
	Field    string         `yaml:"field,omitempty"`
	Key      string         `yaml:"key,omitempty"`
	Pattern  string         `yaml:"pattern,omitempty"`
	TTL      string         `yaml:"ttl,omitempty"`
	Duration string         `yaml:"duration,omitempty"`
	Payload  map[string]any `yaml:"payload,omitempty"`
	Value    any            `yaml:"value,omitempty"`

	// Expect is a subset match against the step's result. The "error" key
	// matches a substring of the step's error; without it the step must
	// succeed.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step kinds.
const (
	StepSet        = "set"
	StepToggleLike = "toggle_like"
	StepToggleSave = "toggle_save"
	StepOnline     = "online"
	StepOffline    = "offline"
	StepEnqueue    = "enqueue"
	StepReplay     = "replay"
	StepFailRemote = "fail_remote"
	StepHealRemote = "heal_remote"
	StepCache      = "cache"
	StepInvalidate = "invalidate"
	StepAdvance    = "advance"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action is the remote action type (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are matched as a subset of the call payload (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of calls (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected call order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Field names the snapshot field (final_state).
	Field string `yaml:"field,omitempty"`

	// Expect is the exact expected field value (final_state).
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	switch step.Do {
	case StepSet:
		f, ok := state.ParseField(step.Field)
		if !ok {
			return fmt.Errorf("set: unknown field %q", step.Field)
		}
		if f == state.FieldOnline {
			return fmt.Errorf("set: use online/offline steps for connectivity")
		}
	case StepToggleLike, StepToggleSave, StepFailRemote, StepHealRemote:
		if step.ID == "" {
			return fmt.Errorf("%s: id is required", step.Do)
		}
	case StepOnline, StepOffline, StepReplay:
	case StepEnqueue:
		if step.Type == "" {
			return fmt.Errorf("enqueue: type is required")
		}
	case StepCache:
		if step.Key == "" {
			return fmt.Errorf("cache: key is required")
		}
		if _, err := time.ParseDuration(step.TTL); err != nil {
			return fmt.Errorf("cache: ttl: %w", err)
		}
	case StepInvalidate:
	case StepAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("advance: duration: %w", err)
		}
	case "":
		return fmt.Errorf("do is required")
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if _, ok := state.ParseField(a.Field); !ok {
			return fmt.Errorf("assertions[%d]: unknown field %q for final_state", index, a.Field)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
