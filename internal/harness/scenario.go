package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/scheduler"
)

// Scenario defines a conformance test scenario: an application, a flow of
// edits and assertions over what the scheduler did with them.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// App is the application definition to load. LoadScenario resolves it
	// relative to the scenario file.
	App string `yaml:"app"`

	// MaxSteps bounds callback runs per group. Zero keeps the scheduler
	// default.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Flow runs in order after hydration, waiting for the scheduler to
	// settle after each step. It may be empty to test hydration alone.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and layout.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one user action. Exactly one of Set and History is given.
type Step struct {
	Set     *SetStep `yaml:"set,omitempty"`
	History string   `yaml:"history,omitempty"`
}

// SetStep edits props of one component.
type SetStep struct {
	// ID is a string id, or a mapping for a wildcard id.
	ID    any            `yaml:"id"`
	Props map[string]any `yaml:"props"`
}

// Assertion validates the trace or the final layout.
type Assertion struct {
	// Type is run_order, run_count, final_props or error_count.
	Type string `yaml:"type"`

	// Callbacks is the expected order of first runs (run_order).
	Callbacks []string `yaml:"callbacks,omitempty"`

	// Callback is the resolved id to count (run_count).
	Callback string `yaml:"callback,omitempty"`

	// Outcome restricts run_count to one outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of runs or errors.
	Count int `yaml:"count,omitempty"`

	// ID is the component to inspect (final_props).
	ID any `yaml:"id,omitempty"`

	// Expect contains expected prop values (final_props, subset match).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertRunOrder   = "run_order"
	AssertRunCount   = "run_count"
	AssertFinalProps = "final_props"
	AssertErrorCount = "error_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" for "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.App != "" && !filepath.IsAbs(scenario.App) {
		scenario.App = filepath.Join(filepath.Dir(path), scenario.App)
	}

	if err := normalizeScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// normalizeScenario passes YAML values through JSON so they compare equal
// to values read from the layout: numbers become float64.
func normalizeScenario(s *Scenario) error {
	for i := range s.Flow {
		if s.Flow[i].Set == nil {
			continue
		}
		props, err := jsonValue(s.Flow[i].Set.Props)
		if err != nil {
			return fmt.Errorf("flow[%d].set.props: %w", i, err)
		}
		s.Flow[i].Set.Props, _ = props.(map[string]any)
		if s.Flow[i].Set.ID, err = jsonValue(s.Flow[i].Set.ID); err != nil {
			return fmt.Errorf("flow[%d].set.id: %w", i, err)
		}
	}
	for i := range s.Assertions {
		a := &s.Assertions[i]
		expect, err := jsonValue(a.Expect)
		if err != nil {
			return fmt.Errorf("assertions[%d].expect: %w", i, err)
		}
		a.Expect, _ = expect.(map[string]any)
		if a.ID, err = jsonValue(a.ID); err != nil {
			return fmt.Errorf("assertions[%d].id: %w", i, err)
		}
	}
	return nil
}

func jsonValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.App == "" {
		return fmt.Errorf("app is required")
	}
	if _, err := os.Stat(s.App); os.IsNotExist(err) {
		return fmt.Errorf("app file not found: %s", s.App)
	}

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	switch {
	case step.Set != nil && step.History != "":
		return fmt.Errorf("flow[%d]: set and history are exclusive", index)
	case step.Set != nil:
		if _, err := ident.FromAny(step.Set.ID); err != nil {
			return fmt.Errorf("flow[%d].set: %w", index, err)
		}
		if len(step.Set.Props) == 0 {
			return fmt.Errorf("flow[%d].set: props is required", index)
		}
	case step.History != "":
		if _, err := scheduler.ParseHistoryMove(strings.ToUpper(step.History)); err != nil {
			return fmt.Errorf("flow[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("flow[%d]: one of set or history is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRunOrder:
		if len(a.Callbacks) == 0 {
			return fmt.Errorf("assertions[%d]: callbacks list is required for run_order", index)
		}
	case AssertRunCount:
		if a.Callback == "" {
			return fmt.Errorf("assertions[%d]: callback is required for run_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for run_count", index)
		}
	case AssertFinalProps:
		if _, err := ident.FromAny(a.ID); err != nil {
			return fmt.Errorf("assertions[%d]: id is required for final_props: %w", index, err)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_props", index)
		}
	case AssertErrorCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for error_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
