package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios validate operational principles by driving a flow of host
// events through a fresh pipeline and asserting on the resulting trace
// and final presentation state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Table is the path to the CUE rule table to compile and load.
	// Relative to the scenario file location.
	Table string `yaml:"table"`

	// ReducedMotion runs the scenario with reduced motion enabled:
	// transitions complete synchronously with zero duration.
	ReducedMotion bool `yaml:"reduced_motion,omitempty"`

	// Steps contains the host events to feed, in order.
	// Each step carries exactly one of: set, remove, complete, advance.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and presentation state.
	// Supported types: effect_active, no_running, transition_count, trace_order
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one host event in the scenario flow.
// Exactly one of the fields must be set.
type Step struct {
	// Set feeds a raw attribute update (element, flag, raw value).
	Set *SetStep `yaml:"set,omitempty"`

	// Remove tears an element down.
	Remove *RemoveStep `yaml:"remove,omitempty"`

	// Complete reports that the transition running on a channel finished.
	Complete *CompleteStep `yaml:"complete,omitempty"`

	// Advance moves the frame clock forward by a duration string ("80ms").
	// Affects the resume progress of transitions replaced afterwards.
	Advance string `yaml:"advance,omitempty"`

	// advance is the parsed form of Advance, filled in during validation.
	advance time.Duration
}

// SetStep is a raw attribute update as the host observer would deliver it.
type SetStep struct {
	Element string `yaml:"element"`
	Flag    string `yaml:"flag"`
	Value   string `yaml:"value"`
}

// RemoveStep removes an element from tracking.
type RemoveStep struct {
	Element string `yaml:"element"`
}

// CompleteStep reports transition completion on a channel.
type CompleteStep struct {
	Element string `yaml:"element"`
	Channel string `yaml:"channel"`
}

// Assertion validates the trace or final presentation state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "effect_active": a static effect is applied on an element
	// - "no_running": an element has no in-flight transitions
	// - "transition_count": a transition started exactly N times
	// - "trace_order": trace kinds appear in the given order
	Type string `yaml:"type"`

	// Element scopes the assertion to one element
	// (used by effect_active, no_running, and optionally transition_count).
	Element string `yaml:"element,omitempty"`

	// Property is the static effect property (used by effect_active).
	Property string `yaml:"property,omitempty"`

	// Value is the expected property value (used by effect_active).
	// Empty checks presence only.
	Value string `yaml:"value,omitempty"`

	// Transition is the transition name (used by transition_count).
	Transition string `yaml:"transition,omitempty"`

	// Count is the expected number of starts (used by transition_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected event kind order (used by trace_order).
	// Kinds must appear as a subsequence; intervening events are allowed.
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertEffectActive    = "effect_active"
	AssertNoRunning       = "no_running"
	AssertTransitionCount = "transition_count"
	AssertTraceOrder      = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the table path relative to the provided base path.
// This is useful when scenario files reference tables using relative paths.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like
	// "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the table path relative to the base path BEFORE validation.
	if scenario.Table != "" && !filepath.IsAbs(scenario.Table) && basePath != "" {
		scenario.Table = filepath.Join(basePath, scenario.Table)
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

	if s.Table == "" {
		return fmt.Errorf("table is required")
	}
	if _, err := os.Stat(s.Table); os.IsNotExist(err) {
		return fmt.Errorf("table file not found: %s", s.Table)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one step kind is present and well-formed.
// Advance durations are parsed here so execution never fails on syntax.
func validateStep(index int, step *Step) error {
	set := 0
	if step.Set != nil {
		set++
		if step.Set.Element == "" || step.Set.Flag == "" {
			return fmt.Errorf("steps[%d].set: element and flag are required", index)
		}
	}
	if step.Remove != nil {
		set++
		if step.Remove.Element == "" {
			return fmt.Errorf("steps[%d].remove: element is required", index)
		}
	}
	if step.Complete != nil {
		set++
		if step.Complete.Element == "" || step.Complete.Channel == "" {
			return fmt.Errorf("steps[%d].complete: element and channel are required", index)
		}
	}
	if step.Advance != "" {
		set++
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d].advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d].advance: duration must be non-negative", index)
		}
		step.advance = d
	}

	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of set, remove, complete, advance is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEffectActive:
		if a.Element == "" {
			return fmt.Errorf("assertions[%d]: element is required for effect_active", index)
		}
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for effect_active", index)
		}
	case AssertNoRunning:
		if a.Element == "" {
			return fmt.Errorf("assertions[%d]: element is required for no_running", index)
		}
	case AssertTransitionCount:
		if a.Transition == "" {
			return fmt.Errorf("assertions[%d]: transition is required for transition_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for transition_count", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
