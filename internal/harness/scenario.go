package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Assertion types.
const (
	AssertQuery        = "query"
	AssertDistribution = "distribution"
	AssertFactCount    = "fact_count"
	AssertSignedBy     = "signed_by"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is a CUE rules file or directory. LoadScenario resolves it
	// relative to the scenario file.
	Rules string `yaml:"rules"`

	// Principals are named identities, each with a fresh key pair.
	Principals []string `yaml:"principals,omitempty"`

	// Steps author facts in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step authors one fact.
type Step struct {
	// Author is the label of the fact this step builds.
	Author string `yaml:"author"`

	// Type is the fact type.
	Type string `yaml:"type"`

	// As names the authoring principal. Empty authors anonymously.
	As string `yaml:"as,omitempty"`

	// Fields holds scalar field values.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Predecessors maps each role to a label or a list of labels.
	Predecessors map[string]any `yaml:"predecessors,omitempty"`

	// Expect is the expected outcome; empty means accepted.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the final graph.
type Assertion struct {
	// Type is one of query, distribution, fact_count, signed_by.
	Type string `yaml:"type"`

	// Specification names a compiled specification (query, distribution).
	Specification string `yaml:"specification,omitempty"`

	// Given lists labels bound to the specification's givens in order.
	Given []string `yaml:"given,omitempty"`

	// Principal names the reader (distribution) or signer (signed_by).
	// Empty means anonymous.
	Principal string `yaml:"principal,omitempty"`

	// Count is the expected number of results or facts.
	Count *int `yaml:"count,omitempty"`

	// Contains maps projection components to labels; some result must
	// bind them all.
	Contains map[string]string `yaml:"contains,omitempty"`

	// Fact is the label checked by signed_by.
	Fact string `yaml:"fact,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file, resolving the rules
// path relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and labels are
// used consistently.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Rules == "" {
		return fmt.Errorf("rules is required")
	}
	if _, err := os.Stat(s.Rules); os.IsNotExist(err) {
		return &RulesNotFoundError{Scenario: s.Name, Path: s.Rules}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	principals := make(map[string]bool)
	for i, p := range s.Principals {
		if p == "" {
			return fmt.Errorf("principals[%d]: name is required", i)
		}
		if labels[p] {
			return fmt.Errorf("principals[%d]: duplicate label %q", i, p)
		}
		labels[p] = true
		principals[p] = true
	}

	for i, step := range s.Steps {
		if step.Author == "" {
			return fmt.Errorf("steps[%d]: author label is required", i)
		}
		if labels[step.Author] {
			return fmt.Errorf("steps[%d]: duplicate label %q", i, step.Author)
		}
		if step.Type == "" {
			return fmt.Errorf("steps[%d]: type is required", i)
		}
		if step.As != "" && !principals[step.As] {
			return fmt.Errorf("steps[%d]: unknown principal %q", i, step.As)
		}
		switch step.Expect {
		case "", OutcomeAccepted, OutcomeDenied, OutcomeDangling:
		default:
			return fmt.Errorf("steps[%d]: unknown expectation %q", i, step.Expect)
		}
		for role, v := range step.Predecessors {
			for _, label := range predecessorLabels(v) {
				if !labels[label] {
					return fmt.Errorf("steps[%d]: predecessor %s refers to unknown label %q", i, role, label)
				}
			}
		}
		labels[step.Author] = true
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], labels, principals); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, labels, principals map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Principal != "" && !principals[a.Principal] {
		return fmt.Errorf("assertions[%d]: unknown principal %q", index, a.Principal)
	}
	for _, label := range a.Given {
		if !labels[label] {
			return fmt.Errorf("assertions[%d]: unknown given %q", index, label)
		}
	}
	for component, label := range a.Contains {
		if !labels[label] {
			return fmt.Errorf("assertions[%d]: contains %s refers to unknown label %q", index, component, label)
		}
	}

	switch a.Type {
	case AssertQuery, AssertDistribution:
		if a.Specification == "" {
			return fmt.Errorf("assertions[%d]: specification is required for %s", index, a.Type)
		}
		if a.Count == nil && len(a.Contains) == 0 {
			return fmt.Errorf("assertions[%d]: count or contains is required for %s", index, a.Type)
		}
	case AssertFactCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for fact_count", index)
		}
	case AssertSignedBy:
		if a.Fact == "" || !labels[a.Fact] {
			return fmt.Errorf("assertions[%d]: known fact label is required for signed_by", index)
		}
		if a.Principal == "" {
			return fmt.Errorf("assertions[%d]: principal is required for signed_by", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// predecessorLabels flattens a role value into labels. Non-string entries
// yield an empty label, which never resolves.
func predecessorLabels(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, len(val))
		for i, elem := range val {
			s, _ := elem.(string)
			out[i] = s
		}
		return out
	default:
		return []string{""}
	}
}

// RulesNotFoundError is returned when a scenario's rules path does not exist.
type RulesNotFoundError struct {
	Scenario string
	Path     string
}

func (e *RulesNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references rules %q which do not exist", e.Scenario, e.Path)
}
