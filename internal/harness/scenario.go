package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/framestate/internal/engine"
)

// Scenario defines a conformance test scenario: a config, a sequence of
// frames fed to a fresh engine, and assertions on the rows it produced.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is inline CUE source. Exactly one of Config and Specs is set.
	Config string `yaml:"config,omitempty"`

	// Specs is a CUE package directory, relative to the scenario file.
	Specs string `yaml:"specs,omitempty"`

	// RunID fixes the run id. Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// Frames are applied in order.
	Frames []FrameStep `yaml:"frames"`

	// Assertions validate the rows and step outcomes.
	Assertions []Assertion `yaml:"assertions"`
}

// FrameStep is one input frame. Repeat applies the same objects to that
// many consecutive steps.
type FrameStep struct {
	engine.Frame `yaml:",inline"`

	// Repeat defaults to 1.
	Repeat int `yaml:"repeat,omitempty"`

	// Reject is the error code the frame is expected to fail with.
	Reject string `yaml:"reject,omitempty"`
}

// Assertion validates rows or step outcomes.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Query names the query whose rows are checked.
	Query string `yaml:"query,omitempty"`

	// Entity restricts the check to one track id.
	Entity string `yaml:"entity,omitempty"`

	// Step restricts the check to one step. Zero means any step.
	Step int64 `yaml:"step,omitempty"`

	// Values is a subset match against the row values (rows_contain).
	Values map[string]any `yaml:"values,omitempty"`

	// Count is the expected number (row_count, live_count).
	Count int `yaml:"count,omitempty"`

	// Code is the expected rejection code (rejected).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount    = "row_count"
	AssertRowsContain = "rows_contain"
	AssertFirstRow    = "first_row"
	AssertNoRows      = "no_rows"
	AssertLiveCount   = "live_count"
	AssertRejected    = "rejected"
)

// LoadScenario reads and parses a scenario YAML file. Specs paths resolve
// relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the specs path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) && basePath != "" {
		scenario.Specs = filepath.Join(basePath, scenario.Specs)
	}
	if scenario.Specs != "" {
		if _, err := os.Stat(scenario.Specs); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: specs directory not found: %s", scenario.Specs)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
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
	if (s.Config == "") == (s.Specs == "") {
		return fmt.Errorf("exactly one of config and specs is required")
	}
	if len(s.Frames) == 0 {
		return fmt.Errorf("frames list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, f := range s.Frames {
		if f.Repeat < 0 {
			return fmt.Errorf("frames[%d]: repeat must be non-negative", i)
		}
		if f.Repeat > 1 && f.Reject != "" {
			return fmt.Errorf("frames[%d]: a rejected frame cannot repeat", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowCount, AssertNoRows:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRowsContain:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for rows_contain", index)
		}
		if len(a.Values) == 0 && a.Entity == "" && a.Step == 0 {
			return fmt.Errorf("assertions[%d]: rows_contain needs values, entity or step", index)
		}
	case AssertFirstRow:
		if a.Query == "" || a.Entity == "" || a.Step == 0 {
			return fmt.Errorf("assertions[%d]: query, entity and step are required for first_row", index)
		}
	case AssertLiveCount:
		if a.Step == 0 {
			return fmt.Errorf("assertions[%d]: step is required for live_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRejected:
		if a.Step == 0 || a.Code == "" {
			return fmt.Errorf("assertions[%d]: step and code are required for rejected", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// expand returns the frames with repeats unrolled. Repeated frames advance
// the step by one each time.
func (s *Scenario) expand() []FrameStep {
	var out []FrameStep
	for _, f := range s.Frames {
		n := f.Repeat
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			g := f
			g.Step = f.Step + int64(i)
			g.Repeat = 1
			out = append(out, g)
		}
	}
	return out
}
