package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/actionbus/internal/ir"
)

// Scenario defines a conformance test scenario.
// Scenarios run a workflow and assert on the resulting logs, trace and
// results.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workflow is the directory of the CUE workflow package.
	// Relative paths are resolved against the scenario file location.
	Workflow string `yaml:"workflow"`

	// RunID is an optional fixed run id for deterministic tests.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Config overrides the workflow's declared config.
	Config *ConfigOverride `yaml:"config,omitempty"`

	// Events are dispatched, in order, before the run starts.
	Events []EventStep `yaml:"events,omitempty"`

	// Expect holds the run-level expectations.
	Expect Expect `yaml:"expect"`

	// Assertions validate the trace and logs in detail.
	// Supported types: trace_contains, trace_order, trace_count,
	// log_contains, rolled_back
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ConfigOverride replaces the fields it sets in the workflow config.
type ConfigOverride struct {
	AllowCircularCall *bool `yaml:"allow_circular_call,omitempty"`
	LogMaxSize        *int  `yaml:"log_max_size,omitempty"`
	Validation        *bool `yaml:"validation,omitempty"`
}

// Apply returns cfg with the override's fields replaced.
func (o *ConfigOverride) Apply(cfg ir.WorkflowConfig) ir.WorkflowConfig {
	if o == nil {
		return cfg
	}
	if o.AllowCircularCall != nil {
		cfg.AllowCircularCall = *o.AllowCircularCall
	}
	if o.LogMaxSize != nil {
		cfg.LogMaxSize = *o.LogMaxSize
	}
	if o.Validation != nil {
		cfg.Validation = *o.Validation
	}
	return cfg
}

// EventStep is an event dispatched before the run.
type EventStep struct {
	// ID names a declared event.
	ID string `yaml:"id"`

	// Data replaces the event's declared data when set.
	Data map[string]any `yaml:"data,omitempty"`
}

// Expect specifies the expected run outcome.
type Expect struct {
	// ErrorCode is the expected engine error code. Empty means the run
	// must succeed.
	ErrorCode string `yaml:"error_code,omitempty"`

	// ResultsExist lists actions whose results must be externally visible.
	ResultsExist []string `yaml:"results_exist,omitempty"`

	// ResultsAbsent lists actions whose results must not be visible.
	ResultsAbsent []string `yaml:"results_absent,omitempty"`

	// Order is a subsequence the action log must contain.
	Order []string `yaml:"order,omitempty"`

	// LogDigest is the expected digest of the execution logs.
	LogDigest string `yaml:"log_digest,omitempty"`
}

// Assertion validates the trace or logs.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check action completed (with Status, if set)
	// - "trace_order": Check actions completed in order
	// - "trace_count": Check action completed exactly Count times
	// - "log_contains": Check Entry appears in Log
	// - "rolled_back": Check action was rolled back
	Type string `yaml:"type"`

	// Action is the action id (used by trace_contains, trace_count, rolled_back).
	Action string `yaml:"action,omitempty"`

	// Status is the expected completion status (used by trace_contains).
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of completions (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected completion order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Log names the execution log (used by log_contains):
	// action, main, repeated, event or retries.
	Log string `yaml:"log,omitempty"`

	// Entry is the expected log entry (used by log_contains).
	Entry string `yaml:"entry,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertLogContains   = "log_contains"
	AssertRolledBack    = "rolled_back"
)

// logNames lists the names log_contains accepts.
var logNames = []string{"action", "main", "repeated", "event", "retries"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// A relative workflow path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithWorkflow(path, "")
}

// LoadScenarioWithWorkflow is LoadScenario with a default workflow
// directory for scenarios that don't name one.
func LoadScenarioWithWorkflow(path, workflowDir string) (*Scenario, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve workflow path relative to the scenario BEFORE validation
	switch {
	case scenario.Workflow == "":
		scenario.Workflow = workflowDir
	case !filepath.IsAbs(scenario.Workflow):
		scenario.Workflow = filepath.Join(filepath.Dir(path), scenario.Workflow)
	}

	// Validate required fields (now with resolved paths)
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

	if s.Workflow == "" {
		return fmt.Errorf("workflow is required")
	}

	// Validate workflow path exists
	info, err := os.Stat(s.Workflow)
	if os.IsNotExist(err) {
		return fmt.Errorf("workflow directory not found: %s", s.Workflow)
	}
	if err == nil && !info.IsDir() {
		return fmt.Errorf("workflow is not a directory: %s", s.Workflow)
	}

	for i, ev := range s.Events {
		if ev.ID == "" {
			return fmt.Errorf("events[%d]: id is required", i)
		}
	}

	if s.Config != nil && s.Config.LogMaxSize != nil && *s.Config.LogMaxSize <= 0 {
		return fmt.Errorf("config.log_max_size must be positive")
	}

	if s.Expect.isEmpty() && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions must specify at least one check")
	}

	// Validate assertions
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// isEmpty reports whether e checks anything beyond a successful run.
func (e Expect) isEmpty() bool {
	return e.ErrorCode == "" &&
		len(e.ResultsExist) == 0 &&
		len(e.ResultsAbsent) == 0 &&
		len(e.Order) == 0 &&
		e.LogDigest == ""
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
		if a.Status != "" {
			if _, err := ir.ParseStatus(a.Status); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
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
	case AssertLogContains:
		if !isLogName(a.Log) {
			return fmt.Errorf("assertions[%d]: log must be one of %v for log_contains", index, logNames)
		}
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for log_contains", index)
		}
	case AssertRolledBack:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for rolled_back", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func isLogName(name string) bool {
	for _, n := range logNames {
		if n == name {
			return true
		}
	}
	return false
}
