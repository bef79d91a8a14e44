package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/actionbus/internal/ir"
)

// GoldenDir is where golden snapshots live, relative to the test package.
const GoldenDir = "testdata/golden"

// GoldenSuffix is the golden file extension.
const GoldenSuffix = ".golden"

// Snapshot captures the stored outcome of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string          `json:"scenario_name"`
	RunID        string          `json:"run_id"`
	ErrorCode    string          `json:"error_code,omitempty"`
	Log          ir.LogSnapshot  `json:"log"`
	Trace        []ir.TraceEntry `json:"trace"`
}

// NewSnapshot builds the snapshot of a scenario result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: scenarioName,
		RunID:        result.RunID,
		ErrorCode:    result.ErrorCode,
		Log:          result.Log,
		Trace:        result.Trace,
	}
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, e := range s.Trace {
		entry := map[string]any{
			"seq":  e.Seq,
			"kind": e.Kind,
		}
		if e.ActionID != "" {
			entry["action_id"] = e.ActionID
		}
		if e.EventID != "" {
			entry["event_id"] = e.EventID
		}
		if e.Status != "" {
			entry["status"] = e.Status
		}
		traceList[i] = entry
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"log": map[string]any{
			"action_log":   orEmpty(s.Log.ActionLog),
			"main_log":     orEmpty(s.Log.MainLog),
			"repeated_log": orEmpty(s.Log.RepeatedLog),
			"event_log":    orEmpty(s.Log.EventLog),
			"retries_log":  orEmpty(s.Log.RetriesLog),
		},
		"trace": traceList,
	}
	if s.ErrorCode != "" {
		result["error_code"] = s.ErrorCode
	}
	return result
}

// Marshal renders the snapshot as canonical JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's snapshot against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := NewSnapshot(scenarioName, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	// Compare with golden file using goldie
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, scenarioName, data)

	return nil
}

// ErrGoldenMismatch is returned by CompareGolden when the snapshot
// differs from the golden file.
var ErrGoldenMismatch = errors.New("snapshot does not match golden file")

// GoldenPath returns the golden file for a scenario under dir.
func GoldenPath(dir, scenarioName string) string {
	return filepath.Join(dir, scenarioName+GoldenSuffix)
}

// CompareGolden checks a result's snapshot against the golden file in dir,
// outside of go test. A missing golden file is reported as an error
// wrapping os.ErrNotExist.
func CompareGolden(dir, scenarioName string, result *Result) error {
	snapshot := NewSnapshot(scenarioName, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}
	want, err := os.ReadFile(GoldenPath(dir, scenarioName))
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("%s: %w", scenarioName, ErrGoldenMismatch)
	}
	return nil
}

// UpdateGolden writes a result's snapshot to the golden file in dir,
// creating the directory if needed.
func UpdateGolden(dir, scenarioName string, result *Result) error {
	snapshot := NewSnapshot(scenarioName, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	if err := os.WriteFile(GoldenPath(dir, scenarioName), data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}
