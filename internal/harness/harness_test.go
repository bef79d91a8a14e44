package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actionbus/internal/ir"
)

// writeWorkflow writes a single-file CUE workflow package and returns its
// directory.
func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "workflow.cue"), []byte("package test\n\n"+content), 0644)
	require.NoError(t, err)
	return dir
}

func checkoutScenario() *Scenario {
	return &Scenario{
		Name:        "checkout",
		Description: "Checkout runs to completion",
		Workflow:    filepath.Join("testdata", "workflows", "checkout"),
		RunID:       "test-run-checkout",
		Expect: Expect{
			ResultsExist: []string{"order.load", "order.charge"},
		},
	}
}

func TestRun_Checkout(t *testing.T) {
	result, err := Run(checkoutScenario())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "test-run-checkout", result.RunID)
	assert.Empty(t, result.ErrorCode)

	assert.Equal(t, []string{"order.load", "order.charge"}, result.Log.ActionLog)
	assert.Equal(t, []string{"order.load.Success", "order.charge.Success"}, result.Log.MainLog)
	assert.Equal(t, []string{}, result.Log.EventLog, "logs read back from the store are never nil")

	require.Len(t, result.Trace, 4)
	assert.Equal(t, ir.TraceEntry{Seq: 1, Kind: ir.TraceDispatch, ActionID: "order.load"}, result.Trace[0])
	assert.Equal(t, ir.TraceEntry{Seq: 4, Kind: ir.TraceComplete, ActionID: "order.charge", Status: ir.StatusSuccess}, result.Trace[3])

	load := result.Results["order.load"]
	assert.Equal(t, ir.StatusSuccess, load.Status)
	assert.Equal(t, map[string]any{"id": int64(1)}, load.Data)
}

func TestRun_DigestMatchesLog(t *testing.T) {
	result, err := Run(checkoutScenario())
	require.NoError(t, err)

	assert.Equal(t, ir.MustLogDigest(result.Log), result.Digest)
}

func TestRun_LogDigestExpectation(t *testing.T) {
	first, err := Run(checkoutScenario())
	require.NoError(t, err)

	s := checkoutScenario()
	s.Expect.LogDigest = first.Digest
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	s.Expect.LogDigest = "0000"
	result, err = Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected log digest 0000")
}

func TestRun_Deterministic(t *testing.T) {
	var digests []string
	var traces [][]ir.TraceEntry
	for range 3 {
		result, err := Run(checkoutScenario())
		require.NoError(t, err)
		digests = append(digests, result.Digest)
		traces = append(traces, result.Trace)
	}

	assert.Equal(t, digests[0], digests[1])
	assert.Equal(t, digests[1], digests[2])
	assert.Equal(t, traces[0], traces[2])
}

func TestRun_Events(t *testing.T) {
	s := checkoutScenario()
	s.Events = []EventStep{{ID: "order.placed", Data: map[string]any{"source": "api"}}}
	s.Expect.Order = []string{"order.audit", "order.load", "order.charge"}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, []string{"order.placed"}, result.Log.EventLog)
	require.NotEmpty(t, result.Trace)
	assert.Equal(t, ir.TraceEntry{Seq: 1, Kind: ir.TraceEvent, EventID: "order.placed"}, result.Trace[0])
}

func TestRun_UndefinedEvent(t *testing.T) {
	s := checkoutScenario()
	s.Events = []EventStep{{ID: "order.missing"}}
	s.Expect = Expect{ErrorCode: "EVENT_NOT_DEFINED"}

	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.RunID, "the run never started")
	assert.Empty(t, result.Trace)
}

func TestRun_ExpectedErrorCode(t *testing.T) {
	s := &Scenario{
		Name:        "panic",
		Description: "Panic rolls back",
		Workflow:    filepath.Join("testdata", "workflows", "failing"),
		Expect:      Expect{ErrorCode: "HANDLER_FAILED"},
		Assertions:  []Assertion{{Type: AssertRolledBack, Action: "order.charge"}},
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "HANDLER_FAILED", result.ErrorCode)
	assert.Contains(t, result.Error, "order.ship")
	assert.Equal(t, "test-run-default", result.RunID)
}

func TestRun_UnexpectedFailure(t *testing.T) {
	s := &Scenario{
		Name:        "panic",
		Description: "Panic is not expected",
		Workflow:    filepath.Join("testdata", "workflows", "failing"),
		Expect:      Expect{ResultsExist: []string{"order.load"}},
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected run to succeed, got HANDLER_FAILED")
}

func TestRun_ExpectedErrorButSucceeded(t *testing.T) {
	s := checkoutScenario()
	s.Expect = Expect{ErrorCode: "HANDLER_FAILED"}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"expected error code HANDLER_FAILED, run succeeded"}, result.Errors)
}

func TestRun_ResultsAbsent(t *testing.T) {
	s := checkoutScenario()
	s.Expect = Expect{ResultsAbsent: []string{"order.load", "order.audit"}}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"expected no result for order.load"}, result.Errors)
}

func TestRun_ValidationErrorCode(t *testing.T) {
	dir := writeWorkflow(t, `
action: {
	"a": {handler: "teleport"}
}
run: ["a"]
`)
	s := &Scenario{
		Name:        "invalid",
		Description: "Unknown handler",
		Workflow:    dir,
		Expect:      Expect{ErrorCode: "E104"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}

func TestRun_CircularCall(t *testing.T) {
	dir := writeWorkflow(t, `
action: {
	"tick": {handler: "noop", repeatable: true}
	"start": {handler: "noop"}
}
trigger: [
	{subject: "start", action: "tick"},
	{subject: "tick", action: "tick"},
]
run: ["start"]
`)
	s := &Scenario{
		Name:        "circular",
		Description: "Repeated completions without budget",
		Workflow:    dir,
		Expect:      Expect{ErrorCode: "CIRCULAR_CALL_ACTION"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"start", "tick", "tick"}, result.Log.ActionLog)
}

func TestRun_MissingWorkflow(t *testing.T) {
	s := checkoutScenario()
	s.Workflow = filepath.Join(t.TempDir(), "missing")

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load workflow")
}

func TestHarness_WithLogger(t *testing.T) {
	h := New(WithLogger(slogt.New(t)))

	result, err := h.Run(context.Background(), checkoutScenario())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestHarness_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := checkoutScenario()
	s.Expect = Expect{ErrorCode: "RUN_CANCELLED"}

	result, err := New().Run(ctx, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestConfigOverride_Apply(t *testing.T) {
	base := ir.WorkflowConfig{LogMaxSize: 100, Validation: true}

	var none *ConfigOverride
	assert.Equal(t, base, none.Apply(base))

	on, size, off := true, 5, false
	o := &ConfigOverride{AllowCircularCall: &on, LogMaxSize: &size, Validation: &off}
	assert.Equal(t, ir.WorkflowConfig{AllowCircularCall: true, LogMaxSize: 5}, o.Apply(base))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
