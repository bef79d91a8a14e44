// Package harness provides conformance testing for actionbus workflows.
//
// The harness loads a CUE workflow, runs it on a real bus and checks the
// resulting logs, trace and results against the scenario's expectations.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	workflow: ../workflows/checkout   # relative to the scenario file;
//	                                  # LoadScenarioWithWorkflow supplies a default
//	run_id: test-run-checkout         # optional fixed run id
//	config:                           # optional overrides
//	  allow_circular_call: true
//	events:                           # dispatched before the run
//	  - id: order.placed
//	    data: { source: web }
//	expect:
//	  error_code: HANDLER_FAILED      # empty means the run must succeed
//	  results_exist: [order.load]
//	  results_absent: [order.ship]
//	  order: [order.load, order.charge]
//	  log_digest: "..."
//	assertions:
//	  - type: trace_count
//	    action: order.load
//	    count: 1
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies an action completed, optionally with a status
//   - trace_order: Verifies actions completed in the specified order
//   - trace_count: Verifies an action completed exactly N times
//   - log_contains: Verifies an entry appears in a named execution log
//   - rolled_back: Verifies an action was rolled back
//
// # Deterministic Testing
//
// All scenarios execute with a fixed run id and the bus's logical clock,
// and every run is persisted to an isolated in-memory SQLite store and
// read back, so identical scenarios produce identical golden snapshots.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/checkout.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
