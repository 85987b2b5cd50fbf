// Package harness runs deployment scenarios end to end.
//
// A scenario declares a module inline and a sequence of runs against one
// fresh journal and one simulated chain. Each run may inject faults and
// states what the report should look like. This is how the resume
// guarantees are exercised without a live network: fail a run, clear the
// fault, run again and check that nothing succeeded twice.
//
// # Scenario Format
//
//	name: retry_after_revert
//	description: "A reverted deploy is retried on the next run"
//	environment: sepolia
//	module:
//	  module: Token
//	  actions:
//	    - id: Token
//	      kind: deploy-instance
//	      contract: Token
//	runs:
//	  - faults: { "Token#Token": fail }
//	    expect:
//	      overall: partial-failure
//	      actions: { "Token#Token": failed }
//	  - expect:
//	      overall: success
//	      executed: ["Token#Token"]
//	assertions:
//	  - type: executed_count
//	    action: "Token#Token"
//	    count: 2
//	  - type: journal
//	    action: "Token#Token"
//	    expect: { status: success, attempt: 2 }
//
// module_file may replace module; it is resolved relative to the scenario
// file and may be YAML, JSON or CUE.
//
// # Faults
//
//   - fail, timeout, pending, unavailable: injected into the simulator
//   - crash: the terminal journal write of the action fails, as if the
//     process died after the chain accepted the call
//
// Faults last for one run.
//
// # Assertion Types
//
//   - executed_count: the action reached the executor exactly N times
//   - executed_order: actions were first executed in this order
//   - journal: the action's journal entry matches (status, attempt,
//     error_kind, result subset)
//   - export: an export of the last report matches a result subset
//
// # Determinism
//
// Run ids come from a sequential generator named after the scenario,
// concurrency defaults to 1 and the simulator derives every address from
// the idempotency key, so the rendered reports are stable enough for
// golden files.
package harness
