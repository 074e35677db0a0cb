// Package harness runs conformance scenarios against the scheduler.
//
// A scenario names an application definition, a flow of user edits and
// history moves, and assertions over the resulting journal and layout.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: chain
//	description: "An edit propagates through a chain of callbacks"
//	app: ../apps/chain.json
//	flow:
//	  - set:
//	      id: in
//	      props: { value: 5 }
//	  - history: undo
//	assertions:
//	  - type: run_order
//	    callbacks: [mid.value, out.children]
//	  - type: run_count
//	    callback: mid.value
//	    outcome: completed
//	    count: 3
//	  - type: final_props
//	    id: out
//	    expect: { children: "value 2" }
//	  - type: error_count
//	    count: 0
//
// The app path is relative to the scenario file. Ids in set steps are
// strings, or objects for wildcard ids.
//
// # Assertion Types
//
//   - run_order: the callbacks first ran, in any outcome, in this order
//   - run_count: the callback ran exactly count times, optionally only
//     counting one outcome
//   - final_props: the component's props contain expect (subset match)
//   - error_count: exactly count errors were reported
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory journal with groups named g1,
// g2, ... and at most one callback executing at a time, so the same
// scenario always yields the same trace. Callbacks are served by the
// clientside functions of Builtins, under the "harness" namespace.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/chain.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
