// Package harness runs recorded event streams through the accumulator and
// checks the resulting store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: reload_drops_orphan
//	description: "What this scenario validates"
//	events:
//	  - {kind: module, module: app, label: m1}
//	  - {kind: track, key: t, label: t1}
//	  - {kind: construct, name: source, label: src}
//	  - {end: src}
//	  - {end: t1, node_ref: src}
//	  - {end: m1}
//	assertions:
//	  - type: track
//	    key: t
//	    version: 0
//	    shape: source
//
// Every step is an ir.Event. Seq defaults to the previous seq plus one and
// phase defaults to begin. A step with a label can be closed with end,
// which fills in phase, scope and kind, and referenced through node_ref,
// operator_ref, subscription_ref and owner_ref.
//
// # Assertion Types
//
//   - track: the track exists; optional version, structural, history
//     (length), bound, dynamic, parent and shape are compared
//   - track_absent: no track is registered under key
//   - subscription_open, subscription_closed: state of a labelled
//     subscription, optionally whether its teardown was synthesized
//   - emission_count: number of emissions recorded for a track
//   - node_shape: shape of a labelled construct
//
// # Golden Files
//
// RunWithGolden renders a canonical JSON Summary of the final tracks and
// the changes published while running, and compares it with goldie against
// testdata/golden/<name>.golden.
package harness
