// Package harness runs YAML-defined conformance scenarios against the
// failure classification and strategy selection pipeline.
//
// A scenario describes a failed operation and its raw error, then asserts
// on the resulting classification and the strategy the factory would pick.
// Golden files pin the full pipeline output so behavioral drift shows up
// as a diff rather than a silent change.
package harness
