// Package runner executes scripted conduct scenarios. It compiles each
// scenario's thread scripts into conductor bodies, runs them on a fresh
// Conductor per iteration, checks the declared expectations, and
// aggregates results for the run as a whole.
//
// Scenarios are independent, so a run can execute them serially or on a
// bounded worker pool. Results are collected into a RunnerResult with
// per-scenario status, the surfaced error if any, and aggregate counts.
package runner
