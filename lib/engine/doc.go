// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine orchestrates a pipeline run: it validates the
// definition, builds the dependency graph, and drives jobs to terminal
// status.
//
// Scheduling is cooperative and graph-driven. Jobs whose dependencies
// are all terminal become ready; each ready job's guard is evaluated
// against the event and the upstream results, and the job either
// starts in its own goroutine or is marked skipped. Skipped is
// terminal, so a skip immediately unblocks dependents for their own
// guard evaluation; that transitive gating is the only failure
// propagation mechanism between jobs. Independent jobs run
// concurrently and share nothing but the artifact store and the
// status map.
//
// Within a job, steps run strictly sequentially. A failing step marks
// the job failed and, per its on_failure policy, either aborts the
// remaining steps or lets them run; collect-artifact steps always
// attempt to run either way, so partial test output still reaches the
// store.
//
// Cancelling the run context cancels every non-terminal job; running
// containers receive a termination signal with a bounded grace period
// before the forced kill. At run end the artifact store is exported to
// an archive regardless of the run's outcome.
package engine
