// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph builds and validates the pipeline dependency graph and
// tracks per-job status during a run.
//
// [New] validates the graph at load time: job IDs must be unique and
// non-empty, dependency edges must reference declared jobs, and the
// graph must be acyclic. A cycle is rejected with a [CycleError] naming
// one cycle path, before any job runs.
//
// [Graph.TopologicalOrder] returns a deterministic ordering (Kahn's
// algorithm with a lexically-ordered ready queue). The scheduler does
// not execute jobs in this order (independent jobs run concurrently),
// but the order is stable for display and for tests.
//
// [State] is the mutable per-run status map. Transitions are validated:
// pending → running/skipped/cancelled, running → success/failure/
// cancelled. A job becomes ready when every dependency is terminal;
// whether it then runs or is skipped is the guard's decision
// (lib/condition), not the graph's.
package graph
