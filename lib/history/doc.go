// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package history persists completed pipeline runs to a local SQLite
// database so past runs can be listed and inspected after the process
// that executed them is gone.
//
// The store is append-only: one row per run, written once when the run
// reaches terminal status. Queryable columns (pipeline, branch, sha,
// status, start time) are stored as plain columns; the per-job results
// travel as a single CBOR blob, since they are only ever read back
// whole for display.
package history
