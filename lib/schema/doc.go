// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the data model shared across Flowline: the
// triggering Event, the Pipeline definition (jobs, steps, build
// specifications), and the per-run result types.
//
// Definition types (Pipeline, Job, Step, BuildSpec) are created once at
// load time by lib/pipelinedef and never mutated during a run. Result
// types (RunResult, PipelineResult) are produced by lib/engine as jobs
// reach terminal status. Both families carry JSON tags: definitions are
// authored as JSONC files, results are persisted to the run history
// store and the JSONL result log.
package schema
