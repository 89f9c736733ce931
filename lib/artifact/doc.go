// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact implements the run-scoped artifact store: the
// process-wide staging area that receives files written by job
// executions and exposes them by name to downstream consumers (report
// sinks, dependent jobs, the export archive).
//
// The store is append-only within a run. [Store.Put] registers a file
// under a run-unique name; registering a name twice is a
// [ConflictError] regardless of content. [Store.Get] resolves a name
// for any consumer, independent of which job produced it. This is how
// a report job reads test output produced by the test job.
//
// Every artifact receives a content-addressed reference
// (flart-<12 hex chars>) derived from a domain-keyed BLAKE3 hash of
// the file bytes.
//
// At run end, [Store.Export] writes everything to a single archive
// file with per-entry compression (zstd for text-like content, LZ4 for
// binary, stored for already-compressed formats) and a deterministic
// CBOR manifest. Export runs regardless of the run's outcome; the
// retention policy is "always".
package artifact
