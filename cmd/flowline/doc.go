// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// The flowline command validates, inspects, and executes pipeline
// definitions.
//
//	flowline validate ci.jsonc      check a definition for issues
//	flowline graph ci.jsonc         print the job graph in run order
//	flowline run ci.jsonc           execute a pipeline for an event
//	flowline history                list recorded runs
//
// Run output goes to stderr as structured logs; report sinks print to
// stdout. A pipeline that ran and failed exits 1, cancellation exits
// 2, and configuration errors print a message and exit 1.
package main
