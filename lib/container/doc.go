// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package container drives the container runtime for pipeline jobs:
// building images from a BuildSpec and running step commands inside
// them with bind-mounted host directories.
//
// The package talks to the runtime through its command-line interface
// (docker or a compatible CLI) rather than a daemon API. The Runner
// interface is the seam between argument construction and process
// execution: the Executor builds the full argument vector, a Runner
// runs it. Tests substitute a recording Runner; production uses
// ExecRunner, which runs the process in its own process group and
// escalates SIGTERM to SIGKILL on cancellation.
//
// Build semantics follow the runtime's constraints: a multi-platform
// build cannot be loaded into the local image store, so the Executor
// rejects the combination before invoking the runtime at all.
package container
