// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger decides which forge events start pipeline runs and
// cancels runs that newer events supersede.
//
// The intake policy is narrow on purpose: only pushes to the trunk
// branch and pull requests targeting it start runs. Everything else
// (pushes to feature branches, PRs against release branches) is
// rejected at the door with a reason, before any pipeline is loaded.
//
// Supersede tracking is keyed by what an event logically replaces: a
// push supersedes earlier pushes to the same branch, a pull request
// event supersedes earlier events for the same PR number. Beginning a
// run cancels the in-flight run under the same key; the cancellation
// flows through the run's context into the engine, which signals
// running containers and marks non-terminal jobs cancelled.
package trigger
