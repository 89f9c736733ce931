// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the flowline command tree: a small dispatcher
// over pflag with structured help, typo suggestions for unknown
// commands and flags, and exit-code plumbing for commands whose
// non-zero exit is an answer rather than an error.
package cli
