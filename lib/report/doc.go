// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package report turns raw test and coverage artifacts into
// human-facing output. It hosts the three report collaborators a
// pipeline can publish to:
//
//   - TestReport parses a JUnit-style XML artifact and renders a
//     pass/fail summary.
//   - CoverageSummary parses a Cobertura-style XML artifact and
//     renders a markdown summary with a badge, classified against two
//     thresholds.
//   - PRComment posts the coverage summary as a pull request comment,
//     replacing the previous run's comment instead of stacking.
//
// Each collaborator implements artifact.Sink and is fed by the
// store's Publish operation.
//
// Coverage thresholds classify, they never fail: a run with coverage
// below the low threshold is reported as low and still succeeds. This
// is deliberate policy, not a missing feature.
package report
