// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"strings"
)

// Grade classifies a coverage percentage against the thresholds.
type Grade string

const (
	GradeLow        Grade = "low"
	GradeAcceptable Grade = "acceptable"
	GradeGood       Grade = "good"
)

// Thresholds classify coverage percentages. Classification is
// advisory by default: a breach changes the reported grade and badge
// color, not the run status, unless FailBelowMinimum opts in.
type Thresholds struct {
	// Low is the percentage below which coverage is graded low.
	Low float64

	// High is the percentage at or above which coverage is graded
	// good. Between Low and High is acceptable.
	High float64

	// FailBelowMinimum makes a low grade an error from the coverage
	// sinks, failing the publishing step. False keeps grading
	// advisory.
	FailBelowMinimum bool
}

// DefaultThresholds returns the conventional 60/80 split.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 60, High: 80}
}

// Classify grades a 0-100 coverage percentage.
func (t Thresholds) Classify(percent float64) Grade {
	switch {
	case percent < t.Low:
		return GradeLow
	case percent >= t.High:
		return GradeGood
	default:
		return GradeAcceptable
	}
}

// BadgeColor maps a grade to the conventional badge color.
func (g Grade) BadgeColor() string {
	switch g {
	case GradeLow:
		return "red"
	case GradeGood:
		return "brightgreen"
	default:
		return "yellow"
	}
}

// CoverageMarkdown renders a coverage summary as markdown: a badge
// line, the overall figure with its grade, and a per-package table.
// The marker, when non-empty, is embedded as an HTML comment so the PR
// commenter can find and replace the summary on re-runs.
func CoverageMarkdown(coverage *Coverage, thresholds Thresholds, marker string) string {
	percent := coverage.LinePercent()
	grade := thresholds.Classify(percent)

	var builder strings.Builder
	if marker != "" {
		builder.WriteString(marker + "\n")
	}

	fmt.Fprintf(&builder,
		"![coverage](https://img.shields.io/badge/coverage-%.1f%%25-%s)\n\n",
		percent, grade.BadgeColor(),
	)
	fmt.Fprintf(&builder, "**Line coverage: %.1f%%** (%s; thresholds %.0f/%.0f)\n",
		percent, grade, thresholds.Low, thresholds.High)

	if len(coverage.Packages) > 0 {
		builder.WriteString("\n| Package | Coverage |\n|---|---|\n")
		for _, pkg := range coverage.Packages {
			fmt.Fprintf(&builder, "| %s | %.1f%% |\n", pkg.Name, pkg.LineRate*100)
		}
	}
	return builder.String()
}

// TestMarkdown renders a test summary as a short markdown block.
func TestMarkdown(summary *TestSummary) string {
	var builder strings.Builder
	if summary.Passed() {
		fmt.Fprintf(&builder, "**Tests passed**: %d run", summary.Tests)
	} else {
		fmt.Fprintf(&builder, "**Tests failed**: %d of %d", summary.Failures+summary.Errors, summary.Tests)
	}
	if summary.Skipped > 0 {
		fmt.Fprintf(&builder, ", %d skipped", summary.Skipped)
	}
	fmt.Fprintf(&builder, " (%.1fs)\n", summary.Time)

	for _, name := range summary.Failed {
		fmt.Fprintf(&builder, "- `%s`\n", name)
	}
	return builder.String()
}
