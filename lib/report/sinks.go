// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/flowline-ci/flowline/lib/schema"
)

// CommentMarker is the hidden marker embedded in PR coverage comments
// so re-runs replace the previous comment instead of stacking.
const CommentMarker = "<!-- flowline-coverage -->"

// TestReport is the sink for JUnit-style test artifacts. It renders a
// pass/fail summary to Output. A failing report is not an error from
// the sink's perspective: the job's status comes from the test step's
// exit code, the report only describes it.
type TestReport struct {
	output io.Writer
	logger *slog.Logger
}

// NewTestReport creates a TestReport writing to output. A nil output
// discards; a nil logger means slog.Default().
func NewTestReport(output io.Writer, logger *slog.Logger) *TestReport {
	if output == nil {
		output = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TestReport{output: output, logger: logger}
}

// Publish implements artifact.Sink.
func (t *TestReport) Publish(ctx context.Context, a schema.Artifact, content io.Reader) error {
	summary, err := ParseJUnit(content)
	if err != nil {
		return fmt.Errorf("test report %q: %w", a.Name, err)
	}

	t.logger.Info("test report",
		"artifact", a.Name,
		"tests", summary.Tests,
		"failures", summary.Failures,
		"errors", summary.Errors,
		"skipped", summary.Skipped,
	)
	_, err = io.WriteString(t.output, TestMarkdown(summary))
	return err
}

// CoverageSummary is the sink for Cobertura-style coverage artifacts.
// It renders a markdown summary with a badge to Output, graded against
// the thresholds. Grading is advisory unless the thresholds set
// FailBelowMinimum.
type CoverageSummary struct {
	output     io.Writer
	thresholds Thresholds
	logger     *slog.Logger
}

// NewCoverageSummary creates a CoverageSummary. Zero threshold
// percentages mean DefaultThresholds.
func NewCoverageSummary(output io.Writer, thresholds Thresholds, logger *slog.Logger) *CoverageSummary {
	if output == nil {
		output = io.Discard
	}
	if thresholds.Low == 0 && thresholds.High == 0 {
		defaults := DefaultThresholds()
		thresholds.Low, thresholds.High = defaults.Low, defaults.High
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CoverageSummary{output: output, thresholds: thresholds, logger: logger}
}

// Publish implements artifact.Sink.
func (c *CoverageSummary) Publish(ctx context.Context, a schema.Artifact, content io.Reader) error {
	coverage, err := ParseCobertura(content)
	if err != nil {
		return fmt.Errorf("coverage summary %q: %w", a.Name, err)
	}

	percent := coverage.LinePercent()
	grade := c.thresholds.Classify(percent)
	c.logger.Info("coverage summary",
		"artifact", a.Name,
		"line_percent", fmt.Sprintf("%.1f", percent),
		"grade", string(grade),
	)
	if _, err := io.WriteString(c.output, CoverageMarkdown(coverage, c.thresholds, "")); err != nil {
		return err
	}
	if c.thresholds.FailBelowMinimum && grade == GradeLow {
		return fmt.Errorf("coverage %.1f%% is below the %.0f%% minimum", percent, c.thresholds.Low)
	}
	return nil
}

// CommentClient posts and replaces pull request comments. Satisfied by
// *forge.Client.
type CommentClient interface {
	UpsertComment(ctx context.Context, repo string, number int, marker, body string) error
}

// PRComment is the sink posting a coverage summary as a pull request
// comment. Only meaningful for pull_request events; for any other
// event the sink logs and does nothing, so a pipeline can list it
// unconditionally.
type PRComment struct {
	client     CommentClient
	event      schema.Event
	thresholds Thresholds
	logger     *slog.Logger
}

// NewPRComment creates a PRComment for the run's event.
func NewPRComment(client CommentClient, event schema.Event, thresholds Thresholds, logger *slog.Logger) *PRComment {
	if thresholds.Low == 0 && thresholds.High == 0 {
		defaults := DefaultThresholds()
		thresholds.Low, thresholds.High = defaults.Low, defaults.High
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PRComment{client: client, event: event, thresholds: thresholds, logger: logger}
}

// Publish implements artifact.Sink.
func (p *PRComment) Publish(ctx context.Context, a schema.Artifact, content io.Reader) error {
	if p.event.Type != schema.EventPullRequest {
		p.logger.Info("skipping PR comment for non-PR event",
			"artifact", a.Name,
			"event", string(p.event.Type),
		)
		return nil
	}
	if p.client == nil {
		return fmt.Errorf("pr-comment sink: no forge client configured")
	}
	if p.event.Repo == "" {
		return fmt.Errorf("pr-comment sink: event has no repository slug")
	}

	coverage, err := ParseCobertura(content)
	if err != nil {
		return fmt.Errorf("pr comment %q: %w", a.Name, err)
	}

	body := CoverageMarkdown(coverage, p.thresholds, CommentMarker)
	if err := p.client.UpsertComment(ctx, p.event.Repo, p.event.PRNumber, CommentMarker, body); err != nil {
		return fmt.Errorf("pr comment %q: %w", a.Name, err)
	}
	p.logger.Info("posted coverage comment",
		"repo", p.event.Repo,
		"pr", p.event.PRNumber,
	)
	return nil
}
