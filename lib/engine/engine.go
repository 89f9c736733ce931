// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowline-ci/flowline/lib/artifact"
	"github.com/flowline-ci/flowline/lib/clock"
	"github.com/flowline-ci/flowline/lib/condition"
	"github.com/flowline-ci/flowline/lib/container"
	"github.com/flowline-ci/flowline/lib/graph"
	"github.com/flowline-ci/flowline/lib/pipelinedef"
	"github.com/flowline-ci/flowline/lib/registry"
	"github.com/flowline-ci/flowline/lib/schema"
)

// defaultStepTimeout is used when a step does not specify its own
// timeout.
const defaultStepTimeout = 5 * time.Minute

// defaultGuard gates a job on the success of all its dependencies. It
// stands in for empty guards and is conjoined onto guards that never
// consult dependency outcomes.
var defaultGuard = condition.MustParse("success()")

// ConfigError reports a pipeline definition the engine refuses to run:
// structural validation issues or a cyclic dependency graph. The run
// never starts.
type ConfigError struct {
	// Issues are the validation findings, one per line.
	Issues []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid pipeline: %s", strings.Join(e.Issues, "; "))
}

// CheckoutFunc materializes the event's commit as a working tree at
// path. It is the source collaborator boundary: the engine treats the
// result as an opaque filesystem root.
type CheckoutFunc func(ctx context.Context, event schema.Event, path string) error

// Config configures an Engine.
type Config struct {
	// Workspace is the run's workspace root. Required, absolute.
	Workspace string

	// Executor builds images and runs containers. Required.
	Executor *container.Executor

	// Store is the run-scoped artifact store. Required.
	Store *artifact.Store

	// Publisher pushes images for push-image steps. Optional; a
	// pipeline with a push-image step fails that step when nil.
	Publisher *registry.Publisher

	// Sinks maps publish-report sink names (test-report,
	// coverage-summary, pr-comment) to their implementations.
	Sinks map[string]artifact.Sink

	// Uploader receives publish-artifact uploads to long-term
	// storage. Optional: when nil the artifact stays in the run
	// archive, which is exported at run end regardless.
	Uploader artifact.Sink

	// Checkout materializes source trees for checkout steps.
	// Optional; a pipeline with a checkout step fails that step when
	// nil.
	Checkout CheckoutFunc

	// ArchivePath, when set, is where the artifact store is exported
	// at run end regardless of the run's outcome.
	ArchivePath string

	// RunLog, when non-nil, receives JSONL progress entries.
	RunLog *RunLog

	// DefaultStepTimeout bounds steps without an explicit timeout.
	// Zero means 5m.
	DefaultStepTimeout time.Duration

	// Clock provides time. Nil means clock.Real().
	Clock clock.Clock

	// Logger for run lifecycle events. Nil means slog.Default().
	Logger *slog.Logger
}

// Engine runs pipelines. One Engine serves one run at a time per Run
// call; concurrent Run calls must use distinct workspaces and stores.
type Engine struct {
	workspace   string
	executor    *container.Executor
	store       *artifact.Store
	publisher   *registry.Publisher
	sinks       map[string]artifact.Sink
	uploader    artifact.Sink
	checkout    CheckoutFunc
	archivePath string
	runLog      *RunLog
	stepTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// New creates an Engine.
func New(config Config) (*Engine, error) {
	if config.Workspace == "" {
		return nil, fmt.Errorf("engine: workspace is required")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("engine: container executor is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("engine: artifact store is required")
	}

	stepTimeout := config.DefaultStepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		workspace:   config.Workspace,
		executor:    config.Executor,
		store:       config.Store,
		publisher:   config.Publisher,
		sinks:       config.Sinks,
		uploader:    config.Uploader,
		checkout:    config.Checkout,
		archivePath: config.ArchivePath,
		runLog:      config.RunLog,
		stepTimeout: stepTimeout,
		clock:       clk,
		logger:      logger,
	}, nil
}

// jobOutcome is what a job goroutine reports back to the scheduler.
type jobOutcome struct {
	ID     string
	Result schema.RunResult
}

// Run executes the pipeline for the given event and returns the
// aggregated result.
//
// Fatal errors (invalid definition, cyclic graph, a guard referencing
// a non-terminal job) return a nil result: the run either never
// started or its scheduling contract was violated. Job failures are
// not errors; they are recorded in the result with overall status
// failure. Cancelling ctx cancels all non-terminal jobs and returns a
// result with overall status cancelled.
func (e *Engine) Run(ctx context.Context, pipeline *schema.Pipeline, event schema.Event) (*schema.PipelineResult, error) {
	if err := event.Validate(); err != nil {
		return nil, &ConfigError{Issues: []string{err.Error()}}
	}
	if issues := pipelinedef.Validate(pipeline); len(issues) > 0 {
		return nil, &ConfigError{Issues: issues}
	}

	jobGraph, err := graph.New(pipeline.Jobs)
	if err != nil {
		return nil, &ConfigError{Issues: []string{err.Error()}}
	}

	// Parse every guard up front; a malformed guard must fail before
	// any job runs. An empty guard is the default success() gate, and
	// a guard that never consults dependency outcomes gets the same
	// gate conjoined: an event-only guard narrows when a job runs, it
	// does not exempt the job from failed dependencies.
	guards := make(map[string]condition.Expr, len(pipeline.Jobs))
	for _, job := range pipeline.Jobs {
		expr := defaultGuard
		if job.Guard != "" {
			parsed, err := condition.Parse(job.Guard)
			if err != nil {
				return nil, &ConfigError{Issues: []string{fmt.Sprintf("job %q: invalid guard: %v", job.ID, err)}}
			}
			if !condition.UsesOutcome(parsed) {
				parsed = &condition.And{Left: defaultGuard, Right: parsed}
			}
			expr = parsed
		}
		guards[job.ID] = expr
	}

	started := e.clock.Now()
	e.runLog.Start(pipeline.Name, event, len(pipeline.Jobs))
	e.logger.Info("run started",
		"pipeline", pipeline.Name,
		"event", string(event.Type),
		"branch", event.Branch,
		"sha", event.ShortSHA(),
		"jobs", len(pipeline.Jobs),
	)

	results, schedulerErr := e.schedule(ctx, pipeline, event, jobGraph, guards)

	result := e.aggregate(pipeline, event, results, started, ctx.Err() != nil)
	e.runLog.Complete(result.Status, result.Duration)
	e.logger.Info("run finished",
		"pipeline", pipeline.Name,
		"status", string(result.Status),
		"duration", result.Duration,
	)

	// The archive is written on every path, including failure and
	// cancellation: partial artifacts are exactly what failure
	// investigation needs.
	if e.archivePath != "" {
		if _, exportErr := e.store.Export(e.archivePath, pipeline.Name, string(result.Status)); exportErr != nil {
			e.logger.Error("artifact archive export failed", "path", e.archivePath, "error", exportErr)
			if schedulerErr == nil {
				schedulerErr = exportErr
			}
		}
	}

	if schedulerErr != nil {
		return nil, schedulerErr
	}
	return result, nil
}

// schedule drives every job to terminal status and returns the per-job
// results. A non-nil error means the scheduling contract was violated
// (guard referencing a non-terminal job); all running jobs are
// cancelled and drained before returning.
func (e *Engine) schedule(ctx context.Context, pipeline *schema.Pipeline, event schema.Event, jobGraph *graph.Graph, guards map[string]condition.Expr) (map[string]schema.RunResult, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	state := graph.NewState(jobGraph)
	results := make(map[string]schema.RunResult, len(pipeline.Jobs))
	done := make(chan jobOutcome)
	running := 0

	drain := func() {
		cancelRun()
		state.CancelNonTerminal()
		for running > 0 {
			outcome := <-done
			running--
			outcome.Result.Status = schema.StatusCancelled
			results[outcome.ID] = outcome.Result
			e.runLog.Job(outcome.Result)
		}
		// Pending jobs never produced an outcome; record them.
		for id, status := range state.Snapshot() {
			if _, recorded := results[id]; !recorded && status == schema.StatusCancelled {
				result := schema.RunResult{JobID: id, Status: schema.StatusCancelled}
				results[id] = result
				e.runLog.Job(result)
			}
		}
	}

	for {
		// Dispatch every ready job. Skipping a job is itself terminal
		// and can make dependents ready, so rescan until quiescent.
		for progressed := true; progressed; {
			progressed = false
			for _, id := range state.Ready() {
				job, _ := pipeline.JobByID(id)

				verdict, err := guards[id].Eval(&condition.Context{
					Event:     event,
					DependsOn: job.DependsOn,
					Results:   results,
				})
				if err != nil {
					// Unresolved reference or evaluator defect: a
					// scheduler bug, fatal to the run.
					drain()
					return results, fmt.Errorf("evaluating guard for job %q: %w", id, err)
				}

				if !verdict {
					if err := state.Transition(id, schema.StatusPending, schema.StatusSkipped); err != nil {
						drain()
						return results, err
					}
					result := schema.RunResult{JobID: id, Status: schema.StatusSkipped}
					results[id] = result
					e.runLog.Job(result)
					e.logger.Info("job skipped", "job", id)
					progressed = true
					continue
				}

				if err := state.Transition(id, schema.StatusPending, schema.StatusRunning); err != nil {
					drain()
					return results, err
				}
				running++
				go func(job schema.Job) {
					done <- e.runJob(runCtx, pipeline, job, event)
				}(job)
			}
		}

		if running == 0 {
			// Nothing running and nothing ready: the graph is acyclic,
			// so every job is terminal.
			return results, nil
		}

		select {
		case outcome := <-done:
			running--
			if err := state.Transition(outcome.ID, schema.StatusRunning, outcome.Result.Status); err != nil {
				// The run was cancelled while this outcome was in
				// flight; the state's verdict wins.
				outcome.Result.Status = state.Status(outcome.ID)
			}
			results[outcome.ID] = outcome.Result
			e.runLog.Job(outcome.Result)
			e.logger.Info("job finished",
				"job", outcome.ID,
				"status", string(outcome.Result.Status),
				"duration", outcome.Result.Duration,
			)

		case <-ctx.Done():
			e.logger.Info("run cancelled, signalling jobs", "running", running)
			drain()
			return results, nil
		}
	}
}

// aggregate folds per-job results into the run's overall result.
// Failure dominates, then cancellation; skipped jobs never affect the
// overall status.
func (e *Engine) aggregate(pipeline *schema.Pipeline, event schema.Event, results map[string]schema.RunResult, started time.Time, cancelled bool) *schema.PipelineResult {
	status := schema.StatusSuccess
	for _, result := range results {
		if result.Status == schema.StatusFailure {
			status = schema.StatusFailure
			break
		}
	}
	if status != schema.StatusFailure && cancelled {
		status = schema.StatusCancelled
	}

	return &schema.PipelineResult{
		Pipeline: pipeline.Name,
		Event:    event,
		Status:   status,
		Jobs:     results,
		Duration: e.clock.Now().Sub(started),
		Started:  started.UTC(),
	}
}
