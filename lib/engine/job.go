// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowline-ci/flowline/lib/container"
	"github.com/flowline-ci/flowline/lib/registry"
	"github.com/flowline-ci/flowline/lib/schema"
)

// runJob executes a job's steps sequentially and returns its terminal
// outcome. Called in its own goroutine; communicates with the
// scheduler only through the returned outcome and with sibling jobs
// only through the artifact store.
func (e *Engine) runJob(ctx context.Context, pipeline *schema.Pipeline, job schema.Job, event schema.Event) jobOutcome {
	start := e.clock.Now()
	logger := e.logger.With("job", job.ID)
	logger.Info("job started", "steps", len(job.Steps))

	// builtImage tracks the most recent build-image tag within this
	// job, the implicit image for later run-in-container steps.
	var builtImage string
	var firstError string
	aborted := false
	cancelled := false

	for _, step := range job.Steps {
		// After an abort-job failure, only artifact collection still
		// attempts to run: partial results must reach the store.
		if aborted && step.Action != schema.ActionCollectArtifact {
			e.runLog.Step(job.ID, step.Name, "skipped", 0, "")
			continue
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		stepStart := e.clock.Now()
		err := e.runStep(ctx, pipeline, job, step, event, &builtImage)
		duration := e.clock.Now().Sub(stepStart)

		if err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			if firstError == "" {
				firstError = fmt.Sprintf("step %q: %v", step.Name, err)
			}
			e.runLog.Step(job.ID, step.Name, "failed", duration, err.Error())
			logger.Error("step failed", "step", step.Name, "error", err, "duration", duration)

			if step.OnFailure != schema.FailureContinue {
				aborted = true
			}
			continue
		}

		e.runLog.Step(job.ID, step.Name, "ok", duration, "")
		logger.Info("step finished", "step", step.Name, "duration", duration)
	}

	status := schema.StatusSuccess
	switch {
	case cancelled:
		status = schema.StatusCancelled
	case firstError != "":
		status = schema.StatusFailure
	}

	return jobOutcome{
		ID: job.ID,
		Result: schema.RunResult{
			JobID:     job.ID,
			Status:    status,
			Artifacts: e.store.ByJob(job.ID),
			Duration:  e.clock.Now().Sub(start),
			Error:     firstError,
		},
	}
}

// runStep dispatches a single step by action, bounded by the step's
// timeout (or the engine default).
func (e *Engine) runStep(ctx context.Context, pipeline *schema.Pipeline, job schema.Job, step schema.Step, event schema.Event, builtImage *string) error {
	timeout := e.stepTimeout
	if step.Timeout != "" {
		parsed, err := time.ParseDuration(step.Timeout)
		if err != nil {
			// Validate catches this before the run; fail loud if not.
			return fmt.Errorf("invalid timeout %q: %w", step.Timeout, err)
		}
		timeout = parsed
	}
	var gracePeriod time.Duration
	if step.GracePeriod != "" {
		parsed, err := time.ParseDuration(step.GracePeriod)
		if err != nil {
			return fmt.Errorf("invalid grace_period %q: %w", step.GracePeriod, err)
		}
		gracePeriod = parsed
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch step.Action {
	case schema.ActionCheckout:
		if e.checkout == nil {
			return fmt.Errorf("no source collaborator configured for checkout")
		}
		path := step.Params["path"]
		if path == "" {
			path = "."
		}
		return e.checkout(stepCtx, event, e.resolvePath(path))

	case schema.ActionBuildImage:
		build := *step.Build
		if build.Tag == "" {
			build.Tag = defaultImageTag(pipeline.Name, event)
		}
		// Engine-derived provenance labels never override labels the
		// pipeline set explicitly.
		derived := registry.DeriveLabels(event, pipeline.Name, e.clock.Now())
		if build.Labels == nil {
			build.Labels = make(map[string]string, len(derived))
		}
		for name, value := range derived {
			if _, exists := build.Labels[name]; !exists {
				build.Labels[name] = value
			}
		}
		if err := e.executor.Build(stepCtx, &build); err != nil {
			return err
		}
		*builtImage = build.Tag
		return nil

	case schema.ActionRunInContainer:
		image := step.Params["image"]
		if image == "" {
			image = *builtImage
		}
		if image == "" {
			image = defaultImageTag(pipeline.Name, event)
		}
		return e.executor.Run(stepCtx, container.RunSpec{
			Image:       image,
			Command:     step.Params["command"],
			Mounts:      step.Mounts,
			GracePeriod: gracePeriod,
		})

	case schema.ActionCollectArtifact:
		_, err := e.store.Put(step.Params["name"], e.resolvePath(step.Params["path"]), job.ID)
		return err

	case schema.ActionPublishArtifact:
		name := step.Params["name"]
		if e.uploader == nil {
			// No long-term storage wired; the run archive exported at
			// run end retains the artifact.
			if _, err := e.store.Get(name); err != nil {
				return err
			}
			e.logger.Info("artifact retained in run archive", "artifact", name, "job", job.ID)
			return nil
		}
		return e.store.Publish(stepCtx, name, e.uploader)

	case schema.ActionPublishReport:
		sinkName := step.Params["sink"]
		sink, exists := e.sinks[sinkName]
		if !exists {
			return fmt.Errorf("report sink %q is not configured", sinkName)
		}
		return e.store.Publish(stepCtx, step.Params["name"], sink)

	case schema.ActionPushImage:
		if e.publisher == nil {
			return fmt.Errorf("no registry publisher configured for push-image")
		}
		image := step.Params["image"]
		if image == "" {
			image = *builtImage
		}
		if image == "" {
			image = defaultImageTag(pipeline.Name, event)
		}
		tags := registry.DeriveTags(event)
		_, err := e.publisher.Publish(stepCtx, image, tags)
		return err

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// defaultImageTag is the image reference used when a build spec does
// not set an explicit tag: pipeline-scoped and sha-qualified, so the
// building job and a downstream pushing job agree on it without
// coordination.
func defaultImageTag(pipeline string, event schema.Event) string {
	name := strings.ToLower(registry.SanitizeTag(pipeline))
	return "flowline/" + name + ":sha-" + event.ShortSHA()
}

func (e *Engine) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workspace, path)
}
