// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import (
	"fmt"
	"strings"
	"time"

	"github.com/flowline-ci/flowline/lib/condition"
	"github.com/flowline-ci/flowline/lib/schema"
)

// Capability tokens steps can require.
const (
	PermContentsRead      = "contents:read"
	PermPackagesWrite     = "packages:write"
	PermPullRequestsWrite = "pull-requests:write"
)

// Report sink names accepted by publish-report steps.
var reportSinks = map[string]bool{
	"test-report":      true,
	"coverage-summary": true,
	"pr-comment":       true,
}

// Validate checks a Pipeline for structural issues. Returns a list of
// human-readable issue descriptions; an empty list means the pipeline
// is valid. Dependency-graph issues (unknown references, cycles) are
// not checked here; lib/graph rejects those when the graph is built.
//
// Structural checks include:
//   - Pipeline name and at least one job are required
//   - Job IDs are non-empty (uniqueness is a graph check)
//   - Guards must parse under the lib/condition grammar
//   - Each step must have a name and a known action
//   - Action-specific parameters are present (collect-artifact needs
//     name and path, publish-report needs a known sink, ...)
//   - build-image steps carry a BuildSpec; other steps must not
//   - Multi-platform builds cannot use loaded-locally output
//   - push-image requires the packages:write capability
//   - publish-report with sink=pr-comment requires pull-requests:write
//   - Timeout and GracePeriod parse with time.ParseDuration
//   - on_failure is abort-job, continue, or empty
func Validate(pipeline *schema.Pipeline) []string {
	var issues []string

	if pipeline.Name == "" {
		issues = append(issues, "pipeline name is required")
	}
	if len(pipeline.Jobs) == 0 {
		issues = append(issues, "pipeline has no jobs (at least one job is required)")
	}

	for index, job := range pipeline.Jobs {
		prefix := fmt.Sprintf("jobs[%d]", index)
		if job.ID != "" {
			prefix = fmt.Sprintf("%s %q", prefix, job.ID)
		} else {
			issues = append(issues, fmt.Sprintf("%s: id is required", prefix))
		}
		issues = append(issues, validateJob(job, prefix)...)
	}

	return issues
}

func validateJob(job schema.Job, prefix string) []string {
	var issues []string

	if job.Guard != "" {
		if _, err := condition.Parse(job.Guard); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid guard: %v", prefix, err))
		}
	}

	if len(job.Steps) == 0 {
		issues = append(issues, fmt.Sprintf("%s: job has no steps (at least one step is required)", prefix))
	}

	// Step names must be unique within the job: duplicate names make
	// the result log ambiguous.
	stepNames := make(map[string]int, len(job.Steps))
	for index, step := range job.Steps {
		if step.Name != "" {
			if firstIndex, exists := stepNames[step.Name]; exists {
				issues = append(issues, fmt.Sprintf(
					"%s steps[%d] %q: duplicate step name (first used at steps[%d])",
					prefix, index, step.Name, firstIndex,
				))
			} else {
				stepNames[step.Name] = index
			}
		}
	}

	for index, step := range job.Steps {
		stepPrefix := fmt.Sprintf("%s steps[%d]", prefix, index)
		issues = append(issues, validateStep(job, step, stepPrefix)...)
	}

	return issues
}

func validateStep(job schema.Job, step schema.Step, prefix string) []string {
	var issues []string

	if step.Name == "" {
		issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
	} else {
		prefix = fmt.Sprintf("%s %q", prefix, step.Name)
	}

	switch step.Action {
	case schema.ActionCheckout:
		// "path" is optional; no required params.

	case schema.ActionBuildImage:
		if step.Build == nil {
			issues = append(issues, fmt.Sprintf("%s: build-image requires a build spec", prefix))
		} else {
			issues = append(issues, validateBuildSpec(step.Build, prefix)...)
		}

	case schema.ActionRunInContainer:
		if step.Params["command"] == "" {
			issues = append(issues, fmt.Sprintf("%s: run-in-container requires params.command", prefix))
		}
		for mountIndex, mount := range step.Mounts {
			if mount.HostPath == "" {
				issues = append(issues, fmt.Sprintf("%s: mounts[%d]: host_path is required", prefix, mountIndex))
			}
			if !strings.HasPrefix(mount.ContainerPath, "/") {
				issues = append(issues, fmt.Sprintf(
					"%s: mounts[%d]: container_path must be absolute, got %q",
					prefix, mountIndex, mount.ContainerPath,
				))
			}
		}

	case schema.ActionCollectArtifact:
		if step.Params["name"] == "" {
			issues = append(issues, fmt.Sprintf("%s: collect-artifact requires params.name", prefix))
		}
		if step.Params["path"] == "" {
			issues = append(issues, fmt.Sprintf("%s: collect-artifact requires params.path", prefix))
		}

	case schema.ActionPublishArtifact:
		if step.Params["name"] == "" {
			issues = append(issues, fmt.Sprintf("%s: publish-artifact requires params.name", prefix))
		}

	case schema.ActionPublishReport:
		if step.Params["name"] == "" {
			issues = append(issues, fmt.Sprintf("%s: publish-report requires params.name", prefix))
		}
		sink := step.Params["sink"]
		if sink == "" {
			issues = append(issues, fmt.Sprintf("%s: publish-report requires params.sink", prefix))
		} else if !reportSinks[sink] {
			issues = append(issues, fmt.Sprintf(
				"%s: unknown report sink %q (want test-report, coverage-summary, or pr-comment)",
				prefix, sink,
			))
		}
		if sink == "pr-comment" && !job.HasPermission(PermPullRequestsWrite) {
			issues = append(issues, fmt.Sprintf(
				"%s: pr-comment sink requires the %q permission on the job",
				prefix, PermPullRequestsWrite,
			))
		}

	case schema.ActionPushImage:
		if step.Params["registry"] == "" {
			issues = append(issues, fmt.Sprintf("%s: push-image requires params.registry", prefix))
		}
		if !job.HasPermission(PermPackagesWrite) {
			issues = append(issues, fmt.Sprintf(
				"%s: push-image requires the %q permission on the job",
				prefix, PermPackagesWrite,
			))
		}

	case "":
		issues = append(issues, fmt.Sprintf("%s: action is required", prefix))

	default:
		issues = append(issues, fmt.Sprintf("%s: unknown action %q", prefix, step.Action))
	}

	// A build spec on a non-build step is a sign of a misplaced block.
	if step.Action != schema.ActionBuildImage && step.Build != nil {
		issues = append(issues, fmt.Sprintf("%s: build spec is only valid on build-image steps", prefix))
	}
	if step.Action != schema.ActionRunInContainer && len(step.Mounts) > 0 {
		issues = append(issues, fmt.Sprintf("%s: mounts are only valid on run-in-container steps", prefix))
	}

	switch step.OnFailure {
	case "", schema.FailureAbortJob, schema.FailureContinue:
	default:
		issues = append(issues, fmt.Sprintf(
			"%s: on_failure must be \"abort-job\" or \"continue\", got %q",
			prefix, step.OnFailure,
		))
	}

	if step.Timeout != "" {
		if _, err := time.ParseDuration(step.Timeout); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid timeout %q: %v", prefix, step.Timeout, err))
		}
	}
	if step.GracePeriod != "" {
		if _, err := time.ParseDuration(step.GracePeriod); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid grace_period %q: %v", prefix, step.GracePeriod, err))
		}
	}

	return issues
}

// validateBuildSpec checks a build-image step's BuildSpec.
func validateBuildSpec(build *schema.BuildSpec, prefix string) []string {
	var issues []string

	if build.Context == "" {
		issues = append(issues, fmt.Sprintf("%s: build.context is required", prefix))
	}

	switch build.Output {
	case "", schema.OutputLoadedLocally, schema.OutputPushed:
	default:
		issues = append(issues, fmt.Sprintf(
			"%s: build.output must be \"loaded-locally\" or \"pushed\", got %q",
			prefix, build.Output,
		))
	}

	// A local runtime can hold only one platform's image under one
	// tag: multi-platform builds are only meaningful when pushed.
	output := build.Output
	if output == "" {
		output = schema.OutputLoadedLocally
	}
	if len(build.Platforms) > 1 && output == schema.OutputLoadedLocally {
		issues = append(issues, fmt.Sprintf(
			"%s: multi-platform build (%s) cannot use loaded-locally output; use \"pushed\"",
			prefix, strings.Join(build.Platforms, ", "),
		))
	}

	return issues
}
