// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Pipeline is a complete pipeline definition: a named set of jobs with
// dependency edges between them. Parsed from a JSONC file by
// lib/pipelinedef and immutable for the lifetime of a run.
type Pipeline struct {
	// Name identifies the pipeline in logs, the result log, and the
	// run history store.
	Name string `json:"name"`

	// Description is free-form documentation shown by `flowline graph`.
	Description string `json:"description,omitempty"`

	// Jobs are the schedulable units. Order in the file carries no
	// scheduling meaning; only DependsOn does.
	Jobs []Job `json:"jobs"`
}

// JobByID returns the job with the given ID, or false if no job has it.
func (p *Pipeline) JobByID(id string) (Job, bool) {
	for _, job := range p.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return Job{}, false
}

// Job is an ordered sequence of steps with declared dependencies, a
// guard condition, and a permission set. A job runs only after every
// job in DependsOn has reached terminal status and its guard evaluates
// true against the event context and upstream outcomes.
type Job struct {
	// ID is the unique job identifier referenced by DependsOn edges
	// and guard expressions.
	ID string `json:"id"`

	// DependsOn lists the IDs of jobs that must reach terminal status
	// before this job's guard is evaluated. The resulting graph must
	// be acyclic; lib/graph rejects cycles at load time.
	DependsOn []string `json:"depends_on,omitempty"`

	// Guard is a condition expression (lib/condition grammar) gating
	// execution. Empty means "success()": run only when every
	// dependency succeeded.
	Guard string `json:"guard,omitempty"`

	// Steps run strictly sequentially within the job.
	Steps []Step `json:"steps"`

	// Permissions are the capability tokens granted to the job, e.g.
	// "contents:read", "packages:write", "pull-requests:write".
	// Steps that need a capability the job does not hold are rejected
	// at validation time.
	Permissions []string `json:"permissions,omitempty"`
}

// HasPermission reports whether the job holds the given capability
// token.
func (j Job) HasPermission(token string) bool {
	for _, permission := range j.Permissions {
		if permission == token {
			return true
		}
	}
	return false
}

// StepAction identifies what a step does. Each action consumes a
// documented set of parameter keys from Step.Params.
type StepAction string

const (
	// ActionCheckout materializes the working tree for the event's
	// commit. Params: "path" (destination, default the run workspace).
	ActionCheckout StepAction = "checkout"

	// ActionBuildImage builds a container image from the job's
	// BuildSpec. Params: none (the spec lives on the step's Build
	// field).
	ActionBuildImage StepAction = "build-image"

	// ActionRunInContainer runs a command inside the image built by a
	// previous build-image step. Params: "command" (required),
	// "image" (optional override), plus mount declarations on
	// Step.Mounts.
	ActionRunInContainer StepAction = "run-in-container"

	// ActionCollectArtifact registers a file written into a mounted
	// result directory with the artifact store. Params: "name"
	// (artifact name, required), "path" (host path, required).
	// Collect steps always attempt to run, even after an earlier
	// step in the job failed.
	ActionCollectArtifact StepAction = "collect-artifact"

	// ActionPublishArtifact uploads a stored artifact to long-term
	// storage. Params: "name" (required).
	ActionPublishArtifact StepAction = "publish-artifact"

	// ActionPublishReport feeds a stored artifact to a report
	// collaborator. Params: "name" (artifact, required), "sink"
	// (test-report, coverage-summary, or pr-comment; required).
	ActionPublishReport StepAction = "publish-report"

	// ActionPushImage tags and pushes the built image to the
	// distribution registry. Requires the "packages:write"
	// capability. Params: "registry" (host, required).
	ActionPushImage StepAction = "push-image"
)

// OnFailure selects what happens to the remaining steps of a job after
// a step fails.
type OnFailure string

const (
	// FailureAbortJob stops the job at the failed step. Collect
	// steps later in the job still attempt to run.
	FailureAbortJob OnFailure = "abort-job"

	// FailureContinue records the failure and keeps executing the
	// remaining steps. The job's final status is still failure.
	FailureContinue OnFailure = "continue"
)

// Step is a single instruction inside a job.
type Step struct {
	// Name identifies the step in logs and the result log.
	Name string `json:"name"`

	// Action selects the step behavior.
	Action StepAction `json:"action"`

	// Params are action-specific string parameters. See the action
	// constants for the recognized keys.
	Params map[string]string `json:"params,omitempty"`

	// OnFailure selects the policy applied to subsequent steps when
	// this step fails. Empty defaults to abort-job.
	OnFailure OnFailure `json:"on_failure,omitempty"`

	// Build is the image build specification. Required for
	// build-image steps, invalid elsewhere.
	Build *BuildSpec `json:"build,omitempty"`

	// Mounts are host↔container bind mounts for run-in-container
	// steps. Host directories are created before the container
	// starts and remain visible after it exits regardless of exit
	// status. This is the artifact interchange mechanism.
	Mounts []Mount `json:"mounts,omitempty"`

	// Timeout bounds the step's execution, parsed with
	// time.ParseDuration. Empty uses the engine default (5m).
	Timeout string `json:"timeout,omitempty"`

	// GracePeriod is how long a cancelled container is given between
	// SIGTERM and SIGKILL. Empty means immediate SIGKILL.
	GracePeriod string `json:"grace_period,omitempty"`
}

// Mount declares a bind mount between a host path and a container
// path.
type Mount struct {
	// HostPath is the directory on the host. Relative paths resolve
	// against the run's workspace root.
	HostPath string `json:"host_path"`

	// ContainerPath is the absolute mount point inside the
	// container.
	ContainerPath string `json:"container_path"`
}

// OutputMode selects where a built image ends up.
type OutputMode string

const (
	// OutputLoadedLocally loads the image into the local runtime so
	// later run-in-container steps can use it. Only valid for
	// single-platform builds: no local runtime can hold more than
	// one platform's image under one tag.
	OutputLoadedLocally OutputMode = "loaded-locally"

	// OutputPushed pushes the manifest set straight to the registry.
	// Required for multi-platform builds.
	OutputPushed OutputMode = "pushed"
)

// BuildSpec describes a container image build.
type BuildSpec struct {
	// Context is the build context path, relative to the checked-out
	// working tree.
	Context string `json:"context"`

	// Dockerfile is the path to the build file within the context.
	// Empty means the builder default.
	Dockerfile string `json:"dockerfile,omitempty"`

	// Platforms are the target platform identifiers, e.g.
	// "linux/amd64", "linux/arm64". Empty means the host platform.
	Platforms []string `json:"platforms,omitempty"`

	// Args are build arguments passed to the builder.
	Args map[string]string `json:"args,omitempty"`

	// Labels are image labels baked into the built image. The engine
	// merges registry-derived labels (source revision, event kind)
	// into this map before building.
	Labels map[string]string `json:"labels,omitempty"`

	// Output selects loaded-locally or pushed. Empty defaults to
	// loaded-locally.
	Output OutputMode `json:"output,omitempty"`

	// Tag is the local tag applied to the built image.
	Tag string `json:"tag,omitempty"`
}
