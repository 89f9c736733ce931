// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// Status is the lifecycle state of a job (and, aggregated, of a run).
type Status string

const (
	// StatusPending means the job has not been considered yet: some
	// dependency is not terminal.
	StatusPending Status = "pending"

	// StatusRunning means the job's steps are executing.
	StatusRunning Status = "running"

	// StatusSuccess means every step completed with exit code zero.
	StatusSuccess Status = "success"

	// StatusFailure means a step failed (or the image build failed).
	StatusFailure Status = "failure"

	// StatusSkipped means the job's guard evaluated false, or a
	// dependency did not succeed and the guard did not override.
	// Skipped is terminal: dependents see it during their own guard
	// evaluation.
	StatusSkipped Status = "skipped"

	// StatusCancelled means the run was cancelled (superseded event
	// or operator interrupt) before the job finished.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible from
// the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// Artifact is a named filesystem output produced by one job and
// consumable by other jobs or external reporters. Artifacts live in
// the run's staging area until the run ends; the export archive
// preserves them afterwards.
type Artifact struct {
	// Name is the run-unique artifact name.
	Name string `json:"name"`

	// HostPath is the file's location in the run staging area.
	HostPath string `json:"host_path"`

	// JobID identifies the producing job.
	JobID string `json:"job_id"`

	// Ref is the content-addressed reference (flart-<12 hex chars>)
	// assigned by the artifact store.
	Ref string `json:"ref"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`
}

// RunResult is the terminal outcome of a single job.
type RunResult struct {
	// JobID identifies the job.
	JobID string `json:"job_id"`

	// Status is the job's terminal status.
	Status Status `json:"status"`

	// Artifacts are the artifacts the job registered with the store.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// Duration is the wall-clock time from first step start to
	// terminal status. Zero for skipped jobs.
	Duration time.Duration `json:"duration"`

	// Error describes the failure for failed jobs. Empty otherwise.
	// A string rather than an error: job failures propagate as
	// status, never as Go errors across job boundaries.
	Error string `json:"error,omitempty"`
}

// PipelineResult aggregates the run once every reachable job is
// terminal.
type PipelineResult struct {
	// Pipeline is the pipeline name.
	Pipeline string `json:"pipeline"`

	// Event is the trigger context the run executed under.
	Event Event `json:"event"`

	// Status is failure if any job ended in failure, cancelled if the
	// run was cancelled, success otherwise. Skipped jobs do not
	// affect the overall status.
	Status Status `json:"status"`

	// Jobs maps job ID to its terminal result.
	Jobs map[string]RunResult `json:"jobs"`

	// Duration is the run's wall-clock time.
	Duration time.Duration `json:"duration"`

	// Started is when the run began, UTC.
	Started time.Time `json:"started"`
}

// Failed reports whether any job in the result ended in failure.
func (r *PipelineResult) Failed() bool {
	for _, job := range r.Jobs {
		if job.Status == StatusFailure {
			return true
		}
	}
	return false
}
