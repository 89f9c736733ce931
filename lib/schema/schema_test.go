// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "testing"

func TestEventValidate(t *testing.T) {
	t.Parallel()

	const sha = "0123456789abcdef0123456789abcdef01234567"

	tests := []struct {
		name  string
		event Event
		valid bool
	}{
		{
			name:  "push",
			event: Event{Type: EventPush, Branch: "main", SHA: sha},
			valid: true,
		},
		{
			name:  "pull request",
			event: Event{Type: EventPullRequest, Branch: "main", SHA: sha, PRNumber: 7},
			valid: true,
		},
		{
			name:  "unknown type",
			event: Event{Type: "tag", Branch: "main", SHA: sha},
			valid: false,
		},
		{
			name:  "missing branch",
			event: Event{Type: EventPush, SHA: sha},
			valid: false,
		},
		{
			name:  "missing sha",
			event: Event{Type: EventPush, Branch: "main"},
			valid: false,
		},
		{
			name:  "pull request without number",
			event: Event{Type: EventPullRequest, Branch: "main", SHA: sha},
			valid: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			err := test.event.Validate()
			if test.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !test.valid && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestShortSHA(t *testing.T) {
	t.Parallel()

	long := Event{SHA: "0123456789abcdef0123456789abcdef01234567"}
	if got := long.ShortSHA(); got != "0123456789ab" {
		t.Errorf("ShortSHA() = %q", got)
	}

	short := Event{SHA: "abc123"}
	if got := short.ShortSHA(); got != "abc123" {
		t.Errorf("ShortSHA() = %q for short input", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusSuccess:   true,
		StatusFailure:   true,
		StatusSkipped:   true,
		StatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestJobHasPermission(t *testing.T) {
	t.Parallel()

	job := Job{Permissions: []string{"packages:write", "contents:read"}}
	if !job.HasPermission("packages:write") {
		t.Error("declared permission not found")
	}
	if job.HasPermission("pull-requests:write") {
		t.Error("undeclared permission reported present")
	}
}

func TestPipelineJobByID(t *testing.T) {
	t.Parallel()

	pipeline := Pipeline{Jobs: []Job{{ID: "build"}, {ID: "publish"}}}
	if job, ok := pipeline.JobByID("publish"); !ok || job.ID != "publish" {
		t.Errorf("JobByID(publish) = %+v, %v", job, ok)
	}
	if _, ok := pipeline.JobByID("missing"); ok {
		t.Error("JobByID(missing) reported found")
	}
}

func TestPipelineResultFailed(t *testing.T) {
	t.Parallel()

	result := PipelineResult{Jobs: map[string]RunResult{
		"a": {Status: StatusSuccess},
		"b": {Status: StatusSkipped},
	}}
	if result.Failed() {
		t.Error("Failed() = true without failures")
	}

	result.Jobs["c"] = RunResult{Status: StatusFailure}
	if !result.Failed() {
		t.Error("Failed() = false with a failed job")
	}
}
