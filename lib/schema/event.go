// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// EventType identifies the kind of source-control event that triggered
// a run.
type EventType string

const (
	// EventPush is a direct push of one or more commits to a branch.
	EventPush EventType = "push"

	// EventPullRequest is a pull request opened against, or updated
	// on, a branch.
	EventPullRequest EventType = "pull_request"
)

// Event is the immutable trigger context for a single run. It is
// created when the source-control event arrives and consumed by every
// guard evaluation during the run; nothing mutates it afterwards.
type Event struct {
	// Type is the kind of event (push or pull_request).
	Type EventType `json:"type"`

	// Branch is the branch the event applies to. For pull requests
	// this is the target branch, not the head branch.
	Branch string `json:"branch"`

	// SHA is the full commit hash the run checks out and builds.
	SHA string `json:"sha"`

	// PRNumber is the pull request number. Zero for push events.
	PRNumber int `json:"pr_number,omitempty"`

	// Repo is the repository slug (owner/name), used for image naming
	// and PR comment posting.
	Repo string `json:"repo,omitempty"`
}

// Validate checks the event for structural problems. Runs never start
// from an invalid event.
func (e Event) Validate() error {
	switch e.Type {
	case EventPush, EventPullRequest:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Branch == "" {
		return fmt.Errorf("event branch is required")
	}
	if e.SHA == "" {
		return fmt.Errorf("event sha is required")
	}
	if e.Type == EventPullRequest && e.PRNumber <= 0 {
		return fmt.Errorf("pull_request event requires a positive pr_number, got %d", e.PRNumber)
	}
	return nil
}

// ShortSHA returns the first 12 characters of the commit hash, the
// conventional abbreviated form used in image tags and log lines.
func (e Event) ShortSHA() string {
	if len(e.SHA) <= 12 {
		return e.SHA
	}
	return e.SHA[:12]
}
