// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"fmt"
)

// StatusState is the state of a commit status.
type StatusState string

const (
	StatusPending StatusState = "pending"
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
	StatusError   StatusState = "error"
)

// CommitStatus is one status entry attached to a commit.
type CommitStatus struct {
	// State is pending, success, failure, or error.
	State StatusState `json:"state"`

	// Context distinguishes this status from other systems reporting
	// on the same commit, e.g. "flowline/ci".
	Context string `json:"context"`

	// Description is a one-line summary shown next to the state.
	Description string `json:"description,omitempty"`

	// TargetURL links to the detailed run output.
	TargetURL string `json:"target_url,omitempty"`
}

// CreateCommitStatus attaches a status to a commit. Posting the same
// (context, state) pair again is harmless; the forge keeps the latest
// status per context.
func (client *Client) CreateCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error {
	path := fmt.Sprintf("/repos/%s/statuses/%s", repo, sha)
	if err := client.post(ctx, path, status, nil); err != nil {
		return fmt.Errorf("setting commit status on %s@%s: %w", repo, sha, err)
	}
	return nil
}
