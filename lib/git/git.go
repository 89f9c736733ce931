// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for checkout
// operations. Flowline materializes the triggering commit into the run
// workspace with a shallow fetch: the pipeline only ever builds one
// commit, so there is no reason to clone history. All commands target
// a specific directory via the -C flag, injected by every Repository
// method.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/flowline-ci/flowline/lib/schema"
)

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory; callers must always specify which repository they
// mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// CheckoutCommit materializes the commit at sha from remoteURL as a
// detached working tree in dir, creating the directory if needed. A
// shallow fetch of the single commit, not a clone: pipeline runs never
// need history.
func CheckoutCommit(ctx context.Context, remoteURL, sha, dir string) error {
	if remoteURL == "" {
		return fmt.Errorf("git checkout: remote URL is required")
	}
	if sha == "" {
		return fmt.Errorf("git checkout: commit sha is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("git checkout: creating %s: %w", dir, err)
	}

	repository := NewRepository(dir)
	steps := [][]string{
		{"init", "--quiet"},
		{"fetch", "--quiet", "--depth", "1", remoteURL, sha},
		{"checkout", "--quiet", "--detach", "FETCH_HEAD"},
	}
	for _, args := range steps {
		if _, err := repository.Run(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// RemoteURL returns the fetch URL for an event's repository. Repo is
// the forge-style "owner/name" pair; anything containing "://" or
// starting with "/" is treated as an explicit URL or local path and
// passed through unchanged.
func RemoteURL(event schema.Event) string {
	repo := event.Repo
	if repo == "" {
		return ""
	}
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "/") {
		return repo
	}
	return "https://github.com/" + repo + ".git"
}
