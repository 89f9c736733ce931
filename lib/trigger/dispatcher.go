// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowline-ci/flowline/lib/schema"
)

// RejectedError reports an event the intake policy refused.
type RejectedError struct {
	Event  schema.Event
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("event rejected: %s", e.Reason)
}

// Config configures a Dispatcher.
type Config struct {
	// Trunk is the branch whose pushes and PR targets start runs.
	// Empty means "main".
	Trunk string

	// Logger receives intake and supersede messages. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Dispatcher applies the intake policy and tracks in-flight runs for
// supersede cancellation. Safe for concurrent use.
type Dispatcher struct {
	trunk  string
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightRun
}

type inflightRun struct {
	cancel context.CancelFunc
	sha    string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(config Config) *Dispatcher {
	trunk := config.Trunk
	if trunk == "" {
		trunk = "main"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		trunk:    trunk,
		logger:   logger,
		inflight: make(map[string]*inflightRun),
	}
}

// Accept reports whether the event starts a run. A nil return means
// accepted; otherwise the error is a *RejectedError naming the reason.
func (d *Dispatcher) Accept(event schema.Event) error {
	if err := event.Validate(); err != nil {
		return &RejectedError{Event: event, Reason: err.Error()}
	}

	switch event.Type {
	case schema.EventPush:
		if event.Branch != d.trunk {
			return &RejectedError{
				Event:  event,
				Reason: fmt.Sprintf("push to %q: only pushes to %q start runs", event.Branch, d.trunk),
			}
		}
	case schema.EventPullRequest:
		// Branch carries the PR's target branch.
		if event.Branch != d.trunk {
			return &RejectedError{
				Event:  event,
				Reason: fmt.Sprintf("pull request targeting %q: only PRs targeting %q start runs", event.Branch, d.trunk),
			}
		}
	default:
		return &RejectedError{
			Event:  event,
			Reason: fmt.Sprintf("unsupported event type %q", event.Type),
		}
	}
	return nil
}

// Begin admits the event and returns the context its run must execute
// under, plus a release function the caller must invoke once the run
// reaches terminal status. Beginning a run cancels the in-flight run
// it supersedes, if any.
func (d *Dispatcher) Begin(parent context.Context, event schema.Event) (context.Context, func(), error) {
	if err := d.Accept(event); err != nil {
		return nil, nil, err
	}

	key := supersedeKey(event)
	runCtx, cancel := context.WithCancel(parent)
	run := &inflightRun{cancel: cancel, sha: event.SHA}

	d.mu.Lock()
	if previous, exists := d.inflight[key]; exists {
		previous.cancel()
		d.logger.Info("run superseded",
			"key", key,
			"superseded_sha", previous.sha,
			"new_sha", event.SHA,
		)
	}
	d.inflight[key] = run
	d.mu.Unlock()

	release := func() {
		d.mu.Lock()
		// Only remove the entry if this run is still the current one:
		// a superseding run may have replaced it already.
		if d.inflight[key] == run {
			delete(d.inflight, key)
		}
		d.mu.Unlock()
		cancel()
	}
	return runCtx, release, nil
}

// InFlight returns the number of runs currently tracked.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// supersedeKey identifies what an event replaces: pushes supersede per
// branch, pull request events per PR number.
func supersedeKey(event schema.Event) string {
	if event.Type == schema.EventPullRequest {
		return fmt.Sprintf("pr:%d", event.PRNumber)
	}
	return "push:" + event.Branch
}
