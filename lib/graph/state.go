// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"sync"

	"github.com/flowline-ci/flowline/lib/schema"
)

// State tracks per-job status for one run of a Graph. All methods are
// safe for concurrent use; the engine's scheduler and its job
// goroutines share one State.
type State struct {
	graph *Graph

	mu     sync.Mutex
	status map[string]schema.Status
}

// NewState creates a State with every job pending.
func NewState(g *Graph) *State {
	status := make(map[string]schema.Status, len(g.jobs))
	for id := range g.jobs {
		status[id] = schema.StatusPending
	}
	return &State{graph: g, status: status}
}

// Status returns the current status of a job.
func (s *State) Status(id string) schema.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

// Snapshot returns a copy of the full status map.
func (s *State) Snapshot() map[string]schema.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]schema.Status, len(s.status))
	for id, status := range s.status {
		out[id] = status
	}
	return out
}

// Ready returns the IDs of pending jobs whose dependencies are all
// terminal, in canonical order. Whether a ready job runs or is skipped
// is decided by its guard, not here.
func (s *State) Ready() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []string
	for _, id := range s.graph.order {
		if s.status[id] != schema.StatusPending {
			continue
		}
		eligible := true
		for _, dep := range s.graph.incoming[id] {
			if !s.status[dep].Terminal() {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, id)
		}
	}
	return ready
}

// AllTerminal reports whether every job has reached terminal status.
func (s *State) AllTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, status := range s.status {
		if !status.Terminal() {
			return false
		}
	}
	return true
}

// Transition moves a job from an expected prior status to a new one.
// Supplying the expected prior status makes scheduler races observable
// instead of silent.
func (s *State) Transition(id string, from, to schema.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.status[id]
	if !ok {
		return fmt.Errorf("unknown job %q", id)
	}
	if current != from {
		return fmt.Errorf("job %q: expected status %s, found %s", id, from, current)
	}
	if !allowedTransition(from, to) {
		return fmt.Errorf("job %q: disallowed transition %s -> %s", id, from, to)
	}
	s.status[id] = to
	return nil
}

// CancelNonTerminal marks every pending job cancelled and returns the
// IDs of jobs that were running (the caller signals their containers).
// Running jobs are transitioned to cancelled as well: their goroutines
// observe the cancelled context and exit without overwriting the
// status.
func (s *State) CancelNonTerminal() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wasRunning []string
	for _, id := range s.graph.order {
		switch s.status[id] {
		case schema.StatusPending:
			s.status[id] = schema.StatusCancelled
		case schema.StatusRunning:
			s.status[id] = schema.StatusCancelled
			wasRunning = append(wasRunning, id)
		}
	}
	return wasRunning
}

func allowedTransition(from, to schema.Status) bool {
	switch from {
	case schema.StatusPending:
		return to == schema.StatusRunning || to == schema.StatusSkipped || to == schema.StatusCancelled
	case schema.StatusRunning:
		return to == schema.StatusSuccess || to == schema.StatusFailure || to == schema.StatusCancelled
	default:
		return false
	}
}
