// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowline-ci/flowline/lib/schema"
)

// Graph is the immutable, validated job dependency graph. Safe for
// concurrent read access.
type Graph struct {
	jobs  map[string]schema.Job
	order []string // job IDs, lexical (canonical order)

	outgoing map[string][]string // dependency → dependents, sorted
	incoming map[string][]string // job → dependencies, sorted
}

// CycleError reports a dependency cycle found at load time. Path is
// one cycle witness, closed (first element repeated last).
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ")
}

// New builds and validates a Graph from the pipeline's jobs.
func New(jobs []schema.Job) (*Graph, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("pipeline has no jobs")
	}

	byID := make(map[string]schema.Job, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			return nil, fmt.Errorf("job ID is required")
		}
		if _, exists := byID[job.ID]; exists {
			return nil, fmt.Errorf("duplicate job ID %q", job.ID)
		}
		byID[job.ID] = job
	}

	order := make([]string, 0, len(byID))
	for id := range byID {
		order = append(order, id)
	}
	sort.Strings(order)

	outgoing := make(map[string][]string, len(byID))
	incoming := make(map[string][]string, len(byID))
	for _, id := range order {
		job := byID[id]
		seen := make(map[string]bool, len(job.DependsOn))
		for _, dep := range job.DependsOn {
			if _, known := byID[dep]; !known {
				return nil, fmt.Errorf("job %q depends on unknown job %q", id, dep)
			}
			if dep == id {
				return nil, fmt.Errorf("job %q depends on itself", id)
			}
			if seen[dep] {
				return nil, fmt.Errorf("job %q lists dependency %q twice", id, dep)
			}
			seen[dep] = true
			incoming[id] = append(incoming[id], dep)
			outgoing[dep] = append(outgoing[dep], id)
		}
	}
	for id := range outgoing {
		sort.Strings(outgoing[id])
	}
	for id := range incoming {
		sort.Strings(incoming[id])
	}

	g := &Graph{jobs: byID, order: order, outgoing: outgoing, incoming: incoming}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	return g, nil
}

// Job returns the job with the given ID.
func (g *Graph) Job(id string) (schema.Job, bool) {
	job, ok := g.jobs[id]
	return job, ok
}

// JobIDs returns all job IDs in canonical (lexical) order.
func (g *Graph) JobIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the IDs of the jobs the given job depends on,
// sorted.
func (g *Graph) Dependencies(id string) []string {
	deps := g.incoming[id]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Dependents returns the IDs of the jobs that depend on the given job,
// sorted.
func (g *Graph) Dependents(id string) []string {
	deps := g.outgoing[id]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// TopologicalOrder returns a deterministic topological ordering of job
// IDs: Kahn's algorithm with ties broken lexically. The graph is
// validated acyclic at construction, so this always covers every job.
func (g *Graph) TopologicalOrder() []string {
	indegree := make(map[string]int, len(g.jobs))
	for id := range g.jobs {
		indegree[id] = len(g.incoming[id])
	}

	// Ready set kept sorted; the canonical order slice is already
	// lexical, so scanning it yields deterministic tie-breaking.
	var out []string
	remaining := make(map[string]bool, len(g.jobs))
	for id := range g.jobs {
		remaining[id] = true
	}

	for len(out) < len(g.jobs) {
		progressed := false
		for _, id := range g.order {
			if !remaining[id] || indegree[id] != 0 {
				continue
			}
			out = append(out, id)
			delete(remaining, id)
			for _, dependent := range g.outgoing[id] {
				indegree[dependent]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Unreachable for a validated graph.
			panic("graph: topological order stalled on a validated graph")
		}
	}
	return out
}

// findCycle returns one cycle path (closed) if the graph has a cycle,
// nil otherwise. Deterministic: DFS over canonical order with sorted
// adjacency.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // finished
	)

	color := make(map[string]int, len(g.jobs))
	parent := make(map[string]string, len(g.jobs))

	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		for _, next := range g.outgoing[id] {
			switch color[next] {
			case white:
				parent[next] = id
				if dfs(next) {
					return true
				}
			case gray:
				// Back edge id → next closes a cycle. Walk parents
				// from id back to next, then reverse.
				var reversed []string
				reversed = append(reversed, next)
				for cur := id; cur != next; cur = parent[cur] {
					reversed = append(reversed, cur)
				}
				reversed = append(reversed, next)
				cycle = make([]string, len(reversed))
				for i, node := range reversed {
					cycle[len(reversed)-1-i] = node
				}
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}
