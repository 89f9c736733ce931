// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowline-ci/flowline/lib/schema"
)

// ConflictError reports a second Put under an already-registered name.
// The store is append-only within a run; duplicate names would let a
// later job silently shadow an earlier job's output.
type ConflictError struct {
	Name  string
	JobID string // the job that registered the name first
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("artifact %q already registered by job %q", e.Name, e.JobID)
}

// NotFoundError reports a Get for a name no job has registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %q not found", e.Name)
}

// Store is the process-wide artifact staging area for one run. Safe
// for concurrent use: independent jobs register artifacts
// concurrently.
type Store struct {
	root string

	mu      sync.Mutex
	entries map[string]schema.Artifact
	order   []string // names in registration order
}

// NewStore creates a Store rooted at the given staging directory,
// creating it if needed. The directory typically lives under the run
// workspace and holds the bind-mounted result directories jobs write
// into.
func NewStore(root string) (*Store, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	if err := os.MkdirAll(absolute, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %s: %w", absolute, err)
	}
	return &Store{
		root:    absolute,
		entries: make(map[string]schema.Artifact),
	}, nil
}

// Root returns the staging directory.
func (s *Store) Root() string { return s.root }

// Put registers the file at hostPath under the given run-unique name,
// recording the producing job. The file must exist: Put is called
// after the container exits, when the mount guarantees the content is
// visible on the host. Returns the registered artifact with its
// content-addressed ref.
func (s *Store) Put(name, hostPath, jobID string) (schema.Artifact, error) {
	if name == "" {
		return schema.Artifact{}, fmt.Errorf("artifact name is required")
	}

	hash, size, err := HashFile(hostPath)
	if err != nil {
		return schema.Artifact{}, fmt.Errorf("registering artifact %q: %w", name, err)
	}

	entry := schema.Artifact{
		Name:     name,
		HostPath: hostPath,
		JobID:    jobID,
		Ref:      hash.Ref(),
		Size:     size,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.entries[name]; exists {
		return schema.Artifact{}, &ConflictError{Name: name, JobID: existing.JobID}
	}
	s.entries[name] = entry
	s.order = append(s.order, name)
	return entry, nil
}

// Get resolves a name to its artifact, regardless of which job
// produced it.
func (s *Store) Get(name string) (schema.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[name]
	if !exists {
		return schema.Artifact{}, &NotFoundError{Name: name}
	}
	return entry, nil
}

// Open opens an artifact's content for reading.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	entry, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(entry.HostPath)
	if err != nil {
		return nil, fmt.Errorf("opening artifact %q: %w", name, err)
	}
	return file, nil
}

// List returns all artifacts in registration order.
func (s *Store) List() []schema.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]schema.Artifact, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

// ByJob returns the artifacts registered by the given job, in
// registration order.
func (s *Store) ByJob(jobID string) []schema.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []schema.Artifact
	for _, name := range s.order {
		if entry := s.entries[name]; entry.JobID == jobID {
			out = append(out, entry)
		}
	}
	return out
}

// Sink receives a published artifact. Implementations are the external
// report collaborators in lib/report (test-report publisher, coverage
// summarizer, PR commenter).
type Sink interface {
	// Publish consumes the artifact's content. The reader is valid
	// only for the duration of the call.
	Publish(ctx context.Context, artifact schema.Artifact, content io.Reader) error
}

// Publish feeds a stored artifact to a sink.
func (s *Store) Publish(ctx context.Context, name string, sink Sink) error {
	entry, err := s.Get(name)
	if err != nil {
		return err
	}
	content, err := os.Open(entry.HostPath)
	if err != nil {
		return fmt.Errorf("opening artifact %q: %w", name, err)
	}
	defer content.Close()

	if err := sink.Publish(ctx, entry, content); err != nil {
		return fmt.Errorf("publishing artifact %q: %w", name, err)
	}
	return nil
}
