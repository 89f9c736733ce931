// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/flowline-ci/flowline/lib/schema"
)

// RunLog writes structured JSONL to a file during a run. Each line is
// an independent JSON object, making the log:
//
//   - Crash-safe: a SIGKILL mid-run preserves all completed entries.
//     A single JSON document would be truncated and unparseable.
//   - Streamable: an observer can tail the file for step-by-step
//     progress instead of waiting for the run to finish.
//
// All methods are nil-safe no-ops, so callers that do not want a log
// simply pass nil. Concurrent jobs write through one shared mutex.
type RunLog struct {
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewRunLog creates a JSONL run log at path, truncating any existing
// content.
func NewRunLog(path string, logger *slog.Logger) (*RunLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLog{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close flushes and closes the log file.
func (r *RunLog) Close() error {
	if r == nil {
		return nil
	}
	return r.file.Close()
}

// Start records the first line of a run.
func (r *RunLog) Start(pipeline string, event schema.Event, jobCount int) {
	if r == nil {
		return
	}
	r.write(runStartEntry{
		Type:      "start",
		Pipeline:  pipeline,
		EventType: string(event.Type),
		Branch:    event.Branch,
		SHA:       event.SHA,
		JobCount:  jobCount,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Step records a step outcome within a job.
func (r *RunLog) Step(jobID, step string, status string, duration time.Duration, stepError string) {
	if r == nil {
		return
	}
	r.write(runStepEntry{
		Type:       "step",
		Job:        jobID,
		Step:       step,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Error:      stepError,
	})
}

// Job records a job reaching terminal status.
func (r *RunLog) Job(result schema.RunResult) {
	if r == nil {
		return
	}
	r.write(runJobEntry{
		Type:       "job",
		Job:        result.JobID,
		Status:     result.Status,
		DurationMS: result.Duration.Milliseconds(),
		Artifacts:  len(result.Artifacts),
		Error:      result.Error,
	})
}

// Complete records the final line of a run.
func (r *RunLog) Complete(status schema.Status, duration time.Duration) {
	if r == nil {
		return
	}
	r.write(runCompleteEntry{
		Type:       "complete",
		Status:     status,
		DurationMS: duration.Milliseconds(),
	})
}

func (r *RunLog) write(entry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.encoder.Encode(entry); err != nil {
		r.logger.Warn("failed to write run log entry", "error", err)
		return
	}
	// Sync after each line so partial results survive a crash and are
	// visible to readers tailing the file.
	if err := r.file.Sync(); err != nil {
		r.logger.Warn("failed to sync run log", "error", err)
	}
}

// JSONL entry types. Separate structs per line type (rather than one
// with omitempty everywhere) keep the wire format explicit.

type runStartEntry struct {
	Type      string `json:"type"`
	Pipeline  string `json:"pipeline"`
	EventType string `json:"event_type"`
	Branch    string `json:"branch"`
	SHA       string `json:"sha"`
	JobCount  int    `json:"job_count"`
	Timestamp string `json:"timestamp"`
}

type runStepEntry struct {
	Type       string `json:"type"`
	Job        string `json:"job"`
	Step       string `json:"step"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type runJobEntry struct {
	Type       string        `json:"type"`
	Job        string        `json:"job"`
	Status     schema.Status `json:"status"`
	DurationMS int64         `json:"duration_ms"`
	Artifacts  int           `json:"artifacts"`
	Error      string        `json:"error,omitempty"`
}

type runCompleteEntry struct {
	Type       string        `json:"type"`
	Status     schema.Status `json:"status"`
	DurationMS int64         `json:"duration_ms"`
}
