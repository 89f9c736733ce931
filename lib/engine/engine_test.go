// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowline-ci/flowline/lib/artifact"
	"github.com/flowline-ci/flowline/lib/container"
	"github.com/flowline-ci/flowline/lib/schema"
)

// scriptRunner emulates the container CLI for engine tests. Each
// invocation is reduced to a readable command string; substring
// matches against fail select non-zero exit codes, and a command
// containing blockOn parks until the context is cancelled.
type scriptRunner struct {
	fail    map[string]int
	blockOn string

	mu       sync.Mutex
	commands []string
}

func (r *scriptRunner) Run(ctx context.Context, invocation container.Invocation) (int, error) {
	var command string
	switch invocation.Args[0] {
	case "buildx":
		command = "build " + invocation.Args[len(invocation.Args)-1]
	case "run":
		command = invocation.Args[len(invocation.Args)-1]
	default:
		command = strings.Join(invocation.Args, " ")
	}

	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()

	if r.blockOn != "" && strings.Contains(command, r.blockOn) {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	for substring, code := range r.fail {
		if strings.Contains(command, substring) {
			return code, nil
		}
	}
	return 0, nil
}

func (r *scriptRunner) ran(substring string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, command := range r.commands {
		if strings.Contains(command, substring) {
			return true
		}
	}
	return false
}

// captureSink records every artifact published to it.
type captureSink struct {
	mu        sync.Mutex
	artifacts []string
	contents  map[string][]byte
}

func (s *captureSink) Publish(ctx context.Context, a schema.Artifact, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contents == nil {
		s.contents = make(map[string][]byte)
	}
	s.artifacts = append(s.artifacts, a.Name)
	s.contents[a.Name] = data
	return nil
}

type testHarness struct {
	engine    *Engine
	runner    *scriptRunner
	store     *artifact.Store
	workspace string
	sink      *captureSink
}

func newHarness(t *testing.T, runner *scriptRunner, mutate func(*Config)) *testHarness {
	t.Helper()
	workspace := t.TempDir()

	executor, err := container.New(container.Config{Workspace: workspace, Runner: runner})
	if err != nil {
		t.Fatalf("container.New: %v", err)
	}
	store, err := artifact.NewStore(filepath.Join(workspace, "artifacts"))
	if err != nil {
		t.Fatalf("artifact.NewStore: %v", err)
	}

	sink := &captureSink{}
	config := Config{
		Workspace: workspace,
		Executor:  executor,
		Store:     store,
		Sinks:     map[string]artifact.Sink{"test-report": sink},
		Checkout: func(ctx context.Context, event schema.Event, path string) error {
			return os.MkdirAll(path, 0o755)
		},
	}
	if mutate != nil {
		mutate(&config)
	}

	engine, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testHarness{engine: engine, runner: runner, store: store, workspace: workspace, sink: sink}
}

// seedFile writes a file under the harness workspace so collect steps
// have something to register.
func (h *testHarness) seedFile(t *testing.T, relative, content string) {
	t.Helper()
	path := filepath.Join(h.workspace, relative)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func pushEvent() schema.Event {
	return schema.Event{
		Type:   schema.EventPush,
		Branch: "main",
		SHA:    "0123456789abcdef0123456789abcdef01234567",
	}
}

func prEvent() schema.Event {
	event := pushEvent()
	event.Type = schema.EventPullRequest
	event.PRNumber = 7
	return event
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{}
	harness := newHarness(t, runner, nil)
	harness.seedFile(t, "results/junit.xml", `<testsuite name="api" tests="1"><testcase name="TestOne"/></testsuite>`)

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "build-test",
				Steps: []schema.Step{
					{Name: "checkout", Action: schema.ActionCheckout},
					{Name: "build", Action: schema.ActionBuildImage, Build: &schema.BuildSpec{Context: ".", Tag: "ci:local"}},
					{Name: "test", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make test"}},
					{Name: "collect", Action: schema.ActionCollectArtifact, Params: map[string]string{"name": "junit", "path": "results/junit.xml"}},
				},
			},
			{
				ID:        "report",
				DependsOn: []string{"build-test"},
				Steps: []schema.Step{
					{Name: "publish", Action: schema.ActionPublishReport, Params: map[string]string{"name": "junit", "sink": "test-report"}},
				},
			},
		},
	}

	result, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != schema.StatusSuccess {
		t.Errorf("run status = %s", result.Status)
	}
	for _, id := range []string{"build-test", "report"} {
		if result.Jobs[id].Status != schema.StatusSuccess {
			t.Errorf("job %s status = %s", id, result.Jobs[id].Status)
		}
	}

	// The build-test job's artifact is recorded on its result.
	if len(result.Jobs["build-test"].Artifacts) != 1 {
		t.Errorf("build-test artifacts = %+v", result.Jobs["build-test"].Artifacts)
	}

	// The report job consumed the artifact across the job boundary.
	if len(harness.sink.artifacts) != 1 || harness.sink.artifacts[0] != "junit" {
		t.Errorf("sink saw %v", harness.sink.artifacts)
	}

	if !runner.ran("build ") || !runner.ran("make test") {
		t.Errorf("runner commands = %v", runner.commands)
	}
}

func TestGuardGatesPublishJob(t *testing.T) {
	t.Parallel()

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "build-test",
				Steps: []schema.Step{
					{Name: "test", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make test", "image": "ci:local"}},
				},
			},
			{
				ID:          "publish",
				DependsOn:   []string{"build-test"},
				Guard:       "success() && event.type == push && event.branch == main",
				Permissions: []string{"packages:write"},
				Steps: []schema.Step{
					{Name: "push", Action: schema.ActionPushImage, Params: map[string]string{"registry": "registry.example.com"}},
				},
			},
		},
	}

	// A pull request never publishes, even with all dependencies
	// succeeding.
	runner := &scriptRunner{}
	harness := newHarness(t, runner, nil)
	result, err := harness.engine.Run(context.Background(), pipeline, prEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Jobs["build-test"].Status != schema.StatusSuccess {
		t.Errorf("build-test status = %s", result.Jobs["build-test"].Status)
	}
	if result.Jobs["publish"].Status != schema.StatusSkipped {
		t.Errorf("publish status = %s, want skipped", result.Jobs["publish"].Status)
	}
	if result.Status != schema.StatusSuccess {
		t.Errorf("run status = %s (skips never fail a run)", result.Status)
	}
	if runner.ran("push") {
		t.Error("push ran for a pull request event")
	}
}

func TestEventOnlyGuardStillRequiresDependencySuccess(t *testing.T) {
	t.Parallel()

	// The guard matches the event, but the dependency fails. A guard
	// that never consults dependency outcomes must not promote a
	// failed build; the implicit success() gate skips the job.
	runner := &scriptRunner{fail: map[string]int{"make test": 1}}
	harness := newHarness(t, runner, nil)

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "build-test",
				Steps: []schema.Step{
					{Name: "test", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make test", "image": "ci:local"}},
				},
			},
			{
				ID:          "publish",
				DependsOn:   []string{"build-test"},
				Guard:       "event.type == push && event.branch == main",
				Permissions: []string{"packages:write"},
				Steps: []schema.Step{
					{Name: "push", Action: schema.ActionPushImage, Params: map[string]string{"registry": "registry.example.com"}},
				},
			},
		},
	}

	result, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Jobs["build-test"].Status != schema.StatusFailure {
		t.Errorf("build-test status = %s", result.Jobs["build-test"].Status)
	}
	if result.Jobs["publish"].Status != schema.StatusSkipped {
		t.Errorf("publish status = %s, want skipped (dependency failed)", result.Jobs["publish"].Status)
	}
	if runner.ran("push") {
		t.Error("push ran despite a failed dependency")
	}
	if result.Status != schema.StatusFailure {
		t.Errorf("run status = %s", result.Status)
	}
}

func TestFailurePropagatesAsSkip(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{fail: map[string]int{"make test": 1}}
	harness := newHarness(t, runner, nil)

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "test",
				Steps: []schema.Step{
					{Name: "test", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make test", "image": "ci:local"}},
				},
			},
			{
				ID:        "downstream",
				DependsOn: []string{"test"},
				Steps: []schema.Step{
					{Name: "deploy", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make deploy", "image": "ci:local"}},
				},
			},
			{
				ID:        "cleanup",
				DependsOn: []string{"test"},
				Guard:     "always()",
				Steps: []schema.Step{
					{Name: "clean", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make clean", "image": "ci:local"}},
				},
			},
		},
	}

	result, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Jobs["test"].Status != schema.StatusFailure {
		t.Errorf("test status = %s", result.Jobs["test"].Status)
	}
	if !strings.Contains(result.Jobs["test"].Error, "exit code 1") {
		t.Errorf("test error = %q", result.Jobs["test"].Error)
	}

	// Default guard (success()) skips after an upstream failure; an
	// always() guard still runs.
	if result.Jobs["downstream"].Status != schema.StatusSkipped {
		t.Errorf("downstream status = %s, want skipped", result.Jobs["downstream"].Status)
	}
	if result.Jobs["cleanup"].Status != schema.StatusSuccess {
		t.Errorf("cleanup status = %s, want success", result.Jobs["cleanup"].Status)
	}
	if runner.ran("make deploy") {
		t.Error("downstream ran despite the upstream failure")
	}
	if !runner.ran("make clean") {
		t.Error("always() job did not run")
	}

	if result.Status != schema.StatusFailure {
		t.Errorf("run status = %s, want failure", result.Status)
	}
}

func TestOnFailureContinueStillCollects(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{fail: map[string]int{"make test": 2}}
	harness := newHarness(t, runner, nil)
	harness.seedFile(t, "results/junit.xml", "<testsuite/>")

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "test",
				Steps: []schema.Step{
					{
						Name:      "test",
						Action:    schema.ActionRunInContainer,
						Params:    map[string]string{"command": "make test", "image": "ci:local"},
						OnFailure: schema.FailureContinue,
					},
					{Name: "coverage", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make coverage", "image": "ci:local"}},
					{Name: "collect", Action: schema.ActionCollectArtifact, Params: map[string]string{"name": "junit", "path": "results/junit.xml"}},
				},
			},
		},
	}

	result, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The job is still a failure, but the later steps ran and the
	// artifact landed.
	if result.Jobs["test"].Status != schema.StatusFailure {
		t.Errorf("job status = %s", result.Jobs["test"].Status)
	}
	if !runner.ran("make coverage") {
		t.Error("continue policy did not run the next step")
	}
	if _, err := harness.store.Get("junit"); err != nil {
		t.Errorf("artifact not collected: %v", err)
	}
}

func TestAbortJobSkipsRemainingButCollects(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{fail: map[string]int{"make test": 1}}
	harness := newHarness(t, runner, nil)
	harness.seedFile(t, "results/junit.xml", "<testsuite/>")

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "test",
				Steps: []schema.Step{
					{Name: "test", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make test", "image": "ci:local"}},
					{Name: "package", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make package", "image": "ci:local"}},
					{Name: "collect", Action: schema.ActionCollectArtifact, Params: map[string]string{"name": "junit", "path": "results/junit.xml"}},
				},
			},
		},
	}

	result, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Jobs["test"].Status != schema.StatusFailure {
		t.Errorf("job status = %s", result.Jobs["test"].Status)
	}
	if runner.ran("make package") {
		t.Error("abort-job still ran a later non-collect step")
	}
	if _, err := harness.store.Get("junit"); err != nil {
		t.Errorf("collect step did not run after abort: %v", err)
	}
}

func TestDuplicateArtifactNameFailsJob(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{}
	harness := newHarness(t, runner, nil)
	harness.seedFile(t, "a.txt", "a")
	harness.seedFile(t, "b.txt", "b")

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "producer",
				Steps: []schema.Step{
					{Name: "collect-a", Action: schema.ActionCollectArtifact, Params: map[string]string{"name": "out", "path": "a.txt"}},
					{Name: "collect-b", Action: schema.ActionCollectArtifact, Params: map[string]string{"name": "out", "path": "b.txt"}},
				},
			},
		},
	}

	result, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Jobs["producer"].Status != schema.StatusFailure {
		t.Errorf("job status = %s, want failure on duplicate name", result.Jobs["producer"].Status)
	}
	// The conflict crosses the job boundary as a message string.
	if !strings.Contains(result.Jobs["producer"].Error, "already registered") {
		t.Errorf("job error = %q", result.Jobs["producer"].Error)
	}
}

func TestCancellation(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{blockOn: "make test"}
	harness := newHarness(t, runner, nil)

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "test",
				Steps: []schema.Step{
					{Name: "test", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make test", "image": "ci:local"}},
				},
			},
			{
				ID:        "publish",
				DependsOn: []string{"test"},
				Steps: []schema.Step{
					{Name: "push", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make push", "image": "ci:local"}},
				},
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result, err := harness.engine.Run(ctx, pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != schema.StatusCancelled {
		t.Errorf("run status = %s, want cancelled", result.Status)
	}
	if result.Jobs["test"].Status != schema.StatusCancelled {
		t.Errorf("running job status = %s, want cancelled", result.Jobs["test"].Status)
	}
	if result.Jobs["publish"].Status != schema.StatusCancelled {
		t.Errorf("pending job status = %s, want cancelled", result.Jobs["publish"].Status)
	}
	if runner.ran("make push") {
		t.Error("dependent job ran after cancellation")
	}
}

func TestCyclicPipelineRejected(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{}
	harness := newHarness(t, runner, nil)

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{ID: "a", DependsOn: []string{"b"}, Steps: []schema.Step{{Name: "x", Action: schema.ActionCheckout}}},
			{ID: "b", DependsOn: []string{"a"}, Steps: []schema.Step{{Name: "y", Action: schema.ActionCheckout}}},
		},
	}

	_, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	var configError *ConfigError
	if !errors.As(err, &configError) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if len(runner.commands) != 0 {
		t.Errorf("jobs ran despite a cyclic graph: %v", runner.commands)
	}
}

func TestArchiveExportedOnFailure(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{fail: map[string]int{"make test": 1}}
	archivePath := filepath.Join(t.TempDir(), "run.flart")
	harness := newHarness(t, runner, func(config *Config) {
		config.ArchivePath = archivePath
	})
	harness.seedFile(t, "results/junit.xml", "<testsuite/>")

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "test",
				Steps: []schema.Step{
					{
						Name:      "test",
						Action:    schema.ActionRunInContainer,
						Params:    map[string]string{"command": "make test", "image": "ci:local"},
						OnFailure: schema.FailureContinue,
					},
					{Name: "collect", Action: schema.ActionCollectArtifact, Params: map[string]string{"name": "junit", "path": "results/junit.xml"}},
				},
			},
		},
	}

	result, err := harness.engine.Run(context.Background(), pipeline, pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != schema.StatusFailure {
		t.Fatalf("run status = %s", result.Status)
	}

	// The archive exists and records the failed run with its partial
	// artifacts.
	archive, err := artifact.OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	if archive.Manifest.RunStatus != string(schema.StatusFailure) {
		t.Errorf("archive run status = %q", archive.Manifest.RunStatus)
	}
	if len(archive.Manifest.Entries) != 1 || archive.Manifest.Entries[0].Name != "junit" {
		t.Errorf("archive entries = %+v", archive.Manifest.Entries)
	}
}

func TestRunLogLines(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "run.jsonl")
	runLog, err := NewRunLog(logPath, nil)
	if err != nil {
		t.Fatalf("NewRunLog: %v", err)
	}

	runner := &scriptRunner{}
	harness := newHarness(t, runner, func(config *Config) {
		config.RunLog = runLog
	})

	pipeline := &schema.Pipeline{
		Name: "ci",
		Jobs: []schema.Job{
			{
				ID: "test",
				Steps: []schema.Step{
					{Name: "test", Action: schema.ActionRunInContainer, Params: map[string]string{"command": "make test", "image": "ci:local"}},
				},
			},
		},
	}

	if _, err := harness.engine.Run(context.Background(), pipeline, pushEvent()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := runLog.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("run log has %d lines, want start/step/job/complete:\n%s", len(lines), data)
	}

	var types []string
	for _, line := range lines {
		var entry struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		types = append(types, entry.Type)
	}
	want := []string{"start", "step", "job", "complete"}
	for i, wantType := range want {
		if types[i] != wantType {
			t.Errorf("line %d type = %q, want %q", i, types[i], wantType)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("New accepted an empty config")
	}
}
