// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/flowline-ci/flowline/lib/schema"
)

// fakeRunner records invocations and returns scripted exit codes, one
// per call, in order. Calls beyond the script return exit code 0.
type fakeRunner struct {
	invocations []Invocation
	exitCodes   []int
	err         error
}

func (r *fakeRunner) Run(ctx context.Context, invocation Invocation) (int, error) {
	call := len(r.invocations)
	r.invocations = append(r.invocations, invocation)
	if r.err != nil {
		return -1, r.err
	}
	if call < len(r.exitCodes) {
		return r.exitCodes[call], nil
	}
	return 0, nil
}

func newTestExecutor(t *testing.T, runner Runner, profile Profile) (*Executor, string) {
	t.Helper()
	workspace := t.TempDir()
	executor, err := New(Config{
		Workspace: workspace,
		Profile:   profile,
		Runner:    runner,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return executor, workspace
}

func TestBuildArguments(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	executor, workspace := newTestExecutor(t, runner, Profile{
		Runtime: "docker",
		Builder: "flowline",
	})

	err := executor.Build(context.Background(), &schema.BuildSpec{
		Context:    "services/api",
		Dockerfile: "Dockerfile.ci",
		Platforms:  []string{"linux/amd64"},
		Args:       map[string]string{"VERSION": "1.2.3", "COMMIT": "abc"},
		Labels:     map[string]string{"org.opencontainers.image.revision": "abc"},
		Tag:        "api:local",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(runner.invocations) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.invocations))
	}
	invocation := runner.invocations[0]
	if invocation.Program != "docker" {
		t.Errorf("program = %q", invocation.Program)
	}

	want := []string{
		"buildx", "build",
		"--builder", "flowline",
		"--file", "Dockerfile.ci",
		"--platform", "linux/amd64",
		"--build-arg", "COMMIT=abc",
		"--build-arg", "VERSION=1.2.3",
		"--label", "org.opencontainers.image.revision=abc",
		"--tag", "api:local",
		"--load",
		filepath.Join(workspace, "services/api"),
	}
	if !slices.Equal(invocation.Args, want) {
		t.Errorf("args:\n got %q\nwant %q", invocation.Args, want)
	}
}

func TestBuildPushedOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	executor, _ := newTestExecutor(t, runner, DefaultProfile())

	err := executor.Build(context.Background(), &schema.BuildSpec{
		Context:   ".",
		Platforms: []string{"linux/amd64", "linux/arm64"},
		Output:    schema.OutputPushed,
		Tag:       "api:multi",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	args := runner.invocations[0].Args
	if !slices.Contains(args, "--push") {
		t.Errorf("args missing --push: %q", args)
	}
	if !slices.Contains(args, "linux/amd64,linux/arm64") {
		t.Errorf("args missing joined platform list: %q", args)
	}
}

func TestBuildRejectsMultiPlatformLocalLoad(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	executor, _ := newTestExecutor(t, runner, DefaultProfile())

	// Explicit loaded-locally and the empty default are both rejected.
	for _, output := range []schema.OutputMode{schema.OutputLoadedLocally, ""} {
		err := executor.Build(context.Background(), &schema.BuildSpec{
			Context:   ".",
			Platforms: []string{"linux/amd64", "linux/arm64"},
			Output:    output,
			Tag:       "api:multi",
		})
		if err == nil || !strings.Contains(err.Error(), "multi-platform") {
			t.Errorf("output=%q: err = %v, want multi-platform rejection", output, err)
		}
	}

	// The runtime was never invoked for an invalid spec.
	if len(runner.invocations) != 0 {
		t.Errorf("runner invoked %d times for invalid specs", len(runner.invocations))
	}
}

func TestBuildRejectsUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	executor, _ := newTestExecutor(t, runner, Profile{
		Runtime:   "docker",
		Platforms: []string{"linux/amd64"},
	})

	err := executor.Build(context.Background(), &schema.BuildSpec{
		Context:   ".",
		Platforms: []string{"linux/riscv64"},
		Tag:       "api:local",
	})
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("err = %v, want unsupported platform", err)
	}
}

func TestBuildFailureExitCode(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{exitCodes: []int{1}}
	executor, _ := newTestExecutor(t, runner, DefaultProfile())

	err := executor.Build(context.Background(), &schema.BuildSpec{Context: ".", Tag: "api:local"})
	var buildError *BuildError
	if !errors.As(err, &buildError) {
		t.Fatalf("err = %v, want *BuildError", err)
	}
	if buildError.ExitCode != 1 || buildError.Tag != "api:local" {
		t.Errorf("BuildError = %+v", buildError)
	}
}

func TestRunCreatesMountDirectories(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	executor, workspace := newTestExecutor(t, runner, DefaultProfile())

	err := executor.Run(context.Background(), RunSpec{
		Image:   "api:local",
		Command: "make test",
		Mounts: []schema.Mount{
			{HostPath: "results", ContainerPath: "/results"},
			{HostPath: "/tmp", ContainerPath: "/host-tmp"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The relative mount directory was created under the workspace
	// before the container started.
	resultsDir := filepath.Join(workspace, "results")
	if info, statErr := os.Stat(resultsDir); statErr != nil || !info.IsDir() {
		t.Errorf("mount directory not created: %v", statErr)
	}

	args := runner.invocations[0].Args
	wantVolume := resultsDir + ":/results"
	if !slices.Contains(args, wantVolume) {
		t.Errorf("args missing %q: %q", wantVolume, args)
	}
	if !slices.Contains(args, "/tmp:/host-tmp") {
		t.Errorf("args missing absolute mount: %q", args)
	}

	// Command is passed through a shell.
	tail := args[len(args)-3:]
	if !slices.Equal(tail, []string{"sh", "-c", "make test"}) {
		t.Errorf("command tail = %q", tail)
	}
}

func TestRunExitError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{exitCodes: []int{42}}
	executor, _ := newTestExecutor(t, runner, DefaultProfile())

	err := executor.Run(context.Background(), RunSpec{Image: "api:local", Command: "false"})
	var exitError *ExitError
	if !errors.As(err, &exitError) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if exitError.ExitCode != 42 {
		t.Errorf("exit code = %d", exitError.ExitCode)
	}
}

func TestRunInfrastructureError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("docker: command not found")}
	executor, _ := newTestExecutor(t, runner, DefaultProfile())

	err := executor.Run(context.Background(), RunSpec{Image: "api:local", Command: "true"})
	if err == nil {
		t.Fatal("Run succeeded with a broken runner")
	}
	var exitError *ExitError
	if errors.As(err, &exitError) {
		t.Error("infrastructure error surfaced as ExitError")
	}
}

func TestNewRejectsRelativeWorkspace(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Workspace: "relative/path"}); err == nil {
		t.Error("New accepted a relative workspace")
	}
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted an empty workspace")
	}
}

func TestParseProfile(t *testing.T) {
	t.Parallel()

	profile, err := ParseProfile([]byte(`
runtime: podman
builder: ci-builder
platforms:
  - linux/amd64
  - linux/arm64
`))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if profile.Runtime != "podman" || profile.Builder != "ci-builder" {
		t.Errorf("profile = %+v", profile)
	}
	if !profile.Supports("linux/arm64") || profile.Supports("linux/riscv64") {
		t.Error("Supports does not follow the platform list")
	}

	// Empty input falls back to defaults.
	profile, err = ParseProfile(nil)
	if err != nil {
		t.Fatalf("ParseProfile(empty): %v", err)
	}
	if profile.Runtime != "docker" || !profile.Supports("linux/riscv64") {
		t.Errorf("default profile = %+v", profile)
	}

	// Unknown keys are rejected.
	if _, err := ParseProfile([]byte("runtmie: docker\n")); err == nil {
		t.Error("ParseProfile accepted an unknown key")
	}
}
