// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flowline-ci/flowline/lib/schema"
)

// BuildError reports a failed image build: the runtime CLI ran and
// exited non-zero.
type BuildError struct {
	// Tag is the image tag the build was producing.
	Tag string

	// ExitCode is the runtime CLI's exit code.
	ExitCode int
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("image build %q failed: exit code %d", e.Tag, e.ExitCode)
}

// ExitError reports a container command that ran to completion and
// exited non-zero. This is a step failure, not an infrastructure
// error: the job records it and applies its on_failure policy.
type ExitError struct {
	// Command is the command that ran inside the container.
	Command string

	// ExitCode is the container process exit code.
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("container command %q: exit code %d", e.Command, e.ExitCode)
}

// Config configures an Executor.
type Config struct {
	// Workspace is the run's workspace root. Relative build contexts
	// and relative mount host paths resolve against it. Required.
	Workspace string

	// Profile describes the runtime CLI and its platform support.
	// Zero value means DefaultProfile.
	Profile Profile

	// Runner executes the runtime CLI. Nil means ExecRunner.
	Runner Runner

	// Output receives container stdout and stderr. Nil discards.
	Output io.Writer

	// Logger for build and run lifecycle events. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Executor builds images and runs step commands in containers.
type Executor struct {
	workspace string
	profile   Profile
	runner    Runner
	output    io.Writer
	logger    *slog.Logger
}

// New creates an Executor. The workspace must be an absolute path.
func New(config Config) (*Executor, error) {
	if config.Workspace == "" {
		return nil, fmt.Errorf("container executor: workspace is required")
	}
	if !filepath.IsAbs(config.Workspace) {
		return nil, fmt.Errorf("container executor: workspace must be absolute, got %q", config.Workspace)
	}

	profile := config.Profile
	if profile.Runtime == "" {
		profile = DefaultProfile()
	}
	runner := config.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	output := config.Output
	if output == nil {
		output = io.Discard
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		workspace: config.Workspace,
		profile:   profile,
		runner:    runner,
		output:    output,
		logger:    logger,
	}, nil
}

// Build builds the image described by spec.
//
// The build is rejected before the runtime is invoked when the spec
// asks for something the runtime cannot deliver: a multi-platform
// build with loaded-locally output (the local image store holds one
// platform per tag), or a platform the host profile does not support.
func (e *Executor) Build(ctx context.Context, spec *schema.BuildSpec) error {
	if spec == nil || spec.Context == "" {
		return fmt.Errorf("image build: build context is required")
	}

	output := spec.Output
	if output == "" {
		output = schema.OutputLoadedLocally
	}
	if len(spec.Platforms) > 1 && output == schema.OutputLoadedLocally {
		return fmt.Errorf(
			"image build %q: multi-platform build (%s) cannot be loaded locally; use pushed output",
			spec.Tag, strings.Join(spec.Platforms, ", "),
		)
	}
	for _, platform := range spec.Platforms {
		if !e.profile.Supports(platform) {
			return fmt.Errorf(
				"image build %q: platform %s is not supported by this host (profile allows: %s)",
				spec.Tag, platform, strings.Join(e.profile.Platforms, ", "),
			)
		}
	}

	args := []string{"buildx", "build"}
	if e.profile.Builder != "" {
		args = append(args, "--builder", e.profile.Builder)
	}
	if spec.Dockerfile != "" {
		args = append(args, "--file", spec.Dockerfile)
	}
	if len(spec.Platforms) > 0 {
		args = append(args, "--platform", strings.Join(spec.Platforms, ","))
	}

	// Deterministic argument order keeps the build invocation stable
	// across runs, which matters for the result log and for tests.
	for _, name := range sortedKeys(spec.Args) {
		args = append(args, "--build-arg", name+"="+spec.Args[name])
	}
	for _, name := range sortedKeys(spec.Labels) {
		args = append(args, "--label", name+"="+spec.Labels[name])
	}

	if spec.Tag != "" {
		args = append(args, "--tag", spec.Tag)
	}
	switch output {
	case schema.OutputLoadedLocally:
		args = append(args, "--load")
	case schema.OutputPushed:
		args = append(args, "--push")
	}
	args = append(args, e.resolvePath(spec.Context))

	e.logger.Info("building image",
		"tag", spec.Tag,
		"context", spec.Context,
		"platforms", strings.Join(spec.Platforms, ","),
		"output", string(output),
	)

	exitCode, err := e.runner.Run(ctx, Invocation{
		Program: e.profile.Runtime,
		Args:    args,
		Dir:     e.workspace,
		Stdout:  e.output,
		Stderr:  e.output,
	})
	if err != nil {
		return fmt.Errorf("image build %q: %w", spec.Tag, err)
	}
	if exitCode != 0 {
		return &BuildError{Tag: spec.Tag, ExitCode: exitCode}
	}
	return nil
}

// RunSpec describes one container command execution.
type RunSpec struct {
	// Image is the image to run. Usually the tag of a preceding
	// build.
	Image string

	// Command is the shell command executed inside the container.
	Command string

	// Mounts are host to container bind mounts. Host directories are
	// created before the container starts and survive it regardless
	// of exit status.
	Mounts []schema.Mount

	// Env is extra environment for the container process.
	Env map[string]string

	// Timeout bounds the execution. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration

	// GracePeriod is the SIGTERM to SIGKILL window on cancellation.
	// Zero kills immediately.
	GracePeriod time.Duration
}

// Run executes spec.Command inside spec.Image.
//
// Mount host directories are created up front so a container that
// writes nothing (or crashes) still leaves the directory in place for
// collect-artifact steps to inspect. A non-zero container exit returns
// *ExitError; everything else (runtime missing, cancellation) is an
// infrastructure error.
func (e *Executor) Run(ctx context.Context, spec RunSpec) error {
	if spec.Image == "" {
		return fmt.Errorf("container run: image is required")
	}
	if spec.Command == "" {
		return fmt.Errorf("container run: command is required")
	}

	args := []string{"run", "--rm"}
	for _, mount := range spec.Mounts {
		hostPath := e.resolvePath(mount.HostPath)
		if err := os.MkdirAll(hostPath, 0o755); err != nil {
			return fmt.Errorf("container run: creating mount directory %s: %w", hostPath, err)
		}
		args = append(args, "--volume", hostPath+":"+mount.ContainerPath)
	}

	for _, name := range sortedKeys(spec.Env) {
		args = append(args, "--env", name+"="+spec.Env[name])
	}

	args = append(args, spec.Image, "sh", "-c", spec.Command)

	runContext := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runContext, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	e.logger.Info("running container",
		"image", spec.Image,
		"command", spec.Command,
		"mounts", len(spec.Mounts),
	)

	exitCode, err := e.runner.Run(runContext, Invocation{
		Program:     e.profile.Runtime,
		Args:        args,
		Dir:         e.workspace,
		Stdout:      e.output,
		Stderr:      e.output,
		GracePeriod: spec.GracePeriod,
	})
	if err != nil {
		return fmt.Errorf("container run: %w", err)
	}
	if exitCode != 0 {
		return &ExitError{Command: spec.Command, ExitCode: exitCode}
	}
	return nil
}

// resolvePath resolves a possibly relative path against the workspace.
func (e *Executor) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workspace, path)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
