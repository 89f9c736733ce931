// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/flowline-ci/flowline/lib/clock"
)

// Invocation is one runtime CLI call: the program, its arguments, and
// how the resulting process is supervised.
type Invocation struct {
	// Program is the executable name, resolved via PATH.
	Program string

	// Args are the arguments, not including the program name.
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string

	// Stdout and Stderr receive the process output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// GracePeriod is how long the process group is given between
	// SIGTERM and SIGKILL when the context is cancelled. Zero means
	// immediate SIGKILL.
	GracePeriod time.Duration
}

// Runner executes runtime CLI invocations. The production
// implementation is ExecRunner; tests use a fake that records the
// argument vectors and returns scripted exit codes.
type Runner interface {
	// Run executes the invocation and returns the process exit code.
	// A non-nil error means the process could not run or was torn
	// down by cancellation, not that it exited non-zero.
	Run(ctx context.Context, invocation Invocation) (int, error)
}

// ExecRunner runs invocations as real subprocesses.
//
// Each process is placed in its own process group so cancellation
// signals reach the runtime CLI and everything it spawned. Without
// this, killing only the CLI leaves children holding the inherited
// output descriptors and the pipeline waits on them indefinitely.
type ExecRunner struct {
	// Clock times the SIGTERM to SIGKILL grace period. Nil means the
	// real clock.
	Clock clock.Clock
}

// Run implements Runner.
//
// On context cancellation the whole process group is signalled:
// SIGKILL immediately when GracePeriod is zero, otherwise SIGTERM
// followed by SIGKILL after the grace period. ESRCH from an
// already-dead group is harmless and ignored.
func (r ExecRunner) Run(ctx context.Context, invocation Invocation) (int, error) {
	clk := r.Clock
	if clk == nil {
		clk = clock.Real()
	}
	cmd := exec.CommandContext(ctx, invocation.Program, invocation.Args...)
	cmd.Dir = invocation.Dir
	cmd.Stdout = invocation.Stdout
	cmd.Stderr = invocation.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	gracePeriod := invocation.GracePeriod
	cmd.Cancel = func() error {
		processGroup := -cmd.Process.Pid
		if gracePeriod <= 0 {
			return unix.Kill(processGroup, unix.SIGKILL)
		}
		if err := unix.Kill(processGroup, unix.SIGTERM); err != nil {
			// The group is already gone or unsignallable; escalate.
			return unix.Kill(processGroup, unix.SIGKILL)
		}
		go func() {
			clk.Sleep(gracePeriod)
			_ = unix.Kill(processGroup, unix.SIGKILL)
		}()
		return nil
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	// Cancellation takes precedence over the exit status: a process
	// group killed by the teardown signals also surfaces as an
	// ExitError, which must not read as a normal non-zero exit.
	if ctx.Err() != nil {
		return -1, fmt.Errorf("%s: %w", invocation.Program, ctx.Err())
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}

	// The process never ran.
	return -1, fmt.Errorf("running %s: %w", invocation.Program, err)
}
