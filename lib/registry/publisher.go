// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/flowline-ci/flowline/lib/artifact"
	"github.com/flowline-ci/flowline/lib/container"
)

// PushError reports a push the registry rejected: authentication
// failure, unknown repository, quota. The image and tags were valid;
// retrying may succeed.
type PushError struct {
	// Target is the full reference that failed, host/repository:tag.
	Target string

	// ExitCode is the runtime CLI's exit code.
	ExitCode int
}

func (e *PushError) Error() string {
	return fmt.Sprintf("pushing %s: exit code %d", e.Target, e.ExitCode)
}

// Config configures a Publisher.
type Config struct {
	// Host is the registry host, e.g. "registry.example.com". Required.
	Host string

	// Repository is the image path under the host, e.g. "acme/api".
	// Required.
	Repository string

	// Runtime is the container CLI program. Empty means "docker".
	Runtime string

	// Runner executes the runtime CLI. Nil means container.ExecRunner.
	Runner container.Runner

	// Logger for push lifecycle events. Nil means slog.Default().
	Logger *slog.Logger
}

// Publisher tags and pushes local images to one registry repository.
// Safe for concurrent use.
type Publisher struct {
	host       string
	repository string
	runtime    string
	runner     container.Runner
	logger     *slog.Logger

	mu sync.Mutex
	// pushed maps a target reference to the identity digest of the
	// image last pushed under it. Re-publishing the same identity to
	// the same reference is skipped.
	pushed map[string]artifact.Hash
}

// New creates a Publisher.
func New(config Config) (*Publisher, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("registry publisher: host is required")
	}
	if config.Repository == "" {
		return nil, fmt.Errorf("registry publisher: repository is required")
	}

	runtime := config.Runtime
	if runtime == "" {
		runtime = "docker"
	}
	runner := config.Runner
	if runner == nil {
		runner = container.ExecRunner{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		host:       config.Host,
		repository: config.Repository,
		runtime:    runtime,
		runner:     runner,
		logger:     logger,
		pushed:     make(map[string]artifact.Hash),
	}, nil
}

// PushResult reports what Publish did for each tag.
type PushResult struct {
	// Pushed are the target references that were actually pushed.
	Pushed []string

	// Skipped are the target references already holding this image.
	Skipped []string
}

// Publish tags the local image with every tag in tags and pushes each
// resulting reference.
//
// The push is idempotent per (reference, image identity) pair: a tag
// this Publisher already pushed for the same image is skipped. Tags
// are pushed in order; the first failing push aborts the rest so a
// retry re-attempts from the failed tag without re-pushing the layers
// that already landed (the registry deduplicates those server-side).
func (p *Publisher) Publish(ctx context.Context, image string, tags []string) (*PushResult, error) {
	if image == "" {
		return nil, fmt.Errorf("registry publisher: image is required")
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("registry publisher: no tags to push for %q", image)
	}

	identity, err := p.imageIdentity(ctx, image)
	if err != nil {
		return nil, err
	}

	result := &PushResult{}
	for _, tag := range tags {
		target := p.host + "/" + p.repository + ":" + tag

		if p.alreadyPushed(target, identity) {
			p.logger.Info("push skipped, tag already current", "target", target)
			result.Skipped = append(result.Skipped, target)
			continue
		}

		if err := p.push(ctx, image, target); err != nil {
			return result, err
		}
		p.recordPush(target, identity)
		result.Pushed = append(result.Pushed, target)
	}
	return result, nil
}

// imageIdentity resolves the local image's identity digest: the
// runtime's content-addressed image ID, rehashed into the image
// domain.
func (p *Publisher) imageIdentity(ctx context.Context, image string) (artifact.Hash, error) {
	var stdout bytes.Buffer
	exitCode, err := p.runner.Run(ctx, container.Invocation{
		Program: p.runtime,
		Args:    []string{"image", "inspect", "--format", "{{.Id}}", image},
		Stdout:  &stdout,
	})
	if err != nil {
		return artifact.Hash{}, fmt.Errorf("inspecting image %q: %w", image, err)
	}
	if exitCode != 0 {
		return artifact.Hash{}, fmt.Errorf("image %q is not in the local store (exit code %d)", image, exitCode)
	}

	id := strings.TrimSpace(stdout.String())
	if id == "" {
		return artifact.Hash{}, fmt.Errorf("image %q: runtime returned an empty image ID", image)
	}
	return artifact.HashImage([]byte(id)), nil
}

func (p *Publisher) push(ctx context.Context, image, target string) error {
	exitCode, err := p.runner.Run(ctx, container.Invocation{
		Program: p.runtime,
		Args:    []string{"tag", image, target},
	})
	if err != nil {
		return fmt.Errorf("tagging %s: %w", target, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("tagging %s: exit code %d", target, exitCode)
	}

	p.logger.Info("pushing image", "image", image, "target", target)
	exitCode, err = p.runner.Run(ctx, container.Invocation{
		Program: p.runtime,
		Args:    []string{"push", target},
	})
	if err != nil {
		return fmt.Errorf("pushing %s: %w", target, err)
	}
	if exitCode != 0 {
		return &PushError{Target: target, ExitCode: exitCode}
	}
	return nil
}

func (p *Publisher) alreadyPushed(target string, identity artifact.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pushed, exists := p.pushed[target]
	return exists && pushed == identity
}

func (p *Publisher) recordPush(target string, identity artifact.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed[target] = identity
}
