// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Profile describes the container runtime available on this host: the
// CLI to invoke, the buildx builder instance to use, and the platforms
// that builder can produce. Profiles live in a YAML file next to the
// engine configuration so a runner host with QEMU emulation can
// advertise more platforms than its native architecture.
type Profile struct {
	// Runtime is the CLI program, e.g. "docker" or "podman". Defaults
	// to "docker".
	Runtime string `yaml:"runtime"`

	// Builder is the buildx builder instance name. Empty uses the
	// runtime default builder.
	Builder string `yaml:"builder"`

	// Platforms are the platform identifiers this host can build for,
	// e.g. "linux/amd64". Empty means no restriction is enforced.
	Platforms []string `yaml:"platforms"`
}

// DefaultProfile is used when no profile file is configured: plain
// docker, default builder, no platform restriction.
func DefaultProfile() Profile {
	return Profile{Runtime: "docker"}
}

// LoadProfile reads a runtime profile from a YAML file. Unknown keys
// are rejected so typos in a profile fail loudly instead of silently
// falling back to defaults.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading runtime profile: %w", err)
	}

	profile, err := ParseProfile(data)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return profile, nil
}

// ParseProfile parses YAML profile bytes.
func ParseProfile(data []byte) (Profile, error) {
	profile := DefaultProfile()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&profile); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("parsing runtime profile: %w", err)
	}
	if profile.Runtime == "" {
		profile.Runtime = "docker"
	}
	return profile, nil
}

// Supports reports whether the profile can build for the given
// platform. A profile without a platform list supports everything.
func (p Profile) Supports(platform string) bool {
	if len(p.Platforms) == 0 {
		return true
	}
	return slices.Contains(p.Platforms, platform)
}
