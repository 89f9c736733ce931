// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/flowline-ci/flowline/lib/schema"
)

// maxTagLength is the registry tag length limit.
const maxTagLength = 128

// DeriveTags computes the tag set for an event. Each present event
// attribute contributes one tag, independently of the others:
//
//   - the branch name, sanitized ("feature/x" becomes "feature-x")
//   - "pr-N" for pull request number N
//   - "sha-" plus the abbreviated commit hash
//
// All derived tags apply simultaneously. The order is stable: branch,
// then pull request, then commit.
func DeriveTags(event schema.Event) []string {
	var tags []string
	if event.Branch != "" {
		tags = append(tags, SanitizeTag(event.Branch))
	}
	if event.PRNumber > 0 {
		tags = append(tags, fmt.Sprintf("pr-%d", event.PRNumber))
	}
	if event.SHA != "" {
		tags = append(tags, "sha-"+event.ShortSHA())
	}
	return tags
}

// SanitizeTag maps an arbitrary string onto the registry tag alphabet:
// ASCII letters, digits, underscores, periods, and dashes, at most 128
// characters, not starting with a period or dash. Every disallowed
// character becomes a dash. Sanitization is lossy, so distinct
// branches can collide; the sha tag disambiguates.
func SanitizeTag(raw string) string {
	var builder strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			builder.WriteRune(r)
		default:
			builder.WriteByte('-')
		}
	}

	tag := builder.String()
	tag = strings.TrimLeft(tag, ".-")
	if len(tag) > maxTagLength {
		tag = tag[:maxTagLength]
	}
	if tag == "" {
		tag = "unnamed"
	}
	return tag
}

// DeriveLabels computes the OCI image labels recording where an image
// came from. The engine merges these into the BuildSpec so they are
// baked into the image at build time.
func DeriveLabels(event schema.Event, pipeline string, buildTime time.Time) map[string]string {
	labels := map[string]string{
		"org.opencontainers.image.revision": event.SHA,
		"org.opencontainers.image.created":  buildTime.UTC().Format(time.RFC3339),
		"ci.flowline.pipeline":              pipeline,
		"ci.flowline.event":                 string(event.Type),
	}
	if event.Repo != "" {
		labels["org.opencontainers.image.source"] = event.Repo
	}
	return labels
}
