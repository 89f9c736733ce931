// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry publishes built images to a container registry.
//
// Tag derivation is additive: the branch name, the pull request
// number, and the commit hash each contribute one candidate tag when
// the corresponding event attribute is present, and every candidate is
// applied. A push to main with sha abc123 therefore lands as both
// "main" and "sha-abc123", never one or the other.
//
// Pushes are idempotent. Concurrent or retried runs may publish the
// same image under the same tags; the Publisher compares the image's
// identity digest against what it already pushed and turns an
// identical re-push into a no-op instead of an error. The underlying
// registry deduplicates identical layers on its own, so even a re-push
// from a fresh process leaves the registry in the same observable
// state.
//
// The publisher itself never decides when to run. The pipeline graph
// gates the owning job behind a guard, conventionally
// "success() && event.type == push && event.branch == main", so that
// pull request events and non-trunk branches never reach the registry.
package registry
