// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package forge is a minimal client for the source forge's REST API:
// the pieces Flowline needs to report run outcomes back to where the
// triggering event came from. That is pull request comments (coverage
// summaries) and commit statuses (run pass/fail markers); nothing
// else.
//
// Authentication is token-based. Errors from the API surface as
// *APIError with the HTTP status and the forge's message preserved.
package forge
