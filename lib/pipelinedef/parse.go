// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipelinedef provides parsing and validation for Flowline
// pipeline definitions. Pipelines are authored on disk as JSONC files
// (JSON extended with comments and trailing commas).
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → schema.Pipeline
//  2. Validate: structural checks (actions, parameters, permissions,
//     guard syntax), returning every issue rather than the first
//  3. graph.New: dependency checks (unknown references, cycles)
//
// Validation here is per-job and per-step; cross-job dependency
// structure belongs to lib/graph.
package pipelinedef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/flowline-ci/flowline/lib/schema"
)

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Pipeline.
func Parse(data []byte) (*schema.Pipeline, error) {
	stripped := jsonc.ToJSON(data)

	var pipeline schema.Pipeline
	if err := json.Unmarshal(stripped, &pipeline); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	return &pipeline, nil
}

// ReadFile reads a JSONC pipeline file from disk and parses it.
func ReadFile(path string) (*schema.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	pipeline, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if pipeline.Name == "" {
		pipeline.Name = NameFromPath(path)
	}

	return pipeline, nil
}

// NameFromPath extracts a pipeline name from a file path by stripping
// the directory prefix and the extension: "ci/build-test.jsonc"
// becomes "build-test".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
