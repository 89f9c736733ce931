// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()

	// Maps with different insertion histories must encode to
	// identical bytes.
	first := map[string]any{"zeta": 1, "alpha": "x", "mid": []int{3, 2, 1}}
	second := map[string]any{"mid": []int{3, 2, 1}, "alpha": "x", "zeta": 1}

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal(first): %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal(second): %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("deterministic encoding violated:\n%x\n%x", firstBytes, secondBytes)
	}
}

func TestRoundTripStruct(t *testing.T) {
	t.Parallel()

	type entry struct {
		Name string `cbor:"name"`
		Size int64  `cbor:"size"`
	}

	in := entry{Name: "coverage.xml", Size: 4096}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out entry
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip: got %+v, want %+v", out, in)
	}
}

func TestDecodeIntoAnyUsesStringKeys(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", out)
	}
	if m["key"] != "value" {
		t.Errorf("decoded map = %v", m)
	}
}
