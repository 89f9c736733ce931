// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"
)

func TestExportRoundTrip(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t)

	// Mixed content: compressible XML, incompressible pseudo-random
	// binary, and an already-compressed name.
	xml := bytes.Repeat([]byte("<testcase name=\"ok\" time=\"0.01\"/>\n"), 200)
	binaryData := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(binaryData)
	gz := []byte("\x1f\x8b already gzipped")

	entries := []struct {
		name    string
		content []byte
		job     string
	}{
		{"junit.xml", xml, "test"},
		{"profile.bin", binaryData, "test"},
		{"bundle.gz", gz, "build"},
	}
	for _, entry := range entries {
		path := writeFile(t, dir, "files/"+entry.name, entry.content)
		if _, err := store.Put(entry.name, path, entry.job); err != nil {
			t.Fatalf("Put %s: %v", entry.name, err)
		}
	}

	archivePath := filepath.Join(dir, "out", "run.flart")
	manifest, err := store.Export(archivePath, "ci", "failure")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if manifest.Pipeline != "ci" || manifest.RunStatus != "failure" {
		t.Errorf("manifest metadata = %q/%q", manifest.Pipeline, manifest.RunStatus)
	}
	if len(manifest.Entries) != 3 {
		t.Fatalf("manifest has %d entries, want 3", len(manifest.Entries))
	}

	// Compression choice follows content kind.
	tags := make(map[string]CompressionTag)
	for _, entry := range manifest.Entries {
		tags[entry.Name] = CompressionTag(entry.Compression)
	}
	if tags["junit.xml"] != CompressionZstd {
		t.Errorf("junit.xml tag = %s, want zstd", tags["junit.xml"])
	}
	if tags["profile.bin"] != CompressionLZ4 {
		t.Errorf("profile.bin tag = %s, want lz4", tags["profile.bin"])
	}
	if tags["bundle.gz"] != CompressionNone {
		t.Errorf("bundle.gz tag = %s, want none", tags["bundle.gz"])
	}

	// The XML actually shrank.
	for _, entry := range manifest.Entries {
		if entry.Name == "junit.xml" && entry.CompressedSize >= entry.Size {
			t.Errorf("junit.xml did not compress: %d -> %d", entry.Size, entry.CompressedSize)
		}
	}

	archive, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	for _, entry := range entries {
		got, err := archive.Entry(entry.name)
		if err != nil {
			t.Fatalf("Entry(%s): %v", entry.name, err)
		}
		if !bytes.Equal(got, entry.content) {
			t.Errorf("entry %s: content mismatch after round trip", entry.name)
		}
	}

	if _, err := archive.Entry("missing"); err == nil {
		t.Error("Entry(missing) succeeded")
	}
}

func TestExportEmptyStore(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t)
	archivePath := filepath.Join(dir, "empty.flart")

	manifest, err := store.Export(archivePath, "ci", "success")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(manifest.Entries) != 0 {
		t.Errorf("empty store produced %d entries", len(manifest.Entries))
	}

	archive, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	if archive.Manifest.RunStatus != "success" {
		t.Errorf("run status = %q", archive.Manifest.RunStatus)
	}
}

func TestOpenArchiveRejectsForeignFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "not-an-archive", []byte("plain text"))
	if _, err := OpenArchive(path); err == nil {
		t.Error("OpenArchive accepted a non-archive file")
	}
}

func TestHashRefFormat(t *testing.T) {
	t.Parallel()

	h := HashBytes([]byte("content"))
	ref := h.Ref()
	if len(ref) != len("flart-")+12 {
		t.Errorf("ref length = %d: %q", len(ref), ref)
	}

	// Domain separation: the same bytes hash differently in the file
	// and image domains.
	if HashBytes([]byte("x")) == HashImage([]byte("x")) {
		t.Error("file and image domains collide")
	}

	// Determinism.
	if HashBytes([]byte("content")) != h {
		t.Error("HashBytes not deterministic")
	}
}
