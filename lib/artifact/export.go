// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flowline-ci/flowline/lib/codec"
)

// archiveMagic opens every export archive. The trailing digit is the
// format version.
var archiveMagic = []byte("FLART1")

// Manifest describes an export archive's contents. Encoded with
// lib/codec (deterministic CBOR) so identical runs produce
// byte-identical manifests.
type Manifest struct {
	// Pipeline is the pipeline name the run executed.
	Pipeline string `cbor:"pipeline"`

	// RunStatus is the run's overall terminal status.
	RunStatus string `cbor:"run_status"`

	// Entries describe the archived artifacts in registration order.
	Entries []ManifestEntry `cbor:"entries"`
}

// ManifestEntry describes one archived artifact.
type ManifestEntry struct {
	Name           string `cbor:"name"`
	Ref            string `cbor:"ref"`
	JobID          string `cbor:"job_id"`
	Size           int64  `cbor:"size"`
	CompressedSize int64  `cbor:"compressed_size"`
	Compression    uint8  `cbor:"compression"`

	// Offset is the entry's position in the blob section, relative
	// to the end of the manifest.
	Offset int64 `cbor:"offset"`
}

// Export writes every stored artifact to a single archive file at
// path: magic, manifest length (uvarint), CBOR manifest, then the
// compressed blobs. Compression is chosen per entry from the artifact
// name (zstd for text-like, LZ4 for binary, stored for
// already-compressed formats).
//
// Export is called at run end regardless of the run's outcome; the
// caller passes the terminal status purely as manifest metadata.
func (s *Store) Export(path, pipeline, runStatus string) (*Manifest, error) {
	entries := s.List()

	manifest := &Manifest{
		Pipeline:  pipeline,
		RunStatus: runStatus,
		Entries:   make([]ManifestEntry, 0, len(entries)),
	}

	var blobs bytes.Buffer
	for _, entry := range entries {
		data, err := os.ReadFile(entry.HostPath)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", entry.Name, err)
		}

		tag := chooseCompression(entry.Name)
		compressed, err := compress(tag, data)
		if err != nil {
			return nil, fmt.Errorf("compressing artifact %q: %w", entry.Name, err)
		}

		manifest.Entries = append(manifest.Entries, ManifestEntry{
			Name:           entry.Name,
			Ref:            entry.Ref,
			JobID:          entry.JobID,
			Size:           entry.Size,
			CompressedSize: int64(len(compressed)),
			Compression:    uint8(tag),
			Offset:         int64(blobs.Len()),
		})
		blobs.Write(compressed)
	}

	manifestBytes, err := codec.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	// Write to a temp file in the destination directory, then rename:
	// a crash mid-export must not leave a half-written archive under
	// the final name.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".flart-*")
	if err != nil {
		return nil, fmt.Errorf("creating archive temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var header bytes.Buffer
	header.Write(archiveMagic)
	var lengthBuffer [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lengthBuffer[:], uint64(len(manifestBytes)))
	header.Write(lengthBuffer[:n])
	header.Write(manifestBytes)

	if _, err := tmp.Write(header.Bytes()); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing archive header: %w", err)
	}
	if _, err := tmp.Write(blobs.Bytes()); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing archive blobs: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("syncing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("renaming archive into place: %w", err)
	}

	return manifest, nil
}

// Archive is a parsed export archive opened for reading.
type Archive struct {
	Manifest Manifest

	blobs []byte
}

// OpenArchive reads and parses an export archive.
func OpenArchive(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	if len(data) < len(archiveMagic) || !bytes.Equal(data[:len(archiveMagic)], archiveMagic) {
		return nil, fmt.Errorf("%s is not a flowline artifact archive", path)
	}
	rest := data[len(archiveMagic):]

	manifestLength, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, fmt.Errorf("%s: malformed manifest length", path)
	}
	rest = rest[n:]
	if uint64(len(rest)) < manifestLength {
		return nil, fmt.Errorf("%s: truncated manifest", path)
	}

	var manifest Manifest
	if err := codec.Unmarshal(rest[:manifestLength], &manifest); err != nil {
		return nil, fmt.Errorf("%s: decoding manifest: %w", path, err)
	}

	return &Archive{Manifest: manifest, blobs: rest[manifestLength:]}, nil
}

// Entry returns the decompressed content of the named entry.
func (a *Archive) Entry(name string) ([]byte, error) {
	for _, entry := range a.Manifest.Entries {
		if entry.Name != name {
			continue
		}
		end := entry.Offset + entry.CompressedSize
		if entry.Offset < 0 || end > int64(len(a.blobs)) {
			return nil, fmt.Errorf("entry %q: blob range [%d, %d) outside archive", name, entry.Offset, end)
		}
		return decompress(CompressionTag(entry.Compression), a.blobs[entry.Offset:end], entry.Size)
	}
	return nil, &NotFoundError{Name: name}
}

// WriteEntry decompresses the named entry to w.
func (a *Archive) WriteEntry(name string, w io.Writer) error {
	data, err := a.Entry(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
