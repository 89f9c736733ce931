// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to an archive
// entry. Tags are stored in the export manifest (one byte each).
// These values are format constants; changing them breaks archive
// compatibility.
type CompressionTag uint8

const (
	// CompressionNone stores the entry uncompressed. Used for
	// already-compressed content (archives, images) where another
	// pass adds CPU cost without reducing size.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 applies LZ4 block compression. Fast default for
	// binary content of unknown structure.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd applies zstd at the default level. Better
	// ratios for text: XML reports, JSON, logs.
	CompressionZstd CompressionTag = 2
)

// String returns the tag's manifest name.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// textExtensions are file extensions treated as text-like and
// compressed with zstd.
var textExtensions = map[string]bool{
	".xml": true, ".json": true, ".jsonl": true, ".txt": true,
	".log": true, ".md": true, ".yaml": true, ".yml": true,
	".csv": true, ".html": true,
}

// storedExtensions are formats that are already compressed; another
// pass is wasted work.
var storedExtensions = map[string]bool{
	".gz": true, ".zst": true, ".lz4": true, ".zip": true,
	".png": true, ".jpg": true, ".jpeg": true, ".tgz": true,
}

// chooseCompression picks a tag from the artifact's file name.
func chooseCompression(name string) CompressionTag {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case storedExtensions[ext]:
		return CompressionNone
	case textExtensions[ext]:
		return CompressionZstd
	default:
		return CompressionLZ4
	}
}

// compress applies the tagged algorithm to data.
func compress(tag CompressionTag, data []byte) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		buffer := make([]byte, lz4.CompressBlockBound(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, buffer)
		if err != nil {
			return nil, fmt.Errorf("lz4 compression: %w", err)
		}
		if n == 0 || n >= len(data) {
			// Incompressible: callers store the raw bytes instead.
			return data, nil
		}
		return buffer[:n], nil

	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil

	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}

// decompress reverses compress. uncompressedSize is the original
// entry size from the manifest (LZ4 block decompression needs the
// destination size up front).
func decompress(tag CompressionTag, data []byte, uncompressedSize int64) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		if int64(len(data)) == uncompressedSize {
			// compress fell back to raw bytes for incompressible data.
			return data, nil
		}
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression: %w", err)
		}
		return out[:n], nil

	case CompressionZstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)

	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}
