// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// String returns the full lowercase hex encoding.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Ref returns the short content-addressed artifact reference:
// "flart-" followed by the first 12 hex characters of the hash.
func (h Hash) Ref() string { return "flart-" + hex.EncodeToString(h[:6]) }

// Domain separation keys for BLAKE3 keyed hashing. The same bytes
// hashed in different contexts must not collide, so each context gets
// its own fixed 32-byte key: the ASCII domain name, zero-padded.
// Changing a key invalidates every existing hash in that domain.
var (
	fileDomainKey = [32]byte{
		'f', 'l', 'o', 'w', 'l', 'i', 'n', 'e', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
		't', '.', 'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	imageDomainKey = [32]byte{
		'f', 'l', 'o', 'w', 'l', 'i', 'n', 'e', '.', 'i', 'm', 'a', 'g', 'e', 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashBytes computes the file-domain hash of data.
func HashBytes(data []byte) Hash {
	return keyedHash(fileDomainKey, data)
}

// HashImage computes the image-domain hash of an image's identity
// material (canonical metadata bytes). Used by lib/registry for
// idempotent push comparison; a separate domain from file hashing so
// an image whose metadata happens to equal an artifact's content
// still gets a distinct digest.
func HashImage(data []byte) Hash {
	return keyedHash(imageDomainKey, data)
}

// HashReader computes the file-domain hash of everything readable
// from r.
func HashReader(r io.Reader) (Hash, int64, error) {
	hasher, err := blake3.NewKeyed(fileDomainKey[:])
	if err != nil {
		return Hash{}, 0, fmt.Errorf("artifact: BLAKE3 keyed hash initialization failed: %w", err)
	}
	size, err := io.Copy(hasher, r)
	if err != nil {
		return Hash{}, 0, err
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h, size, nil
}

// HashFile computes the file-domain hash and size of the file at path.
func HashFile(path string) (Hash, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, 0, err
	}
	defer file.Close()

	h, size, err := HashReader(file)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h, size, nil
}

func keyedHash(key [32]byte, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("artifact: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}
