// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainhash provides the 32-byte double-SHA-256 identifier used
// throughout the consensus core to name blocks and transactions.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the size, in bytes, of a block or transaction hash.
const HashSize = 32

// Hash is a double-SHA-256 digest, stored internally in the byte order
// the hashing algorithm produces. String() reverses it to match the
// big-endian, human-readable convention the network wire format expects.
type Hash [HashSize]byte

// String returns the hash as the reversed-byte hex string used by block
// explorers and the wire encoding of inventory messages.
func (h Hash) String() string {
	for i := 0; i < HashSize/2; i++ {
		h[i], h[HashSize-1-i] = h[HashSize-1-i], h[i]
	}
	return hex.EncodeToString(h[:])
}

// CloneBytes returns a copy of the hash's backing bytes.
func (h Hash) CloneBytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// SetBytes sets the hash to the bytes in b, which must be HashSize long.
func (h *Hash) SetBytes(b []byte) error {
	if len(b) != HashSize {
		return fmt.Errorf("chainhash: invalid hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return nil
}

// IsEqual reports whether h and target represent the same hash.
func (h *Hash) IsEqual(target *Hash) bool {
	if h == nil && target == nil {
		return true
	}
	if h == nil || target == nil {
		return false
	}
	return *h == *target
}

// NewHash constructs a Hash from a byte slice.
func NewHash(b []byte) (*Hash, error) {
	var h Hash
	if err := h.SetBytes(b); err != nil {
		return nil, err
	}
	return &h, nil
}

// DoubleHashB computes SHA256(SHA256(b)).
func DoubleHashB(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// DoubleHashH computes SHA256(SHA256(b)) and returns it as a Hash.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	return Hash(sha256.Sum256(first[:]))
}

// Less reports whether a sorts before b; used to give branch/orphan
// bookkeeping a deterministic iteration order in tests.
func Less(a, b Hash) bool {
	for i := HashSize - 1; i >= 0; i-- {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
