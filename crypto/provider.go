// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crypto defines the cryptographic capability the validation and
// script-interpreter packages depend on, and a default implementation of
// it. Consensus code never calls a hash or signature-verification
// function directly; it calls through a Provider, so that an embedder
// can swap in hardware-accelerated or test-double implementations
// without touching consensus logic (spec §6, §9 "dependency injection").
package crypto

import (
	"crypto/sha1"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/ripemd160"
)

// Provider supplies every cryptographic primitive the script interpreter
// and transaction validator need. Implementations must be safe for
// concurrent use by multiple validator instances (spec §5).
type Provider interface {
	// SHA256 returns the SHA-256 digest of b.
	SHA256(b []byte) [32]byte

	// SHA1 returns the SHA-1 digest of b, for OP_SHA1 compatibility with
	// legacy scripts.
	SHA1(b []byte) [20]byte

	// RIPEMD160 returns the RIPEMD-160 digest of b.
	RIPEMD160(b []byte) [20]byte

	// Hash160 returns RIPEMD160(SHA256(b)), the digest used to commit to
	// a public key in a pay-to-pubkey-hash script.
	Hash160(b []byte) [20]byte

	// Hash256 returns SHA256(SHA256(b)), the digest used for block and
	// transaction identifiers and for OP_HASH256.
	Hash256(b []byte) [32]byte

	// VerifySignature reports whether sig is a valid DER-encoded ECDSA
	// signature over sigHash by the holder of pubKey. Implementations
	// must reject malformed encodings rather than panic.
	VerifySignature(pubKey, sig, sigHash []byte) bool

	// ParsePubKey validates that b is a well-formed compressed or
	// uncompressed secp256k1 public key encoding.
	ParsePubKey(b []byte) bool
}

// Default is the library's built-in Provider: standard-library hashing
// plus secp256k1 ECDSA verification via btcec. Most callers that are not
// injecting a test double or an alternate curve should use this.
type Default struct{}

var _ Provider = Default{}

func (Default) SHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

func (Default) SHA1(b []byte) [20]byte {
	return sha1.Sum(b)
}

func (Default) RIPEMD160(b []byte) [20]byte {
	h := ripemd160.New()
	h.Write(b)
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (d Default) Hash160(b []byte) [20]byte {
	s := d.SHA256(b)
	return d.RIPEMD160(s[:])
}

func (d Default) Hash256(b []byte) [32]byte {
	s := d.SHA256(b)
	return d.SHA256(s[:])
}

func (Default) VerifySignature(pubKeyBytes, sigBytes, sigHash []byte) bool {
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}
	return sig.Verify(sigHash, pubKey)
}

func (Default) ParsePubKey(b []byte) bool {
	_, err := btcec.ParsePubKey(b)
	return err == nil
}
