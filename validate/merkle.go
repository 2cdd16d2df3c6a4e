// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"math"

	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/wire"
)

// nextPowerOfTwo returns the next highest power of two from a given number
// if it is not already a power of two. Used while sizing the linear array
// backing a merkle tree.
func nextPowerOfTwo(n int) int {
	if n&(n-1) == 0 {
		return n
	}
	exponent := uint(math.Log2(float64(n))) + 1
	return 1 << exponent
}

// hashMerkleBranches returns the hash of the concatenation of left and
// right, the node-combining step of a merkle tree.
func hashMerkleBranches(left, right *chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:])
}

// BuildMerkleTreeStore creates a merkle tree from a slice of transactions
// and returns it as a linear array, where the root is always the final
// element. A parent with only a left child is computed by hashing that
// child with itself; a parent with no children is nil.
func BuildMerkleTreeStore(transactions []*wire.MsgTx) []*chainhash.Hash {
	nextPoT := nextPowerOfTwo(len(transactions))
	arraySize := nextPoT*2 - 1
	nodes := make([]*chainhash.Hash, arraySize)

	for i, tx := range transactions {
		h := tx.TxHash()
		nodes[i] = &h
	}

	offset := nextPoT
	for i := 0; i < arraySize-1; i += 2 {
		switch {
		case nodes[i] == nil:
			nodes[offset] = nil
		case nodes[i+1] == nil:
			h := hashMerkleBranches(nodes[i], nodes[i])
			nodes[offset] = &h
		default:
			h := hashMerkleBranches(nodes[i], nodes[i+1])
			nodes[offset] = &h
		}
		offset++
	}

	return nodes
}

// CalcMerkleRoot computes the merkle root over a block's transactions. A
// block with no transactions has a zero-valued root.
func CalcMerkleRoot(transactions []*wire.MsgTx) chainhash.Hash {
	if len(transactions) == 0 {
		return chainhash.Hash{}
	}
	nodes := BuildMerkleTreeStore(transactions)
	return *nodes[len(nodes)-1]
}
