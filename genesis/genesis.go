// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package genesis builds a synthetic genesis block for a custom network,
// for embedders that want something other than chaincfg's two canned
// parameter sets.
package genesis

import (
	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/wire"
)

// Params controls the shape of a constructed genesis block.
type Params struct {
	// Message is embedded in the coinbase's signature script, in the
	// place Bitcoin's reference genesis uses a newspaper headline: a
	// human-readable timestamp proof that the block was not mined
	// before the stated date.
	Message []byte

	// Timestamp is the header's Unix time field.
	Timestamp uint32

	// Bits is the starting compact target.
	Bits uint32

	// Version is the block version field.
	Version int32
}

// Build constructs a single-transaction genesis block: one coinbase with
// a null previous-outpoint and an unspendable, zero-value output, whose
// signature script carries p.Message. The header's previous-block hash
// is the zero hash and its nonce is left at zero for the caller to mine.
func Build(p Params) *wire.MsgBlock {
	coinbase := &wire.MsgTx{
		Version: p.Version,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{},
				Index: 0xffffffff,
			},
			SignatureScript: p.Message,
			Sequence:        0xffffffff,
		}},
		TxOut: []*wire.TxOut{{
			Value:    0,
			PkScript: []byte{0x6a}, // OP_RETURN: no spendable genesis subsidy
		}},
		LockTime: 0,
	}

	header := wire.BlockHeader{
		Version:    p.Version,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: coinbase.TxHash(),
		Timestamp:  p.Timestamp,
		Bits:       p.Bits,
		Nonce:      0,
	}

	return &wire.MsgBlock{
		Header:       header,
		Transactions: []*wire.MsgTx{coinbase},
	}
}

// Mine increments block's nonce until its header hash satisfies target,
// for tests and local networks that need a genesis block mined on the
// fly rather than hard-coded. The loop has no bound: the uint32 nonce
// wraps around on overflow and Mine returns only once meetsTarget
// accepts a hash; callers on a network with a real proof-of-work limit
// should not use it.
func Mine(block *wire.MsgBlock, meetsTarget func(chainhash.Hash) bool) {
	for {
		if meetsTarget(block.Header.BlockHash()) {
			return
		}
		block.Header.Nonce++
	}
}
