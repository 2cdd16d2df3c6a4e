// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/wire"
)

// IndexBlock stores block at (branch, blockIndex) and populates the
// blockHash, tx and unspent indices for it in one pass: every
// transaction's location and output byte ranges are computed by
// measuring the exact layout Serialize would produce, without
// re-serialising the block once per transaction (spec §4.3).
func (s *Store) IndexBlock(branch, blockIndex int32, block *wire.MsgBlock) error {
	if err := s.WriteBlock(branch, blockIndex, block); err != nil {
		return err
	}
	hash := block.BlockHash()
	s.IndexBlockHash(hash, BlockLocation{Branch: branch, BlockIndex: blockIndex})

	// The stored block record is hash(32) || header(80) || txcount || txs.
	offset := uint32(chainhash.HashSize) + uint32(wire.HeaderSize) +
		uint32(wire.VarIntSerializeSize(uint64(len(block.Transactions))))

	for _, tx := range block.Transactions {
		txSize, outputsOffset, outputsLength, outPositions := measureTx(tx)

		rec := TxRecord{
			Branch:        branch,
			BlockIndex:    blockIndex,
			OutputsOffset: offset + outputsOffset,
			OutputsLength: outputsLength,
			IsCoinBase:    tx.IsCoinBase(),
			InstanceCount: 1,
			UnspentCount:  uint32(len(tx.TxOut)),
		}
		txHash := tx.TxHash()
		s.WriteTxRecord(txHash, rec)

		for i, pos := range outPositions {
			s.WriteUnspent(txHash, uint32(i), UnspentRecord{
				Position: offset + pos.start,
				Length:   pos.length,
			})
		}

		offset += txSize
	}
	return nil
}

type outputByteRange struct {
	start  uint32
	length uint32
}

// measureTx computes the exact byte layout Serialize would produce for
// tx without allocating its encoding: tx's total size, the offset and
// length of its var-int-prefixed output list, and each individual
// output's byte range within that list.
func measureTx(tx *wire.MsgTx) (txSize, outputsOffset, outputsLength uint32, outPositions []outputByteRange) {
	pos := uint32(4) // version
	pos += uint32(wire.VarIntSerializeSize(uint64(len(tx.TxIn))))
	for _, in := range tx.TxIn {
		pos += uint32(chainhash.HashSize) + 4 +
			uint32(wire.VarIntSerializeSize(uint64(len(in.SignatureScript)))) +
			uint32(len(in.SignatureScript)) + 4
	}

	outputsOffset = pos
	pos += uint32(wire.VarIntSerializeSize(uint64(len(tx.TxOut))))

	outPositions = make([]outputByteRange, len(tx.TxOut))
	for i, out := range tx.TxOut {
		start := pos
		length := uint32(8) + uint32(wire.VarIntSerializeSize(uint64(len(out.PkScript)))) + uint32(len(out.PkScript))
		outPositions[i] = outputByteRange{start: start, length: length}
		pos += length
	}
	outputsLength = pos - outputsOffset

	pos += 4 // lock time
	txSize = pos
	return
}
