// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/coreledger/btconsensus/validate"
	"github.com/coreledger/btconsensus/wire"
)

var _ validate.UTXOView = (*Store)(nil)

// FetchUTXO implements validate.UTXOView by composing the unspent, tx
// and block indices: the unspent record gives the output's byte range
// inside its containing block, the tx record gives the block's
// location and coinbase status, and the branch's metadata converts a
// block index into a chain height.
func (s *Store) FetchUTXO(op wire.OutPoint) (*validate.UTXOEntry, bool) {
	unspent, err := s.ReadUnspent(op.Hash, op.Index)
	if err != nil {
		return nil, false
	}
	txRec, err := s.ReadTxRecord(op.Hash)
	if err != nil {
		return nil, false
	}
	raw, err := s.read(blockKey(txRec.Branch, txRec.BlockIndex))
	if err != nil {
		return nil, false
	}
	end := int(unspent.Position) + int(unspent.Length)
	if end > len(raw) {
		return nil, false
	}
	value, pkScript, err := decodeOutputBytes(raw[unspent.Position:end])
	if err != nil {
		return nil, false
	}
	meta, err := s.ReadBranchMeta(txRec.Branch)
	if err != nil {
		return nil, false
	}

	return &validate.UTXOEntry{
		Value:       value,
		PkScript:    pkScript,
		IsCoinBase:  txRec.IsCoinBase,
		BlockHeight: meta.StartHeight + txRec.BlockIndex,
	}, true
}

// decodeOutputBytes decodes the 8-byte value plus var-int-prefixed
// locking script an output's measured byte range covers.
func decodeOutputBytes(b []byte) (int64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("storage: truncated output record (%d bytes)", len(b))
	}
	value := int64(binary.LittleEndian.Uint64(b[:8]))
	pkScript, err := wire.ReadVarBytes(bytes.NewReader(b[8:]), wire.MaxScriptSize)
	if err != nil {
		return 0, nil, err
	}
	return value, pkScript, nil
}
