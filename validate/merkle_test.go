// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"testing"

	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/wire"
	"github.com/stretchr/testify/require"
)

func dummyTx(salt byte) *wire.MsgTx {
	return &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: uint32(salt)},
			SignatureScript:  []byte{salt},
		}},
		TxOut: []*wire.TxOut{{
			Value:    int64(salt),
			PkScript: []byte{salt},
		}},
		LockTime: 0,
	}
}

func TestCalcMerkleRootSingleLeaf(t *testing.T) {
	tx := dummyTx(1)
	root := CalcMerkleRoot([]*wire.MsgTx{tx})
	require.Equal(t, tx.TxHash(), root)
}

func TestCalcMerkleRootOddCountDuplicatesLastLeaf(t *testing.T) {
	txs := []*wire.MsgTx{dummyTx(1), dummyTx(2), dummyTx(3)}
	root := CalcMerkleRoot(txs)

	h1, h2, h3 := txs[0].TxHash(), txs[1].TxHash(), txs[2].TxHash()
	left := hashMerkleBranches(&h1, &h2)
	right := hashMerkleBranches(&h3, &h3)
	expected := hashMerkleBranches(&left, &right)

	require.Equal(t, expected, root)
}

func TestCalcMerkleRootEmptyIsZero(t *testing.T) {
	require.Equal(t, chainhash.Hash{}, CalcMerkleRoot(nil))
}
