// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"testing"

	"github.com/coreledger/btconsensus/txscript"
	"github.com/coreledger/btconsensus/wire"
	"github.com/stretchr/testify/require"
)

func coinbaseTx() *wire.MsgTx {
	return &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
			SignatureScript:  []byte{0x01, 0x01}, // height push, 2 bytes: within [2,100]
		}},
		TxOut: []*wire.TxOut{{Value: 5000000000, PkScript: []byte{byte(txscript.OP_TRUE)}}},
	}
}

func validBlock() *wire.MsgBlock {
	cb := coinbaseTx()
	b := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version: 1,
			Bits:    0x207fffff,
		},
		Transactions: []*wire.MsgTx{cb},
	}
	b.Header.MerkleRoot = CalcMerkleRoot(b.Transactions)
	return b
}

func TestCheckBlockSanityAcceptsWellFormedBlock(t *testing.T) {
	require.NoError(t, CheckBlockSanity(validBlock()))
}

func TestCheckBlockSanityRejectsEmptyBlock(t *testing.T) {
	b := &wire.MsgBlock{}
	err := CheckBlockSanity(b)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrNoTransactions, ruleErr.ErrorCode)
}

func TestCheckBlockSanityRejectsNonCoinbaseFirstTx(t *testing.T) {
	b := validBlock()
	notCoinbase := dummyTx(9)
	b.Transactions[0] = notCoinbase
	b.Header.MerkleRoot = CalcMerkleRoot(b.Transactions)

	err := CheckBlockSanity(b)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrFirstTxNotCoinbase, ruleErr.ErrorCode)
}

func TestCheckBlockSanityRejectsMultipleCoinbases(t *testing.T) {
	b := validBlock()
	b.Transactions = append(b.Transactions, coinbaseTx())
	b.Header.MerkleRoot = CalcMerkleRoot(b.Transactions)

	err := CheckBlockSanity(b)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrMultipleCoinbases, ruleErr.ErrorCode)
}

func TestCheckBlockSanityRejectsBadMerkleRoot(t *testing.T) {
	b := validBlock()
	b.Header.MerkleRoot[0] ^= 0xff

	err := CheckBlockSanity(b)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrBadMerkleRoot, ruleErr.ErrorCode)
}

func TestCheckBlockSigOpBudgetAcceptsSimpleBlock(t *testing.T) {
	require.NoError(t, CheckBlockSigOpBudget(validBlock()))
}

func TestCheckBlockSigOpBudgetRejectsExcess(t *testing.T) {
	b := validBlock()
	script := make([]byte, 0, MaxSigOps+2)
	for i := 0; i <= MaxSigOps+1; i++ {
		script = append(script, byte(txscript.OP_CHECKSIG))
	}
	b.Transactions[0].TxOut[0].PkScript = script
	b.Header.MerkleRoot = CalcMerkleRoot(b.Transactions)

	err := CheckBlockSigOpBudget(b)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrTooManySigOps, ruleErr.ErrorCode)
}
