// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"testing"

	"github.com/coreledger/btconsensus/chaincfg"
	"github.com/coreledger/btconsensus/crypto"
	"github.com/coreledger/btconsensus/txscript"
	"github.com/coreledger/btconsensus/wire"
	"github.com/stretchr/testify/require"
)

func TestCheckTransactionSanityRejectsNoInputs(t *testing.T) {
	tx := &wire.MsgTx{TxOut: []*wire.TxOut{{Value: 1}}}
	err := CheckTransactionSanity(tx)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrNoTxInputs, ruleErr.ErrorCode)
}

func TestCheckTransactionSanityRejectsDuplicateInputs(t *testing.T) {
	outpoint := wire.OutPoint{Index: 1}
	tx := &wire.MsgTx{
		TxIn: []*wire.TxIn{
			{PreviousOutPoint: outpoint},
			{PreviousOutPoint: outpoint},
		},
		TxOut: []*wire.TxOut{{Value: 1}},
	}
	err := CheckTransactionSanity(tx)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrDuplicateTxInputs, ruleErr.ErrorCode)
}

func TestCheckTransactionSanityRejectsNegativeOutputValue(t *testing.T) {
	tx := &wire.MsgTx{
		TxIn:  []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Index: 1}}},
		TxOut: []*wire.TxOut{{Value: -1}},
	}
	err := CheckTransactionSanity(tx)
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrBadTxOutValue, ruleErr.ErrorCode)
}

// memView is a fixed in-memory UTXOView for tests.
type memView map[wire.OutPoint]*UTXOEntry

func (m memView) FetchUTXO(op wire.OutPoint) (*UTXOEntry, bool) {
	e, ok := m[op]
	return e, ok
}

func TestCheckTransactionInputsComputesFee(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	view := memView{op: {Value: 1000, PkScript: []byte{byte(txscript.OP_TRUE)}}}

	tx := &wire.MsgTx{
		TxIn:  []*wire.TxIn{{PreviousOutPoint: op}},
		TxOut: []*wire.TxOut{{Value: 900}},
	}
	params := &chaincfg.MainNetParams

	fee, err := CheckTransactionInputs(tx, 1000, view, params, crypto.Default{})
	require.NoError(t, err)
	require.EqualValues(t, 100, fee)
}

func TestCheckTransactionInputsRejectsMissingOutput(t *testing.T) {
	view := memView{}
	tx := &wire.MsgTx{
		TxIn:  []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Index: 0}}},
		TxOut: []*wire.TxOut{{Value: 1}},
	}
	_, err := CheckTransactionInputs(tx, 1000, view, &chaincfg.MainNetParams, crypto.Default{})
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrMissingTxOut, ruleErr.ErrorCode)
}

func TestCheckTransactionInputsRejectsImmatureCoinbase(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	view := memView{op: {
		Value:       1000,
		PkScript:    []byte{byte(txscript.OP_TRUE)},
		IsCoinBase:  true,
		BlockHeight: 990,
	}}
	tx := &wire.MsgTx{
		TxIn:  []*wire.TxIn{{PreviousOutPoint: op}},
		TxOut: []*wire.TxOut{{Value: 900}},
	}
	params := &chaincfg.MainNetParams // CoinbaseMaturity 100

	_, err := CheckTransactionInputs(tx, 1000, view, params, crypto.Default{})
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrImmatureSpend, ruleErr.ErrorCode)
}

func TestCheckTransactionInputsRejectsSpendExceedingInputs(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	view := memView{op: {Value: 100, PkScript: []byte{byte(txscript.OP_TRUE)}}}
	tx := &wire.MsgTx{
		TxIn:  []*wire.TxIn{{PreviousOutPoint: op}},
		TxOut: []*wire.TxOut{{Value: 200}},
	}
	_, err := CheckTransactionInputs(tx, 1000, view, &chaincfg.MainNetParams, crypto.Default{})
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrSpendTooHigh, ruleErr.ErrorCode)
}

func TestCheckTransactionInputsRejectsFailingScript(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	view := memView{op: {Value: 100, PkScript: []byte{byte(txscript.OP_FALSE)}}}
	tx := &wire.MsgTx{
		TxIn:  []*wire.TxIn{{PreviousOutPoint: op}},
		TxOut: []*wire.TxOut{{Value: 50}},
	}
	_, err := CheckTransactionInputs(tx, 1000, view, &chaincfg.MainNetParams, crypto.Default{})
	require.Error(t, err)
	var ruleErr RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, ErrScriptValidation, ruleErr.ErrorCode)
}
