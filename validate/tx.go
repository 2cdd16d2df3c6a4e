// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"math"

	"github.com/coreledger/btconsensus/chaincfg"
	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/crypto"
	"github.com/coreledger/btconsensus/txscript"
	"github.com/coreledger/btconsensus/wire"
)

// zeroHash is the all-zero previous-transaction hash that marks a
// coinbase input's null outpoint.
var zeroHash chainhash.Hash

// MaxSatoshi is the largest representable output value: the total supply
// expressed in the smallest unit the chain tracks.
const MaxSatoshi = 21_000_000 * 1e8

// CheckTransactionSanity runs the structural checks on a transaction that
// require no context beyond the transaction itself.
func CheckTransactionSanity(tx *wire.MsgTx) error {
	if len(tx.TxIn) == 0 {
		return ruleError(ErrNoTxInputs, "transaction has no inputs")
	}
	if len(tx.TxOut) == 0 {
		return ruleError(ErrNoTxOutputs, "transaction has no outputs")
	}
	if tx.SerializeSize() > wire.MaxBlockSize {
		return ruleError(ErrTxTooBig, "serialized transaction exceeds the maximum permitted size")
	}

	var total int64
	for _, out := range tx.TxOut {
		if out.Value < 0 {
			return ruleError(ErrBadTxOutValue, "transaction output has a negative value")
		}
		if out.Value > MaxSatoshi {
			return ruleError(ErrBadTxOutValue, "transaction output value exceeds the maximum supply")
		}
		total += out.Value
		if total > MaxSatoshi {
			return ruleError(ErrBadTxOutValue, "transaction output total exceeds the maximum supply")
		}
	}

	if tx.IsCoinBase() {
		n := len(tx.TxIn[0].SignatureScript)
		if n < MinCoinbaseScriptLen || n > MaxCoinbaseScriptLen {
			return ruleError(ErrBadCoinbaseScriptLen, "coinbase signature script length is out of range")
		}
		return nil
	}

	seen := make(map[wire.OutPoint]bool, len(tx.TxIn))
	for _, in := range tx.TxIn {
		if in.PreviousOutPoint.Hash.IsEqual(&zeroHash) && in.PreviousOutPoint.Index == math.MaxUint32 {
			return ruleError(ErrBadTxInput, "non-coinbase transaction has a null previous outpoint")
		}
		if seen[in.PreviousOutPoint] {
			return ruleError(ErrDuplicateTxInputs, "transaction spends the same outpoint more than once")
		}
		seen[in.PreviousOutPoint] = true
	}
	return nil
}

// UTXOEntry describes the output an input spends: the value and locking
// script it carries, and enough about its origin to enforce coinbase
// maturity.
type UTXOEntry struct {
	Value       int64
	PkScript    []byte
	IsCoinBase  bool
	BlockHeight int32
}

// UTXOView is the read-only unspent-output lookup the validate package
// needs; storage provides the concrete implementation backed by its
// unspent index (spec §4.3).
type UTXOView interface {
	FetchUTXO(outpoint wire.OutPoint) (*UTXOEntry, bool)
}

// CheckTransactionInputs validates every non-coinbase input of tx against
// view: the referenced output must exist, a spent coinbase must have
// matured, and the locking script must accept the unlocking script. It
// returns the transaction's fee (inputs minus outputs).
func CheckTransactionInputs(tx *wire.MsgTx, height int32, view UTXOView, params *chaincfg.Params, provider crypto.Provider) (int64, error) {
	var totalIn int64
	for idx, in := range tx.TxIn {
		entry, ok := view.FetchUTXO(in.PreviousOutPoint)
		if !ok {
			return 0, ruleError(ErrMissingTxOut, "transaction spends an output that does not exist or was already spent")
		}

		if entry.IsCoinBase {
			maturity := int32(params.CoinbaseMaturity)
			if height-entry.BlockHeight < maturity {
				return 0, ruleError(ErrImmatureSpend, "transaction attempts to spend an immature coinbase output")
			}
		}

		if entry.Value < 0 || entry.Value > MaxSatoshi {
			return 0, ruleError(ErrBadTxOutValue, "referenced output has an invalid value")
		}
		totalIn += entry.Value
		if totalIn > MaxSatoshi {
			return 0, ruleError(ErrSpendTooHigh, "transaction input total exceeds the maximum supply")
		}

		if err := checkInputScript(tx, idx, entry.PkScript, provider); err != nil {
			return 0, err
		}
	}

	var totalOut int64
	for _, out := range tx.TxOut {
		totalOut += out.Value
	}

	if totalIn < totalOut {
		return 0, ruleError(ErrSpendTooHigh, "transaction outputs exceed its inputs")
	}
	return totalIn - totalOut, nil
}

// checkInputScript runs the script interpreter over the concatenation of
// input idx's unlocking script and the output's locking script.
func checkInputScript(tx *wire.MsgTx, idx int, pkScript []byte, provider crypto.Provider) error {
	checker := &TxSigChecker{Tx: tx, InputIndex: idx, Crypto: provider}
	flags := txscript.ScriptVerifyDERSig |
		txscript.ScriptVerifyMinimalData |
		txscript.ScriptVerifyCheckLockTimeVerify |
		txscript.ScriptVerifyCheckSequenceVerify |
		txscript.ScriptVerifyNullFail

	engine, err := txscript.NewEngine(tx.TxIn[idx].SignatureScript, pkScript, flags, checker, provider)
	if err != nil {
		return ruleError(ErrScriptMalformed, err.Error())
	}
	ok, err := engine.Execute()
	if err != nil {
		return ruleError(ErrScriptValidation, err.Error())
	}
	if !ok {
		return ruleError(ErrScriptValidation, "script did not validate")
	}
	return nil
}
