// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"github.com/coreledger/btconsensus/txscript"
	"github.com/coreledger/btconsensus/wire"
)

// MaxSigOps bounds the total signature operations (CHECKSIG,
// CHECKSIGVERIFY, CHECKMULTISIG, CHECKMULTISIGVERIFY) a block may spend
// across all of its transactions.
const MaxSigOps = 20000

// MinCoinbaseScriptLen and MaxCoinbaseScriptLen bound a coinbase's
// signature script: long enough to encode a height, short enough to
// foreclose it being used as arbitrary data storage.
const (
	MinCoinbaseScriptLen = 2
	MaxCoinbaseScriptLen = 100
)

// CheckBlockSanity runs the structural checks on a block that require no
// context beyond the block itself: it has a coinbase and only one, the
// serialised block does not exceed the wire size limit, and the merkle
// root committed to in the header matches the transactions carried.
func CheckBlockSanity(block *wire.MsgBlock) error {
	if len(block.Transactions) == 0 {
		return ruleError(ErrNoTransactions, "block has no transactions")
	}
	if block.SerializeSize() > wire.MaxBlockSize {
		return ruleError(ErrBlockTooBig, "serialized block exceeds the maximum permitted size")
	}

	if !block.Transactions[0].IsCoinBase() {
		return ruleError(ErrFirstTxNotCoinbase, "first transaction in block is not a coinbase")
	}
	for _, tx := range block.Transactions[1:] {
		if tx.IsCoinBase() {
			return ruleError(ErrMultipleCoinbases, "block contains more than one coinbase transaction")
		}
	}

	for _, tx := range block.Transactions {
		if err := CheckTransactionSanity(tx); err != nil {
			return err
		}
	}

	computedRoot := CalcMerkleRoot(block.Transactions)
	if computedRoot != block.Header.MerkleRoot {
		return ruleError(ErrBadMerkleRoot, "merkle root does not match block transactions")
	}

	return nil
}

// CheckCoinbaseScriptLen enforces the coinbase signature-script length
// bound (spec §4.4); the height-encoding requirement it also names is a
// policy an embedder layers on top via its own coinbase script format,
// not a rule this library can check without knowing that format.
func CheckCoinbaseScriptLen(coinbase *wire.MsgTx) error {
	n := len(coinbase.TxIn[0].SignatureScript)
	if n < MinCoinbaseScriptLen || n > MaxCoinbaseScriptLen {
		return ruleError(ErrBadCoinbaseScriptLen, "coinbase signature script length is out of range")
	}
	return nil
}

// CheckBlockSigOpBudget sums the sig-op contribution of every
// transaction's scripts (signature scripts and locking scripts alike)
// and rejects a block that exceeds MaxSigOps.
func CheckBlockSigOpBudget(block *wire.MsgBlock) error {
	var total int
	for _, tx := range block.Transactions {
		n, err := countTxSigOps(tx)
		if err != nil {
			return ruleError(ErrScriptMalformed, err.Error())
		}
		total += n
		if total > MaxSigOps {
			return ruleError(ErrTooManySigOps, "block exceeds the maximum signature operation budget")
		}
	}
	return nil
}

func countTxSigOps(tx *wire.MsgTx) (int, error) {
	var total int
	for _, in := range tx.TxIn {
		n, err := txscript.CountSigOps(in.SignatureScript)
		if err != nil {
			return 0, err
		}
		total += n
	}
	for _, out := range tx.TxOut {
		n, err := txscript.CountSigOps(out.PkScript)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
