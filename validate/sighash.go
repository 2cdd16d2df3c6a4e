// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"bytes"
	"encoding/binary"

	"github.com/coreledger/btconsensus/crypto"
	"github.com/coreledger/btconsensus/txscript"
	"github.com/coreledger/btconsensus/wire"
)

// SigHashType is the single byte appended to an ECDSA signature that
// selects which parts of the transaction it commits to.
type SigHashType uint32

const (
	SigHashAll          SigHashType = 0x1
	SigHashNone         SigHashType = 0x2
	SigHashSingle       SigHashType = 0x3
	SigHashAnyOneCanPay SigHashType = 0x80

	sigHashMask = 0x1f
)

// TxSigChecker bridges the pure stack-machine interpreter's SigChecker
// interface to one particular input of one particular transaction,
// computing the classic (pre-segwit) Bitcoin signature hash (spec §4.2
// "the host supplies a callback... given (transaction, input index,
// hash-type byte)").
type TxSigChecker struct {
	Tx         *wire.MsgTx
	InputIndex int
	Crypto     crypto.Provider
}

var _ txscript.SigChecker = (*TxSigChecker)(nil)

// CheckSig reports whether sig is a valid DER-encoded ECDSA signature,
// with its trailing hash-type byte, over the sighash this checker's
// transaction and input produce against subScript.
func (c *TxSigChecker) CheckSig(sig, pubKey, subScript []byte) bool {
	if len(sig) == 0 {
		return false
	}
	hashType := SigHashType(sig[len(sig)-1])
	rawSig := sig[:len(sig)-1]

	hash := calcSignatureHash(c.Tx, c.InputIndex, subScript, hashType)
	return c.Crypto.VerifySignature(pubKey, rawSig, hash[:])
}

// CheckLockTime reports whether the transaction's lock time has been
// reached and that the spent input has not opted out of lock-time
// enforcement via a final sequence number (BIP 65).
func (c *TxSigChecker) CheckLockTime(lockTime int64) bool {
	if int64(c.Tx.LockTime) < lockTime {
		return false
	}
	return c.Tx.TxIn[c.InputIndex].Sequence != wire.MaxTxInSequenceNum
}

// CheckSequence reports whether the spent input's sequence number
// satisfies a relative-lock-time requirement (BIP 112).
func (c *TxSigChecker) CheckSequence(sequence int64) bool {
	txSeq := int64(c.Tx.TxIn[c.InputIndex].Sequence)
	if txSeq&int64(wire.SequenceLockTimeDisabled) != 0 {
		return false
	}
	if c.Tx.Version < 2 {
		return false
	}
	mask := int64(wire.SequenceLockTimeIsSeconds | wire.SequenceLockTimeMask)
	return txSeq&mask >= sequence&mask
}

// calcSignatureHash serialises a modified copy of tx per hashType and
// returns its double-SHA-256 digest, the value a signature commits to.
func calcSignatureHash(tx *wire.MsgTx, idx int, subScript []byte, hashType SigHashType) [32]byte {
	maskedType := hashType & sigHashMask

	if maskedType == SigHashSingle && idx >= len(tx.TxOut) {
		// Historical quirk: signing an out-of-range SIGHASH_SINGLE input
		// produces the fixed value 0x01 followed by 31 zero bytes rather
		// than erroring, and every implementation must reproduce it.
		var h [32]byte
		h[0] = 0x01
		return h
	}

	txCopy := &wire.MsgTx{
		Version:  tx.Version,
		LockTime: tx.LockTime,
	}

	if hashType&SigHashAnyOneCanPay != 0 {
		txCopy.TxIn = []*wire.TxIn{{
			PreviousOutPoint: tx.TxIn[idx].PreviousOutPoint,
			SignatureScript:  subScript,
			Sequence:         tx.TxIn[idx].Sequence,
		}}
	} else {
		txCopy.TxIn = make([]*wire.TxIn, len(tx.TxIn))
		for i, in := range tx.TxIn {
			script := in.SignatureScript
			sequence := in.Sequence
			if i == idx {
				script = subScript
			} else {
				script = nil
				if maskedType == SigHashNone || maskedType == SigHashSingle {
					sequence = 0
				}
			}
			txCopy.TxIn[i] = &wire.TxIn{
				PreviousOutPoint: in.PreviousOutPoint,
				SignatureScript:  script,
				Sequence:         sequence,
			}
		}
	}

	switch maskedType {
	case SigHashNone:
		txCopy.TxOut = nil
	case SigHashSingle:
		txCopy.TxOut = make([]*wire.TxOut, idx+1)
		for i := 0; i < idx; i++ {
			txCopy.TxOut[i] = &wire.TxOut{Value: -1}
		}
		txCopy.TxOut[idx] = tx.TxOut[idx]
	default:
		txCopy.TxOut = tx.TxOut
	}

	var buf bytes.Buffer
	txCopy.Serialize(&buf)
	var typeBytes [4]byte
	binary.LittleEndian.PutUint32(typeBytes[:], uint32(hashType))
	buf.Write(typeBytes[:])

	return crypto.Default{}.Hash256(buf.Bytes())
}
