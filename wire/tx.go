// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/coreledger/btconsensus/chainhash"
)

// OutPoint identifies a specific output of a specific transaction.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

const (
	// MaxTxInSequenceNum is the sequence number that marks an input as
	// final, disabling both its relative lock time and the transaction's
	// absolute lock time.
	MaxTxInSequenceNum uint32 = 0xffffffff

	// SequenceLockTimeDisabled, set on an input's sequence number,
	// disables BIP 112 relative-lock-time interpretation for that input.
	SequenceLockTimeDisabled = 1 << 31

	// SequenceLockTimeIsSeconds, set on an input's sequence number,
	// selects seconds (in 512-second units) rather than block count as
	// the relative-lock-time unit.
	SequenceLockTimeIsSeconds = 1 << 22

	// SequenceLockTimeMask extracts the relative lock time's value bits
	// from a sequence number, once the flag bits above are accounted for.
	SequenceLockTimeMask = 0x0000ffff
)

// TxIn is a transaction input: a reference to a previous output, the
// unlocking script that satisfies it, and a sequence number.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// TxOut is a transaction output: a satoshi value and a locking script.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// MsgTx is a Bitcoin-style transaction.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// Serialize writes the bit-exact transaction encoding described in spec
// §6: 4-byte version, var-int input count, inputs, var-int output count,
// outputs, 4-byte lock time.
func (tx *MsgTx) Serialize(w io.Writer) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(tx.Version))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(tx.TxIn))); err != nil {
		return err
	}
	for _, in := range tx.TxIn {
		if err := writeTxIn(w, in); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(tx.TxOut))); err != nil {
		return err
	}
	for _, out := range tx.TxOut {
		if err := writeTxOut(w, out); err != nil {
			return err
		}
	}
	var lt [4]byte
	binary.LittleEndian.PutUint32(lt[:], tx.LockTime)
	_, err := w.Write(lt[:])
	return err
}

func writeTxIn(w io.Writer, in *TxIn) error {
	if _, err := w.Write(in.PreviousOutPoint.Hash[:]); err != nil {
		return err
	}
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], in.PreviousOutPoint.Index)
	if _, err := w.Write(idx[:]); err != nil {
		return err
	}
	if err := WriteVarBytes(w, in.SignatureScript); err != nil {
		return err
	}
	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], in.Sequence)
	_, err := w.Write(seq[:])
	return err
}

func writeTxOut(w io.Writer, out *TxOut) error {
	var val [8]byte
	binary.LittleEndian.PutUint64(val[:], uint64(out.Value))
	if _, err := w.Write(val[:]); err != nil {
		return err
	}
	return WriteVarBytes(w, out.PkScript)
}

// Deserialize reads a transaction written by Serialize.
func (tx *MsgTx) Deserialize(r io.Reader) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	tx.Version = int32(binary.LittleEndian.Uint32(hdr[:]))

	inCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	tx.TxIn = make([]*TxIn, inCount)
	for i := range tx.TxIn {
		in, err := readTxIn(r)
		if err != nil {
			return err
		}
		tx.TxIn[i] = in
	}

	outCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	tx.TxOut = make([]*TxOut, outCount)
	for i := range tx.TxOut {
		out, err := readTxOut(r)
		if err != nil {
			return err
		}
		tx.TxOut[i] = out
	}

	var lt [4]byte
	if _, err := io.ReadFull(r, lt[:]); err != nil {
		return err
	}
	tx.LockTime = binary.LittleEndian.Uint32(lt[:])
	return nil
}

func readTxIn(r io.Reader) (*TxIn, error) {
	in := &TxIn{}
	if _, err := io.ReadFull(r, in.PreviousOutPoint.Hash[:]); err != nil {
		return nil, err
	}
	var idx [4]byte
	if _, err := io.ReadFull(r, idx[:]); err != nil {
		return nil, err
	}
	in.PreviousOutPoint.Index = binary.LittleEndian.Uint32(idx[:])
	script, err := ReadVarBytes(r, MaxScriptSize)
	if err != nil {
		return nil, err
	}
	in.SignatureScript = script
	var seq [4]byte
	if _, err := io.ReadFull(r, seq[:]); err != nil {
		return nil, err
	}
	in.Sequence = binary.LittleEndian.Uint32(seq[:])
	return in, nil
}

func readTxOut(r io.Reader) (*TxOut, error) {
	out := &TxOut{}
	var val [8]byte
	if _, err := io.ReadFull(r, val[:]); err != nil {
		return nil, err
	}
	out.Value = int64(binary.LittleEndian.Uint64(val[:]))
	script, err := ReadVarBytes(r, MaxScriptSize)
	if err != nil {
		return nil, err
	}
	out.PkScript = script
	return out, nil
}

// SerializeSize returns the exact number of bytes Serialize would write.
func (tx *MsgTx) SerializeSize() int {
	n := 4 + VarIntSerializeSize(uint64(len(tx.TxIn))) + VarIntSerializeSize(uint64(len(tx.TxOut))) + 4
	for _, in := range tx.TxIn {
		n += chainhash.HashSize + 4 + VarIntSerializeSize(uint64(len(in.SignatureScript))) + len(in.SignatureScript) + 4
	}
	for _, out := range tx.TxOut {
		n += 8 + VarIntSerializeSize(uint64(len(out.PkScript))) + len(out.PkScript)
	}
	return n
}

// Bytes returns the serialised transaction.
func (tx *MsgTx) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	_ = tx.Serialize(&buf)
	return buf.Bytes()
}

// TxHash returns the double-SHA-256 transaction identifier.
func (tx *MsgTx) TxHash() chainhash.Hash {
	return chainhash.DoubleHashH(tx.Bytes())
}

// IsCoinBase reports whether tx has the coinbase shape: exactly one
// input whose previous outpoint is the all-zero hash at index 0xffffffff.
func (tx *MsgTx) IsCoinBase() bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	prev := tx.TxIn[0].PreviousOutPoint
	return prev.Index == 0xffffffff && prev.Hash == (chainhash.Hash{})
}

// NewTxFromBytes parses a serialised transaction.
func NewTxFromBytes(raw []byte) (*MsgTx, error) {
	tx := &MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
