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

// HeaderSize is the fixed 80-byte wire size of a block header: 4-byte
// version, 32-byte previous hash, 32-byte merkle root, 4-byte timestamp,
// 4-byte compact target ("bits"), 4-byte nonce.
const HeaderSize = 4 + chainhash.HashSize + chainhash.HashSize + 4 + 4 + 4

// MaxBlockSize is the maximum permitted serialised size of a block, per
// spec §4.4.
const MaxBlockSize = 1 * 1024 * 1024

// MaxTxPerBlock / MaxScriptSize bound how large a var-int-prefixed field
// this package will accept before treating it as malformed input.
const (
	MaxTxPerBlock = MaxBlockSize
	MaxScriptSize = 10000
)

// BlockHeader is the 80-byte, fixed-format portion of a block.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Serialize writes the bit-exact 80-byte header encoding to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	_, err := w.Write(buf[:])
	return err
}

// Deserialize reads an 80-byte header from r.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	h.Version = int32(binary.LittleEndian.Uint32(buf[0:4]))
	copy(h.PrevBlock[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(buf[68:72])
	h.Bits = binary.LittleEndian.Uint32(buf[72:76])
	h.Nonce = binary.LittleEndian.Uint32(buf[76:80])
	return nil
}

// BlockHash returns the double-SHA-256 of the serialised header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	_ = h.Serialize(&buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// MsgBlock is a full block: a header followed by its transactions.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
}

// Serialize writes the bit-exact block encoding to w: header, var-int
// transaction count, concatenated transactions.
func (b *MsgBlock) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(b.Transactions))); err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a block written by Serialize.
func (b *MsgBlock) Deserialize(r io.Reader) error {
	if err := b.Header.Deserialize(r); err != nil {
		return err
	}
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxPerBlock {
		return io.ErrUnexpectedEOF
	}
	b.Transactions = make([]*MsgTx, count)
	for i := range b.Transactions {
		tx := &MsgTx{}
		if err := tx.Deserialize(r); err != nil {
			return err
		}
		b.Transactions[i] = tx
	}
	return nil
}

// SerializeSize returns the exact number of bytes Serialize would write.
func (b *MsgBlock) SerializeSize() int {
	n := HeaderSize + VarIntSerializeSize(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		n += tx.SerializeSize()
	}
	return n
}

// Bytes returns the serialised block.
func (b *MsgBlock) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(b.SerializeSize())
	_ = b.Serialize(&buf)
	return buf.Bytes()
}

// BlockHash returns the header hash identifying this block.
func (b *MsgBlock) BlockHash() chainhash.Hash {
	return b.Header.BlockHash()
}

// NewBlockFromBytes parses a serialised block.
func NewBlockFromBytes(raw []byte) (*MsgBlock, error) {
	b := &MsgBlock{}
	if err := b.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return b, nil
}
