// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/wire"
)

// BlockHashKeyLen is the number of leading bytes of a block hash used as
// the blockHash index's key. A full 32-byte chainhash key would waste
// space for no benefit: block hashes are proof-of-work-bound, so a
// 20-byte prefix carries effectively the same collision resistance any
// realistic chain will ever need (SPEC_FULL.md storage supplement).
const BlockHashKeyLen = 20

// BlockLocation identifies a block by the branch it lives on and its
// index within that branch.
type BlockLocation struct {
	Branch      int32
	BlockIndex  int32
}

func (l BlockLocation) encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(l.Branch))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(l.BlockIndex))
	return buf
}

func decodeBlockLocation(b []byte) (BlockLocation, error) {
	if len(b) != 8 {
		return BlockLocation{}, fmt.Errorf("storage: malformed block location (%d bytes)", len(b))
	}
	return BlockLocation{
		Branch:     int32(binary.LittleEndian.Uint32(b[0:4])),
		BlockIndex: int32(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}

func blockHashKey(hash chainhash.Hash) []byte {
	key := make([]byte, 1+BlockHashKeyLen)
	key[0] = prefixBlockHash
	copy(key[1:], hash[:BlockHashKeyLen])
	return key
}

// LookupBlockHash resolves a block hash to its (branch, index) location.
func (s *Store) LookupBlockHash(hash chainhash.Hash) (BlockLocation, error) {
	v, err := s.read(blockHashKey(hash))
	if err != nil {
		return BlockLocation{}, err
	}
	return decodeBlockLocation(v)
}

// IndexBlockHash records that hash resolves to loc.
func (s *Store) IndexBlockHash(hash chainhash.Hash, loc BlockLocation) {
	s.write(blockHashKey(hash), loc.encode())
}

func blockKey(branch, index int32) []byte {
	key := make([]byte, 9)
	key[0] = prefixBlock
	binary.LittleEndian.PutUint32(key[1:5], uint32(branch))
	binary.LittleEndian.PutUint32(key[5:9], uint32(index))
	return key
}

// WriteBlock stores a full block at (branch, index), prefixed with its
// own hash per the block index's value shape (spec §4.3).
func (s *Store) WriteBlock(branch, index int32, block *wire.MsgBlock) error {
	hash := block.BlockHash()
	var buf bytes.Buffer
	buf.Write(hash[:])
	if err := block.Serialize(&buf); err != nil {
		return err
	}
	s.write(blockKey(branch, index), buf.Bytes())
	return nil
}

// ReadBlock retrieves the block stored at (branch, index) along with its
// indexed hash.
func (s *Store) ReadBlock(branch, index int32) (*wire.MsgBlock, chainhash.Hash, error) {
	v, err := s.read(blockKey(branch, index))
	if err != nil {
		return nil, chainhash.Hash{}, err
	}
	if len(v) < chainhash.HashSize {
		return nil, chainhash.Hash{}, fmt.Errorf("storage: truncated block record")
	}
	var hash chainhash.Hash
	copy(hash[:], v[:chainhash.HashSize])

	block, err := wire.NewBlockFromBytes(v[chainhash.HashSize:])
	if err != nil {
		return nil, chainhash.Hash{}, err
	}
	return block, hash, nil
}

// RemoveBlock deletes the block stored at (branch, index).
func (s *Store) RemoveBlock(branch, index int32) {
	s.remove(blockKey(branch, index))
}

// BranchMeta is the branch index's metadata record: enough to walk a
// branch's ancestry back to the genesis branch and to know where it
// currently ends.
type BranchMeta struct {
	ParentBranch     int32
	ParentBlockIndex int32
	StartHeight      int32
	NumBlocks        int32
	TipHash          chainhash.Hash
}

func (m BranchMeta) encode() []byte {
	buf := make([]byte, 16+chainhash.HashSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.ParentBranch))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.ParentBlockIndex))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.StartHeight))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(m.NumBlocks))
	copy(buf[16:], m.TipHash[:])
	return buf
}

func decodeBranchMeta(b []byte) (BranchMeta, error) {
	if len(b) != 16+chainhash.HashSize {
		return BranchMeta{}, fmt.Errorf("storage: malformed branch metadata (%d bytes)", len(b))
	}
	m := BranchMeta{
		ParentBranch:     int32(binary.LittleEndian.Uint32(b[0:4])),
		ParentBlockIndex: int32(binary.LittleEndian.Uint32(b[4:8])),
		StartHeight:      int32(binary.LittleEndian.Uint32(b[8:12])),
		NumBlocks:        int32(binary.LittleEndian.Uint32(b[12:16])),
	}
	copy(m.TipHash[:], b[16:])
	return m, nil
}

func branchKey(branch int32) []byte {
	key := make([]byte, 5)
	key[0] = prefixBranch
	binary.LittleEndian.PutUint32(key[1:], uint32(branch))
	return key
}

// WriteBranchMeta stores the metadata record for branch.
func (s *Store) WriteBranchMeta(branch int32, meta BranchMeta) {
	s.write(branchKey(branch), meta.encode())
}

// ReadBranchMeta retrieves the metadata record for branch.
func (s *Store) ReadBranchMeta(branch int32) (BranchMeta, error) {
	v, err := s.read(branchKey(branch))
	if err != nil {
		return BranchMeta{}, err
	}
	return decodeBranchMeta(v)
}

// RemoveBranch deletes branch's metadata record.
func (s *Store) RemoveBranch(branch int32) {
	s.remove(branchKey(branch))
}

// ChangeBranchKey renames a branch's metadata, work and block records
// from oldBranch to newBranch without touching payload bytes. It does
// not rewrite the blockHash, tx or unspent indices, and no
// reorganisation calls it: branchmgr.Reorg leaves every block at its
// existing (branch, blockIndex) location.
func (s *Store) ChangeBranchKey(oldBranch, newBranch int32, numBlocks int32) error {
	if err := s.changeKey(branchKey(oldBranch), branchKey(newBranch)); err != nil {
		return err
	}
	if err := s.changeKey(branchWorkKey(oldBranch), branchWorkKey(newBranch)); err != nil {
		return err
	}
	for i := int32(0); i < numBlocks; i++ {
		if err := s.changeKey(blockKey(oldBranch, i), blockKey(newBranch, i)); err != nil {
			return err
		}
	}
	return nil
}

func branchWorkKey(branch int32) []byte {
	key := make([]byte, 5)
	key[0] = prefixBranchWork
	binary.LittleEndian.PutUint32(key[1:], uint32(branch))
	return key
}

// WriteBranchWork stores branch's accumulated chain work.
func (s *Store) WriteBranchWork(branch int32, work []byte) {
	s.write(branchWorkKey(branch), work)
}

// ReadBranchWork retrieves branch's accumulated chain work.
func (s *Store) ReadBranchWork(branch int32) ([]byte, error) {
	return s.read(branchWorkKey(branch))
}

func orphanKey(slot int32) []byte {
	key := make([]byte, 5)
	key[0] = prefixOrphan
	binary.LittleEndian.PutUint32(key[1:], uint32(slot))
	return key
}

// WriteOrphan stores a serialized block at orphan slot.
func (s *Store) WriteOrphan(slot int32, raw []byte) {
	s.write(orphanKey(slot), raw)
}

// ReadOrphan retrieves the serialized block at orphan slot.
func (s *Store) ReadOrphan(slot int32) ([]byte, error) {
	return s.read(orphanKey(slot))
}

// RemoveOrphan deletes the block stored at orphan slot.
func (s *Store) RemoveOrphan(slot int32) {
	s.remove(orphanKey(slot))
}

// TxRecord is the tx index's value: enough to locate a transaction's
// containing block and outputs without re-scanning the chain, plus
// bookkeeping for how many of its outputs remain unspent.
type TxRecord struct {
	Branch         int32
	BlockIndex     int32
	OutputsOffset  uint32
	OutputsLength  uint32
	IsCoinBase     bool
	InstanceCount  uint32
	UnspentCount   uint32
}

func (r TxRecord) encode() []byte {
	buf := make([]byte, 25)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Branch))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.BlockIndex))
	binary.LittleEndian.PutUint32(buf[8:12], r.OutputsOffset)
	binary.LittleEndian.PutUint32(buf[12:16], r.OutputsLength)
	if r.IsCoinBase {
		buf[16] = 1
	}
	binary.LittleEndian.PutUint32(buf[17:21], r.InstanceCount)
	binary.LittleEndian.PutUint32(buf[21:25], r.UnspentCount)
	return buf
}

func decodeTxRecord(b []byte) (TxRecord, error) {
	if len(b) != 25 {
		return TxRecord{}, fmt.Errorf("storage: malformed tx record (%d bytes)", len(b))
	}
	return TxRecord{
		Branch:        int32(binary.LittleEndian.Uint32(b[0:4])),
		BlockIndex:    int32(binary.LittleEndian.Uint32(b[4:8])),
		OutputsOffset: binary.LittleEndian.Uint32(b[8:12]),
		OutputsLength: binary.LittleEndian.Uint32(b[12:16]),
		IsCoinBase:    b[16] != 0,
		InstanceCount: binary.LittleEndian.Uint32(b[17:21]),
		UnspentCount:  binary.LittleEndian.Uint32(b[21:25]),
	}, nil
}

func txKey(hash chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = prefixTx
	copy(key[1:], hash[:])
	return key
}

// WriteTxRecord stores the tx index entry for hash.
func (s *Store) WriteTxRecord(hash chainhash.Hash, rec TxRecord) {
	s.write(txKey(hash), rec.encode())
}

// ReadTxRecord retrieves the tx index entry for hash.
func (s *Store) ReadTxRecord(hash chainhash.Hash) (TxRecord, error) {
	v, err := s.read(txKey(hash))
	if err != nil {
		return TxRecord{}, err
	}
	return decodeTxRecord(v)
}

// RemoveTxRecord deletes the tx index entry for hash.
func (s *Store) RemoveTxRecord(hash chainhash.Hash) {
	s.remove(txKey(hash))
}

// UnspentRecord is the unspent index's value: the byte range, inside the
// containing block's stored serialisation, at which a single output's
// encoding (value + locking script) lives.
type UnspentRecord struct {
	Position uint32
	Length   uint32
}

func (r UnspentRecord) encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], r.Position)
	binary.LittleEndian.PutUint32(buf[4:8], r.Length)
	return buf
}

func decodeUnspentRecord(b []byte) (UnspentRecord, error) {
	if len(b) != 8 {
		return UnspentRecord{}, fmt.Errorf("storage: malformed unspent record (%d bytes)", len(b))
	}
	return UnspentRecord{
		Position: binary.LittleEndian.Uint32(b[0:4]),
		Length:   binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

func unspentKey(hash chainhash.Hash, outIndex uint32) []byte {
	key := make([]byte, 1+chainhash.HashSize+4)
	key[0] = prefixUnspent
	copy(key[1:], hash[:])
	binary.LittleEndian.PutUint32(key[1+chainhash.HashSize:], outIndex)
	return key
}

// WriteUnspent marks (hash, outIndex) as unspent at the given byte range.
func (s *Store) WriteUnspent(hash chainhash.Hash, outIndex uint32, rec UnspentRecord) {
	s.write(unspentKey(hash, outIndex), rec.encode())
}

// ReadUnspent retrieves the unspent record for (hash, outIndex), if the
// output has not already been spent.
func (s *Store) ReadUnspent(hash chainhash.Hash, outIndex uint32) (UnspentRecord, error) {
	v, err := s.read(unspentKey(hash, outIndex))
	if err != nil {
		return UnspentRecord{}, err
	}
	return decodeUnspentRecord(v)
}

// SpendOutput marks (hash, outIndex) as spent by removing its unspent
// record.
func (s *Store) SpendOutput(hash chainhash.Hash, outIndex uint32) {
	s.remove(unspentKey(hash, outIndex))
}
