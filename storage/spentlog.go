// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/coreledger/btconsensus/chainhash"
)

// SpentEntry records one unspent record a block's forward application
// removed, so a later revert can put it back exactly as it was instead
// of having to recompute it from the spending transaction.
type SpentEntry struct {
	Hash   chainhash.Hash
	Index  uint32
	Record UnspentRecord
}

const spentEntrySize = chainhash.HashSize + 4 + 8

func encodeSpentEntries(entries []SpentEntry) []byte {
	buf := make([]byte, 4+len(entries)*spentEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(entries)))
	off := 4
	for _, e := range entries {
		copy(buf[off:], e.Hash[:])
		off += chainhash.HashSize
		binary.LittleEndian.PutUint32(buf[off:], e.Index)
		off += 4
		copy(buf[off:], e.Record.encode())
		off += 8
	}
	return buf
}

func decodeSpentEntries(b []byte) ([]SpentEntry, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("storage: malformed spent log (%d bytes)", len(b))
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	want := 4 + int(count)*spentEntrySize
	if len(b) != want {
		return nil, fmt.Errorf("storage: malformed spent log (%d bytes, want %d)", len(b), want)
	}
	entries := make([]SpentEntry, count)
	off := 4
	for i := range entries {
		var hash chainhash.Hash
		copy(hash[:], b[off:off+chainhash.HashSize])
		off += chainhash.HashSize
		index := binary.LittleEndian.Uint32(b[off:])
		off += 4
		rec, err := decodeUnspentRecord(b[off : off+8])
		if err != nil {
			return nil, err
		}
		off += 8
		entries[i] = SpentEntry{Hash: hash, Index: index, Record: rec}
	}
	return entries, nil
}

func spentLogKey(branch, blockIndex int32) []byte {
	key := make([]byte, 9)
	key[0] = prefixSpentLog
	binary.LittleEndian.PutUint32(key[1:5], uint32(branch))
	binary.LittleEndian.PutUint32(key[5:9], uint32(blockIndex))
	return key
}

// WriteSpentLog records, for the block at (branch, blockIndex), every
// unspent record its forward application consumed.
func (s *Store) WriteSpentLog(branch, blockIndex int32, entries []SpentEntry) {
	if len(entries) == 0 {
		return
	}
	s.write(spentLogKey(branch, blockIndex), encodeSpentEntries(entries))
}

// ReadSpentLog retrieves the spent entries recorded for the block at
// (branch, blockIndex). A block that spent nothing has no log entry and
// ReadSpentLog reports ErrNotFound; callers should treat that the same
// as an empty slice.
func (s *Store) ReadSpentLog(branch, blockIndex int32) ([]SpentEntry, error) {
	v, err := s.read(spentLogKey(branch, blockIndex))
	if err != nil {
		return nil, err
	}
	return decodeSpentEntries(v)
}

// RemoveSpentLog deletes the spent log recorded for the block at
// (branch, blockIndex), once its entries have been replayed during a
// revert or the block itself has been pruned.
func (s *Store) RemoveSpentLog(branch, blockIndex int32) {
	s.remove(spentLogKey(branch, blockIndex))
}
