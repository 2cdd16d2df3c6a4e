// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage implements the seven-keyed-index block-chain storage
// contract: blockHash, block, branch, branchWork, orphan, tx and unspent,
// each addressed by a distinct key prefix within one physical goleveldb
// store so that a single staged batch can commit changes to all of them
// atomically. An eighth, internal spent-log index rides alongside the
// seven so a reorganisation can restore exactly the unspent records a
// reverted block's forward application removed.
package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// Key prefixes separating the seven indices, and the internal spent
// log, within one goleveldb keyspace. A single byte is enough: none of these ever collide with a
// user-supplied key because every index key is fixed-width or otherwise
// unambiguous once prefixed.
const (
	prefixBlockHash  = 0x01
	prefixBlock      = 0x02
	prefixBranch     = 0x03
	prefixBranchWork = 0x04
	prefixOrphan     = 0x05
	prefixTx         = 0x06
	prefixUnspent    = 0x07
	prefixSpentLog   = 0x08
)

// ErrNotFound is returned by a read against a key the store has no
// record of.
var ErrNotFound = errors.New("storage: key not found")

// Store is a goleveldb-backed implementation of the seven-index
// contract. Mutations accumulate in a staged batch until Commit flushes
// them atomically; Reset discards the staged batch without touching the
// underlying database.
type Store struct {
	db *leveldb.DB

	mu    sync.Mutex
	batch *leveldb.Batch
}

// Open opens (creating if necessary) a goleveldb database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	log.Infof("Opened chain database %s", path)
	return &Store{db: db, batch: new(leveldb.Batch)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	log.Infof("Closing chain database")
	return s.db.Close()
}

// read returns the current value of key, checking the staged batch
// first so that a read-after-write within the same uncommitted
// transaction observes the write.
func (s *Store) read(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(key)
}

func (s *Store) readLocked(key []byte) ([]byte, error) {
	if v, ok := batchLookup(s.batch, key); ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return v, nil
	}
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

// write stages key=value for the next Commit.
func (s *Store) write(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch.Put(key, value)
}

// writeSubsection overwrites value[offset:offset+len(data)] in place,
// reading the current value (staged or committed) first.
func (s *Store) writeSubsection(key []byte, offset int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.readLocked(key)
	if err != nil {
		return err
	}
	if offset+len(data) > len(cur) {
		grown := make([]byte, offset+len(data))
		copy(grown, cur)
		cur = grown
	}
	copy(cur[offset:], data)
	s.batch.Put(key, cur)
	return nil
}

// append adds data to the end of the value stored at key, which need not
// already exist.
func (s *Store) append(key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.readLocked(key)
	if err != nil && err != ErrNotFound {
		return err
	}
	s.batch.Put(key, append(cur, data...))
	return nil
}

// remove stages key for deletion.
func (s *Store) remove(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch.Delete(key)
}

// getLength returns the byte length of the value stored at key.
func (s *Store) getLength(key []byte) (int, error) {
	v, err := s.read(key)
	if err != nil {
		return 0, err
	}
	return len(v), nil
}

// changeKey renames oldKey to newKey without rewriting the payload bytes
// through the caller. ChangeBranchKey uses it to move a branch's
// branch, work and block records to a new branch number; no
// reorganisation path calls ChangeBranchKey.
func (s *Store) changeKey(oldKey, newKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.readLocked(oldKey)
	if err != nil {
		return err
	}
	s.batch.Delete(oldKey)
	s.batch.Put(newKey, v)
	return nil
}

// Commit flushes the staged batch to the database atomically: on crash
// or restart either every staged write lands or none do.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Write(s.batch, nil); err != nil {
		return err
	}
	s.batch = new(leveldb.Batch)
	return nil
}

// Reset discards every staged write without touching committed state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = new(leveldb.Batch)
}

// batchLookup inspects a staged leveldb.Batch for the most recent
// operation against key, since Batch itself offers no read-back. It
// replays the batch's internal operation log via Replay.
func batchLookup(b *leveldb.Batch, key []byte) (value []byte, found bool) {
	r := &batchReplayer{target: key}
	_ = b.Replay(r)
	return r.value, r.found
}

type batchReplayer struct {
	target []byte
	value  []byte
	found  bool
}

func (r *batchReplayer) Put(key, value []byte) {
	if string(key) == string(r.target) {
		r.value, r.found = append([]byte(nil), value...), true
	}
}

func (r *batchReplayer) Delete(key []byte) {
	if string(key) == string(r.target) {
		r.value, r.found = nil, true
	}
}
