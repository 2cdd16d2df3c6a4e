// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"testing"

	"github.com/coreledger/btconsensus/chainhash"
	"github.com/stretchr/testify/require"
)

func TestBlockHashIndexRoundTrips(t *testing.T) {
	s := openTestStore(t)
	hash := chainhash.DoubleHashH([]byte("block"))
	loc := BlockLocation{Branch: 2, BlockIndex: 7}

	s.IndexBlockHash(hash, loc)
	got, err := s.LookupBlockHash(hash)
	require.NoError(t, err)
	require.Equal(t, loc, got)
}

func TestBranchMetaRoundTripsAndRemoves(t *testing.T) {
	s := openTestStore(t)
	meta := BranchMeta{
		ParentBranch:     0,
		ParentBlockIndex: 100,
		StartHeight:      101,
		NumBlocks:        5,
		TipHash:          chainhash.DoubleHashH([]byte("tip")),
	}
	s.WriteBranchMeta(3, meta)

	got, err := s.ReadBranchMeta(3)
	require.NoError(t, err)
	require.Equal(t, meta, got)

	s.RemoveBranch(3)
	_, err = s.ReadBranchMeta(3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBranchWorkRoundTrips(t *testing.T) {
	s := openTestStore(t)
	work := []byte{0x01, 0x02, 0x03}
	s.WriteBranchWork(1, work)

	got, err := s.ReadBranchWork(1)
	require.NoError(t, err)
	require.Equal(t, work, got)
}

func TestChangeBranchKeyRenamesMetaWorkAndBlocks(t *testing.T) {
	s := openTestStore(t)
	meta := BranchMeta{StartHeight: 10, NumBlocks: 2}
	s.WriteBranchMeta(5, meta)
	s.WriteBranchWork(5, []byte{0xff})
	block := sampleBlock(t)
	require.NoError(t, s.WriteBlock(5, 0, block))
	require.NoError(t, s.WriteBlock(5, 1, block))

	require.NoError(t, s.ChangeBranchKey(5, 6, 2))

	_, err := s.ReadBranchMeta(5)
	require.ErrorIs(t, err, ErrNotFound)
	got, err := s.ReadBranchMeta(6)
	require.NoError(t, err)
	require.Equal(t, meta, got)

	work, err := s.ReadBranchWork(6)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff}, work)

	_, _, err = s.ReadBlock(6, 0)
	require.NoError(t, err)
	_, _, err = s.ReadBlock(6, 1)
	require.NoError(t, err)
	_, _, err = s.ReadBlock(5, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOrphanIndexRoundTripsAndRemoves(t *testing.T) {
	s := openTestStore(t)
	raw := []byte("serialized-orphan-block")
	s.WriteOrphan(4, raw)

	got, err := s.ReadOrphan(4)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	s.RemoveOrphan(4)
	_, err = s.ReadOrphan(4)
	require.ErrorIs(t, err, ErrNotFound)
}
