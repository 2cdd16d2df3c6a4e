// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package branchmgr

import (
	"path/filepath"
	"testing"

	"github.com/coreledger/btconsensus/storage"
	"github.com/coreledger/btconsensus/wire"
	"github.com/stretchr/testify/require"
)

// stubValidator accepts every block it's asked to validate or revert,
// except that ValidateForward fails for the block at failAt, recording
// the accepted calls so tests can assert on ordering.
type stubValidator struct {
	forward []Location
	reverse []Location
	failAt  Location
}

func (v *stubValidator) ValidateForward(loc Location, height int32, block *wire.MsgBlock) error {
	if loc == v.failAt {
		return errTestValidation
	}
	v.forward = append(v.forward, loc)
	return nil
}

func (v *stubValidator) RevertBackward(loc Location, height int32, block *wire.MsgBlock) error {
	v.reverse = append(v.reverse, loc)
	return nil
}

type testErr string

func (e testErr) Error() string { return string(e) }

const errTestValidation = testErr("stub validation failure")

func openStoreForBranchTest(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func coinbaseBlock(prev wire.BlockHeader, bits uint32, nonce uint32) *wire.MsgBlock {
	return &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: prev.BlockHash(),
			Bits:      bits,
			Nonce:     nonce,
		},
		Transactions: []*wire.MsgTx{{
			Version: 1,
			TxIn: []*wire.TxIn{{
				PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
				SignatureScript:  []byte{nonce, nonce},
			}},
			TxOut: []*wire.TxOut{{Value: 5000000000}},
		}},
	}
}

func genesisBlock(bits uint32) *wire.MsgBlock {
	return &wire.MsgBlock{
		Header: wire.BlockHeader{Version: 1, Bits: bits},
		Transactions: []*wire.MsgTx{{
			Version: 1,
			TxIn: []*wire.TxIn{{
				PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
			}},
			TxOut: []*wire.TxOut{{Value: 5000000000}},
		}},
	}
}

const easyBits uint32 = 0x1f00ffff
const hardBits uint32 = 0x1e00ffff

func TestBootstrapSeedsBranchZero(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)

	m, err := Bootstrap(s, genesis, &stubValidator{})
	require.NoError(t, err)
	require.EqualValues(t, 0, m.MainBranch())

	meta := m.BranchMeta(0)
	require.EqualValues(t, 1, meta.NumBlocks)
	require.Equal(t, genesis.BlockHash(), meta.TipHash)
}

func TestAttachExtendsMainBranch(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	m, err := Bootstrap(s, genesis, &stubValidator{})
	require.NoError(t, err)

	block1 := coinbaseBlock(genesis.Header, easyBits, 1)
	outcome, err := m.Attach(block1)
	require.NoError(t, err)
	require.Equal(t, KindExtendsMain, outcome.Kind)
	require.EqualValues(t, 1, outcome.Height)
	require.Equal(t, Location{Branch: 0, BlockIndex: 1}, outcome.Location)

	meta := m.BranchMeta(0)
	require.EqualValues(t, 2, meta.NumBlocks)
}

func TestAttachDuplicateBlockIsReported(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	m, err := Bootstrap(s, genesis, &stubValidator{})
	require.NoError(t, err)

	block1 := coinbaseBlock(genesis.Header, easyBits, 1)
	_, err = m.Attach(block1)
	require.NoError(t, err)

	outcome, err := m.Attach(block1)
	require.NoError(t, err)
	require.Equal(t, KindDuplicate, outcome.Kind)
}

func TestAttachUnknownParentOrphans(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	m, err := Bootstrap(s, genesis, &stubValidator{})
	require.NoError(t, err)

	block1 := coinbaseBlock(genesis.Header, easyBits, 1)
	block2 := coinbaseBlock(block1.Header, easyBits, 2)

	outcome, err := m.Attach(block2)
	require.NoError(t, err)
	require.Equal(t, KindParentUnknown, outcome.Kind)
}

func TestDrainOrphansAttachesBufferedBlockOnceParentArrives(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	m, err := Bootstrap(s, genesis, &stubValidator{})
	require.NoError(t, err)

	block1 := coinbaseBlock(genesis.Header, easyBits, 1)
	block2 := coinbaseBlock(block1.Header, easyBits, 2)

	_, err = m.Attach(block2)
	require.NoError(t, err)

	outcome, err := m.Attach(block1)
	require.NoError(t, err)
	require.Equal(t, KindExtendsMain, outcome.Kind)

	attached, err := m.DrainOrphans()
	require.NoError(t, err)
	require.Len(t, attached, 1)
	require.Equal(t, KindExtendsMain, attached[0].Kind)
	require.EqualValues(t, 2, attached[0].Height)
}

func TestForkMidBranchAllocatesNewBranch(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	m, err := Bootstrap(s, genesis, &stubValidator{})
	require.NoError(t, err)

	block1 := coinbaseBlock(genesis.Header, easyBits, 1)
	_, err = m.Attach(block1)
	require.NoError(t, err)

	sideBlock := coinbaseBlock(genesis.Header, easyBits, 99)
	outcome, err := m.Attach(sideBlock)
	require.NoError(t, err)
	require.Equal(t, KindNewBranch, outcome.Kind)
	require.NotEqualValues(t, 0, outcome.Branch)
	require.False(t, m.NeedsReorg(outcome.Branch))
}

func TestSideBranchOvertakingMainTriggersReorg(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	v := &stubValidator{}
	m, err := Bootstrap(s, genesis, v)
	require.NoError(t, err)

	main1 := coinbaseBlock(genesis.Header, easyBits, 1)
	_, err = m.Attach(main1)
	require.NoError(t, err)

	side1 := coinbaseBlock(genesis.Header, hardBits, 2)
	outcome, err := m.Attach(side1)
	require.NoError(t, err)
	require.Equal(t, KindNewBranch, outcome.Kind)
	require.True(t, m.NeedsReorg(outcome.Branch))

	result, err := m.Reorg(outcome.Branch)
	require.NoError(t, err)
	require.Equal(t, outcome.Branch, result.NewMainBranch)
	require.Equal(t, Location{Branch: 0, BlockIndex: 0}, result.ForkPoint)
	require.Contains(t, v.reverse, Location{Branch: 0, BlockIndex: 1})
	require.Contains(t, v.forward, Location{Branch: outcome.Branch, BlockIndex: 0})
	require.Equal(t, outcome.Branch, m.MainBranch())
}

// TestChainPathCrossesBranchBoundaryAfterReorg exercises ChainPath's
// ancestor walk at a point a reorg promoted to main: Reorg never
// physically renumbers branch array slots (see DESIGN.md), so the
// promoted branch's ParentBranch still points at whichever slot its
// fork point was recorded on. Walking from a block added after
// promotion still has to cross into that old slot to reach genesis.
func TestChainPathCrossesBranchBoundaryAfterReorg(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	v := &stubValidator{}
	m, err := Bootstrap(s, genesis, v)
	require.NoError(t, err)

	main1 := coinbaseBlock(genesis.Header, easyBits, 1)
	_, err = m.Attach(main1)
	require.NoError(t, err)

	side1 := coinbaseBlock(genesis.Header, hardBits, 2)
	sideOutcome, err := m.Attach(side1)
	require.NoError(t, err)
	require.True(t, m.NeedsReorg(sideOutcome.Branch))

	_, err = m.Reorg(sideOutcome.Branch)
	require.NoError(t, err)
	require.Equal(t, sideOutcome.Branch, m.MainBranch())

	side2 := coinbaseBlock(side1.Header, hardBits, 3)
	side2Outcome, err := m.Attach(side2)
	require.NoError(t, err)
	require.Equal(t, KindExtendsMain, side2Outcome.Kind)

	path, err := m.ChainPath(sideOutcome.Branch, side2Outcome.Location.BlockIndex)
	require.NoError(t, err)
	require.Equal(t, []Location{
		{Branch: 0, BlockIndex: 0},
		{Branch: sideOutcome.Branch, BlockIndex: 0},
		{Branch: sideOutcome.Branch, BlockIndex: 1},
	}, path)
}

func TestReorgFailureLeavesMainBranchUnchanged(t *testing.T) {
	s := openStoreForBranchTest(t)
	genesis := genesisBlock(easyBits)
	v := &stubValidator{}
	m, err := Bootstrap(s, genesis, v)
	require.NoError(t, err)

	main1 := coinbaseBlock(genesis.Header, easyBits, 1)
	_, err = m.Attach(main1)
	require.NoError(t, err)

	side1 := coinbaseBlock(genesis.Header, hardBits, 2)
	outcome, err := m.Attach(side1)
	require.NoError(t, err)

	v.failAt = Location{Branch: outcome.Branch, BlockIndex: 0}
	_, err = m.Reorg(outcome.Branch)
	require.Error(t, err)
	require.EqualValues(t, 0, m.MainBranch())
}
