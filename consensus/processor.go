// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package consensus composes storage, branchmgr and validate into the
// single block-processing façade an embedder drives: ProcessBlock
// accepts a candidate block, classifies it against the branch table,
// fully validates it when (and only when) that matters for the main
// chain, and sequences a reorganisation when a side branch overtakes
// it. It is the only package in this module that touches all three of
// storage, branchmgr and crypto at once.
package consensus

import (
	"time"

	"github.com/coreledger/btconsensus/branchmgr"
	"github.com/coreledger/btconsensus/chaincfg"
	"github.com/coreledger/btconsensus/crypto"
	"github.com/coreledger/btconsensus/storage"
	"github.com/coreledger/btconsensus/validate"
	"github.com/coreledger/btconsensus/wire"
)

// Processor owns the branch table and the storage transaction it stages
// writes into; it is not safe for concurrent use by more than one
// goroutine at a time beyond what branchmgr.Manager itself serialises.
type Processor struct {
	store  *storage.Store
	mgr    *branchmgr.Manager
	params *chaincfg.Params
	crypto crypto.Provider
}

// NewProcessor bootstraps a fresh branch table seeded with the
// network's genesis block. It does not attempt to reconstruct a branch
// table from a store that already holds one; that is left as a known
// limitation (see DESIGN.md) rather than a feature this library
// commits to.
func NewProcessor(store *storage.Store, params *chaincfg.Params, provider crypto.Provider) (*Processor, error) {
	p := &Processor{store: store, params: params, crypto: provider}
	mgr, err := branchmgr.Bootstrap(store, params.GenesisBlock, p)
	if err != nil {
		return nil, err
	}
	p.mgr = mgr
	return p, nil
}

var _ branchmgr.Validator = (*Processor)(nil)

// ValidateForward satisfies branchmgr.Validator.
func (p *Processor) ValidateForward(loc branchmgr.Location, height int32, block *wire.MsgBlock) error {
	return p.applyForward(loc, height, block)
}

// RevertBackward satisfies branchmgr.Validator.
func (p *Processor) RevertBackward(loc branchmgr.Location, height int32, block *wire.MsgBlock) error {
	return p.applyBackward(loc, height, block)
}

// applyForward runs the full set of contextual and transaction-level
// checks spec §4.4 describes on block at (loc, height) and stages the
// storage effects of accepting it: every input it spends is removed
// from the unspent index, and the spends are recorded in the spent log
// so a later revert can restore them exactly.
func (p *Processor) applyForward(loc branchmgr.Location, height int32, block *wire.MsgBlock) error {
	if err := validate.CheckBlockSanity(block); err != nil {
		return err
	}

	ancestors, err := p.ancestorTimestamps(loc)
	if err != nil {
		return err
	}
	if err := validate.CheckTimestamp(&block.Header, ancestors); err != nil {
		return err
	}
	if err := p.checkDifficulty(loc, height, block); err != nil {
		return err
	}

	coinbase := block.Transactions[0]
	if err := validate.CheckCoinbaseScriptLen(coinbase); err != nil {
		return err
	}
	if err := validate.CheckBlockSigOpBudget(block); err != nil {
		return err
	}

	var totalFees int64
	var spent []storage.SpentEntry
	for _, tx := range block.Transactions[1:] {
		fee, err := validate.CheckTransactionInputs(tx, height, p.store, p.params, p.crypto)
		if err != nil {
			return err
		}
		totalFees += fee

		for _, in := range tx.TxIn {
			rec, err := p.store.ReadUnspent(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
			if err != nil {
				return err
			}
			spent = append(spent, storage.SpentEntry{
				Hash:   in.PreviousOutPoint.Hash,
				Index:  in.PreviousOutPoint.Index,
				Record: rec,
			})
			p.store.SpendOutput(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
			if txRec, err := p.store.ReadTxRecord(in.PreviousOutPoint.Hash); err == nil {
				if txRec.UnspentCount > 0 {
					txRec.UnspentCount--
				}
				p.store.WriteTxRecord(in.PreviousOutPoint.Hash, txRec)
			}
		}
	}

	var coinbaseOut int64
	for _, out := range coinbase.TxOut {
		coinbaseOut += out.Value
	}
	if err := validate.CheckSubsidy(coinbaseOut, height, totalFees, p.params); err != nil {
		return err
	}

	p.store.WriteSpentLog(loc.Branch, loc.BlockIndex, spent)
	return nil
}

// applyBackward undoes applyForward's storage effects: every output the
// block's forward application spent is restored from the spent log,
// and every transaction record the block itself created is dropped.
// Dropping rather than decrementing a reverted transaction's
// InstanceCount means a subsequent re-validation of the same
// transaction hash starts its duplicate-coinbase bookkeeping fresh;
// a full accounting of the historical duplicate-coinbase rule is out
// of scope here (see DESIGN.md).
func (p *Processor) applyBackward(loc branchmgr.Location, height int32, block *wire.MsgBlock) error {
	spent, err := p.store.ReadSpentLog(loc.Branch, loc.BlockIndex)
	if err != nil && err != storage.ErrNotFound {
		return err
	}
	for _, e := range spent {
		p.store.WriteUnspent(e.Hash, e.Index, e.Record)
		if txRec, err := p.store.ReadTxRecord(e.Hash); err == nil {
			txRec.UnspentCount++
			p.store.WriteTxRecord(e.Hash, txRec)
		}
	}
	p.store.RemoveSpentLog(loc.Branch, loc.BlockIndex)

	for _, tx := range block.Transactions {
		hash := tx.TxHash()
		for idx := range tx.TxOut {
			p.store.SpendOutput(hash, uint32(idx))
		}
		p.store.RemoveTxRecord(hash)
	}
	return nil
}

// ancestorPath walks from (branch, blockIndex) back to the genesis
// branch, returning the path root-first. It mirrors branchmgr.Manager's
// own chainPath, but reads branch ancestry straight from storage
// instead of calling the exported, lock-acquiring Manager.ChainPath:
// this method runs from inside a branchmgr.Validator callback
// (applyForward/applyBackward), which branchmgr invokes while its own
// mutex is already held by the calling goroutine, so calling back into
// any of Manager's locking methods here would deadlock.
func (p *Processor) ancestorPath(branch, blockIndex int32) ([]branchmgr.Location, error) {
	var reversed []branchmgr.Location
	for {
		meta, err := p.store.ReadBranchMeta(branch)
		if err != nil {
			return nil, err
		}
		for i := blockIndex; i >= 0; i-- {
			reversed = append(reversed, branchmgr.Location{Branch: branch, BlockIndex: i})
		}
		if meta.ParentBranch == branch {
			break // genesis branch is self-referential
		}
		blockIndex = meta.ParentBlockIndex
		branch = meta.ParentBranch
	}

	path := make([]branchmgr.Location, len(reversed))
	for i, loc := range reversed {
		path[len(reversed)-1-i] = loc
	}
	return path, nil
}

// checkDifficulty verifies that block's claimed Bits is what the
// retargeting algorithm expects given its immediate predecessor and, on
// a retarget boundary, the timestamps bounding the retarget window.
// Genesis has no predecessor to check against.
func (p *Processor) checkDifficulty(loc branchmgr.Location, height int32, block *wire.MsgBlock) error {
	if height == 0 {
		return nil
	}
	path, err := p.ancestorPath(loc.Branch, loc.BlockIndex)
	if err != nil {
		return err
	}
	prevIdx := len(path) - 2
	if prevIdx < 0 {
		return nil
	}
	prevBlock, _, err := p.store.ReadBlock(path[prevIdx].Branch, path[prevIdx].BlockIndex)
	if err != nil {
		return err
	}

	windowEnd := time.Unix(int64(prevBlock.Header.Timestamp), 0)
	windowStart := windowEnd
	blocksPerRetarget := int(p.params.BlocksPerRetarget())
	if !p.params.PoWNoRetargeting && height%int32(blocksPerRetarget) == 0 && prevIdx+1 >= blocksPerRetarget {
		startIdx := prevIdx + 1 - blocksPerRetarget
		startBlock, _, err := p.store.ReadBlock(path[startIdx].Branch, path[startIdx].BlockIndex)
		if err != nil {
			return err
		}
		windowStart = time.Unix(int64(startBlock.Header.Timestamp), 0)
	}

	return validate.CheckDifficultyBits(p.params, height, prevBlock.Header.Bits, windowStart, windowEnd, block.Header.Bits)
}

// ancestorTimestamps gathers up to validate.MedianTimeBlocks timestamps
// of the blocks preceding loc, most recent first, for CheckTimestamp.
func (p *Processor) ancestorTimestamps(loc branchmgr.Location) ([]uint32, error) {
	path, err := p.ancestorPath(loc.Branch, loc.BlockIndex)
	if err != nil {
		return nil, err
	}
	// path is root-first and ends at loc itself; walk backward from the
	// entry before loc.
	timestamps := make([]uint32, 0, validate.MedianTimeBlocks)
	for i := len(path) - 2; i >= 0 && len(timestamps) < validate.MedianTimeBlocks; i-- {
		block, _, err := p.store.ReadBlock(path[i].Branch, path[i].BlockIndex)
		if err != nil {
			return nil, err
		}
		timestamps = append(timestamps, block.Header.Timestamp)
	}
	return timestamps, nil
}

