// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package branchmgr maintains the bounded branch table and orphan ring
// described in spec §4.5: it classifies an incoming block against the
// branches currently cached, attaches it, evicts or allocates branches
// as needed, and sequences a reorganisation when a side branch
// overtakes the main branch's accumulated work. Per-block transaction
// validation and unspent-output bookkeeping are supplied by the caller
// through the Validator interface, so this package depends on neither
// crypto nor a UTXO view.
package branchmgr

import (
	"fmt"
	"sync"

	"github.com/coreledger/btconsensus/bigint"
	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/pow"
	"github.com/coreledger/btconsensus/storage"
	"github.com/coreledger/btconsensus/validate"
	"github.com/coreledger/btconsensus/wire"
	"github.com/decred/dcrd/lru"
)

const (
	// MaxBranchCache is the number of concurrently tracked chain
	// branches, including the main branch.
	MaxBranchCache = 5

	// MaxOrphanCache is the size of the orphan ring.
	MaxOrphanCache = 20

	// NoValidation marks a branch whose transactions have never been
	// fully validated, only its header chain.
	NoValidation int32 = -1

	// recentHashCacheSize bounds the fast-path duplicate-hash cache.
	// It is an optimisation only: storage.LookupBlockHash remains the
	// authoritative check.
	recentHashCacheSize = 4096
)

// Location identifies a block by branch and index within that branch.
type Location struct {
	Branch     int32
	BlockIndex int32
}

// Validator bridges the branch table to the heavier consensus rules
// that operate on a single block: full transaction validation and
// forward unspent-output application, or the reverse of both during a
// reorg. The façade that composes storage, validate and crypto
// implements this interface; branchmgr itself touches none of them.
type Validator interface {
	// ValidateForward fully validates block at the given location and
	// height and applies its effects (unspent-output creation/removal,
	// transaction-reference bookkeeping) to the staged storage
	// transaction. It must not commit or reset storage itself.
	ValidateForward(loc Location, height int32, block *wire.MsgBlock) error

	// RevertBackward undoes block's effects: restores the outputs it
	// spent and removes the outputs and transaction references it
	// created. It must not commit or reset storage itself.
	RevertBackward(loc Location, height int32, block *wire.MsgBlock) error
}

type branchSlot struct {
	inUse          bool
	meta           storage.BranchMeta
	work           bigint.Int
	lastValidation int32
}

// Manager owns the in-memory mirror of the branch table and orphan
// ring; storage.Store holds the durable, staged copy of the same data.
type Manager struct {
	mu sync.Mutex

	store     *storage.Store
	validator Validator

	branches   [MaxBranchCache]branchSlot
	mainBranch int32

	orphans     [MaxOrphanCache]orphanSlot
	firstOrphan int32

	seen *lru.Cache
}

// Bootstrap initialises a fresh Manager and database with genesis as
// branch 0's sole block, committing it immediately. It is meant to run
// once, before any call to Attach.
func Bootstrap(store *storage.Store, genesis *wire.MsgBlock, validator Validator) (*Manager, error) {
	m := &Manager{
		store:     store,
		validator: validator,
		seen:      lru.New(recentHashCacheSize),
	}

	target := pow.CompactToTarget(genesis.Header.Bits)
	work := pow.CalcWork(target)

	meta := storage.BranchMeta{
		ParentBranch:     0,
		ParentBlockIndex: 0,
		StartHeight:      0,
		NumBlocks:        1,
		TipHash:          genesis.BlockHash(),
	}
	m.branches[0] = branchSlot{inUse: true, meta: meta, work: work, lastValidation: 0}
	m.mainBranch = 0

	if err := store.IndexBlock(0, 0, genesis); err != nil {
		return nil, err
	}
	store.WriteBranchMeta(0, meta)
	store.WriteBranchWork(0, work.Bytes())
	if err := store.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

// attach is the non-locking classify-and-attach step shared by Attach
// and DrainOrphans; callers must already hold m.mu.
func (m *Manager) attach(block *wire.MsgBlock) (Outcome, error) {
	hash := block.BlockHash()

	if m.seen.Contains(hash) {
		if _, err := m.store.LookupBlockHash(hash); err == nil {
			return Outcome{Kind: KindDuplicate}, nil
		}
	}
	if _, err := m.store.LookupBlockHash(hash); err == nil {
		m.seen.Add(hash)
		return Outcome{Kind: KindDuplicate}, nil
	}

	parentLoc, err := m.store.LookupBlockHash(block.Header.PrevBlock)
	if err != nil {
		m.insertOrphan(hash, block)
		return Outcome{Kind: KindParentUnknown}, nil
	}

	if parentLoc.Branch < 0 || int(parentLoc.Branch) >= MaxBranchCache || !m.branches[parentLoc.Branch].inUse {
		return Outcome{}, fmt.Errorf("branchmgr: parent location refers to unknown branch %d", parentLoc.Branch)
	}
	parent := &m.branches[parentLoc.Branch]
	tipIndex := parent.meta.NumBlocks - 1

	if parentLoc.BlockIndex == tipIndex {
		return m.extendBranch(parentLoc.Branch, block, hash)
	}
	return m.forkBranch(parentLoc.Branch, parentLoc.BlockIndex, block, hash)
}

func (m *Manager) extendBranch(branch int32, block *wire.MsgBlock, hash chainhash.Hash) (Outcome, error) {
	slot := &m.branches[branch]
	height := slot.meta.StartHeight + slot.meta.NumBlocks
	newIndex := slot.meta.NumBlocks
	loc := Location{Branch: branch, BlockIndex: newIndex}

	// Extending the main branch demands full transaction validation
	// before anything is written, so a rule violation never leaves the
	// branch table or storage pointing at an unvalidated main-chain
	// block. Side branches defer validation to Reorg, when (and if)
	// they are ever promoted.
	if branch == m.mainBranch {
		if err := m.validator.ValidateForward(loc, height, block); err != nil {
			return Outcome{}, err
		}
	}

	work := pow.CalcWork(pow.CompactToTarget(block.Header.Bits))
	if err := m.store.IndexBlock(branch, newIndex, block); err != nil {
		return Outcome{}, err
	}
	slot.meta.NumBlocks++
	slot.meta.TipHash = hash
	slot.work = bigint.Add(slot.work, work)
	m.store.WriteBranchMeta(branch, slot.meta)
	m.store.WriteBranchWork(branch, slot.work.Bytes())
	m.seen.Add(hash)

	kind := KindExtendsSide
	if branch == m.mainBranch {
		kind = KindExtendsMain
		slot.lastValidation = newIndex
	}
	return Outcome{Kind: kind, Location: loc, Height: height, Branch: branch}, nil
}

func (m *Manager) forkBranch(parentBranch, parentIndex int32, block *wire.MsgBlock, hash chainhash.Hash) (Outcome, error) {
	parentMeta := m.branches[parentBranch].meta
	newBranch, err := m.allocateBranch()
	if err != nil {
		return Outcome{}, err
	}

	startHeight := parentMeta.StartHeight + parentIndex + 1
	work := pow.CalcWork(pow.CompactToTarget(block.Header.Bits))

	meta := storage.BranchMeta{
		ParentBranch:     parentBranch,
		ParentBlockIndex: parentIndex,
		StartHeight:      startHeight,
		NumBlocks:        1,
		TipHash:          hash,
	}
	if err := m.store.IndexBlock(newBranch, 0, block); err != nil {
		return Outcome{}, err
	}
	m.branches[newBranch] = branchSlot{inUse: true, meta: meta, work: work, lastValidation: NoValidation}
	m.store.WriteBranchMeta(newBranch, meta)
	m.store.WriteBranchWork(newBranch, work.Bytes())
	m.seen.Add(hash)

	return Outcome{
		Kind:     KindNewBranch,
		Location: Location{Branch: newBranch, BlockIndex: 0},
		Height:   startHeight,
		Branch:   newBranch,
	}, nil
}

// allocateBranch finds a free branch slot, evicting the least-worked
// branch that is not an ancestor of the current main-branch tip if the
// table is full.
func (m *Manager) allocateBranch() (int32, error) {
	for i := int32(0); i < MaxBranchCache; i++ {
		if !m.branches[i].inUse {
			return i, nil
		}
	}

	victim := int32(-1)
	for i := int32(0); i < MaxBranchCache; i++ {
		if i == m.mainBranch || m.isAncestorOfMain(i) {
			continue
		}
		if victim == -1 || bigint.Compare(m.branches[i].work, m.branches[victim].work) < 0 {
			victim = i
		}
	}
	if victim == -1 {
		return 0, validate.RuleError{ErrorCode: validate.ErrBranchCacheFull, Description: "branch table full, no evictable branch"}
	}

	m.branches[victim] = branchSlot{}
	m.store.RemoveBranch(victim)
	return victim, nil
}

// isAncestorOfMain reports whether branch is on the ancestor chain of
// the current main branch's tip.
func (m *Manager) isAncestorOfMain(branch int32) bool {
	cur := m.mainBranch
	for {
		if cur == branch {
			return true
		}
		slot := &m.branches[cur]
		if slot.meta.ParentBranch == cur {
			return cur == branch
		}
		cur = slot.meta.ParentBranch
	}
}

// MainBranch returns the index of the branch currently holding the
// most accumulated work.
func (m *Manager) MainBranch() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mainBranch
}

// BranchWork returns branch's accumulated work.
func (m *Manager) BranchWork(branch int32) bigint.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[branch].work.Clone()
}

// NeedsReorg reports whether branch's work exceeds the main branch's.
func (m *Manager) NeedsReorg(branch int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bigint.Compare(m.branches[branch].work, m.branches[m.mainBranch].work) > 0
}

// Attach classifies and attaches block, mutating the in-memory branch
// table and staging the corresponding storage writes. It does not
// commit or reset storage, and it does not perform transaction
// validation or reorg: callers drive those from the returned Outcome.
func (m *Manager) Attach(block *wire.MsgBlock) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attach(block)
}

// ChainPath walks from (branch, blockIndex) back through ancestor
// branches to the genesis branch, returning the path root-first.
func (m *Manager) ChainPath(branch, blockIndex int32) ([]Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainPath(branch, blockIndex)
}

func (m *Manager) chainPath(branch, blockIndex int32) ([]Location, error) {
	var reversed []Location
	for {
		if branch < 0 || int(branch) >= MaxBranchCache || !m.branches[branch].inUse {
			return nil, fmt.Errorf("branchmgr: chain path touches unknown branch %d", branch)
		}
		slot := &m.branches[branch]
		for i := blockIndex; i >= 0; i-- {
			reversed = append(reversed, Location{Branch: branch, BlockIndex: i})
		}
		if slot.meta.ParentBranch == branch {
			break // genesis branch is self-referential
		}
		blockIndex = slot.meta.ParentBlockIndex
		branch = slot.meta.ParentBranch
	}

	path := make([]Location, len(reversed))
	for i, loc := range reversed {
		path[len(reversed)-1-i] = loc
	}
	return path, nil
}

// intersection finds the last location common to both paths (which
// must share a root) and the index within each path at which it
// occurs.
func intersection(oldPath, newPath []Location) (Location, int, int) {
	n := len(oldPath)
	if len(newPath) < n {
		n = len(newPath)
	}
	last := 0
	for last < n && oldPath[last] == newPath[last] {
		last++
	}
	last--
	if last < 0 {
		last = 0
	}
	return oldPath[last], last, last
}
