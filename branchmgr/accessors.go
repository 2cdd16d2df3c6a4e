// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package branchmgr

import "github.com/coreledger/btconsensus/storage"

// BranchMeta returns a copy of branch's metadata record.
func (m *Manager) BranchMeta(branch int32) storage.BranchMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[branch].meta
}

// LastValidation returns the highest block index in branch whose
// transactions have been fully validated, or NoValidation if only its
// header chain has been checked.
func (m *Manager) LastValidation(branch int32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[branch].lastValidation
}

// SetLastValidation records that branch's transactions are fully
// validated up to and including blockIndex.
func (m *Manager) SetLastValidation(branch, blockIndex int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[branch].lastValidation = blockIndex
}

// TipHeight returns the absolute height of branch's current tip.
func (m *Manager) TipHeight(branch int32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := m.branches[branch].meta
	return meta.StartHeight + meta.NumBlocks - 1
}
