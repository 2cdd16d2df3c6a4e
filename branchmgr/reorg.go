// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package branchmgr

// ReorgResult describes a completed reorganisation: which branch lost
// and gained the main-chain role, and where the two chains diverged.
type ReorgResult struct {
	OldMainBranch int32
	NewMainBranch int32
	ForkPoint     Location
	ForkHeight    int32
	Path          []Location
}

// Reorg switches the main branch to candidateBranch after reverting
// the old main chain down to the fork point and revalidating the new
// chain up from it, per spec §4.5. On any validation failure it
// returns the error the Validator produced and leaves mainBranch
// unchanged; the caller is expected to reset the staged storage
// transaction, since this method only stages writes through the
// Validator, it never commits or resets them itself.
func (m *Manager) Reorg(candidateBranch int32) (ReorgResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldMain := m.mainBranch
	oldTip := m.branches[oldMain].meta.NumBlocks - 1
	newTip := m.branches[candidateBranch].meta.NumBlocks - 1

	oldPath, err := m.chainPath(oldMain, oldTip)
	if err != nil {
		return ReorgResult{}, err
	}
	newPath, err := m.chainPath(candidateBranch, newTip)
	if err != nil {
		return ReorgResult{}, err
	}
	forkLoc, forkIdx, _ := intersection(oldPath, newPath)

	// Revert the old chain from its tip down to, but excluding, the
	// fork point.
	for i := len(oldPath) - 1; i > forkIdx; i-- {
		loc := oldPath[i]
		block, _, err := m.store.ReadBlock(loc.Branch, loc.BlockIndex)
		if err != nil {
			return ReorgResult{}, err
		}
		if err := m.validator.RevertBackward(loc, int32(i), block); err != nil {
			return ReorgResult{}, err
		}
	}

	// Revalidate the new chain from just above the fork point to its
	// tip.
	for i := forkIdx + 1; i < len(newPath); i++ {
		loc := newPath[i]
		block, _, err := m.store.ReadBlock(loc.Branch, loc.BlockIndex)
		if err != nil {
			return ReorgResult{}, err
		}
		if err := m.validator.ValidateForward(loc, int32(i), block); err != nil {
			return ReorgResult{}, err
		}
	}

	m.mainBranch = candidateBranch
	m.branches[candidateBranch].lastValidation = newTip

	return ReorgResult{
		OldMainBranch: oldMain,
		NewMainBranch: candidateBranch,
		ForkPoint:     forkLoc,
		ForkHeight:    int32(forkIdx),
		Path:          newPath,
	}, nil
}
