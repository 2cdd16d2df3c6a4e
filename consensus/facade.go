// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"
	"time"

	"github.com/coreledger/btconsensus/branchmgr"
	"github.com/coreledger/btconsensus/validate"
	"github.com/coreledger/btconsensus/wire"
)

// ProcessBlock is the single entry point an embedder drives for every
// block it receives, whether mined locally or relayed by a peer. It
// runs header and structural sanity checks that need no branch-table
// context, classifies the block against the branch table, fully
// validates and applies it when that matters for chain selection, and
// sequences a reorganisation when a side branch overtakes the main
// chain. Every path either commits the staged storage transaction or
// resets it; none leave a partially staged transaction for the next
// call to inherit.
func (p *Processor) ProcessBlock(block *wire.MsgBlock, networkTime time.Time) Result {
	if err := validate.CheckBlockHeaderSanity(&block.Header, networkTime, p.params.PowLimit); err != nil {
		p.store.Reset()
		return Result{Status: statusForRuleError(err), Err: err}
	}
	if err := validate.CheckBlockSanity(block); err != nil {
		p.store.Reset()
		return Result{Status: statusForRuleError(err), Err: err}
	}

	outcome, err := p.mgr.Attach(block)
	if err != nil {
		p.store.Reset()
		return classifyAttachError(err)
	}

	switch outcome.Kind {
	case branchmgr.KindDuplicate:
		p.store.Reset()
		return Result{Status: StatusDuplicate}

	case branchmgr.KindParentUnknown:
		if err := p.store.Commit(); err != nil {
			return Result{Status: StatusError, Err: err}
		}
		log.Debugf("Buffered orphan block %s (unknown parent %s)",
			block.BlockHash(), block.Header.PrevBlock)
		return Result{Status: StatusOrphan}

	case branchmgr.KindExtendsMain:
		drained, err := p.mgr.DrainOrphans()
		if err != nil {
			p.store.Reset()
			return classifyAttachError(err)
		}
		if err := p.store.Commit(); err != nil {
			return Result{Status: StatusError, Err: err}
		}
		log.Debugf("Block %s accepted at height %d", block.BlockHash(), outcome.Height)
		if len(drained) > 0 {
			log.Infof("Drained %d orphan(s) following block %s", len(drained), block.BlockHash())
			return Result{
				Status:         StatusMainWithOrphans,
				Height:         outcome.Height,
				Branch:         outcome.Branch,
				DrainedOrphans: len(drained),
			}
		}
		return Result{Status: StatusMain, Height: outcome.Height, Branch: outcome.Branch}

	case branchmgr.KindExtendsSide, branchmgr.KindNewBranch:
		if p.mgr.NeedsReorg(outcome.Branch) {
			reorg, err := p.mgr.Reorg(outcome.Branch)
			if err != nil {
				p.store.Reset()
				return classifyAttachError(err)
			}
			if err := p.store.Commit(); err != nil {
				return Result{Status: StatusError, Err: err}
			}
			log.Infof("REORGANIZE: branch %d overtakes branch %d at fork height %d",
				reorg.NewMainBranch, reorg.OldMainBranch, reorg.ForkHeight)
			return Result{Status: StatusReorg, Height: outcome.Height, Branch: reorg.NewMainBranch}
		}
		if err := p.store.Commit(); err != nil {
			return Result{Status: StatusError, Err: err}
		}
		return Result{Status: StatusSide, Height: outcome.Height, Branch: outcome.Branch}

	default:
		p.store.Reset()
		return Result{Status: StatusError, Err: wrongKindError{outcome.Kind}}
	}
}

// classifyAttachError maps an error returned by branchmgr (either its
// own bookkeeping failures or a validate.RuleError surfaced from the
// injected Validator) onto the Result status an embedder should act
// on.
func classifyAttachError(err error) Result {
	if re, ok := err.(validate.RuleError); ok {
		if re.ErrorCode == validate.ErrBranchCacheFull {
			return Result{Status: StatusNoNew, Err: err}
		}
		return Result{Status: statusForRuleError(err), Err: err}
	}
	return Result{Status: StatusError, Err: err}
}

type wrongKindError struct{ kind branchmgr.Kind }

func (e wrongKindError) Error() string {
	return fmt.Sprintf("consensus: branchmgr returned an unhandled outcome kind %d", e.kind)
}
