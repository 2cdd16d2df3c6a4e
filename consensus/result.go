// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import "github.com/coreledger/btconsensus/validate"

// Status is the disposition ProcessBlock reports for a submitted block,
// mirroring the outcomes spec §7 enumerates for the process_block
// façade.
type Status int

const (
	// StatusMain indicates the block extended the main chain.
	StatusMain Status = iota

	// StatusMainWithOrphans indicates the block extended the main chain
	// and its acceptance let one or more previously orphaned blocks
	// attach as well.
	StatusMainWithOrphans

	// StatusSide indicates the block was accepted onto a side branch
	// that does not yet outweigh the main chain.
	StatusSide

	// StatusReorg indicates the block caused its branch to overtake the
	// main chain, and the reorganisation completed successfully.
	StatusReorg

	// StatusOrphan indicates the block's parent is unknown; it was
	// buffered in the orphan ring.
	StatusOrphan

	// StatusDuplicate indicates the block was already known.
	StatusDuplicate

	// StatusBad indicates the block violated a consensus rule unrelated
	// to its timestamp.
	StatusBad

	// StatusBadTime indicates the block's timestamp violated a
	// consensus rule.
	StatusBadTime

	// StatusNoNew indicates the branch table had no room for a new side
	// branch and none could be evicted.
	StatusNoNew

	// StatusError indicates a failure unrelated to the block's own
	// validity: a storage error, or corruption in data ProcessBlock
	// trusted to already be consistent.
	StatusError
)

var statusStrings = map[Status]string{
	StatusMain:            "Main",
	StatusMainWithOrphans: "MainWithOrphans",
	StatusSide:            "Side",
	StatusReorg:           "Reorg",
	StatusOrphan:          "Orphan",
	StatusDuplicate:       "Duplicate",
	StatusBad:             "Bad",
	StatusBadTime:         "BadTime",
	StatusNoNew:           "NoNew",
	StatusError:           "Error",
}

// String returns the human-readable constant name for the status.
func (s Status) String() string {
	if v, ok := statusStrings[s]; ok {
		return v
	}
	return "Unknown Status"
}

// Result is what ProcessBlock returns for a single submitted block.
type Result struct {
	Status Status
	Err    error

	// Height is the absolute chain height the block occupies, valid for
	// any Status that successfully attached the block.
	Height int32

	// Branch is the branch the block attached to, valid under the same
	// conditions as Height.
	Branch int32

	// DrainedOrphans counts how many previously buffered orphans
	// attached as a consequence of this block, valid only when Status
	// is StatusMainWithOrphans.
	DrainedOrphans int
}

// statusForRuleError maps a validate.RuleError's code to the BadTime
// status when it concerns a block's timestamp, and to Bad otherwise.
func statusForRuleError(err error) Status {
	if re, ok := err.(validate.RuleError); ok {
		switch re.ErrorCode {
		case validate.ErrTimeTooOld, validate.ErrTimeTooNew, validate.ErrInvalidTime:
			return StatusBadTime
		}
	}
	return StatusBad
}
