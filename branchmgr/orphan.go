// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package branchmgr

import (
	"bytes"

	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/wire"
)

type orphanSlot struct {
	inUse bool
	hash  chainhash.Hash
	block *wire.MsgBlock
}

// insertOrphan places block at the first-orphan cursor, overwriting
// whatever orphan (if any) currently occupies that slot, and advances
// the cursor with wraparound. The block is also staged into the
// orphan index; nothing in this package reads that index back, so the
// in-memory ring is the only copy attach and DrainOrphans consult.
func (m *Manager) insertOrphan(hash chainhash.Hash, block *wire.MsgBlock) {
	slot := m.firstOrphan
	m.orphans[slot] = orphanSlot{inUse: true, hash: hash, block: block}
	m.firstOrphan = (m.firstOrphan + 1) % MaxOrphanCache

	var buf bytes.Buffer
	if err := block.Serialize(&buf); err == nil {
		m.store.WriteOrphan(slot, buf.Bytes())
	}
}

// DrainOrphans repeatedly scans the orphan ring for blocks whose
// parent is now known, attaching them and removing them from the ring.
// It stops when a full pass finds nothing newly attachable. It must be
// called without the Manager's lock held; it takes that lock itself
// around each scan of the ring and each attach.
func (m *Manager) DrainOrphans() ([]Outcome, error) {
	var attached []Outcome
	for {
		progressed := false

		m.mu.Lock()
		candidates := make([]*wire.MsgBlock, 0)
		for i := range m.orphans {
			slot := &m.orphans[i]
			if !slot.inUse {
				continue
			}
			if _, err := m.store.LookupBlockHash(slot.block.Header.PrevBlock); err == nil {
				candidates = append(candidates, slot.block)
				slot.inUse = false
				m.store.RemoveOrphan(int32(i))
			}
		}
		m.mu.Unlock()

		for _, block := range candidates {
			m.mu.Lock()
			outcome, err := m.attach(block)
			m.mu.Unlock()
			if err != nil {
				return attached, err
			}
			if outcome.Kind != KindParentUnknown {
				attached = append(attached, outcome)
				progressed = true
			}
		}

		if !progressed {
			break
		}
	}
	return attached, nil
}
