// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import "github.com/coreledger/btconsensus/chaincfg"

// baseSubsidy is the coinbase reward paid at height zero, in the smallest
// unit the chain tracks.
const baseSubsidy = 50 * 1e8

// maxHalvings bounds the subsidy schedule: past this many halvings the
// reward has shifted to zero regardless of the interval's arithmetic.
const maxHalvings = 64

// CalcBlockSubsidy returns the base coinbase reward for a block at height,
// before transaction fees are added, per the halving schedule in params.
func CalcBlockSubsidy(height int32, params *chaincfg.Params) int64 {
	if params.SubsidyReductionInterval == 0 {
		return baseSubsidy
	}
	halvings := height / params.SubsidyReductionInterval
	if halvings >= maxHalvings {
		return 0
	}
	return baseSubsidy >> uint(halvings)
}

// CheckSubsidy verifies that a coinbase's total output value does not
// exceed the sum of the block subsidy and the fees collected from the
// block's other transactions.
func CheckSubsidy(coinbaseOutputValue int64, height int32, totalFees int64, params *chaincfg.Params) error {
	maxAllowed := CalcBlockSubsidy(height, params) + totalFees
	if coinbaseOutputValue > maxAllowed {
		return ruleError(ErrBadCoinbaseValue, "coinbase pays more than the block subsidy plus collected fees")
	}
	return nil
}
