// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the per-network consensus parameters consumed
// by the validate, branchmgr and consensus packages: the genesis block,
// proof-of-work limit, retarget cadence, coinbase maturity and subsidy
// schedule. It carries no peer-to-peer, address-encoding or wallet
// concerns; those belong to an embedder, not to this library.
package chaincfg

import (
	"errors"
	"time"

	"github.com/coreledger/btconsensus/bigint"
	"github.com/coreledger/btconsensus/chainhash"
	"github.com/coreledger/btconsensus/wire"
)

// Params defines a network by the consensus parameters that distinguish
// it from any other: its genesis block, its proof-of-work limit and
// retarget schedule, and its coinbase rules.
type Params struct {
	// Name is a human-readable identifier for the network.
	Name string

	// Net is the magic value used to identify the network at the wire
	// level. Carried for embedders that frame messages; this library
	// itself never reads from a socket.
	Net wire.BitcoinNet

	// GenesisBlock is the first block of the chain.
	GenesisBlock *wire.MsgBlock

	// GenesisHash is GenesisBlock's header hash, precomputed to avoid
	// hashing it on every startup.
	GenesisHash *chainhash.Hash

	// PowLimit is the loosest (easiest) target permitted on this
	// network, expressed as the little-endian byte vector described in
	// spec §4.1.
	PowLimit bigint.Int

	// PowLimitBits is PowLimit in its compact ("bits") encoding.
	PowLimitBits uint32

	// PoWNoRetargeting disables difficulty retargeting entirely, for
	// networks (such as a local regression-test network) where miners
	// need to produce blocks on demand regardless of elapsed time.
	PoWNoRetargeting bool

	// CoinbaseMaturity is the number of confirmations a coinbase output
	// must accumulate before it is spendable (spec §4.4).
	CoinbaseMaturity uint16

	// SubsidyReductionInterval is the number of blocks between subsidy
	// halvings (spec §4.4 "subsidy schedule").
	SubsidyReductionInterval int32

	// TargetTimespan is the span of time a retarget window is meant to
	// cover.
	TargetTimespan time.Duration

	// TargetTimePerBlock is the desired average spacing between blocks.
	TargetTimePerBlock time.Duration

	// RetargetAdjustmentFactor bounds how far a single retarget may move
	// the target in either direction: the measured timespan is clamped
	// to [TargetTimespan/factor, TargetTimespan*factor] before the old
	// target is scaled by it.
	RetargetAdjustmentFactor int64

	// ReduceMinDifficulty allows the minimum difficulty to apply if no
	// block has been found for MinDiffReductionTime. Intended only for
	// test networks.
	ReduceMinDifficulty bool

	// MinDiffReductionTime is the gap after which ReduceMinDifficulty
	// takes effect.
	MinDiffReductionTime time.Duration

	// RetargetInterval is the number of blocks in a difficulty window.
	// When it is zero, BlocksPerRetarget derives the window size as
	// TargetTimespan / TargetTimePerBlock.
	RetargetInterval int32
}

// BlocksPerRetarget returns the number of blocks between difficulty
// retargets, i.e. the size of a retarget window.
func (p *Params) BlocksPerRetarget() int32 {
	if p.RetargetInterval != 0 {
		return p.RetargetInterval
	}
	return int32(p.TargetTimespan / p.TargetTimePerBlock)
}

// MainNetParams holds the default, Bitcoin-compatible main network
// parameters: a Jan 2009 genesis, difficulty-1 power limit, ten-minute
// blocks, two-week retarget windows and 100-block coinbase maturity.
var MainNetParams = Params{
	Name:                     "mainnet",
	Net:                      wire.MainNet,
	GenesisBlock:             &mainGenesisBlock,
	GenesisHash:              &mainGenesisHash,
	PowLimit:                 mainPowLimit(),
	PowLimitBits:             0x1d00ffff,
	PoWNoRetargeting:         false,
	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 210000,
	TargetTimespan:           time.Hour * 24 * 14,
	TargetTimePerBlock:       time.Minute * 10,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      false,
	MinDiffReductionTime:     0,
}

// RegressionNetParams holds parameters for a local regression-test
// network: retargeting is disabled and the power limit is the loosest
// representable, so tests can mine blocks without doing real work.
var RegressionNetParams = Params{
	Name:                     "regtest",
	Net:                      wire.TestNet,
	GenesisBlock:             &regTestGenesisBlock,
	GenesisHash:              &regTestGenesisHash,
	PowLimit:                 regressionPowLimit(),
	PowLimitBits:             0x207fffff,
	PoWNoRetargeting:         true,
	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 150,
	TargetTimespan:           time.Hour * 24 * 14,
	TargetTimePerBlock:       time.Minute * 10,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      true,
	MinDiffReductionTime:     time.Minute * 20,
}

// mainPowLimit returns 2^224 - 1, the historical Bitcoin main-network
// proof-of-work limit, as a little-endian byte vector.
func mainPowLimit() bigint.Int {
	b := make([]byte, 28)
	for i := range b {
		b[i] = 0xff
	}
	return bigint.NewInt(b)
}

// regressionPowLimit returns 2^255 - 1, the loosest target this library
// will accept, leaving only the sign-bit-style top bit of a 256-bit value
// clear per the compact encoding's mantissa sign convention.
func regressionPowLimit() bigint.Int {
	b := make([]byte, 32)
	for i := range b {
		b[i] = 0xff
	}
	b[31] = 0x7f
	return bigint.NewInt(b)
}

// ErrDuplicateNet is returned by Register when params.Net collides with
// an already-registered network.
var ErrDuplicateNet = errors.New("chaincfg: duplicate network")

var registeredNets = map[wire.BitcoinNet]*Params{
	wire.MainNet: &MainNetParams,
	wire.TestNet: &RegressionNetParams,
}

// Register adds params to the set of known networks so that embedders
// can look up parameters for a custom network by its magic value.
func Register(params *Params) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}
	registeredNets[params.Net] = params
	return nil
}

// Lookup returns the registered parameters for net, if any.
func Lookup(net wire.BitcoinNet) (*Params, bool) {
	p, ok := registeredNets[net]
	return p, ok
}
