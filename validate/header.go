// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package validate implements the pure validation functions of spec §4.4:
// header/proof-of-work checks, basic block sanity, timestamp checks,
// coinbase rules, per-input validation, the sig-op budget and the subsidy
// schedule. Nothing here touches storage or branch selection; those are
// the branchmgr package's concern.
package validate

import (
	"fmt"
	"time"

	"github.com/coreledger/btconsensus/bigint"
	"github.com/coreledger/btconsensus/chaincfg"
	"github.com/coreledger/btconsensus/pow"
	"github.com/coreledger/btconsensus/wire"
)

// AllowedTimeDrift is the maximum amount of time a block's timestamp may
// sit ahead of the network-adjusted time before it is rejected outright
// (as opposed to merely being held back for the timestamp check).
const AllowedTimeDrift = 2 * time.Hour

// MedianTimeBlocks is the number of preceding blocks whose timestamps are
// used to compute the past median time a candidate block must exceed.
const MedianTimeBlocks = 11

// CheckProofOfWork verifies that a block header's hash, interpreted as a
// little-endian integer, does not exceed the target its Bits field
// expands to, and that the expanded target itself falls within the
// network's permitted range.
func CheckProofOfWork(header *wire.BlockHeader, powLimit bigint.Int) error {
	target, ok := pow.ExpandCompact(header.Bits, powLimit)
	if !ok {
		return ruleError(ErrUnexpectedDifficulty, "block target difficulty is out of protocol bounds")
	}

	hash := header.BlockHash()
	hashNum := bigint.NewInt(hash[:])
	if bigint.Compare(hashNum, target) > 0 {
		return ruleError(ErrHighHash, "block hash does not satisfy its proof-of-work target")
	}
	return nil
}

// reverse returns a reversed copy of b, turning a big-endian hash into the
// little-endian byte order bigint.Int expects (and vice versa).
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// CheckBlockHeaderSanity runs the context-free checks on a header alone:
// proof of work, and that its timestamp does not sit further than
// AllowedTimeDrift beyond networkTime.
func CheckBlockHeaderSanity(header *wire.BlockHeader, networkTime time.Time, powLimit bigint.Int) error {
	if err := CheckProofOfWork(header, powLimit); err != nil {
		return err
	}

	maxTimestamp := networkTime.Add(AllowedTimeDrift)
	if time.Unix(int64(header.Timestamp), 0).After(maxTimestamp) {
		return ruleError(ErrTimeTooNew, "block timestamp is too far in the future")
	}
	return nil
}

// CheckTimestamp enforces that a block's timestamp exceeds the median of
// the timestamps of the MedianTimeBlocks ancestors preceding it, which
// ancestorTimestamps must supply in order from most to least recent.
func CheckTimestamp(header *wire.BlockHeader, ancestorTimestamps []uint32) error {
	medianTime := calcMedianTime(ancestorTimestamps)
	if header.Timestamp <= medianTime {
		return ruleError(ErrTimeTooOld, "block timestamp is not after median time of prior blocks")
	}
	return nil
}

// calcMedianTime returns the median of up to MedianTimeBlocks timestamps.
func calcMedianTime(timestamps []uint32) uint32 {
	n := len(timestamps)
	if n > MedianTimeBlocks {
		n = MedianTimeBlocks
	}
	sorted := append([]uint32(nil), timestamps[:n]...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)/2]
}

// CheckDifficultyBits verifies that a header's claimed Bits matches what
// the retargeting algorithm expects given the prior block's bits, the
// height being validated, and (for networks that retarget) the elapsed
// time across the retarget window.
func CheckDifficultyBits(params *chaincfg.Params, height int32, prevBits uint32, windowStart, windowEnd time.Time, expected uint32) error {
	if params.PoWNoRetargeting {
		return nil
	}
	if height%params.BlocksPerRetarget() != 0 {
		if expected != prevBits {
			return ruleError(ErrUnexpectedDifficulty, "block difficulty does not match expected value for a non-retarget height")
		}
		return nil
	}

	actual := calcNextWorkRequired(params, prevBits, windowEnd.Sub(windowStart))
	if actual != expected {
		return ruleError(ErrUnexpectedDifficulty, fmt.Sprintf(
			"block difficulty of %x is not the %x retargeting produced", expected, actual))
	}
	return nil
}

// calcNextWorkRequired applies the classic retargeting formula: the new
// target is the old target scaled by actualTimespan/TargetTimespan,
// clamped to within RetargetAdjustmentFactor of the original.
func calcNextWorkRequired(params *chaincfg.Params, prevBits uint32, actualTimespan time.Duration) uint32 {
	minTimespan := params.TargetTimespan / time.Duration(params.RetargetAdjustmentFactor)
	maxTimespan := params.TargetTimespan * time.Duration(params.RetargetAdjustmentFactor)
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	}
	if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	oldTarget := pow.CompactToTarget(prevBits)
	scaled := scaleTarget(oldTarget, uint64(actualTimespan), uint64(params.TargetTimespan))
	if bigint.Compare(scaled, params.PowLimit) > 0 {
		scaled = params.PowLimit
	}
	return compactFromTarget(scaled)
}

// scaleTarget returns floor(target * num / den), multiplying and dividing
// by num/den a byte at a time since bigint has no native multi-byte
// multiplier or divisor operation.
func scaleTarget(target bigint.Int, num, den uint64) bigint.Int {
	return divBigByUint64(mulBigByUint64(target, num), den)
}

// mulBigByUint64 returns a*m, processing m's bytes from least to most
// significant and accumulating each partial product at its byte offset.
func mulBigByUint64(a bigint.Int, m uint64) bigint.Int {
	product := bigint.Int{}
	offset := 0
	for m > 0 {
		b := byte(m & 0xff)
		if b != 0 {
			partial := bigint.MulByte(a, b)
			padded := make(bigint.Int, offset+len(partial))
			copy(padded[offset:], partial)
			product = bigint.Add(product, padded)
		}
		m >>= 8
		offset++
	}
	return product
}

// divBigByUint64 divides a multi-byte dividend by a uint64 divisor,
// processing the dividend one byte at a time from the most significant
// end, mirroring pow.divPow256's long-division shape.
func divBigByUint64(a bigint.Int, d uint64) bigint.Int {
	if d == 0 {
		return bigint.Int{}
	}
	a = a.Normalize()
	out := make(bigint.Int, len(a))
	var rem uint64
	for i := len(a) - 1; i >= 0; i-- {
		cur := rem<<8 | uint64(a[i])
		out[i] = byte(cur / d)
		rem = cur % d
	}
	return bigint.Int(out).Normalize()
}

// compactFromTarget reduces a 256-bit target to its compact ("bits")
// encoding: a one-byte exponent (size in bytes) and a 3-byte mantissa,
// with the mantissa's high bit reserved as a sign flag.
func compactFromTarget(target bigint.Int) uint32 {
	target = target.Normalize()
	size := len(target)
	var mantissa uint32
	switch {
	case size <= 3:
		for i := size - 1; i >= 0; i-- {
			mantissa = mantissa<<8 | uint32(target[i])
		}
		mantissa <<= uint(8 * (3 - size))
	default:
		mantissa = uint32(target[size-1])<<16 | uint32(target[size-2])<<8 | uint32(target[size-3])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}
	return uint32(size)<<24 | mantissa
}
