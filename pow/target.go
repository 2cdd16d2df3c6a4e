// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pow expands the compact ("bits") target encoding into a full
// 256-bit target and computes the per-block work contribution used to
// accumulate branch work (spec §4.1, §4.4, §6).
package pow

import (
	"github.com/coreledger/btconsensus/bigint"
)

// MaxCompactTargetExponent is the largest compact-target exponent (the
// top byte of c) whose expansion still fits in 256 bits. Nothing in this
// package consults it: ExpandCompact bounds targets by its maxTarget
// argument, which embedders take from chaincfg.Params.
const MaxCompactTargetExponent = 0x20

// ExpandCompact expands a 32-bit compact target c into its 256-bit value:
// target = (c & 0x00ffffff) * 256^((c>>24) - 3), per spec §6.
//
// A compact target is "within protocol bounds" when its mantissa is
// non-zero, its mantissa's high bit is clear (the historical sign bit
// used by the reference client's signed mantissa encoding), and the
// expanded value does not exceed maxTarget.
func ExpandCompact(c uint32, maxTarget bigint.Int) (bigint.Int, bool) {
	exponent := c >> 24
	mantissa := c & 0x007fffff // high bit of the 3rd byte is a sign flag
	if c&0x00800000 != 0 {
		// Negative mantissa: never valid as a target.
		return nil, false
	}
	if mantissa == 0 {
		return nil, false
	}

	var target bigint.Int
	if exponent <= 3 {
		shift := (3 - exponent) * 8
		target = bigint.ShiftRight(bigint.NewFromUint64(uint64(mantissa)), uint(shift))
	} else {
		target = bigint.NewFromUint64(uint64(mantissa))
		for i := uint32(0); i < exponent-3; i++ {
			target = leftShiftByte(target)
		}
	}
	if !target.IsZero() && bigint.Compare(target, maxTarget) > 0 {
		return nil, false
	}
	return target, true
}

// leftShiftByte multiplies a by 256 by appending a zero low byte.
func leftShiftByte(a bigint.Int) bigint.Int {
	out := make(bigint.Int, len(a)+1)
	copy(out[1:], a)
	return out.Normalize()
}

// CompactToTarget is ExpandCompact without bounds checking, for callers
// (such as work accumulation) that only need the numeric value and have
// already validated the header elsewhere.
func CompactToTarget(c uint32) bigint.Int {
	t, ok := ExpandCompact(c, twoFiveSix())
	if !ok {
		return bigint.Int{}
	}
	return t
}

// twoFiveSix returns 2^256 - 1, the maximum representable target, used as
// an always-permissive bound by CompactToTarget.
func twoFiveSix() bigint.Int {
	b := make([]byte, 32)
	for i := range b {
		b[i] = 0xff
	}
	return bigint.NewInt(b)
}

// CalcWork computes floor(2^256 / (target + 1)), the conventional
// proof-of-work measure for a block whose target is target (spec
// GLOSSARY "Work").
func CalcWork(target bigint.Int) bigint.Int {
	if target.IsZero() {
		return bigint.Int{}
	}
	denom := bigint.Add(target, bigint.NewFromUint64(1))
	return divPow256(denom)
}

// divPow256 computes floor(2^256 / denom) using long division by
// repeatedly dividing byte-sized chunks of the dividend 2^256, held as a
// 33-byte little-endian vector whose only non-zero byte is the top one.
func divPow256(denom bigint.Int) bigint.Int {
	dividend := make(bigint.Int, 33)
	dividend[32] = 1 // 2^256

	quotient := make(bigint.Int, 33)
	var remainder bigint.Int

	for i := len(dividend) - 1; i >= 0; i-- {
		remainder = shiftLeftByteWithCarry(remainder, dividend[i])
		q, r := divmodBig(remainder, denom)
		quotient[i] = q
		remainder = r
	}
	return bigint.Int(quotient).Normalize()
}

// shiftLeftByteWithCarry shifts a left by one byte (multiplies by 256)
// and inserts carryIn as the new low byte.
func shiftLeftByteWithCarry(a bigint.Int, carryIn byte) bigint.Int {
	out := make(bigint.Int, len(a)+1)
	out[0] = carryIn
	copy(out[1:], a)
	return out.Normalize()
}

// divmodBig returns a single result byte q (0..255) such that
// q*denom <= a < (q+1)*denom, found by binary search, plus the
// remainder a - q*denom. Used by divPow256's schoolbook long division.
func divmodBig(a, denom bigint.Int) (byte, bigint.Int) {
	if denom.IsZero() {
		return 0, a
	}
	var lo, hi uint16 = 0, 255
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if bigint.Compare(bigint.MulByte(denom, byte(mid)), a) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	q := byte(lo)
	rem := bigint.Sub(a, bigint.MulByte(denom, q))
	return q, rem
}
