// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bigint

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompare(t *testing.T) {
	require.Equal(t, 0, Compare(NewFromUint64(5), NewFromUint64(5)))
	require.Equal(t, -1, Compare(NewFromUint64(4), NewFromUint64(5)))
	require.Equal(t, 1, Compare(NewFromUint64(500), NewFromUint64(5)))
}

func TestAddSubRoundTrip(t *testing.T) {
	a := NewFromUint64(123456789)
	b := NewFromUint64(987654321)
	sum := Add(a, b)
	require.Equal(t, 0, Compare(Sub(sum, b), a))
}

func TestDivByPowerOfTwoMatchesShift(t *testing.T) {
	a := NewFromUint64(1 << 20)
	require.Equal(t, 0, Compare(DivByte(a, 16), ShiftRight(a, 4)))
}

func TestModByte(t *testing.T) {
	a := NewFromUint64(1000)
	require.Equal(t, byte(1000%7), ModByte(a, 7))
	require.Equal(t, byte(1000%16), ModByte(a, 16))
}

func TestNormalizeZero(t *testing.T) {
	z := NewInt([]byte{0, 0, 0})
	require.True(t, z.IsZero())
}

// TestAddCommutesWithUint64 exercises the arithmetic against Go's native
// uint64 across a wide value range using property-based inputs.
func TestAddCommutesWithUint64(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Uint32().Draw(rt, "a")
		b := rapid.Uint32().Draw(rt, "b")
		got := Add(NewFromUint64(uint64(a)), NewFromUint64(uint64(b)))
		want := NewFromUint64(uint64(a) + uint64(b))
		require.Equal(rt, 0, Compare(got, want))
	})
}

func TestDivByByteMatchesUint64(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Uint32().Draw(rt, "a")
		d := rapid.Uint32Range(1, 255).Draw(rt, "d")
		got := DivByte(NewFromUint64(uint64(a)), byte(d))
		want := NewFromUint64(uint64(a) / uint64(d))
		require.Equal(rt, 0, Compare(got, want))
	})
}
