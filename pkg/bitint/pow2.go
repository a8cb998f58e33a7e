// SPDX-License-Identifier: MIT
//
// Package bitint provides the small integer helpers used when sizing
// real-time buffers: power-of-two rounding for device FIFOs and ceiling
// division for ring capacities. All functions are allocation free and
// safe to call from the audio thread.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Sizes <= 0
// return 1. Subtracting one before taking the bit length keeps exact
// powers of two unchanged (8 -> 8, 9 -> 16).
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// CeilDiv returns ceil(a/b) for non-negative a and positive b.
// Negative a is treated as 0 and b <= 0 returns 0.
func CeilDiv(a, b int64) int64 {
	if b <= 0 || a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Wrap maps any i onto [0, n). n must be positive.
func Wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
