// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size ring buffers
and FFT windows in the processing core.

Delay lines round their capacity up with NextPowerOfTwo so that cursor
wrapping becomes a mask (idx & (n-1)) instead of a modulo, and the spectral
analyzer rejects FFT sizes that fail IsPowerOfTwo before building a plan.

All functions are O(1), allocation free and safe to call from the audio
callback.

Usage:

	capacity := bitint.NextPowerOfTwo(maxDelaySamples + 1)
	mask := capacity - 1

	if !bitint.IsPowerOfTwo(fftSize) { ... }

----------------------------------------------------------------------

Why size-1:

	bits.Len(8) is 4, so 1<<bits.Len(8) would double an input that is
	already a power of two. bits.Len(8-1) is 3 and 1<<3 is 8, which
	preserves exact powers while rounding everything else up.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Non-positive sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
// A power of two has a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns floor(log2(n)) for n > 0 and -1 otherwise. For powers of
// two this is the exact exponent, which the analyzer uses to report the
// FFT order.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// Mask returns n-1 when n is a power of two, for wrapping ring indices.
// It returns 0 for anything else so misuse collapses to a single slot
// rather than indexing out of range.
func Mask(n int) int {
	if !IsPowerOfTwo(n) {
		return 0
	}
	return n - 1
}
