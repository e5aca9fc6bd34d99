// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},           // Negative number
		{0, 1},             // Zero
		{1, 1},             // One
		{8, 8},             // Already power of two
		{10, 16},           // Not power of two
		{1000, 1024},       // Typical block size
		{3, 4},             // Small non-power
		{22051, 32768},     // Half a second at 44.1kHz plus one
		{96001, 131072},    // Half a second at 192kHz plus one
		{(1 << 30) + 1, 1 << 31},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			result := NextPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, result, tt.expected)
			}
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-2, false},     // Negative number
		{0, false},      // Zero
		{1, true},       // One
		{8, true},       // Power of two
		{10, false},     // Not power of two
		{1 << 20, true}, // Large power of two
		{1000, false},   // Common non-power FFT mistake
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			result := IsPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, result, tt.expected)
			}
		})
	}
}

func TestLog2(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{0, -1},
		{-4, -1},
		{1, 0},
		{2, 1},
		{1024, 10},
		{1500, 10},
		{4096, 12},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			if got := Log2(tt.n); got != tt.expected {
				t.Errorf("Log2(%d) = %d, expected %d", tt.n, got, tt.expected)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if got := Mask(1024); got != 1023 {
		t.Errorf("Mask(1024) = %d, expected 1023", got)
	}
	if got := Mask(1000); got != 0 {
		t.Errorf("Mask(1000) = %d, expected 0 for non-power input", got)
	}

	// Masked index must match modulo for every position of a ring.
	const size = 64
	mask := Mask(size)
	for i := -size; i < 3*size; i++ {
		want := ((i % size) + size) % size
		if got := i & mask; got != want {
			t.Fatalf("index %d: mask wrap %d, modulo wrap %d", i, got, want)
		}
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}

func BenchmarkIsPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		IsPowerOfTwo(i % 10000)
		i++
	}
}
