// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"testing"

	"audiofx/pkg/bitint"
)

func TestDelayLineCapacity(t *testing.T) {
	tests := []struct {
		maxDelayMs float64
		sampleRate int
	}{
		{1, 8000},
		{250, 44100},
		{500, 48000},
		{1000, 96000},
		{2000, 192000},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%gms@%d", tt.maxDelayMs, tt.sampleRate), func(t *testing.T) {
			d := NewDelayLine(tt.maxDelayMs, tt.sampleRate)
			need := tt.maxDelayMs * float64(tt.sampleRate) / 1000
			if float64(d.Capacity()) < need {
				t.Errorf("capacity %d below required %g samples", d.Capacity(), need)
			}
			if !bitint.IsPowerOfTwo(d.Capacity()) {
				t.Errorf("capacity %d is not a power of two", d.Capacity())
			}
			if float64(d.MaxDelay()) < need {
				t.Errorf("max delay %d below required %g samples", d.MaxDelay(), need)
			}
		})
	}
}

func TestDelayLineResizeClears(t *testing.T) {
	d := NewDelayLine(10, 8000)
	for i := range 40 {
		d.Write(float64(i + 1))
	}
	d.Resize(10, 48000)

	if d.Capacity() < 480 {
		t.Fatalf("capacity %d after resize, want >= 480", d.Capacity())
	}
	for n := 1; n <= d.MaxDelay(); n++ {
		if v := d.ReadDelayed(n); v != 0 {
			t.Fatalf("ReadDelayed(%d) = %g after resize, want silence", n, v)
		}
	}
}

func TestDelayLineReadDelayed(t *testing.T) {
	d := NewDelayLineSamples(16)
	for i := 1; i <= 10; i++ {
		d.Write(float64(i))
	}
	for n := 1; n <= 10; n++ {
		want := float64(11 - n)
		if got := d.ReadDelayed(n); got != want {
			t.Errorf("ReadDelayed(%d) = %g, want %g", n, got, want)
		}
	}

	// Out of range offsets are clamped, never index past the ring.
	if got := d.ReadDelayed(0); got != 10 {
		t.Errorf("ReadDelayed(0) = %g, want clamp to most recent (10)", got)
	}
	_ = d.ReadDelayed(1 << 20)
}

func TestDelayLineReadFractional(t *testing.T) {
	d := NewDelayLineSamples(8)
	d.Write(0)
	d.Write(10)
	d.Write(20)

	tests := []struct {
		back float64
		want float64
	}{
		{1, 20},
		{1.5, 15},
		{2, 10},
		{2.25, 7.5},
	}
	for _, tt := range tests {
		if got := d.ReadFractional(tt.back); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ReadFractional(%g) = %g, want %g", tt.back, got, tt.want)
		}
	}
}

func TestDelayLineProcess(t *testing.T) {
	d := NewDelayLineSamples(8)
	d.SetDelay(3)
	d.SetDry(0)
	d.SetWet(1)

	in := []float64{1, 0, 0, 0, 0, 0, 0}
	want := []float64{0, 0, 0, 1, 0, 0, 0}
	for i, x := range in {
		if got := d.Process(x); got != want[i] {
			t.Errorf("sample %d: got %g, want %g", i, got, want[i])
		}
	}
}

func TestDelayLineFeedbackDecays(t *testing.T) {
	d := NewDelayLineSamples(64)
	d.SetDelay(10)
	d.SetFeedback(5) // clamped

	if got := d.Feedback(); got != MaxFeedback {
		t.Fatalf("feedback = %g, want clamp to %g", got, MaxFeedback)
	}

	d.Process(1)
	var last float64
	for range 20000 {
		last = d.Process(0)
	}
	if math.Abs(last) > 1e-3 {
		t.Errorf("recirculated energy did not decay: %g", last)
	}
}

func TestClampFeedback(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{0.98, 0.98},
		{0.99, MaxFeedback},
		{math.Inf(1), MaxFeedback},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ClampFeedback(tt.in); got != tt.want {
			t.Errorf("ClampFeedback(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestDelayLineEnsureCapacityKeepsHistory(t *testing.T) {
	d := NewDelayLineSamples(4) // capacity 8
	for i := 1; i <= 12; i++ {
		d.Write(float64(i))
	}
	before := make([]float64, d.MaxDelay())
	for n := 1; n <= d.MaxDelay(); n++ {
		before[n-1] = d.ReadDelayed(n)
	}

	d.EnsureCapacity(100)
	if d.MaxDelay() < 100 {
		t.Fatalf("max delay %d after grow, want >= 100", d.MaxDelay())
	}
	for n := 1; n <= len(before); n++ {
		if got := d.ReadDelayed(n); got != before[n-1] {
			t.Errorf("ReadDelayed(%d) = %g after grow, want %g", n, got, before[n-1])
		}
	}

	d.Write(13)
	if got := d.ReadDelayed(1); got != 13 {
		t.Errorf("write after grow: got %g, want 13", got)
	}
	if got := d.ReadDelayed(2); got != 12 {
		t.Errorf("history after grow: got %g, want 12", got)
	}
}

func TestDelayLineReset(t *testing.T) {
	d := NewDelayLineSamples(32)
	d.SetDelay(7)
	d.SetFeedback(0.5)
	for range 50 {
		d.Process(1)
	}
	d.Reset()

	if d.Delay() != 7 || d.Feedback() != 0.5 {
		t.Errorf("reset changed settings: delay %d feedback %g", d.Delay(), d.Feedback())
	}
	for n := 1; n <= d.MaxDelay(); n++ {
		if d.ReadDelayed(n) != 0 {
			t.Fatalf("ReadDelayed(%d) not silent after reset", n)
		}
	}
}

func TestSamplesFor(t *testing.T) {
	if got := SamplesFor(250, 48000); got != 12000 {
		t.Errorf("SamplesFor(250, 48000) = %d, want 12000", got)
	}
	if got := SamplesFor(0.5, 44100); got != 22 {
		t.Errorf("SamplesFor(0.5, 44100) = %d, want 22", got)
	}
	if got := CapacityFor(0.5, 44100); got != 23 {
		t.Errorf("CapacityFor(0.5, 44100) = %d, want 23", got)
	}
	if got := SamplesFor(-1, 48000); got != 0 {
		t.Errorf("negative time: got %d, want 0", got)
	}
}

func TestDelayLineProcessAllocs(t *testing.T) {
	d := NewDelayLine(100, 48000)
	d.SetFeedback(0.4)
	allocs := testing.AllocsPerRun(100, func() {
		for i := range 256 {
			d.Process(float64(i))
		}
	})
	if allocs > 0 {
		t.Errorf("DelayLine.Process allocated %.1f times per run", allocs)
	}
}

func BenchmarkDelayLineProcess(b *testing.B) {
	d := NewDelayLine(500, 48000)
	d.SetDelayMs(250, 48000)
	d.SetFeedback(0.5)
	b.ReportAllocs()
	for b.Loop() {
		d.Process(0.25)
	}
}
