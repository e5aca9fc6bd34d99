// SPDX-License-Identifier: MIT

// Package dsp holds the leaf building blocks of the effect units: a
// circular delay line and a biquad filter section, plus the level helpers
// they share.
package dsp

import (
	"audiofx/pkg/bitint"
	"math"
)

// MaxFeedback bounds every recirculating path. Keeping the loop gain
// below one guarantees the stored energy decays.
const MaxFeedback = 0.98

// DelayLine is a circular buffer with a single write cursor and any
// number of delayed reads. Capacity is always a power of two so the
// cursor wraps with a mask.
//
// The write cursor points at the slot that will be overwritten next, so
// ReadDelayed(n) before Write returns the sample written n calls ago.
type DelayLine struct {
	buf   []float64
	mask  int
	write int

	delay    int     // samples used by Process
	feedback float64 // clamped to [0, MaxFeedback]
	wet      float64
	dry      float64
}

// NewDelayLine returns a line able to hold maxDelayMs of audio at
// sampleRate. The process delay starts at the maximum, wet gain at 1 and
// dry gain at 0.
func NewDelayLine(maxDelayMs float64, sampleRate int) *DelayLine {
	d := &DelayLine{wet: 1}
	d.Resize(maxDelayMs, sampleRate)
	return d
}

// NewDelayLineSamples returns a line holding at least maxDelay samples.
func NewDelayLineSamples(maxDelay int) *DelayLine {
	d := &DelayLine{wet: 1}
	d.allocate(maxDelay)
	d.delay = maxDelay
	return d
}

// SamplesFor converts a time in milliseconds to the nearest whole number
// of samples.
func SamplesFor(ms float64, sampleRate int) int {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(ms * float64(sampleRate) / 1000))
}

// CapacityFor is SamplesFor rounded up, so a line sized with it always
// satisfies capacity >= ms*rate.
func CapacityFor(ms float64, sampleRate int) int {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Ceil(ms * float64(sampleRate) / 1000))
}

func (d *DelayLine) allocate(maxDelay int) {
	if maxDelay < 1 {
		maxDelay = 1
	}
	size := bitint.NextPowerOfTwo(maxDelay + 1)
	d.buf = make([]float64, size)
	d.mask = bitint.Mask(size)
	d.write = 0
}

// Resize re-derives capacity for a new maximum delay or sample rate. The
// old content is discarded: after a format change the line holds silence.
func (d *DelayLine) Resize(maxDelayMs float64, sampleRate int) {
	n := CapacityFor(maxDelayMs, sampleRate)
	d.allocate(n)
	if d.delay > n || d.delay == 0 {
		d.delay = max(n, 1)
	}
}

// EnsureCapacity grows the buffer so that delays of n samples are
// representable. Unlike Resize the stored history is kept, oldest sample
// first, so a parameter change does not produce a dropout.
func (d *DelayLine) EnsureCapacity(n int) {
	if n < len(d.buf) {
		return
	}
	size := bitint.NextPowerOfTwo(n + 1)
	nb := make([]float64, size)
	old := len(d.buf)
	for i := range old {
		nb[i] = d.buf[(d.write+i)&d.mask]
	}
	d.buf = nb
	d.mask = bitint.Mask(size)
	d.write = old
}

// Capacity is the number of slots in the ring.
func (d *DelayLine) Capacity() int { return len(d.buf) }

// MaxDelay is the longest delay in samples that can be read.
func (d *DelayLine) MaxDelay() int { return len(d.buf) - 1 }

// Write stores sample at the cursor and advances it.
func (d *DelayLine) Write(sample float64) {
	d.buf[d.write] = sample
	d.write = (d.write + 1) & d.mask
}

// ReadDelayed returns the sample written samplesBack writes ago.
// samplesBack is clamped to [1, capacity-1].
func (d *DelayLine) ReadDelayed(samplesBack int) float64 {
	if samplesBack < 1 {
		samplesBack = 1
	} else if samplesBack > d.mask {
		samplesBack = d.mask
	}
	return d.buf[(d.write-samplesBack)&d.mask]
}

// ReadFractional reads between two stored samples with linear
// interpolation. The integer part is clamped like ReadDelayed.
func (d *DelayLine) ReadFractional(samplesBack float64) float64 {
	if samplesBack < 1 {
		samplesBack = 1
	}
	maxBack := float64(d.mask - 1)
	if samplesBack > maxBack {
		samplesBack = maxBack
	}
	whole := int(samplesBack)
	frac := samplesBack - float64(whole)
	a := d.buf[(d.write-whole)&d.mask]
	if frac == 0 {
		return a
	}
	b := d.buf[(d.write-whole-1)&d.mask]
	return a + (b-a)*frac
}

// Process runs one sample through the line:
//
//	out = in*dry + delayed*wet
//	write(in + delayed*feedback)
func (d *DelayLine) Process(input float64) float64 {
	delayed := d.ReadDelayed(d.delay)
	d.Write(FlushDenormal(input + delayed*d.feedback))
	return input*d.dry + delayed*d.wet
}

// SetDelay sets the delay used by Process, growing the buffer when needed.
func (d *DelayLine) SetDelay(samples int) {
	if samples < 1 {
		samples = 1
	}
	d.EnsureCapacity(samples)
	d.delay = samples
}

// SetDelayMs is SetDelay expressed in milliseconds.
func (d *DelayLine) SetDelayMs(ms float64, sampleRate int) {
	d.SetDelay(SamplesFor(ms, sampleRate))
}

// Delay returns the delay in samples used by Process.
func (d *DelayLine) Delay() int { return d.delay }

// SetFeedback stores the recirculation gain, clamped to [0, MaxFeedback].
func (d *DelayLine) SetFeedback(g float64) { d.feedback = ClampFeedback(g) }

// Feedback returns the clamped recirculation gain.
func (d *DelayLine) Feedback() float64 { return d.feedback }

// SetWet sets the gain of the delayed path in Process.
func (d *DelayLine) SetWet(g float64) { d.wet = g }

// SetDry sets the gain of the direct path in Process.
func (d *DelayLine) SetDry(g float64) { d.dry = g }

// Reset zeroes the content and rewinds the cursor. Capacity, delay and
// gains are unchanged.
func (d *DelayLine) Reset() {
	clear(d.buf)
	d.write = 0
}

// ClampFeedback limits a loop gain to [0, MaxFeedback]. NaN maps to 0.
func ClampFeedback(g float64) float64 {
	if !(g > 0) {
		return 0
	}
	if g > MaxFeedback {
		return MaxFeedback
	}
	return g
}
