// SPDX-License-Identifier: MIT

// Package testsignal generates deterministic interleaved PCM blocks and
// provides small inspection helpers shared by the package tests.
package testsignal

import (
	"math"
	"math/rand/v2"
	"sync"
)

// MockTransport records everything sent to it instead of transmitting.
// It satisfies transport.Transport.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
}

// Send stores the payload for later inspection.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, data)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of the recorded payloads.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// Sine returns frames*channels interleaved samples of a sine at frequency
// with the given peak amplitude, identical on every channel.
func Sine(frames, channels int, sampleRate, frequency, amplitude float64) []float32 {
	buf := make([]float32, frames*channels)
	for i := range frames {
		v := float32(amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate))
		for ch := range channels {
			buf[i*channels+ch] = v
		}
	}
	return buf
}

// Complex returns a mono 440Hz fundamental with its 2nd and 3rd harmonics.
func Complex(frames int, sampleRate float64) []float32 {
	buf := make([]float32, frames)
	for i := range buf {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buf[i] = float32(signal * 0.9)
	}
	return buf
}

// Impulse returns a block with a single unit sample at frame `at` on
// every channel.
func Impulse(frames, channels, at int) []float32 {
	buf := make([]float32, frames*channels)
	if at >= 0 && at < frames {
		for ch := range channels {
			buf[at*channels+ch] = 1
		}
	}
	return buf
}

// WhiteNoise returns uniformly distributed noise in [-amplitude, amplitude].
// The same seed always yields the same block.
func WhiteNoise(frames, channels int, amplitude float64, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buf := make([]float32, frames*channels)
	for i := range buf {
		buf[i] = float32(amplitude * (2*rng.Float64() - 1))
	}
	return buf
}

// Channel extracts one channel of an interleaved block as float64.
func Channel(buf []float32, channels, ch int) []float64 {
	out := make([]float64, 0, len(buf)/channels)
	for i := ch; i < len(buf); i += channels {
		out = append(out, float64(buf[i]))
	}
	return out
}

// Energy returns the sum of squares of buf.
func Energy(buf []float32) float64 {
	var sum float64
	for _, v := range buf {
		sum += float64(v) * float64(v)
	}
	return sum
}

// IsSilent reports whether every sample is exactly zero.
func IsSilent(buf []float32) bool {
	for _, v := range buf {
		if v != 0 {
			return false
		}
	}
	return true
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
