// SPDX-License-Identifier: MIT
package audio

import "math"

// About -60 dBFS.
const defaultGateThreshold = 0.001

// The gate only decides whether a block reaches the analyzer; the audio
// path is never gated.

func (e *Engine) EnableGate() {
	e.gateEnabled.Store(true)
}

func (e *Engine) DisableGate() {
	e.gateEnabled.Store(false)
}

// GateEnabled reports whether quiet blocks skip analysis.
func (e *Engine) GateEnabled() bool {
	return e.gateEnabled.Load()
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	threshold = min(max(threshold, 0), 1)
	e.gateThreshold.Store(math.Float32bits(float32(threshold)))
}

// GetGateThreshold returns the current noise gate threshold as a float64.
func (e *Engine) GetGateThreshold() float64 {
	return float64(math.Float32frombits(e.gateThreshold.Load()))
}

func (e *Engine) gateOpen(peak float32) bool {
	if !e.gateEnabled.Load() {
		return true
	}
	return peak > math.Float32frombits(e.gateThreshold.Load())
}

// blockPeak returns the largest absolute sample.
func blockPeak(buf []float32) float32 {
	var peak float32
	for _, s := range buf {
		peak = max(peak, float32(math.Abs(float64(s))))
	}
	return peak
}
