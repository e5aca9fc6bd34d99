// SPDX-License-Identifier: MIT
package analysis

import "math"

// Features are scalar descriptors of one analysis window.
type Features struct {
	RMS              float64 `json:"rms"`
	Peak             float64 `json:"peak"`
	ZeroCrossingRate float64 `json:"zcr"`      // sign changes per sample
	SpectralCentroid float64 `json:"centroid"` // Hz
}

// timeFeatures computes RMS, peak and zero-crossing rate of frame.
func timeFeatures(frame []float64) (rms, peak, zcr float64) {
	if len(frame) == 0 {
		return 0, 0, 0
	}
	var sum float64
	crossings := 0
	prev := frame[0]
	for i, x := range frame {
		sum += x * x
		peak = max(peak, math.Abs(x))
		if i > 0 && (x >= 0) != (prev >= 0) {
			crossings++
		}
		prev = x
	}
	n := float64(len(frame))
	return math.Sqrt(sum / n), peak, float64(crossings) / n
}

// spectralCentroid returns the magnitude weighted mean frequency of the
// bins between lo and hi Hz, or 0 for a silent spectrum.
func spectralCentroid(mags []float64, binHz, lo, hi float64) float64 {
	var num, den float64
	for i, m := range mags {
		f := float64(i) * binHz
		if f < lo || f > hi {
			continue
		}
		num += f * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// dominant returns the loudest bin between lo and hi Hz.
func dominant(mags []float64, binHz, lo, hi float64) (freq, mag float64) {
	best := -1
	for i, m := range mags {
		f := float64(i) * binHz
		if f < lo || f > hi {
			continue
		}
		if best < 0 || m > mags[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, 0
	}
	return float64(best) * binHz, mags[best]
}
