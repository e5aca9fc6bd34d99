// SPDX-License-Identifier: MIT
package analysis

import "time"

// FrameType tags analysis frames on the wire.
const FrameType = "frame"

// Frame is one analysis result as published to visualization clients.
// Spectrum, Smoothed and Peaks hold FFTSize/2 bins from DC upward.
type Frame struct {
	Type          string             `json:"type"`
	Sequence      uint64             `json:"seq"`
	Timestamp     time.Time          `json:"ts"`
	SampleRate    float64            `json:"sampleRate"`
	FFTSize       int                `json:"fftSize"`
	Spectrum      []float64          `json:"spectrum"`
	Smoothed      []float64          `json:"smoothed"`
	Peaks         []float64          `json:"peaks"`
	Bands         []float64          `json:"bands"`
	BandEnergy    map[string]float64 `json:"bandEnergy"`
	Waveform      []float32          `json:"waveform"`
	Features      Features           `json:"features"`
	Beat          bool               `json:"beat"`
	BeatIntensity float64            `json:"beatIntensity"`
	DominantHz    float64            `json:"dominantHz"`
	DominantMag   float64            `json:"dominantMagnitude"`
}
