// SPDX-License-Identifier: MIT
package dsp

import "math"

// SilenceDB is the level reported for digital silence.
const SilenceDB = -240.0

// denormalThreshold is well below the 24-bit noise floor.
const denormalThreshold = 1e-20

// DBToLinear converts decibels to an amplitude ratio.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts an amplitude ratio to decibels, mapping zero and
// negative input to SilenceDB.
func LinearToDB(v float64) float64 {
	if v <= 0 {
		return SilenceDB
	}
	db := 20 * math.Log10(v)
	if db < SilenceDB {
		return SilenceDB
	}
	return db
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FlushDenormal zeroes values small enough to fall into the subnormal
// range when they keep recirculating through a feedback path.
func FlushDenormal(v float64) float64 {
	if v < denormalThreshold && v > -denormalThreshold {
		return 0
	}
	return v
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SmoothingCoeff returns the one-pole coefficient that reaches ~63% of a
// step in timeMs at sampleRate.
func SmoothingCoeff(timeMs float64, sampleRate int) float64 {
	if timeMs <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1000 / (timeMs * float64(sampleRate)))
}
