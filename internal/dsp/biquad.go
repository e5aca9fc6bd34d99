// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"
)

// FilterType selects the transfer function designed for a Band.
type FilterType int

const (
	LowPass FilterType = iota
	HighPass
	BandPass
	Notch
	LowShelf
	HighShelf
	Peak
	AllPass
)

// Design input limits. Clamping here keeps every coefficient set inside
// the unit circle regardless of what the caller asks for.
const (
	MinFrequency   = 10.0
	NyquistRatio   = 0.499 // highest usable f/sampleRate
	MinQ           = 0.05
	MaxQ           = 40.0
	MaxBandGainDB  = 48.0
	DefaultQ       = 0.7071067811865476
	shelfSlopeUnit = 1.0
)

var filterTypeNames = [...]string{
	LowPass:   "lowpass",
	HighPass:  "highpass",
	BandPass:  "bandpass",
	Notch:     "notch",
	LowShelf:  "lowshelf",
	HighShelf: "highshelf",
	Peak:      "peak",
	AllPass:   "allpass",
}

func (t FilterType) String() string {
	if t < 0 || int(t) >= len(filterTypeNames) {
		return fmt.Sprintf("FilterType(%d)", int(t))
	}
	return filterTypeNames[t]
}

// ParseFilterType maps a case-insensitive name to a FilterType.
func ParseFilterType(name string) (FilterType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lowpass", "low_pass", "lp":
		return LowPass, nil
	case "highpass", "high_pass", "hp":
		return HighPass, nil
	case "bandpass", "band_pass", "bp":
		return BandPass, nil
	case "notch", "bandstop", "band_stop":
		return Notch, nil
	case "lowshelf", "low_shelf":
		return LowShelf, nil
	case "highshelf", "high_shelf":
		return HighShelf, nil
	case "peak", "peaking", "bell":
		return Peak, nil
	case "allpass", "all_pass":
		return AllPass, nil
	default:
		return Peak, fmt.Errorf("unknown filter type: '%s'", name)
	}
}

// Band describes one equalizer section.
type Band struct {
	Type      FilterType
	Frequency float64 // Hz
	GainDB    float64 // only used by shelves and peaks
	Q         float64
	Enabled   bool
}

// Coefficients are normalised so that a0 == 1.
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Identity passes the input through unchanged.
var Identity = Coefficients{B0: 1}

// Design computes cookbook coefficients for band at sampleRate. Frequency,
// Q and gain are clamped first so degenerate input never yields an
// unstable section.
func Design(band Band, sampleRate int) Coefficients {
	if sampleRate <= 0 {
		return Identity
	}
	fs := float64(sampleRate)
	f := band.Frequency
	if !IsFinite(f) {
		f = 1000
	}
	f = Clamp(f, MinFrequency, NyquistRatio*fs)

	q := band.Q
	if !IsFinite(q) || q <= 0 {
		q = DefaultQ
	}
	q = Clamp(q, MinQ, MaxQ)

	gain := band.GainDB
	if !IsFinite(gain) {
		gain = 0
	}
	gain = Clamp(gain, -MaxBandGainDB, MaxBandGainDB)

	w0 := 2 * math.Pi * f / fs
	cosW := math.Cos(w0)
	sinW := math.Sin(w0)
	alpha := sinW / (2 * q)
	A := math.Pow(10, gain/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch band.Type {
	case LowPass:
		b0 = (1 - cosW) / 2
		b1 = 1 - cosW
		b2 = (1 - cosW) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case HighPass:
		b0 = (1 + cosW) / 2
		b1 = -(1 + cosW)
		b2 = (1 + cosW) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case BandPass:
		// Constant 0dB peak gain.
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case Notch:
		b0 = 1
		b1 = -2 * cosW
		b2 = 1
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case AllPass:
		b0 = 1 - alpha
		b1 = -2 * cosW
		b2 = 1 + alpha
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case LowShelf:
		sa := 2 * math.Sqrt(A) * shelfAlpha(sinW, A, q)
		b0 = A * ((A + 1) - (A-1)*cosW + sa)
		b1 = 2 * A * ((A - 1) - (A+1)*cosW)
		b2 = A * ((A + 1) - (A-1)*cosW - sa)
		a0 = (A + 1) + (A-1)*cosW + sa
		a1 = -2 * ((A - 1) + (A+1)*cosW)
		a2 = (A + 1) + (A-1)*cosW - sa
	case HighShelf:
		sa := 2 * math.Sqrt(A) * shelfAlpha(sinW, A, q)
		b0 = A * ((A + 1) + (A-1)*cosW + sa)
		b1 = -2 * A * ((A - 1) + (A+1)*cosW)
		b2 = A * ((A + 1) + (A-1)*cosW - sa)
		a0 = (A + 1) - (A-1)*cosW + sa
		a1 = 2 * ((A - 1) - (A+1)*cosW)
		a2 = (A + 1) - (A-1)*cosW - sa
	default: // Peak
		b0 = 1 + alpha*A
		b1 = -2 * cosW
		b2 = 1 - alpha*A
		a0 = 1 + alpha/A
		a1 = -2 * cosW
		a2 = 1 - alpha/A
	}

	inv := 1 / a0
	return Coefficients{
		B0: b0 * inv,
		B1: b1 * inv,
		B2: b2 * inv,
		A1: a1 * inv,
		A2: a2 * inv,
	}
}

// shelfAlpha treats Q as the shelf slope parameter S, with S=1 the
// steepest slope that stays monotonic. Values above 1 are capped there.
func shelfAlpha(sinW, A, q float64) float64 {
	s := math.Min(q/DefaultQ*shelfSlopeUnit, shelfSlopeUnit)
	return sinW / 2 * math.Sqrt((A+1/A)*(1/s-1)+2)
}

// Stable reports whether both poles lie strictly inside the unit circle
// (Jury conditions for a second-order denominator).
func (c Coefficients) Stable() bool {
	return math.Abs(c.A2) < 1 && math.Abs(c.A1) < 1+c.A2
}

// Magnitude evaluates |H(e^jw)| at freq Hz.
func (c Coefficients) Magnitude(freq float64, sampleRate int) float64 {
	w := 2 * math.Pi * freq / float64(sampleRate)
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(c.B0, 0) + complex(c.B1, 0)*z1 + complex(c.B2, 0)*z2
	den := 1 + complex(c.A1, 0)*z1 + complex(c.A2, 0)*z2
	return cmplx.Abs(num / den)
}

// Biquad is a Direct Form I section with its own history. Use one per
// channel; history carries over between blocks of the same stream.
type Biquad struct {
	c      Coefficients
	x1, x2 float64
	y1, y2 float64
}

// NewBiquad returns a section configured for band at sampleRate.
func NewBiquad(band Band, sampleRate int) *Biquad {
	return &Biquad{c: Design(band, sampleRate)}
}

// SetCoefficients swaps the transfer function and keeps history, so a
// parameter sweep stays continuous.
func (b *Biquad) SetCoefficients(c Coefficients) { b.c = c }

// Coefficients returns the current coefficient set.
func (b *Biquad) Coefficients() Coefficients { return b.c }

// Process filters one sample.
func (b *Biquad) Process(x float64) float64 {
	y := b.c.B0*x + b.c.B1*b.x1 + b.c.B2*b.x2 - b.c.A1*b.y1 - b.c.A2*b.y2
	y = FlushDenormal(y)
	b.x2 = b.x1
	b.x1 = x
	b.y2 = b.y1
	b.y1 = y
	return y
}

// Reset zeroes the history without touching the coefficients.
func (b *Biquad) Reset() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}

// History returns x1, x2, y1, y2.
func (b *Biquad) History() (x1, x2, y1, y2 float64) {
	return b.x1, b.x2, b.y1, b.y2
}
