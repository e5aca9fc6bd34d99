// SPDX-License-Identifier: MIT
package effects

import (
	"math"
	"sync/atomic"

	"audiofx/internal/dsp"
)

// Mode selects the transfer curve of a Dynamics unit.
type Mode int

const (
	ModeCompressor Mode = iota
	ModeLimiter
	ModeGate
	ModeExpander
)

func (m Mode) String() string {
	switch m {
	case ModeCompressor:
		return "compressor"
	case ModeLimiter:
		return "limiter"
	case ModeGate:
		return "gate"
	case ModeExpander:
		return "expander"
	default:
		return "unknown"
	}
}

// Downward reports whether the mode attenuates below the threshold.
func (m Mode) Downward() bool { return m == ModeGate || m == ModeExpander }

const (
	dynFloorDB      = -80.0
	dynMaxLookahead = 20.0 // ms
)

const (
	dynThreshold = iota
	dynRatio
	dynAttack
	dynRelease
	dynKnee
	dynMakeup
	dynLookahead
)

func dynamicsSpecs(m Mode) []ParamSpec {
	specs := []ParamSpec{
		dynThreshold: {Name: "thresholdDb", Min: -80, Max: 0, Default: -20, Unit: "dB"},
		dynRatio:     {Name: "ratio", Min: 1, Max: 100, Default: 4},
		dynAttack:    {Name: "attackMs", Min: 0.05, Max: 200, Default: 5, Unit: "ms"},
		dynRelease:   {Name: "releaseMs", Min: 1, Max: 2000, Default: 100, Unit: "ms"},
		dynKnee:      {Name: "kneeDb", Min: 0, Max: 24, Default: 6, Unit: "dB"},
		dynMakeup:    {Name: "makeupGainDb", Min: -24, Max: 24, Default: 0, Unit: "dB"},
		dynLookahead: {Name: "lookaheadMs", Min: 0, Max: dynMaxLookahead, Default: 0, Unit: "ms"},
	}
	set := func(i int, v float64) { specs[i].Default = v }
	switch m {
	case ModeLimiter:
		set(dynThreshold, -1)
		set(dynRatio, 100)
		set(dynAttack, 0.5)
		set(dynRelease, 50)
		set(dynKnee, 0)
		set(dynLookahead, 5)
	case ModeGate:
		set(dynThreshold, -50)
		set(dynRatio, 10)
		set(dynAttack, 1)
		set(dynRelease, 100)
		set(dynKnee, 6)
	case ModeExpander:
		set(dynThreshold, -40)
		set(dynRatio, 2)
	}
	return specs
}

var modeTypes = [...]Type{
	ModeCompressor: TypeCompressor,
	ModeLimiter:    TypeLimiter,
	ModeGate:       TypeNoiseGate,
	ModeExpander:   TypeExpander,
}

// Dynamics is a feed-forward level processor. A linked peak envelope
// drives a soft-knee gain computer; the gain is applied to a lookahead
// delayed copy of the signal so reduction lands before the transient.
//
// Compressor and limiter reduce gain above the threshold. Gate and
// expander reduce gain below it, with ratio as the expansion factor. Gain
// never drops below -80 dB.
type Dynamics struct {
	base
	mode Mode

	lookahead []*dsp.DelayLine
	rate      int

	env           float64
	attackCoeff   float64
	releaseCoeff  float64
	threshold     float64
	ratio         float64
	knee          float64
	makeup        float64
	lookSamples   float64
	reductionBits atomic.Uint64 // float64 dB, read by meters
}

// NewDynamics returns a processor with the defaults of mode.
func NewDynamics(m Mode) *Dynamics {
	if m < ModeCompressor || m > ModeExpander {
		m = ModeCompressor
	}
	d := &Dynamics{mode: m}
	d.init(modeTypes[m], dynamicsSpecs(m), d)
	switch m {
	case ModeCompressor:
		d.addPreset("vocal", map[string]float64{
			"thresholdDb": -18, "ratio": 3, "attackMs": 5, "releaseMs": 120, "kneeDb": 6, "makeupGainDb": 4,
		})
		d.addPreset("drums", map[string]float64{
			"thresholdDb": -12, "ratio": 4, "attackMs": 1, "releaseMs": 80, "kneeDb": 3, "makeupGainDb": 3,
		})
		d.addPreset("master", map[string]float64{
			"thresholdDb": -6, "ratio": 2, "attackMs": 10, "releaseMs": 200, "kneeDb": 6, "makeupGainDb": 1,
		})
	case ModeLimiter:
		d.addPreset("brickwall", map[string]float64{
			"thresholdDb": -0.3, "ratio": 100, "attackMs": 0.05, "releaseMs": 30, "lookaheadMs": 5,
		})
	case ModeGate:
		d.addPreset("hard", map[string]float64{
			"thresholdDb": -45, "ratio": 100, "attackMs": 0.5, "releaseMs": 60, "kneeDb": 0,
		})
	}
	return d
}

// NewCompressor returns a Dynamics unit in compressor mode.
func NewCompressor() *Dynamics { return NewDynamics(ModeCompressor) }

// NewLimiter returns a Dynamics unit in limiter mode.
func NewLimiter() *Dynamics { return NewDynamics(ModeLimiter) }

// Mode returns the transfer curve.
func (d *Dynamics) Mode() Mode { return d.mode }

// GainReductionDB returns the reduction applied to the most recent
// sample, as a positive number of dB.
func (d *Dynamics) GainReductionDB() float64 {
	return math.Float64frombits(d.reductionBits.Load())
}

func (d *Dynamics) configure(channels, sampleRate int) {
	d.rate = sampleRate
	d.lookahead = make([]*dsp.DelayLine, channels)
	for ch := range d.lookahead {
		d.lookahead[ch] = dsp.NewDelayLine(dynMaxLookahead, sampleRate)
	}
	d.env = 0
}

func (d *Dynamics) update() {
	d.threshold = d.v(dynThreshold)
	d.ratio = d.v(dynRatio)
	d.knee = d.v(dynKnee)
	d.makeup = d.v(dynMakeup)
	d.attackCoeff = dsp.SmoothingCoeff(d.v(dynAttack), d.rate)
	d.releaseCoeff = dsp.SmoothingCoeff(d.v(dynRelease), d.rate)
	d.lookSamples = d.v(dynLookahead) * float64(d.rate) / 1000
}

// gainDB is the static curve: the gain in dB (<= 0) applied at input
// level x dB.
func (d *Dynamics) gainDB(x float64) float64 {
	return curveGain(d.mode, x, d.threshold, d.ratio, d.knee)
}

func curveGain(m Mode, x, t, r, w float64) float64 {
	over := x - t
	var y float64
	if m.Downward() {
		switch {
		case 2*over > w:
			y = x
		case w > 0 && 2*math.Abs(over) <= w:
			k := over - w/2
			y = x - (r-1)*k*k/(2*w)
		default:
			y = t + over*r
		}
	} else {
		switch {
		case 2*over < -w:
			y = x
		case w > 0 && 2*math.Abs(over) <= w:
			k := over + w/2
			y = x + (1/r-1)*k*k/(2*w)
		default:
			y = t + over/r
		}
	}
	g := y - x
	if g < dynFloorDB {
		g = dynFloorDB
	}
	if g > 0 {
		g = 0
	}
	return g
}

func (d *Dynamics) process(buf []float32, channels int) {
	n := frames(buf, channels)
	look := d.lookSamples > 0
	var g float64
	for f := range n {
		frame := buf[f*channels : (f+1)*channels]

		var peak float64
		for _, s := range frame {
			peak = max(peak, math.Abs(float64(s)))
		}
		coeff := d.releaseCoeff
		if peak > d.env {
			coeff = d.attackCoeff
		}
		d.env = dsp.FlushDenormal(coeff*d.env + (1-coeff)*peak)

		g = d.gainDB(dsp.LinearToDB(d.env))
		lin := dsp.DBToLinear(g + d.makeup)

		for ch := range frame {
			x := float64(frame[ch])
			if look {
				l := d.lookahead[ch]
				l.Write(x)
				x = l.ReadFractional(d.lookSamples + 1)
			}
			frame[ch] = float32(x * lin)
		}
	}
	d.reductionBits.Store(math.Float64bits(-g))
}

func (d *Dynamics) reset() {
	for _, l := range d.lookahead {
		l.Reset()
	}
	d.env = 0
	d.reductionBits.Store(0)
}
