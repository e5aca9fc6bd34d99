// SPDX-License-Identifier: MIT
package effects

import (
	"math"

	"audiofx/internal/dsp"
)

const (
	tremRate = iota
	tremDepth
)

var tremoloSpecs = []ParamSpec{
	tremRate:  {Name: "rateHz", Min: 0.1, Max: 20, Default: 5, Unit: "Hz"},
	tremDepth: {Name: "depth", Min: 0, Max: 1, Default: 0.5},
}

// Tremolo modulates amplitude with a sine LFO between 1-depth and 1.
type Tremolo struct {
	base

	rate  float64
	phase float64
	inc   float64
	depth float64
}

// NewTremolo returns a tremolo with default parameters.
func NewTremolo() *Tremolo {
	t := &Tremolo{}
	t.init(TypeTremolo, tremoloSpecs, t)
	t.addPreset("slow", map[string]float64{"rateHz": 1.5, "depth": 0.4})
	t.addPreset("helicopter", map[string]float64{"rateHz": 14, "depth": 1})
	return t
}

func (t *Tremolo) configure(_, sampleRate int) {
	t.rate = float64(sampleRate)
	t.phase = 0
}

func (t *Tremolo) update() {
	t.inc = 2 * math.Pi * t.v(tremRate) / t.rate
	t.depth = t.v(tremDepth)
}

func (t *Tremolo) process(buf []float32, channels int) {
	n := frames(buf, channels)
	for f := range n {
		g := 1 - t.depth*(1-math.Sin(t.phase))/2
		for ch := range channels {
			i := f*channels + ch
			buf[i] = float32(float64(buf[i]) * g)
		}
		t.phase += t.inc
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}

func (t *Tremolo) reset() { t.phase = 0 }

const maxPhaserStages = 12

const (
	phRate = iota
	phDepth
	phFeedback
	phStages
	phMix
	phCentre
)

var phaserSpecs = []ParamSpec{
	phRate:     {Name: "rateHz", Min: 0.05, Max: 5, Default: 0.5, Unit: "Hz"},
	phDepth:    {Name: "depth", Min: 0, Max: 1, Default: 0.7},
	phFeedback: {Name: "feedback", Min: 0, Max: 0.9, Default: 0.5},
	phStages:   {Name: "stages", Min: 2, Max: maxPhaserStages, Default: 4, Integer: true},
	phMix:      {Name: "mix", Min: 0, Max: 1, Default: 0.5},
	phCentre:   {Name: "centerHz", Min: 200, Max: 4000, Default: 1000, Unit: "Hz"},
}

type allpass1 struct{ x1, y1 float64 }

func (a *allpass1) process(x, coeff float64) float64 {
	y := coeff*x + a.x1 - coeff*a.y1
	a.x1 = x
	a.y1 = dsp.FlushDenormal(y)
	return a.y1
}

// Phaser sweeps a cascade of first-order all-passes around a centre
// frequency (two octaves either side at depth 1) and mixes the result
// with the input.
type Phaser struct {
	base

	rate   float64
	phase  float64
	inc    float64
	stages [][maxPhaserStages]allpass1 // [channel]
	last   []float64

	n        int
	depth    float64
	feedback float64
	mix      float64
	centre   float64
}

// NewPhaser returns a phaser with default parameters.
func NewPhaser() *Phaser {
	p := &Phaser{}
	p.init(TypePhaser, phaserSpecs, p)
	p.addPreset("jet", map[string]float64{"rateHz": 0.2, "depth": 1, "feedback": 0.8, "stages": 8, "mix": 0.5})
	return p
}

func (p *Phaser) configure(channels, sampleRate int) {
	p.rate = float64(sampleRate)
	p.stages = make([][maxPhaserStages]allpass1, channels)
	p.last = make([]float64, channels)
	p.phase = 0
}

func (p *Phaser) update() {
	p.inc = 2 * math.Pi * p.v(phRate) / p.rate
	p.depth = p.v(phDepth)
	p.feedback = p.v(phFeedback)
	p.n = int(p.v(phStages))
	p.mix = p.v(phMix)
	p.centre = p.v(phCentre)
}

func (p *Phaser) process(buf []float32, channels int) {
	n := frames(buf, channels)
	for f := range n {
		fc := p.centre * math.Exp2(2*p.depth*math.Sin(p.phase))
		fc = dsp.Clamp(fc, 20, 0.45*p.rate)
		t := math.Tan(math.Pi * fc / p.rate)
		coeff := (t - 1) / (t + 1)

		for ch := range channels {
			i := f*channels + ch
			x := float64(buf[i])
			y := x + p.last[ch]*p.feedback
			st := &p.stages[ch]
			for s := range p.n {
				y = st[s].process(y, coeff)
			}
			p.last[ch] = y
			buf[i] = float32(x*(1-p.mix) + y*p.mix)
		}
		p.phase += p.inc
		if p.phase >= 2*math.Pi {
			p.phase -= 2 * math.Pi
		}
	}
}

func (p *Phaser) reset() {
	clear(p.stages)
	clear(p.last)
	p.phase = 0
}
