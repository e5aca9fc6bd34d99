// SPDX-License-Identifier: MIT
package effects

import (
	"math"

	"audiofx/internal/dsp"
)

const (
	reverbCombs     = 8
	reverbAllpasses = 4

	reverbInputGain    = 0.015
	reverbWetScale     = 3.0
	reverbStereoSpread = 23
	reverbTuningRate   = 44100.0
	reverbMaxPreDelay  = 500.0 // ms
)

// Freeverb tunings at 44.1 kHz.
var (
	reverbCombTuning    = [reverbCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	reverbAllpassTuning = [reverbAllpasses]int{556, 441, 341, 225}
)

const (
	reverbRoomSize = iota
	reverbDamping
	reverbWet
	reverbDry
	reverbPreDelay
	reverbDecay
)

var reverbSpecs = []ParamSpec{
	reverbRoomSize: {Name: "roomSize", Min: 0, Max: 1, Default: 0.5},
	reverbDamping:  {Name: "damping", Min: 0, Max: 1, Default: 0.5},
	reverbWet:      {Name: "wetLevel", Min: 0, Max: 1, Default: 0.3},
	reverbDry:      {Name: "dryLevel", Min: 0, Max: 1, Default: 0.7},
	reverbPreDelay: {Name: "preDelayMs", Min: 0, Max: reverbMaxPreDelay, Default: 20, Unit: "ms"},
	reverbDecay:    {Name: "decayTimeSec", Min: 0.1, Max: 10, Default: 2, Unit: "s"},
}

type reverbComb struct {
	line     *dsp.DelayLine
	length   int
	feedback float64
	store    float64 // damping lowpass state
}

func (c *reverbComb) process(x, damp float64) float64 {
	out := c.line.ReadDelayed(c.length)
	c.store = dsp.FlushDenormal(out*(1-damp) + c.store*damp)
	c.line.Write(x + c.store*c.feedback)
	return out
}

type reverbAllpass struct {
	line   *dsp.DelayLine
	length int
}

func (a *reverbAllpass) process(x float64) float64 {
	buffered := a.line.ReadDelayed(a.length)
	a.line.Write(dsp.FlushDenormal(x + buffered*0.5))
	return buffered - x
}

type reverbTank struct {
	combs     [reverbCombs]reverbComb
	allpasses [reverbAllpasses]reverbAllpass
}

// Reverb is a Schroeder/Freeverb network: eight damped combs in parallel
// followed by four all-passes, fed from a mono pre-delayed send. Each
// channel runs its own tank with tunings offset by 23 samples per channel.
type Reverb struct {
	base

	preDelay *dsp.DelayLine
	tanks    []reverbTank
	rate     int

	damp, wet, dry float64
	preSamples     int
}

// NewReverb returns a reverb with default parameters.
func NewReverb() *Reverb {
	r := &Reverb{}
	r.init(TypeReverb, reverbSpecs, r)
	r.addPreset("small room", map[string]float64{
		"roomSize": 0.25, "damping": 0.6, "wetLevel": 0.2, "dryLevel": 0.8,
		"preDelayMs": 5, "decayTimeSec": 0.8,
	})
	r.addPreset("hall", map[string]float64{
		"roomSize": 0.75, "damping": 0.4, "wetLevel": 0.35, "dryLevel": 0.65,
		"preDelayMs": 30, "decayTimeSec": 3.5,
	})
	r.addPreset("cathedral", map[string]float64{
		"roomSize": 1, "damping": 0.25, "wetLevel": 0.45, "dryLevel": 0.55,
		"preDelayMs": 60, "decayTimeSec": 7,
	})
	return r
}

// Capacity covers the largest room so roomSize changes never reallocate.
func (r *Reverb) configure(channels, sampleRate int) {
	r.rate = sampleRate
	scale := float64(sampleRate) / reverbTuningRate
	r.preDelay = dsp.NewDelayLine(reverbMaxPreDelay, sampleRate)
	r.tanks = make([]reverbTank, channels)
	for ch := range r.tanks {
		spread := reverbStereoSpread * ch
		t := &r.tanks[ch]
		for i := range t.combs {
			maxLen := int(math.Ceil(float64(reverbCombTuning[i]+spread)*scale*1.5)) + 1
			t.combs[i].line = dsp.NewDelayLineSamples(maxLen)
		}
		for i := range t.allpasses {
			n := max(int(math.Round(float64(reverbAllpassTuning[i]+spread)*scale)), 1)
			t.allpasses[i] = reverbAllpass{line: dsp.NewDelayLineSamples(n), length: n}
		}
	}
}

func (r *Reverb) update() {
	scale := float64(r.rate) / reverbTuningRate * (0.5 + r.v(reverbRoomSize))
	decay := r.v(reverbDecay)
	for ch := range r.tanks {
		spread := reverbStereoSpread * ch
		t := &r.tanks[ch]
		for i := range t.combs {
			c := &t.combs[i]
			c.length = max(int(math.Round(float64(reverbCombTuning[i]+spread)*scale)), 1)
			lenSec := float64(c.length) / float64(r.rate)
			c.feedback = dsp.ClampFeedback(math.Pow(10, -3*lenSec/decay))
		}
	}
	r.damp = r.v(reverbDamping)
	r.wet = r.v(reverbWet) * reverbWetScale
	r.dry = r.v(reverbDry)
	r.preSamples = dsp.SamplesFor(r.v(reverbPreDelay), r.rate)
}

func (r *Reverb) process(buf []float32, channels int) {
	n := frames(buf, channels)
	for f := range n {
		frame := buf[f*channels : (f+1)*channels]
		var mono float64
		for _, s := range frame {
			mono += float64(s)
		}
		mono = mono / float64(channels) * reverbInputGain

		send := mono
		if r.preSamples > 0 {
			send = r.preDelay.ReadDelayed(r.preSamples)
		}
		r.preDelay.Write(mono)

		for ch := range frame {
			t := &r.tanks[ch]
			var acc float64
			for i := range t.combs {
				acc += t.combs[i].process(send, r.damp)
			}
			for i := range t.allpasses {
				acc = t.allpasses[i].process(acc)
			}
			frame[ch] = float32(float64(frame[ch])*r.dry + acc*r.wet)
		}
	}
}

func (r *Reverb) reset() {
	r.preDelay.Reset()
	for ch := range r.tanks {
		t := &r.tanks[ch]
		for i := range t.combs {
			t.combs[i].line.Reset()
			t.combs[i].store = 0
		}
		for i := range t.allpasses {
			t.allpasses[i].line.Reset()
		}
	}
}
