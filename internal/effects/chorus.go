// SPDX-License-Identifier: MIT
package effects

import (
	"math"
	"slices"

	"audiofx/internal/dsp"
)

const (
	maxChorusVoices = 8
	chorusSweepMs   = 8.0 // delay excursion at depth 1
)

const (
	chorusRate = iota
	chorusDepth
	chorusDelay
	chorusFeedback
	chorusWet
	chorusDry
	chorusVoices
	chorusWidth
)

var chorusSpecs = []ParamSpec{
	chorusRate:     {Name: "rateHz", Min: 0.05, Max: 10, Default: 1.5, Unit: "Hz"},
	chorusDepth:    {Name: "depth", Min: 0, Max: 1, Default: 0.5},
	chorusDelay:    {Name: "delayMs", Min: 1, Max: 50, Default: 20, Unit: "ms"},
	chorusFeedback: {Name: "feedback", Min: 0, Max: dsp.MaxFeedback, Default: 0.2},
	chorusWet:      {Name: "wetLevel", Min: 0, Max: 1, Default: 0.5},
	chorusDry:      {Name: "dryLevel", Min: 0, Max: 1, Default: 0.7},
	chorusVoices:   {Name: "voices", Min: 1, Max: maxChorusVoices, Default: 3, Integer: true},
	chorusWidth:    {Name: "width", Min: 0, Max: 1, Default: 1},
}

// chorusSpecsWith copies chorusSpecs with different defaults.
func chorusSpecsWith(defaults map[string]float64) []ParamSpec {
	specs := slices.Clone(chorusSpecs)
	for i := range specs {
		if v, ok := defaults[specs[i].Name]; ok {
			specs[i].Default = v
		}
	}
	return specs
}

// Chorus mixes several copies of the input, each read from its own delay
// line at a delay swept by a sine LFO. Voices share the LFO phase and are
// spread around the cycle by width; each channel is offset a further
// quarter cycle (times width) for stereo movement.
type Chorus struct {
	base

	lines  [][]*dsp.DelayLine // [channel][voice]
	rate   float64
	phase  float64
	inc    float64
	voices int

	baseSamples  float64
	sweepSamples float64
	voiceOffset  float64
	chanOffset   float64
	feedback     float64
	wet, dry     float64
}

func newChorus(t Type, specs []ParamSpec) *Chorus {
	c := &Chorus{}
	c.init(t, specs, c)
	return c
}

// NewChorus returns a chorus with default parameters.
func NewChorus() *Chorus {
	c := newChorus(TypeChorus, chorusSpecs)
	c.addPreset("subtle", map[string]float64{
		"rateHz": 0.6, "depth": 0.25, "delayMs": 15, "feedback": 0.1, "wetLevel": 0.3, "voices": 2,
	})
	c.addPreset("lush", map[string]float64{
		"rateHz": 0.9, "depth": 0.8, "delayMs": 25, "feedback": 0.3, "wetLevel": 0.6, "voices": 6,
	})
	return c
}

// NewFlanger returns a single voice chorus with a short, resonant delay.
func NewFlanger() *Chorus {
	return newChorus(TypeFlanger, chorusSpecsWith(map[string]float64{
		"rateHz": 0.25, "depth": 0.7, "delayMs": 1, "feedback": 0.6,
		"wetLevel": 0.5, "dryLevel": 0.5, "voices": 1, "width": 0,
	}))
}

// NewVibrato returns a fully wet single voice chorus, which leaves only the
// pitch modulation.
func NewVibrato() *Chorus {
	return newChorus(TypeVibrato, chorusSpecsWith(map[string]float64{
		"rateHz": 5, "depth": 0.3, "delayMs": 5, "feedback": 0,
		"wetLevel": 1, "dryLevel": 0, "voices": 1, "width": 0,
	}))
}

func (c *Chorus) configure(channels, sampleRate int) {
	c.rate = float64(sampleRate)
	maxMs := chorusSpecs[chorusDelay].Max + chorusSweepMs + 1
	c.lines = make([][]*dsp.DelayLine, channels)
	for ch := range c.lines {
		c.lines[ch] = make([]*dsp.DelayLine, maxChorusVoices)
		for v := range c.lines[ch] {
			c.lines[ch][v] = dsp.NewDelayLine(maxMs, sampleRate)
		}
	}
	c.phase = 0
}

func (c *Chorus) update() {
	c.voices = int(c.v(chorusVoices))
	c.inc = 2 * math.Pi * c.v(chorusRate) / c.rate
	c.baseSamples = c.v(chorusDelay) * c.rate / 1000
	c.sweepSamples = c.v(chorusDepth) * chorusSweepMs * c.rate / 1000
	width := c.v(chorusWidth)
	c.voiceOffset = width * 2 * math.Pi / float64(c.voices)
	c.chanOffset = width * math.Pi / 2
	c.feedback = c.v(chorusFeedback)
	c.wet = c.v(chorusWet)
	c.dry = c.v(chorusDry)
}

func (c *Chorus) process(buf []float32, channels int) {
	n := frames(buf, channels)
	norm := 1 / float64(c.voices)
	for f := range n {
		frame := buf[f*channels : (f+1)*channels]
		for ch := range frame {
			x := float64(frame[ch])
			var sum float64
			for v := range c.voices {
				l := c.lines[ch][v]
				ph := c.phase + c.voiceOffset*float64(v) + c.chanOffset*float64(ch)
				d := c.baseSamples + c.sweepSamples*(1+math.Sin(ph))/2
				y := l.ReadFractional(d)
				l.Write(dsp.FlushDenormal(x + y*c.feedback))
				sum += y
			}
			frame[ch] = float32(x*c.dry + sum*norm*c.wet)
		}
		c.phase += c.inc
		if c.phase >= 2*math.Pi {
			c.phase -= 2 * math.Pi
		}
	}
}

func (c *Chorus) reset() {
	for _, voices := range c.lines {
		for _, l := range voices {
			l.Reset()
		}
	}
	c.phase = 0
}
