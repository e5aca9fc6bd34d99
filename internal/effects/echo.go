// SPDX-License-Identifier: MIT
package effects

import (
	"math"

	"audiofx/internal/dsp"
)

const maxEchoes = 8

const (
	echoDelay = iota
	echoFeedback
	echoWet
	echoDry
	echoCount
	echoSpread
)

var echoSpecs = []ParamSpec{
	echoDelay:    {Name: "delayTimeMs", Min: 1, Max: 1000, Default: 250, Unit: "ms"},
	echoFeedback: {Name: "feedback", Min: 0, Max: dsp.MaxFeedback, Default: 0.5},
	echoWet:      {Name: "wetLevel", Min: 0, Max: 1, Default: 1},
	echoDry:      {Name: "dryLevel", Min: 0, Max: 1, Default: 1},
	echoCount:    {Name: "numEchoes", Min: 1, Max: maxEchoes, Default: 3, Integer: true},
	echoSpread:   {Name: "echoSpread", Min: 0.5, Max: 2, Default: 1},
}

// Echo is a multi-tap delay. Tap k (1-based) reads the input delayed by
// delayTime*k*spread with gain feedback^k. Taps read the dry input, so
// there is no recirculation and the output is exactly numEchoes repeats.
type Echo struct {
	base

	lines []*dsp.DelayLine
	rate  int

	taps     int
	tapDelay [maxEchoes]int
	tapGain  [maxEchoes]float64
	wet, dry float64
}

// NewEcho returns an echo with default parameters.
func NewEcho() *Echo {
	e := &Echo{}
	e.init(TypeEcho, echoSpecs, e)
	e.addPreset("slapback", map[string]float64{
		"delayTimeMs": 90, "feedback": 0.35, "numEchoes": 1, "wetLevel": 0.6,
	})
	e.addPreset("canyon", map[string]float64{
		"delayTimeMs": 600, "feedback": 0.6, "numEchoes": 6, "echoSpread": 1.2, "wetLevel": 0.7,
	})
	e.addPreset("ping", map[string]float64{
		"delayTimeMs": 125, "feedback": 0.7, "numEchoes": 8, "echoSpread": 0.75, "wetLevel": 0.5,
	})
	return e
}

func (e *Echo) configure(channels, sampleRate int) {
	e.rate = sampleRate
	// Sized for the default settings; update grows the lines on demand.
	e.lines = make([]*dsp.DelayLine, channels)
	for ch := range e.lines {
		e.lines[ch] = dsp.NewDelayLine(echoSpecs[echoDelay].Default*maxEchoes, sampleRate)
	}
}

func (e *Echo) update() {
	e.taps = int(e.v(echoCount))
	step := e.v(echoDelay) * e.v(echoSpread)
	fb := e.v(echoFeedback)
	longest := 0
	for k := 1; k <= e.taps; k++ {
		d := max(dsp.SamplesFor(step*float64(k), e.rate), 1)
		e.tapDelay[k-1] = d
		e.tapGain[k-1] = math.Pow(fb, float64(k))
		longest = max(longest, d)
	}
	for _, l := range e.lines {
		l.EnsureCapacity(longest)
	}
	e.wet = e.v(echoWet)
	e.dry = e.v(echoDry)
}

func (e *Echo) process(buf []float32, channels int) {
	for i, s := range buf {
		l := e.lines[i%channels]
		var sum float64
		for k := range e.taps {
			sum += l.ReadDelayed(e.tapDelay[k]) * e.tapGain[k]
		}
		x := float64(s)
		l.Write(x)
		buf[i] = float32(x*e.dry + sum*e.wet)
	}
}

func (e *Echo) reset() {
	for _, l := range e.lines {
		l.Reset()
	}
}
