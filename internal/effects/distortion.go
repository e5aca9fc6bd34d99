// SPDX-License-Identifier: MIT
package effects

import (
	"math"

	"audiofx/internal/dsp"
)

const (
	distDrive = iota
	distMix
	distOutput
)

var distortionSpecs = []ParamSpec{
	distDrive:  {Name: "driveDb", Min: 0, Max: 40, Default: 12, Unit: "dB"},
	distMix:    {Name: "mix", Min: 0, Max: 1, Default: 1},
	distOutput: {Name: "outputDb", Min: -24, Max: 12, Default: -6, Unit: "dB"},
}

// Distortion is a memoryless tanh waveshaper.
type Distortion struct {
	base

	drive, mix, out float64
}

// NewDistortion returns a distortion with default parameters.
func NewDistortion() *Distortion {
	d := &Distortion{}
	d.init(TypeDistortion, distortionSpecs, d)
	d.addPreset("overdrive", map[string]float64{"driveDb": 8, "mix": 0.8, "outputDb": -3})
	d.addPreset("fuzz", map[string]float64{"driveDb": 36, "mix": 1, "outputDb": -12})
	return d
}

func (d *Distortion) configure(int, int) {}

func (d *Distortion) update() {
	d.drive = dsp.DBToLinear(d.v(distDrive))
	d.mix = d.v(distMix)
	d.out = dsp.DBToLinear(d.v(distOutput))
}

func (d *Distortion) process(buf []float32, _ int) {
	for i, s := range buf {
		x := float64(s)
		y := math.Tanh(x * d.drive)
		buf[i] = float32((x*(1-d.mix) + y*d.mix) * d.out)
	}
}

func (d *Distortion) reset() {}

const (
	crushBits = iota
	crushDownsample
	crushMix
)

var bitCrusherSpecs = []ParamSpec{
	crushBits:       {Name: "bits", Min: 1, Max: 24, Default: 8, Integer: true},
	crushDownsample: {Name: "downsample", Min: 1, Max: 32, Default: 1, Integer: true},
	crushMix:        {Name: "mix", Min: 0, Max: 1, Default: 1},
}

// BitCrusher quantises to a reduced bit depth and holds each sample for
// downsample frames.
type BitCrusher struct {
	base

	held    []float64
	counter int

	levels float64
	hold   int
	mix    float64
}

// NewBitCrusher returns a bit crusher with default parameters.
func NewBitCrusher() *BitCrusher {
	b := &BitCrusher{}
	b.init(TypeBitCrusher, bitCrusherSpecs, b)
	b.addPreset("8-bit console", map[string]float64{"bits": 8, "downsample": 4})
	b.addPreset("lo-fi", map[string]float64{"bits": 12, "downsample": 2, "mix": 0.6})
	return b
}

func (b *BitCrusher) configure(channels, _ int) {
	b.held = make([]float64, channels)
	b.counter = 0
}

func (b *BitCrusher) update() {
	b.levels = math.Exp2(b.v(crushBits) - 1)
	b.hold = int(b.v(crushDownsample))
	b.mix = b.v(crushMix)
}

func (b *BitCrusher) process(buf []float32, channels int) {
	n := frames(buf, channels)
	for f := range n {
		sample := b.counter == 0
		b.counter++
		if b.counter >= b.hold {
			b.counter = 0
		}
		for ch := range channels {
			i := f*channels + ch
			x := float64(buf[i])
			if sample {
				b.held[ch] = math.Round(x*b.levels) / b.levels
			}
			buf[i] = float32(x*(1-b.mix) + b.held[ch]*b.mix)
		}
	}
}

func (b *BitCrusher) reset() {
	clear(b.held)
	b.counter = 0
}
