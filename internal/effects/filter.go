// SPDX-License-Identifier: MIT
package effects

import "audiofx/internal/dsp"

const (
	filtFrequency = iota
	filtQ
)

var filterSpecs = []ParamSpec{
	filtFrequency: {Name: "frequency", Min: 20, Max: 20000, Default: 1000, Unit: "Hz"},
	filtQ:         {Name: "q", Min: 0.1, Max: 20, Default: dsp.DefaultQ},
}

var filterShapes = map[Type]dsp.FilterType{
	TypeLowPass:  dsp.LowPass,
	TypeHighPass: dsp.HighPass,
	TypeBandPass: dsp.BandPass,
	TypeNotch:    dsp.Notch,
}

// Filter is a single biquad section per channel.
type Filter struct {
	base

	shape   dsp.FilterType
	rate    int
	filters []*dsp.Biquad
}

// NewFilter returns a filter for one of TypeLowPass, TypeHighPass,
// TypeBandPass or TypeNotch. Any other type yields a low-pass.
func NewFilter(t Type) *Filter {
	shape, ok := filterShapes[t]
	if !ok {
		t, shape = TypeLowPass, dsp.LowPass
	}
	f := &Filter{shape: shape}
	f.init(t, filterSpecs, f)
	switch shape {
	case dsp.LowPass:
		f.addPreset("telephone", map[string]float64{"frequency": 3400, "q": 0.9})
	case dsp.HighPass:
		f.addPreset("rumble", map[string]float64{"frequency": 40})
	case dsp.Notch:
		f.addPreset("mains hum", map[string]float64{"frequency": 50, "q": 10})
	}
	return f
}

func (f *Filter) configure(channels, sampleRate int) {
	f.rate = sampleRate
	f.filters = make([]*dsp.Biquad, channels)
	for ch := range f.filters {
		f.filters[ch] = &dsp.Biquad{}
	}
}

// update keeps history so frequency sweeps do not click.
func (f *Filter) update() {
	c := dsp.Design(dsp.Band{Type: f.shape, Frequency: f.v(filtFrequency), Q: f.v(filtQ)}, f.rate)
	for _, bq := range f.filters {
		bq.SetCoefficients(c)
	}
}

func (f *Filter) process(buf []float32, channels int) {
	for i, s := range buf {
		buf[i] = float32(f.filters[i%channels].Process(float64(s)))
	}
}

func (f *Filter) reset() {
	for _, bq := range f.filters {
		bq.Reset()
	}
}
