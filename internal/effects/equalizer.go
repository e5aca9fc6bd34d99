// SPDX-License-Identifier: MIT
package effects

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"audiofx/internal/dsp"
)

const eqOutputGain = 0

var equalizerSpecs = []ParamSpec{
	eqOutputGain: {Name: "outputGainDb", Min: -24, Max: 24, Default: 0, Unit: "dB"},
}

// Per-band parameters, addressed as "band<N>.<field>" with N zero-based.
var bandFieldSpecs = map[string]ParamSpec{
	"frequency": {Name: "frequency", Min: 20, Max: 20000, Default: 1000, Unit: "Hz"},
	"gainDb":    {Name: "gainDb", Min: -24, Max: 24, Default: 0, Unit: "dB"},
	"q":         {Name: "q", Min: 0.1, Max: 18, Default: dsp.DefaultQ},
	"enabled":   {Name: "enabled", Min: 0, Max: 1, Default: 1, Integer: true},
	"type":      {Name: "type", Min: 0, Max: float64(dsp.AllPass), Default: float64(dsp.Peak), Integer: true},
}

// Centre frequencies of the built-in layouts.
var (
	octaveCentres  = []float64{31.25, 62.5, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}
	graphicCentres = []float64{25, 40, 63, 100, 160, 250, 400, 630, 1000, 1600, 2500, 4000, 6300, 10000, 16000}
)

type eqPreset struct {
	bands  []dsp.Band
	output float64
}

// Equalizer cascades one biquad per band per channel in band order.
// Adding, removing or updating a band only rebuilds that band's filters;
// the history of every other band is untouched.
type Equalizer struct {
	base

	bands   []dsp.Band
	filters [][]*dsp.Biquad // [band][channel]
	rate    int
	chans   int
	gain    float64

	eqmu      sync.Mutex
	eqPresets map[string]eqPreset
}

// NewEqualizer returns an equalizer with the standard ten octave bands,
// all flat.
func NewEqualizer() *Equalizer {
	e := &Equalizer{eqPresets: make(map[string]eqPreset)}
	e.init(TypeEqualizer, equalizerSpecs, e)
	e.SetupStandardBands()
	e.eqPresets["default"] = eqPreset{bands: e.Bands()}
	e.addCurve("bass boost", []float64{6, 5, 4, 2, 0, 0, 0, 0, 0, 0})
	e.addCurve("treble boost", []float64{0, 0, 0, 0, 0, 0, 2, 4, 5, 6})
	e.addCurve("vocal", []float64{-4, -3, -1, 0, 2, 4, 4, 2, 0, -1})
	e.addCurve("loudness", []float64{6, 4, 2, 0, -1, -1, 0, 2, 4, 5})
	return e
}

// addCurve stores a preset over the octave layout.
func (e *Equalizer) addCurve(name string, gains []float64) {
	bands := octaveBands()
	for i := range bands {
		bands[i].GainDB = gains[i]
	}
	e.eqPresets[name] = eqPreset{bands: bands}
}

func octaveBands() []dsp.Band {
	bands := make([]dsp.Band, len(octaveCentres))
	for i, f := range octaveCentres {
		t := dsp.Peak
		switch i {
		case 0:
			t = dsp.LowShelf
		case len(octaveCentres) - 1:
			t = dsp.HighShelf
		}
		bands[i] = dsp.Band{Type: t, Frequency: f, Q: 1.41, Enabled: true}
	}
	return bands
}

// SetupStandardBands replaces all bands with a flat ten band octave
// layout: a low shelf, eight peaks and a high shelf.
func (e *Equalizer) SetupStandardBands() {
	e.SetBands(octaveBands())
}

// SetupGraphicEqualizer replaces all bands with fifteen flat 2/3 octave
// peaks.
func (e *Equalizer) SetupGraphicEqualizer() {
	bands := make([]dsp.Band, len(graphicCentres))
	for i, f := range graphicCentres {
		bands[i] = dsp.Band{Type: dsp.Peak, Frequency: f, Q: 2.15, Enabled: true}
	}
	e.SetBands(bands)
}

// SetupParametricEqualizer replaces all bands with a flat five band
// parametric layout.
func (e *Equalizer) SetupParametricEqualizer() {
	e.SetBands([]dsp.Band{
		{Type: dsp.LowShelf, Frequency: 80, Q: dsp.DefaultQ, Enabled: true},
		{Type: dsp.Peak, Frequency: 250, Q: 1, Enabled: true},
		{Type: dsp.Peak, Frequency: 1000, Q: 1, Enabled: true},
		{Type: dsp.Peak, Frequency: 4000, Q: 1, Enabled: true},
		{Type: dsp.HighShelf, Frequency: 10000, Q: dsp.DefaultQ, Enabled: true},
	})
}

func (e *Equalizer) newFilters(b dsp.Band) []*dsp.Biquad {
	fs := make([]*dsp.Biquad, e.chans)
	for ch := range fs {
		fs[ch] = dsp.NewBiquad(b, e.rate)
	}
	return fs
}

// SetBands replaces the whole band list.
func (e *Equalizer) SetBands(bands []dsp.Band) {
	e.mu.Lock()
	e.bands = slices.Clone(bands)
	e.filters = make([][]*dsp.Biquad, len(bands))
	if e.chans > 0 {
		for i, b := range e.bands {
			e.filters[i] = e.newFilters(b)
		}
	}
	n := len(e.bands)
	e.mu.Unlock()
	e.notify("bands", float64(n))
}

// ClearBands removes every band.
func (e *Equalizer) ClearBands() { e.SetBands(nil) }

// AddBand appends a band and returns its index.
func (e *Equalizer) AddBand(b dsp.Band) int {
	e.mu.Lock()
	e.bands = append(e.bands, b)
	var fs []*dsp.Biquad
	if e.chans > 0 {
		fs = e.newFilters(b)
	}
	e.filters = append(e.filters, fs)
	n := len(e.bands)
	e.mu.Unlock()
	e.notify("bands", float64(n))
	return n - 1
}

// RemoveBand deletes band i.
func (e *Equalizer) RemoveBand(i int) error {
	e.mu.Lock()
	if i < 0 || i >= len(e.bands) {
		e.mu.Unlock()
		return fmt.Errorf("%w: band %d of %d", ErrUnknownParameter, i, len(e.bands))
	}
	e.bands = slices.Delete(e.bands, i, i+1)
	e.filters = slices.Delete(e.filters, i, i+1)
	n := len(e.bands)
	e.mu.Unlock()
	e.notify("bands", float64(n))
	return nil
}

// UpdateBand replaces band i and rebuilds its filters with clear history.
func (e *Equalizer) UpdateBand(i int, b dsp.Band) error {
	e.mu.Lock()
	if i < 0 || i >= len(e.bands) {
		e.mu.Unlock()
		return fmt.Errorf("%w: band %d of %d", ErrUnknownParameter, i, len(e.bands))
	}
	e.bands[i] = b
	if e.chans > 0 {
		e.filters[i] = e.newFilters(b)
	}
	e.mu.Unlock()
	e.notify(fmt.Sprintf("band%d", i), b.Frequency)
	return nil
}

// Band returns band i.
func (e *Equalizer) Band(i int) (dsp.Band, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.bands) {
		return dsp.Band{}, fmt.Errorf("%w: band %d of %d", ErrUnknownParameter, i, len(e.bands))
	}
	return e.bands[i], nil
}

// Bands returns a copy of the band list.
func (e *Equalizer) Bands() []dsp.Band {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.bands)
}

// BandCount returns the number of bands.
func (e *Equalizer) BandCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bands)
}

func (e *Equalizer) configure(channels, sampleRate int) {
	e.rate = sampleRate
	e.chans = channels
	for i, b := range e.bands {
		e.filters[i] = e.newFilters(b)
	}
}

func (e *Equalizer) update() {
	e.gain = dsp.DBToLinear(e.v(eqOutputGain))
}

func (e *Equalizer) process(buf []float32, channels int) {
	for i, s := range buf {
		ch := i % channels
		x := float64(s)
		for b := range e.bands {
			if e.bands[b].Enabled {
				x = e.filters[b][ch].Process(x)
			}
		}
		buf[i] = float32(x * e.gain)
	}
}

func (e *Equalizer) reset() {
	for _, fs := range e.filters {
		for _, f := range fs {
			f.Reset()
		}
	}
}

// parseBandParam splits "band<N>.<field>".
func parseBandParam(name string) (int, ParamSpec, bool) {
	rest, ok := strings.CutPrefix(name, "band")
	if !ok {
		return 0, ParamSpec{}, false
	}
	idx, field, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, ParamSpec{}, false
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return 0, ParamSpec{}, false
	}
	spec, ok := bandFieldSpecs[field]
	return n, spec, ok
}

func bandField(b dsp.Band, field string) float64 {
	switch field {
	case "frequency":
		return b.Frequency
	case "gainDb":
		return b.GainDB
	case "q":
		return b.Q
	case "enabled":
		if b.Enabled {
			return 1
		}
		return 0
	default:
		return float64(b.Type)
	}
}

func setBandField(b *dsp.Band, field string, v float64) {
	switch field {
	case "frequency":
		b.Frequency = v
	case "gainDb":
		b.GainDB = v
	case "q":
		b.Q = v
	case "enabled":
		b.Enabled = v >= 0.5
	default:
		b.Type = dsp.FilterType(v)
	}
}

// SetParameter accepts outputGainDb and band<N>.frequency|gainDb|q|enabled|type.
// Band edits keep filter history so sweeps stay continuous.
func (e *Equalizer) SetParameter(name string, value float64) error {
	n, spec, ok := parseBandParam(name)
	if !ok {
		return e.base.SetParameter(name, value)
	}
	if !dsp.IsFinite(value) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidValue, name, value)
	}
	e.mu.Lock()
	if n >= len(e.bands) {
		count := len(e.bands)
		e.mu.Unlock()
		return fmt.Errorf("%w: %s, equalizer has %d bands", ErrUnknownParameter, name, count)
	}
	applied := spec.Clamp(value)
	b := &e.bands[n]
	changed := bandField(*b, spec.Name) != applied
	setBandField(b, spec.Name, applied)
	if changed && e.chans > 0 {
		c := dsp.Design(*b, e.rate)
		for _, f := range e.filters[n] {
			f.SetCoefficients(c)
		}
	}
	e.mu.Unlock()

	if changed {
		e.notify(name, applied)
	}
	if value < spec.Min || value > spec.Max {
		return fmt.Errorf("%w: %s=%g applied as %g", ErrParameterClamped, name, value, applied)
	}
	return nil
}

func (e *Equalizer) Parameter(name string) (float64, error) {
	n, spec, ok := parseBandParam(name)
	if !ok {
		return e.base.Parameter(name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if n >= len(e.bands) {
		return 0, fmt.Errorf("%w: %s, equalizer has %d bands", ErrUnknownParameter, name, len(e.bands))
	}
	return bandField(e.bands[n], spec.Name), nil
}

func (e *Equalizer) Parameters() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.snapshot()
	for i, b := range e.bands {
		for field := range bandFieldSpecs {
			m[fmt.Sprintf("band%d.%s", i, field)] = bandField(b, field)
		}
	}
	return m
}

// ParameterSpecs lists outputGainDb followed by the fields of every
// current band.
func (e *Equalizer) ParameterSpecs() []ParamSpec {
	specs := e.base.ParameterSpecs()
	fields := slices.Sorted(maps.Keys(bandFieldSpecs))
	for i := range e.BandCount() {
		for _, field := range fields {
			s := bandFieldSpecs[field]
			s.Name = fmt.Sprintf("band%d.%s", i, field)
			specs = append(specs, s)
		}
	}
	return specs
}

// SavePreset stores the band layout and output gain.
func (e *Equalizer) SavePreset(name string) {
	bands := e.Bands()
	gain, _ := e.base.Parameter("outputGainDb")
	e.eqmu.Lock()
	e.eqPresets[name] = eqPreset{bands: bands, output: gain}
	e.eqmu.Unlock()
}

// LoadPreset replaces the band layout and output gain.
func (e *Equalizer) LoadPreset(name string) error {
	e.eqmu.Lock()
	p, ok := e.eqPresets[name]
	e.eqmu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q for %s", ErrUnknownPreset, name, e.typ)
	}
	e.SetBands(p.bands)
	return e.base.SetParameter("outputGainDb", p.output)
}

func (e *Equalizer) PresetNames() []string {
	e.eqmu.Lock()
	defer e.eqmu.Unlock()
	return slices.Sorted(maps.Keys(e.eqPresets))
}
