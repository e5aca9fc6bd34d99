// SPDX-License-Identifier: MIT

// Package effects implements the DSP units that make up a processing chain.
//
// Every unit works in place on an interleaved []float32 block and keeps its
// own delay/filter state between calls. Parameters are set by name; a new
// value is stored immediately but only reaches the signal path at the start
// of the next block, because Process holds the unit's lock for the whole
// block.
package effects

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"audiofx/internal/dsp"
)

var (
	// ErrUnknownParameter is returned for a name the unit does not declare.
	// The call is a no-op.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrParameterClamped reports that the value was outside the declared
	// range. The clamped value has been applied.
	ErrParameterClamped = errors.New("parameter clamped")

	// ErrInvalidValue rejects NaN and infinite parameter values.
	ErrInvalidValue = errors.New("invalid parameter value")

	// ErrConfigMismatch flags a block whose layout cannot be processed, or
	// a format change that forced a full reset.
	ErrConfigMismatch = errors.New("config mismatch")

	// ErrNumericalInstability flags a unit that produced NaN or Inf.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrUnknownPreset is returned by LoadPreset for an unsaved name.
	ErrUnknownPreset = errors.New("unknown preset")
)

// ParamSpec declares one named parameter.
type ParamSpec struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
	Unit    string
	Integer bool // rounded to the nearest whole number
}

// Clamp limits v to the declared range, rounding integer parameters.
func (p ParamSpec) Clamp(v float64) float64 {
	v = dsp.Clamp(v, p.Min, p.Max)
	if p.Integer {
		v = math.Round(v)
	}
	return v
}

// ChangeFunc observes parameter changes. Enable toggles are reported under
// the name "enabled" with 1 or 0.
type ChangeFunc func(name string, value float64)

// Effect is a unit that can sit in a chain.
type Effect interface {
	Type() Type
	Name() string

	// Process mutates buf in place. buf is interleaved with the given
	// channel count; len(buf) must be a multiple of channels.
	Process(buf []float32, channels, sampleRate int) error

	// Reset clears delay and filter state but keeps parameters.
	Reset()

	SetParameter(name string, value float64) error
	Parameter(name string) (float64, error)
	Parameters() map[string]float64
	ParameterSpecs() []ParamSpec

	Enabled() bool
	SetEnabled(enabled bool)
	OnChange(fn ChangeFunc)

	SavePreset(name string)
	LoadPreset(name string) error
	PresetNames() []string
}

// kernel is the signal path of a unit. All methods run with the unit's
// lock held.
type kernel interface {
	// configure allocates state for a stream format. State starts silent.
	configure(channels, sampleRate int)
	// update re-derives coefficients from the current parameter values.
	update()
	process(buf []float32, channels int)
	reset()
}

// base carries the parameter table, enable flag, observers and presets
// shared by every unit, and drives the kernel.
type base struct {
	mu     sync.Mutex
	typ    Type
	specs  []ParamSpec
	index  map[string]int
	values []float64
	dirty  bool
	k      kernel

	channels   int
	sampleRate int

	enabled atomic.Bool

	lmu       sync.Mutex
	listeners []ChangeFunc

	pmu     sync.Mutex
	presets map[string]map[string]float64
}

func (b *base) init(t Type, specs []ParamSpec, k kernel) {
	b.typ = t
	b.specs = specs
	b.k = k
	b.index = make(map[string]int, len(specs))
	b.values = make([]float64, len(specs))
	for i, s := range specs {
		b.index[s.Name] = i
		b.values[i] = s.Default
	}
	b.dirty = true
	b.enabled.Store(true)
	b.presets = map[string]map[string]float64{"default": b.snapshot()}
}

func (b *base) Type() Type   { return b.typ }
func (b *base) Name() string { return b.typ.DisplayName() }

// v returns parameter i. Callers hold b.mu.
func (b *base) v(i int) float64 { return b.values[i] }

// checkBlock validates the layout of a block.
func checkBlock(buf []float32, channels, sampleRate int) error {
	if channels <= 0 || sampleRate <= 0 {
		return fmt.Errorf("%w: %d channels at %d Hz", ErrConfigMismatch, channels, sampleRate)
	}
	if len(buf)%channels != 0 {
		return fmt.Errorf("%w: block of %d samples is not a multiple of %d channels",
			ErrConfigMismatch, len(buf), channels)
	}
	return nil
}

// Process runs one block. A format different from the previous block
// rebuilds all state before processing.
func (b *base) Process(buf []float32, channels, sampleRate int) error {
	if err := checkBlock(buf, channels, sampleRate); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if channels != b.channels || sampleRate != b.sampleRate {
		b.channels = channels
		b.sampleRate = sampleRate
		b.k.configure(channels, sampleRate)
		b.dirty = true
	}
	if b.dirty {
		b.k.update()
		b.dirty = false
	}
	if len(buf) == 0 {
		return nil
	}
	b.k.process(buf, channels)
	return nil
}

func (b *base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels == 0 {
		return
	}
	b.k.reset()
}

func (b *base) SetParameter(name string, value float64) error {
	if !dsp.IsFinite(value) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidValue, name, value)
	}
	b.mu.Lock()
	i, ok := b.index[name]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParameter, b.typ, name)
	}
	applied, changed, err := b.store(i, value)
	b.mu.Unlock()

	if changed {
		b.notify(name, applied)
	}
	return err
}

// store clamps and writes parameter i. Callers hold b.mu and notify
// observers after releasing it.
func (b *base) store(i int, value float64) (applied float64, changed bool, err error) {
	spec := b.specs[i]
	applied = spec.Clamp(value)
	changed = b.values[i] != applied
	b.values[i] = applied
	b.dirty = b.dirty || changed
	if value < spec.Min || value > spec.Max {
		err = fmt.Errorf("%w: %s=%g applied as %g", ErrParameterClamped, spec.Name, value, applied)
	}
	return applied, changed, err
}

func (b *base) Parameter(name string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParameter, b.typ, name)
	}
	return b.values[i], nil
}

func (b *base) Parameters() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// snapshot copies the parameter values. Callers hold b.mu or own b.
func (b *base) snapshot() map[string]float64 {
	m := make(map[string]float64, len(b.specs))
	for i, s := range b.specs {
		m[s.Name] = b.values[i]
	}
	return m
}

func (b *base) ParameterSpecs() []ParamSpec {
	return slices.Clone(b.specs)
}

func (b *base) Enabled() bool { return b.enabled.Load() }

func (b *base) SetEnabled(enabled bool) {
	if b.enabled.Swap(enabled) == enabled {
		return
	}
	v := 0.0
	if enabled {
		v = 1
	}
	b.notify("enabled", v)
}

func (b *base) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	b.lmu.Lock()
	b.listeners = append(b.listeners, fn)
	b.lmu.Unlock()
}

func (b *base) notify(name string, value float64) {
	b.lmu.Lock()
	ls := slices.Clone(b.listeners)
	b.lmu.Unlock()
	for _, fn := range ls {
		fn(name, value)
	}
}

// SavePreset stores the current parameter values under name, replacing
// any preset with the same name.
func (b *base) SavePreset(name string) {
	values := b.Parameters()
	b.pmu.Lock()
	b.presets[name] = values
	b.pmu.Unlock()
}

// LoadPreset applies a stored preset. Values are applied one by one, so
// observers see a change event per parameter that actually moved.
func (b *base) LoadPreset(name string) error {
	b.pmu.Lock()
	p, ok := b.presets[name]
	b.pmu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q for %s", ErrUnknownPreset, name, b.typ)
	}
	return b.applyValues(p)
}

func (b *base) applyValues(values map[string]float64) error {
	var errs []error
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if err := b.SetParameter(k, values[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *base) PresetNames() []string {
	b.pmu.Lock()
	defer b.pmu.Unlock()
	return slices.Sorted(maps.Keys(b.presets))
}

// addPreset registers a built-in preset. Unset names keep their defaults.
func (b *base) addPreset(name string, values map[string]float64) {
	p := make(map[string]float64, len(b.specs))
	for _, s := range b.specs {
		p[s.Name] = s.Default
	}
	for k, v := range values {
		if i, ok := b.index[k]; ok {
			p[k] = b.specs[i].Clamp(v)
		}
	}
	b.pmu.Lock()
	b.presets[name] = p
	b.pmu.Unlock()
}

// frames returns the number of frames in an interleaved block.
func frames(buf []float32, channels int) int {
	return len(buf) / channels
}
