// SPDX-License-Identifier: MIT
package chain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"audiofx/internal/config"
	"audiofx/internal/dsp"
	"audiofx/internal/effects"
)

// Preset is a saved chain layout.
type Preset []config.EffectConfig

func builtinPresets() map[string]Preset {
	return map[string]Preset{
		"vocal": {
			{Type: "gate", Preset: "hard"},
			{Type: "compressor", Preset: "vocal"},
			{Type: "eq", Preset: "vocal"},
			{Type: "reverb", Preset: "small room"},
		},
		"guitar": {
			{Type: "distortion", Params: map[string]float64{"driveDb": 18}},
			{Type: "chorus", Preset: "subtle"},
			{Type: "echo", Preset: "slapback"},
			{Type: "reverb", Preset: "hall"},
		},
		"master": {
			{Type: "eq", Preset: "loudness"},
			{Type: "compressor", Preset: "master"},
			{Type: "limiter", Preset: "brickwall"},
		},
	}
}

// FromConfig builds a chain from configuration entries. Entries that fail
// to build are skipped and reported in the returned error; the chain is
// always usable.
func FromConfig(entries []config.EffectConfig) (*Chain, error) {
	c := New()
	err := c.Apply(entries)
	return c, err
}

// Apply makes the chain match entries. When the chain already holds the
// same effect types in the same order, the existing units are updated in
// place and keep their state. Otherwise the chain is rebuilt.
func (c *Chain) Apply(entries []config.EffectConfig) error {
	types := make([]effects.Type, len(entries))
	var errs []error
	for i, entry := range entries {
		t, err := effects.ParseType(entry.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("chain[%d]: %w", i, err))
			types[i] = -1
			continue
		}
		types[i] = t
	}

	current := c.Effects()
	if len(errs) == 0 && sameShape(current, types) {
		for i, entry := range entries {
			if err := configure(current[i], entry); err != nil {
				errs = append(errs, fmt.Errorf("chain[%d] %s: %w", i, entry.Type, err))
			}
		}
		c.emit(Event{Kind: Changed, Index: -1})
		return errors.Join(errs...)
	}

	built := make([]effects.Effect, 0, len(entries))
	for i, entry := range entries {
		if types[i] < 0 {
			continue
		}
		e, err := effects.New(types[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("chain[%d]: %w", i, err))
			continue
		}
		if err := configure(e, entry); err != nil {
			errs = append(errs, fmt.Errorf("chain[%d] %s: %w", i, entry.Type, err))
		}
		built = append(built, e)
	}

	c.mu.Lock()
	c.effects = built
	c.mu.Unlock()
	c.emit(Event{Kind: Changed, Index: -1})
	return errors.Join(errs...)
}

func sameShape(current []effects.Effect, types []effects.Type) bool {
	if len(current) != len(types) {
		return false
	}
	for i, e := range current {
		if e.Type() != types[i] {
			return false
		}
	}
	return true
}

// configure applies one entry: preset first, then bands, then params.
func configure(e effects.Effect, entry config.EffectConfig) error {
	var errs []error
	if entry.Preset != "" {
		if err := e.LoadPreset(entry.Preset); err != nil {
			errs = append(errs, err)
		}
	}
	if len(entry.Bands) > 0 {
		eq, ok := e.(*effects.Equalizer)
		if !ok {
			errs = append(errs, fmt.Errorf("bands given for %s", e.Type()))
		} else {
			bands, err := toBands(entry.Bands)
			if err != nil {
				errs = append(errs, err)
			}
			eq.SetBands(bands)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(entry.Params)) {
		if err := e.SetParameter(name, entry.Params[name]); err != nil {
			errs = append(errs, err)
		}
	}
	e.SetEnabled(entry.IsEnabled())
	return errors.Join(errs...)
}

func toBands(in []config.BandConfig) ([]dsp.Band, error) {
	var errs []error
	out := make([]dsp.Band, 0, len(in))
	for i, b := range in {
		t, err := dsp.ParseFilterType(b.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("band %d: %w", i, err))
			continue
		}
		q := b.Q
		if q == 0 {
			q = dsp.DefaultQ
		}
		out = append(out, dsp.Band{
			Type:      t,
			Frequency: b.Frequency,
			GainDB:    b.GainDB,
			Q:         q,
			Enabled:   b.IsEnabled(),
		})
	}
	return out, errors.Join(errs...)
}

// Snapshot describes the current chain as configuration entries. Applying
// the result to an empty chain reproduces the layout and parameters.
func (c *Chain) Snapshot() []config.EffectConfig {
	fx := c.Effects()
	out := make([]config.EffectConfig, len(fx))
	for i, e := range fx {
		enabled := e.Enabled()
		entry := config.EffectConfig{
			Type:    e.Type().String(),
			Enabled: &enabled,
			Params:  e.Parameters(),
		}
		if eq, ok := e.(*effects.Equalizer); ok {
			// Band parameters travel as the band list.
			maps.DeleteFunc(entry.Params, func(k string, _ float64) bool {
				return strings.HasPrefix(k, "band")
			})
			for _, b := range eq.Bands() {
				on := b.Enabled
				entry.Bands = append(entry.Bands, config.BandConfig{
					Type:      b.Type.String(),
					Frequency: b.Frequency,
					GainDB:    b.GainDB,
					Q:         b.Q,
					Enabled:   &on,
				})
			}
		}
		out[i] = entry
	}
	return out
}

// SavePreset stores the current layout under name.
func (c *Chain) SavePreset(name string) {
	p := Preset(c.Snapshot())
	c.pmu.Lock()
	c.presets[name] = p
	c.pmu.Unlock()
}

// LoadPreset applies a saved layout.
func (c *Chain) LoadPreset(name string) error {
	c.pmu.Lock()
	p, ok := c.presets[name]
	c.pmu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return c.Apply(p)
}

// PresetNames returns the saved preset names, sorted.
func (c *Chain) PresetNames() []string {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	return slices.Sorted(maps.Keys(c.presets))
}
