// SPDX-License-Identifier: MIT
package config

// EffectConfig describes one slot of the effect chain.
//
//	chain:
//	  - type: compressor
//	    preset: vocal
//	    params: {thresholdDb: -24, ratio: 3}
//	  - type: eq
//	    bands:
//	      - {type: peak, frequency: 1000, gain_db: 6, q: 1}
type EffectConfig struct {
	Type    string             `yaml:"type"`             // Registry name or alias (e.g., "reverb", "eq").
	Enabled *bool              `yaml:"enabled"`          // Defaults to true when omitted.
	Preset  string             `yaml:"preset,omitempty"` // Applied before Params.
	Params  map[string]float64 `yaml:"params,omitempty"` // Parameter name to value.
	Bands   []BandConfig       `yaml:"bands,omitempty"`  // Equalizer only; replaces the band layout.
}

// IsEnabled reports the effective enabled flag.
func (e EffectConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// BandConfig describes one equalizer band.
type BandConfig struct {
	Type      string  `yaml:"type"` // lowpass, highpass, bandpass, notch, lowshelf, highshelf, peak, allpass
	Frequency float64 `yaml:"frequency"`
	GainDB    float64 `yaml:"gain_db"`
	Q         float64 `yaml:"q"`
	Enabled   *bool   `yaml:"enabled"`
}

// IsEnabled reports the effective enabled flag.
func (b BandConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}
