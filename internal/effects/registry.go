// SPDX-License-Identifier: MIT
package effects

import (
	"fmt"
	"strings"
)

// Type identifies an effect unit.
type Type int

const (
	TypeReverb Type = iota
	TypeEcho
	TypeChorus
	TypeFlanger
	TypePhaser
	TypeDistortion
	TypeCompressor
	TypeLimiter
	TypeNoiseGate
	TypeExpander
	TypeTremolo
	TypeVibrato
	TypeBitCrusher
	TypeLowPass
	TypeHighPass
	TypeBandPass
	TypeNotch
	TypeEqualizer
	TypeStereoizer
	TypeSpatializer
	numTypes
)

var typeNames = [numTypes]struct {
	id, display string
}{
	TypeReverb:      {"reverb", "Reverb"},
	TypeEcho:        {"echo", "Echo"},
	TypeChorus:      {"chorus", "Chorus"},
	TypeFlanger:     {"flanger", "Flanger"},
	TypePhaser:      {"phaser", "Phaser"},
	TypeDistortion:  {"distortion", "Distortion"},
	TypeCompressor:  {"compressor", "Compressor"},
	TypeLimiter:     {"limiter", "Limiter"},
	TypeNoiseGate:   {"gate", "Noise Gate"},
	TypeExpander:    {"expander", "Expander"},
	TypeTremolo:     {"tremolo", "Tremolo"},
	TypeVibrato:     {"vibrato", "Vibrato"},
	TypeBitCrusher:  {"bitcrusher", "Bit Crusher"},
	TypeLowPass:     {"lowpass", "Low-pass Filter"},
	TypeHighPass:    {"highpass", "High-pass Filter"},
	TypeBandPass:    {"bandpass", "Band-pass Filter"},
	TypeNotch:       {"notch", "Notch Filter"},
	TypeEqualizer:   {"equalizer", "Equalizer"},
	TypeStereoizer:  {"stereoizer", "Stereoizer"},
	TypeSpatializer: {"spatializer", "Spatializer"},
}

// String returns the identifier used in configuration files.
func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t].id
}

// DisplayName returns a human readable name.
func (t Type) DisplayName() string {
	if t < 0 || t >= numTypes {
		return t.String()
	}
	return typeNames[t].display
}

// Types lists every constructible type in declaration order.
func Types() []Type {
	ts := make([]Type, 0, numTypes)
	for t := range numTypes {
		ts = append(ts, t)
	}
	return ts
}

// ParseType maps a configuration identifier to a Type. Matching ignores
// case, spaces, dashes and underscores.
func ParseType(name string) (Type, error) {
	norm := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch norm {
	case "compression":
		return TypeCompressor, nil
	case "noisegate":
		return TypeNoiseGate, nil
	case "eq":
		return TypeEqualizer, nil
	case "spatial", "spatialaudio":
		return TypeSpatializer, nil
	case "delay":
		return TypeEcho, nil
	}
	for t := range numTypes {
		if typeNames[t].id == norm {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown effect type: '%s'", name)
}

// New constructs a unit of type t with default parameters.
func New(t Type) (Effect, error) {
	switch t {
	case TypeReverb:
		return NewReverb(), nil
	case TypeEcho:
		return NewEcho(), nil
	case TypeChorus:
		return NewChorus(), nil
	case TypeFlanger:
		return NewFlanger(), nil
	case TypeVibrato:
		return NewVibrato(), nil
	case TypePhaser:
		return NewPhaser(), nil
	case TypeDistortion:
		return NewDistortion(), nil
	case TypeCompressor:
		return NewDynamics(ModeCompressor), nil
	case TypeLimiter:
		return NewDynamics(ModeLimiter), nil
	case TypeNoiseGate:
		return NewDynamics(ModeGate), nil
	case TypeExpander:
		return NewDynamics(ModeExpander), nil
	case TypeTremolo:
		return NewTremolo(), nil
	case TypeBitCrusher:
		return NewBitCrusher(), nil
	case TypeLowPass, TypeHighPass, TypeBandPass, TypeNotch:
		return NewFilter(t), nil
	case TypeEqualizer:
		return NewEqualizer(), nil
	case TypeStereoizer:
		return NewStereoizer(), nil
	case TypeSpatializer:
		return NewSpatializer(), nil
	default:
		return nil, fmt.Errorf("unknown effect type: %d", int(t))
	}
}

// NewByName is ParseType followed by New.
func NewByName(name string) (Effect, error) {
	t, err := ParseType(name)
	if err != nil {
		return nil, err
	}
	return New(t)
}
