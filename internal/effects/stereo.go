// SPDX-License-Identifier: MIT
package effects

const stWidth = 0

var stereoizerSpecs = []ParamSpec{
	stWidth: {Name: "width", Min: 0, Max: 2, Default: 1.5},
}

// Stereoizer scales the side signal of a stereo pair. Width 0 collapses
// to mono, 1 leaves the image unchanged. Other channel counts pass
// through.
type Stereoizer struct {
	base
	width float64
}

// NewStereoizer returns a stereoizer with default parameters.
func NewStereoizer() *Stereoizer {
	s := &Stereoizer{}
	s.init(TypeStereoizer, stereoizerSpecs, s)
	s.addPreset("mono", map[string]float64{"width": 0})
	s.addPreset("wide", map[string]float64{"width": 2})
	return s
}

func (s *Stereoizer) configure(int, int) {}

func (s *Stereoizer) update() { s.width = s.v(stWidth) }

func (s *Stereoizer) process(buf []float32, channels int) {
	if channels != 2 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		l, r := float64(buf[i]), float64(buf[i+1])
		mid := (l + r) / 2
		side := (l - r) / 2 * s.width
		buf[i] = float32(mid + side)
		buf[i+1] = float32(mid - side)
	}
}

func (s *Stereoizer) reset() {}
