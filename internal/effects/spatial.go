// SPDX-License-Identifier: MIT
package effects

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"audiofx/internal/dsp"
)

const crossfeedCutoff = 700.0 // Hz

const (
	spAzimuth = iota
	spElevation
	spDistance
	spCrossfeed
	spHRTF
)

var spatialSpecs = []ParamSpec{
	spAzimuth:   {Name: "azimuthDeg", Min: -180, Max: 180, Default: 0, Unit: "deg"},
	spElevation: {Name: "elevationDeg", Min: -90, Max: 90, Default: 0, Unit: "deg"},
	spDistance:  {Name: "distance", Min: 0.1, Max: 100, Default: 1, Unit: "m"},
	spCrossfeed: {Name: "crossfeed", Min: 0, Max: 1, Default: 0},
	spHRTF:      {Name: "hrtf", Min: 0, Max: 1, Default: 0, Integer: true},
}

// HRIR is a measured left/right impulse response pair for one source
// direction.
type HRIR struct {
	AzimuthDeg float64
	Left       []float64
	Right      []float64
}

// Vec3 is a position in metres. X is right, Y is up, Z is forward.
type Vec3 struct{ X, Y, Z float64 }

// Spatializer places a mono downmix of the input in front of a listener.
// Without HRIR data it uses an equal-power pan law scaled by inverse
// distance. With HRIR data loaded and the hrtf parameter set, the nearest
// measured direction is convolved instead. Crossfeed mixes a low-passed
// copy of each side into the other.
//
// Blocks with other than two channels pass through unchanged.
type Spatializer struct {
	base

	hrirs   []HRIR
	history *dsp.DelayLine
	xfL     *dsp.Biquad
	xfR     *dsp.Biquad
	rate    int

	gainL, gainR float64
	crossfeed    float64
	hrir         *HRIR
	hrirGain     float64

	listenerPos Vec3
	yaw, pitch  float64 // degrees
	sourcePos   Vec3
}

// NewSpatializer returns a spatializer with the source straight ahead at
// one metre.
func NewSpatializer() *Spatializer {
	s := &Spatializer{sourcePos: Vec3{Z: 1}}
	s.init(TypeSpatializer, spatialSpecs, s)
	s.addPreset("headphones", map[string]float64{"crossfeed": 0.3})
	s.addPreset("hard left", map[string]float64{"azimuthDeg": -90})
	s.addPreset("hard right", map[string]float64{"azimuthDeg": 90})
	return s
}

// LoadHRTF installs a set of impulse responses. Every pair must have equal
// non-empty left and right lengths.
func (s *Spatializer) LoadHRTF(set []HRIR) error {
	if len(set) == 0 {
		return errors.New("empty HRTF set")
	}
	longest := 0
	for i, h := range set {
		if len(h.Left) == 0 || len(h.Left) != len(h.Right) {
			return fmt.Errorf("HRIR %d: left has %d taps, right has %d", i, len(h.Left), len(h.Right))
		}
		longest = max(longest, len(h.Left))
	}
	cp := make([]HRIR, len(set))
	for i, h := range set {
		cp[i] = HRIR{AzimuthDeg: h.AzimuthDeg, Left: slices.Clone(h.Left), Right: slices.Clone(h.Right)}
	}

	s.mu.Lock()
	s.hrirs = cp
	if s.history == nil || s.history.MaxDelay() < longest {
		s.history = dsp.NewDelayLineSamples(longest)
	}
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// HRTFLoaded reports whether an impulse response set is installed.
func (s *Spatializer) HRTFLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hrirs) > 0
}

// SetListenerPosition moves the listener and re-derives azimuth,
// elevation and distance. A distance below the minimum is clamped and
// reported with ErrParameterClamped.
func (s *Spatializer) SetListenerPosition(x, y, z float64) error {
	return s.reposition(func() { s.listenerPos = Vec3{x, y, z} })
}

// SetListenerOrientation turns the listener. Yaw rotates to the right,
// pitch tilts up, both in degrees. Roll does not change a single source's
// azimuth or elevation in this model and is ignored.
func (s *Spatializer) SetListenerOrientation(yaw, pitch, _ float64) error {
	return s.reposition(func() { s.yaw, s.pitch = yaw, pitch })
}

// SetSourcePosition moves the source and re-derives azimuth, elevation
// and distance.
func (s *Spatializer) SetSourcePosition(x, y, z float64) error {
	return s.reposition(func() { s.sourcePos = Vec3{x, y, z} })
}

// reposition applies move and the derived direction and distance under
// one lock hold, so a block sees either the old position or the new one.
func (s *Spatializer) reposition(move func()) error {
	type change struct {
		name  string
		value float64
	}
	var (
		changes []change
		errs    []error
	)

	s.mu.Lock()
	move()
	az, el, dist := relativePosition(s.listenerPos, s.yaw, s.pitch, s.sourcePos)
	for _, p := range [...]struct {
		i int
		v float64
	}{{spAzimuth, az}, {spElevation, el}, {spDistance, dist}} {
		applied, changed, err := s.store(p.i, p.v)
		if changed {
			changes = append(changes, change{s.specs[p.i].Name, applied})
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.notify(c.name, c.value)
	}
	return errors.Join(errs...)
}

// relativePosition returns the source direction in degrees and its
// distance as seen by a listener at pos facing yaw/pitch.
func relativePosition(pos Vec3, yaw, pitch float64, src Vec3) (az, el, dist float64) {
	dx, dy, dz := src.X-pos.X, src.Y-pos.Y, src.Z-pos.Z
	dist = math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist == 0 {
		return 0, 0, 0
	}
	az = math.Atan2(dx, dz)*180/math.Pi - yaw
	el = math.Asin(dy/dist)*180/math.Pi - pitch
	az = math.Mod(az+540, 360) - 180
	el = dsp.Clamp(el, -90, 90)
	return az, el, dist
}

// PanGains returns the equal-power left/right gains for a direction and
// distance.
func PanGains(azimuthDeg, elevationDeg, distance float64) (left, right float64) {
	az := azimuthDeg * math.Pi / 180
	el := elevationDeg * math.Pi / 180
	pan := math.Sin(az) * math.Cos(el)
	theta := (pan + 1) * math.Pi / 4
	att := 1 / math.Max(distance, 1)
	return math.Cos(theta) * att, math.Sin(theta) * att
}

func (s *Spatializer) nearest(az float64) *HRIR {
	var best *HRIR
	bestDist := math.Inf(1)
	for i := range s.hrirs {
		d := math.Abs(math.Mod(s.hrirs[i].AzimuthDeg-az+540, 360) - 180)
		if d < bestDist {
			bestDist = d
			best = &s.hrirs[i]
		}
	}
	return best
}

func (s *Spatializer) configure(channels, sampleRate int) {
	s.rate = sampleRate
	lp := dsp.Band{Type: dsp.LowPass, Frequency: crossfeedCutoff, Q: dsp.DefaultQ}
	s.xfL = dsp.NewBiquad(lp, sampleRate)
	s.xfR = dsp.NewBiquad(lp, sampleRate)
	if s.history != nil {
		s.history.Reset()
	}
}

func (s *Spatializer) update() {
	az, el, dist := s.v(spAzimuth), s.v(spElevation), s.v(spDistance)
	s.gainL, s.gainR = PanGains(az, el, dist)
	s.crossfeed = s.v(spCrossfeed)
	s.hrir = nil
	if s.v(spHRTF) >= 0.5 && len(s.hrirs) > 0 {
		s.hrir = s.nearest(az)
		s.hrirGain = 1 / math.Max(dist, 1)
	}
}

func (s *Spatializer) process(buf []float32, channels int) {
	if channels != 2 {
		return
	}
	n := frames(buf, channels)
	for f := range n {
		l, r := float64(buf[2*f]), float64(buf[2*f+1])
		mono := (l + r) / 2

		if h := s.hrir; h != nil {
			s.history.Write(mono)
			var accL, accR float64
			for k := range h.Left {
				x := s.history.ReadDelayed(k + 1)
				accL += h.Left[k] * x
				accR += h.Right[k] * x
			}
			l, r = accL*s.hrirGain, accR*s.hrirGain
		} else {
			l, r = mono*s.gainL, mono*s.gainR
		}

		if c := s.crossfeed; c > 0 {
			fromR := s.xfR.Process(r)
			fromL := s.xfL.Process(l)
			norm := 1 / (1 + c)
			l, r = (l+c*fromR)*norm, (r+c*fromL)*norm
		}
		buf[2*f] = float32(l)
		buf[2*f+1] = float32(r)
	}
}

func (s *Spatializer) reset() {
	if s.history != nil {
		s.history.Reset()
	}
	s.xfL.Reset()
	s.xfR.Reset()
}
