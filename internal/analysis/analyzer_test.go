// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"

	"audiofx/internal/config"
	"audiofx/pkg/testsignal"
)

const testRate = 44100.0

func newTestAnalyzer(t *testing.T, mutate func(*Config)) *Analyzer {
	t.Helper()
	cfg := DefaultConfig(testRate)
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSinePeak(t *testing.T) {
	const (
		size = 4096
		bin  = 93
		amp  = 0.5
	)
	a := newTestAnalyzer(t, func(c *Config) { c.FFTSize = size })
	freq := float64(bin) * testRate / size

	a.Process(testsignal.Sine(2*size, 2, testRate, freq, amp), 2, testRate)

	spec := make([]float64, a.BinCount())
	if err := a.SpectrumInto(spec); err != nil {
		t.Fatal(err)
	}
	if got := testsignal.FindPeakBin(spec, 1, len(spec)-1); got != bin {
		t.Fatalf("peak bin = %d, want %d", got, bin)
	}
	if math.Abs(spec[bin]-amp) > 0.02 {
		t.Errorf("peak magnitude = %f, want %f", spec[bin], amp)
	}

	f := a.Features()
	if math.Abs(f.RMS-amp/math.Sqrt2) > 1e-3 {
		t.Errorf("RMS = %f, want %f", f.RMS, amp/math.Sqrt2)
	}
	if math.Abs(f.Peak-amp) > 1e-3 {
		t.Errorf("Peak = %f, want %f", f.Peak, amp)
	}
	if want := 2 * freq / testRate; math.Abs(f.ZeroCrossingRate-want) > 0.002 {
		t.Errorf("ZCR = %f, want %f", f.ZeroCrossingRate, want)
	}
	if math.Abs(f.SpectralCentroid-1000) > 50 {
		t.Errorf("centroid = %f, want about 1000", f.SpectralCentroid)
	}

	frame := a.Latest()
	if math.Abs(frame.DominantHz-freq) > 1e-6 {
		t.Errorf("dominant = %f Hz, want %f", frame.DominantHz, freq)
	}
	if frame.Sequence != 2 {
		t.Errorf("sequence = %d, want 2", frame.Sequence)
	}
	if len(frame.Bands) != config.DefaultBandCount {
		t.Errorf("bands = %d, want %d", len(frame.Bands), config.DefaultBandCount)
	}
	if len(frame.Waveform) != config.DefaultWaveformSize {
		t.Errorf("waveform = %d, want %d", len(frame.Waveform), config.DefaultWaveformSize)
	}
}

func TestSilenceAndCancellation(t *testing.T) {
	tests := []struct {
		name  string
		block []float32
	}{
		{"silence", make([]float32, 2*2048*2)},
		{"opposed channels", func() []float32 {
			b := testsignal.Sine(2*2048, 2, testRate, 440, 0.8)
			for i := 1; i < len(b); i += 2 {
				b[i] = -b[i]
			}
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, nil)
			a.Process(tt.block, 2, testRate)
			if a.Sequence() == 0 {
				t.Fatal("no analysis ran")
			}
			if f := a.Features(); f != (Features{}) {
				t.Errorf("features = %+v, want zero", f)
			}
			spec := make([]float64, a.BinCount())
			if err := a.SpectrumInto(spec); err != nil {
				t.Fatal(err)
			}
			for i, m := range spec {
				if m != 0 {
					t.Fatalf("bin %d = %g, want 0", i, m)
				}
			}
		})
	}
}

func TestHopScheduling(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) {
		c.FFTSize = 1024
		c.HopSize = 256
	})
	block := testsignal.WhiteNoise(64, 1, 0.5, 1)
	for range 4096 / 64 {
		a.Process(block, 1, testRate)
	}
	if got, want := a.Sequence(), uint64((4096-1024)/256+1); got != want {
		t.Errorf("sequence = %d, want %d", got, want)
	}
}

func TestPeaksDecay(t *testing.T) {
	const size = 1024
	a := newTestAnalyzer(t, func(c *Config) {
		c.FFTSize = size
		c.PeakDecay = 0.5
	})
	a.Process(testsignal.Sine(2*size, 1, testRate, 1000, 0.5), 1, testRate)
	before := a.Latest().Peaks

	a.Process(make([]float32, size), 1, testRate)
	after := a.Latest().Peaks
	for i := range before {
		if math.Abs(after[i]-before[i]*0.5) > 1e-12 {
			t.Fatalf("bin %d: %g after silence, want %g", i, after[i], before[i]*0.5)
		}
	}
}

func TestNamedBandEnergy(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.FFTSize = 4096 })
	a.Process(testsignal.Sine(8192, 1, testRate, 100, 0.5), 1, testRate)
	frame := a.Latest()
	best := ""
	for name, e := range frame.BandEnergy {
		if best == "" || e > frame.BandEnergy[best] {
			best = name
		}
	}
	if best != "bass" {
		t.Errorf("loudest band = %q, want bass (%v)", best, frame.BandEnergy)
	}
}

func TestFramesAreSent(t *testing.T) {
	mock := &testsignal.MockTransport{}
	cfg := DefaultConfig(testRate)
	cfg.FFTSize = 512
	a, err := New(cfg, mock)
	if err != nil {
		t.Fatal(err)
	}
	a.Process(testsignal.Sine(1024, 2, testRate, 440, 0.3), 2, testRate)

	msgs := mock.Messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d frames, want 2", len(msgs))
	}
	for i, m := range msgs {
		f, ok := m.(Frame)
		if !ok {
			t.Fatalf("message %d is %T, want Frame", i, m)
		}
		if f.Type != FrameType || f.Sequence != uint64(i+1) || len(f.Spectrum) != 256 {
			t.Errorf("frame %d: type %q seq %d bins %d", i, f.Type, f.Sequence, len(f.Spectrum))
		}
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !mock.Closed {
		t.Error("transport not closed")
	}
}

func TestReset(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.FFTSize = 512 })
	a.Process(testsignal.Sine(512, 1, testRate, 440, 0.5), 1, testRate)
	seq := a.Sequence()
	a.Reset()
	if f := a.Features(); f != (Features{}) {
		t.Errorf("features after reset = %+v", f)
	}
	a.Process(make([]float32, 511), 1, testRate)
	if a.Sequence() != seq {
		t.Error("analysis ran before the window refilled")
	}
	a.Process(make([]float32, 1), 1, testRate)
	if a.Sequence() != seq+1 {
		t.Error("analysis did not run once the window refilled")
	}
}

func TestSampleRateChangeRetunes(t *testing.T) {
	const (
		size    = 4096
		bin     = 93
		newRate = 22050
	)
	a := newTestAnalyzer(t, func(c *Config) { c.FFTSize = size })
	a.Process(testsignal.Sine(size, 1, testRate, 1000, 0.5), 1, testRate)
	seq := a.Sequence()
	if seq != 1 {
		t.Fatalf("sequence = %d, want 1", seq)
	}

	freq := float64(bin) * newRate / size
	block := testsignal.Sine(size, 1, newRate, freq, 0.5)
	a.Process(block[:size-1], 1, newRate)
	if a.Sequence() != seq {
		t.Error("analysis mixed audio from before the rate change")
	}
	if f := a.Features(); f != (Features{}) {
		t.Errorf("features survived the rate change: %+v", f)
	}
	a.Process(block[size-1:], 1, newRate)

	if got := a.SampleRate(); got != newRate {
		t.Errorf("SampleRate() = %g, want %d", got, newRate)
	}
	if got := a.FrequencyForBin(bin); math.Abs(got-freq) > 1e-9 {
		t.Errorf("FrequencyForBin(%d) = %g, want %g", bin, got, freq)
	}
	frame := a.Latest()
	if frame.SampleRate != newRate || frame.Sequence != seq+1 {
		t.Errorf("frame rate %g, sequence %d", frame.SampleRate, frame.Sequence)
	}
	if math.Abs(frame.DominantHz-freq) > 1e-6 {
		t.Errorf("dominant = %f Hz, want %f", frame.DominantHz, freq)
	}

	// A rate too low for the frequency range is refused.
	a.Process(make([]float32, 16), 1, 30)
	if got := a.SampleRate(); got != newRate {
		t.Errorf("SampleRate() after an unusable rate = %g, want %d", got, newRate)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fft not power of two", func(c *Config) { c.FFTSize = 1000 }},
		{"fft too small", func(c *Config) { c.FFTSize = 8 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"hop too large", func(c *Config) { c.HopSize = c.FFTSize + 1 }},
		{"negative hop", func(c *Config) { c.HopSize = -1 }},
		{"smoothing above one", func(c *Config) { c.Smoothing = 2 }},
		{"no bands", func(c *Config) { c.BandCount = 0 }},
		{"range above nyquist", func(c *Config) {
			c.SampleRate = 8000
			c.MinFrequency = 5000
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testRate)
			tt.mutate(&cfg)
			if _, err := New(cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	c := config.Default().Analysis
	cfg, err := FromConfig(c, testRate)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Window != Hann || cfg.FFTSize != c.FFTSize {
		t.Errorf("got window %s size %d", cfg.Window, cfg.FFTSize)
	}
	c.Window = "gaussian"
	if _, err := FromConfig(c, testRate); err == nil {
		t.Error("expected error for unknown window")
	}
}

func TestAccessors(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.FFTSize = 1024 })
	if err := a.SpectrumInto(make([]float64, 10)); !errors.Is(err, errSpectrumLength) {
		t.Errorf("SpectrumInto short slice: %v", err)
	}
	if err := a.BandsInto(make([]float64, a.BandCount())); err != nil {
		t.Errorf("BandsInto: %v", err)
	}
	if got := a.FrequencyForBin(1); math.Abs(got-testRate/1024) > 1e-9 {
		t.Errorf("FrequencyForBin(1) = %f", got)
	}
	if a.FrequencyForBin(a.BinCount()) != 0 || a.FrequencyForBin(-1) != 0 {
		t.Error("out of range bins should map to 0 Hz")
	}
}

func TestBeatDetector(t *testing.T) {
	d := NewBeatDetector(1.5, 4, 100)
	steps := []struct {
		energy    float64
		at        int64
		beat      bool
		intensity float64
	}{
		{1, 10, false, 0},
		{1, 20, false, 0},
		{1, 30, false, 0},
		{1, 40, false, 0},
		{2, 50, true, 2},
		{3, 60, false, 2.4}, // cooldown
		{1, 200, false, 1 / 1.75},
		{10, 300, true, 10 / 1.75},
	}
	for i, s := range steps {
		beat, intensity := d.Detect(s.energy, s.at)
		if beat != s.beat || math.Abs(intensity-s.intensity) > 1e-9 {
			t.Errorf("step %d: got (%v, %f), want (%v, %f)", i, beat, intensity, s.beat, s.intensity)
		}
	}

	d.Reset()
	d.SetFloor(1)
	for i := range 4 {
		d.Detect(0.1, int64(i))
	}
	if beat, _ := d.Detect(0.5, 1000); beat {
		t.Error("beat below the floor")
	}
}

func TestSmoothAndHold(t *testing.T) {
	s := []float64{0, 1, 2}
	Smooth(s, []float64{1, 1, 0}, 0.25)
	for i, want := range []float64{0.25, 1, 1.5} {
		if math.Abs(s[i]-want) > 1e-12 {
			t.Errorf("Smooth[%d] = %f, want %f", i, s[i], want)
		}
	}
	p := []float64{1, 1, 0}
	HoldPeaks(p, []float64{0, 2, 0.5}, 0.9)
	for i, want := range []float64{0.9, 2, 0.5} {
		if math.Abs(p[i]-want) > 1e-12 {
			t.Errorf("HoldPeaks[%d] = %f, want %f", i, p[i], want)
		}
	}
}

func TestWindowNames(t *testing.T) {
	for _, name := range []string{"hann", "hanning", "hamming", "blackman", "rect", "none", "bartlett", "flattop"} {
		if _, err := ParseWindowFunc(name); err != nil {
			t.Errorf("ParseWindowFunc(%q): %v", name, err)
		}
	}
	if w, _ := ParseWindowFunc(Hamming.String()); w != Hamming {
		t.Errorf("round trip of %s gave %s", Hamming, w)
	}
}

func TestProcessAllocs(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) {
		c.FFTSize = 1024
		c.HopSize = 256
	})
	block := testsignal.Sine(512, 2, testRate, 440, 0.5)
	a.Process(block, 2, testRate)
	allocs := testing.AllocsPerRun(50, func() { a.Process(block, 2, testRate) })
	if allocs != 0 {
		t.Errorf("Process allocated %.1f times per block", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	cfg := DefaultConfig(testRate)
	cfg.HopSize = 512
	a, err := New(cfg, nil)
	if err != nil {
		b.Fatal(err)
	}
	block := testsignal.WhiteNoise(512, 2, 0.5, 7)
	for b.Loop() {
		a.Process(block, 2, testRate)
	}
}
