// SPDX-License-Identifier: MIT

// Package analysis turns processed audio into spectra, scalar features and
// visualization state.
package analysis

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"audiofx/internal/config"
	"audiofx/internal/log"
	"audiofx/internal/transport"
	"audiofx/pkg/bitint"
)

const minFFTSize = 16

var errSpectrumLength = errors.New("destination length does not match bin count")

// Config controls an Analyzer.
type Config struct {
	SampleRate    float64
	FFTSize       int // power of two
	HopSize       int // 0 means FFTSize
	Window        WindowFunc
	MinFrequency  float64
	MaxFrequency  float64 // clamped to Nyquist
	WaveformSize  int
	Smoothing     float64 // weight of the newest spectrum
	PeakDecay     float64
	BeatThreshold float64
	BeatHistory   int
	BeatCooldown  time.Duration
	BandCount     int
}

// DefaultConfig returns the stock settings for sampleRate.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:    sampleRate,
		FFTSize:       config.DefaultFFTSize,
		Window:        Hann,
		MinFrequency:  config.DefaultMinFrequency,
		MaxFrequency:  config.DefaultMaxFrequency,
		WaveformSize:  config.DefaultWaveformSize,
		Smoothing:     config.DefaultSmoothing,
		PeakDecay:     config.DefaultPeakDecay,
		BeatThreshold: config.DefaultBeatThreshold,
		BeatHistory:   config.DefaultBeatHistory,
		BeatCooldown:  config.DefaultBeatCooldown,
		BandCount:     config.DefaultBandCount,
	}
}

// FromConfig converts the file configuration.
func FromConfig(c config.AnalysisConfig, sampleRate float64) (Config, error) {
	w, err := ParseWindowFunc(c.Window)
	if err != nil {
		return Config{}, err
	}
	return Config{
		SampleRate:    sampleRate,
		FFTSize:       c.FFTSize,
		HopSize:       c.HopSize,
		Window:        w,
		MinFrequency:  c.MinFrequency,
		MaxFrequency:  c.MaxFrequency,
		WaveformSize:  c.WaveformSize,
		Smoothing:     c.Smoothing,
		PeakDecay:     c.PeakDecay,
		BeatThreshold: c.BeatThreshold,
		BeatHistory:   c.BeatHistory,
		BeatCooldown:  c.BeatCooldown,
		BandCount:     c.BandCount,
	}, nil
}

func (c *Config) normalize() error {
	if !bitint.IsPowerOfTwo(c.FFTSize) || c.FFTSize < minFFTSize {
		return fmt.Errorf("fft size must be a power of 2 and at least %d, got %d", minFFTSize, c.FFTSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %f", c.SampleRate)
	}
	if c.HopSize == 0 {
		c.HopSize = c.FFTSize
	}
	if c.HopSize < 1 || c.HopSize > c.FFTSize {
		return fmt.Errorf("hop size %d outside [1, %d]", c.HopSize, c.FFTSize)
	}
	if c.Smoothing < 0 || c.Smoothing > 1 || c.PeakDecay < 0 || c.PeakDecay > 1 {
		return fmt.Errorf("smoothing %g and peak decay %g must be in [0, 1]", c.Smoothing, c.PeakDecay)
	}
	if c.BandCount < 1 {
		return fmt.Errorf("band count must be positive, got %d", c.BandCount)
	}
	c.MaxFrequency = min(c.MaxFrequency, c.SampleRate/2)
	if c.MinFrequency < 0 || c.MinFrequency >= c.MaxFrequency {
		return fmt.Errorf("frequency range [%g, %g] is empty", c.MinFrequency, c.MaxFrequency)
	}
	c.WaveformSize = max(c.WaveformSize, 0)
	return nil
}

// Analyzer accumulates a mono downmix and analyses it every hop samples.
// Process must be called from one goroutine; the accessors are safe to
// call from any number of others.
type Analyzer struct {
	cfg       Config
	stage     *fftStage
	binHz     float64
	edges     []float64
	beat      *BeatDetector
	transport transport.Transport
	maxHz     float64 // MaxFrequency as configured, before the Nyquist clamp
	rate      int     // rate of the last block, 0 before the first

	// Owned by Process.
	ring     []float64
	mask     int
	pos      int
	filled   int
	sinceHop int
	clock    int64
	frame    []float64
	raw      []float64
	named    []float64

	mu        sync.RWMutex
	seq       uint64
	stamp     time.Time
	spectrum  []float64
	smoothed  []float64
	peaks     []float64
	bands     []float64
	energies  []float64
	waveform  []float32
	features  Features
	beatOn    bool
	intensity float64
	domHz     float64
	domMag    float64
}

var (
	_ ClosableProcessor          = (*Analyzer)(nil)
	_ transport.SpectrumProvider = (*Analyzer)(nil)
)

// New returns an analyzer. Frames are sent to t after every analysis
// when t is non-nil.
func New(cfg Config, t transport.Transport) (*Analyzer, error) {
	maxHz := cfg.MaxFrequency
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	n := cfg.FFTSize
	bins := n / 2
	a := &Analyzer{
		cfg:       cfg,
		stage:     newFFTStage(n, cfg.Window),
		binHz:     cfg.SampleRate / float64(n),
		edges:     logBandEdges(cfg.MinFrequency, cfg.MaxFrequency, cfg.BandCount),
		beat:      NewBeatDetector(cfg.BeatThreshold, cfg.BeatHistory, int64(cfg.BeatCooldown.Seconds()*cfg.SampleRate)),
		transport: t,
		maxHz:     maxHz,
		ring:      make([]float64, n),
		mask:      bitint.Mask(n),
		frame:     make([]float64, n),
		raw:       make([]float64, bins),
		named:     make([]float64, len(NamedBands)),
		spectrum:  make([]float64, bins),
		smoothed:  make([]float64, bins),
		peaks:     make([]float64, bins),
		bands:     make([]float64, cfg.BandCount),
		energies:  make([]float64, len(NamedBands)),
		waveform:  make([]float32, min(cfg.WaveformSize, n)),
	}
	log.Infof("analysis: FFT %d, hop %d, window %s, %.0f Hz, %d bands",
		n, cfg.HopSize, cfg.Window, cfg.SampleRate, cfg.BandCount)
	return a, nil
}

// Process downmixes an interleaved block and runs an analysis for every
// completed hop. When sampleRate differs from the rate of the previous
// block, the analyzer is retuned to it and reset first. A non-positive
// sampleRate keeps the current rate.
func (a *Analyzer) Process(block []float32, channels, sampleRate int) {
	if channels <= 0 {
		return
	}
	if sampleRate > 0 && sampleRate != a.rate {
		if a.rate != 0 || float64(sampleRate) != a.cfg.SampleRate {
			a.retune(float64(sampleRate))
		}
		a.rate = sampleRate
	}
	inv := 1 / float64(channels)
	n := len(a.ring)
	for f := 0; f+channels <= len(block); f += channels {
		var sum float64
		for _, s := range block[f : f+channels] {
			sum += float64(s)
		}
		a.ring[a.pos] = sum * inv
		a.pos = (a.pos + 1) & a.mask
		a.clock++
		if a.filled < n {
			a.filled++
		}
		a.sinceHop++
		if a.filled == n && a.sinceHop >= a.cfg.HopSize {
			a.sinceHop = 0
			a.analyse()
		}
	}
}

// retune rebuilds the rate-dependent state for rate and drops everything
// accumulated at the old rate. A rate that leaves no analysable frequency
// range is rejected and the old one kept.
func (a *Analyzer) retune(rate float64) {
	cfg := a.cfg
	cfg.SampleRate = rate
	cfg.MaxFrequency = a.maxHz
	if err := cfg.normalize(); err != nil {
		log.Warnf("analysis: cannot retune to %.0f Hz: %v", rate, err)
		return
	}
	log.Infof("analysis: sample rate changed from %.0f to %.0f Hz", a.cfg.SampleRate, rate)

	a.mu.Lock()
	a.cfg.SampleRate = cfg.SampleRate
	a.cfg.MaxFrequency = cfg.MaxFrequency
	a.binHz = rate / float64(cfg.FFTSize)
	a.mu.Unlock()
	a.edges = logBandEdges(cfg.MinFrequency, cfg.MaxFrequency, cfg.BandCount)
	a.beat.SetCooldown(int64(cfg.BeatCooldown.Seconds() * rate))
	a.Reset()
}

func (a *Analyzer) analyse() {
	// a.pos is the oldest sample.
	for i := range a.frame {
		a.frame[i] = a.ring[(a.pos+i)&a.mask]
	}
	rms, peak, zcr := timeFeatures(a.frame)
	a.stage.magnitudes(a.frame, a.raw)
	centroid := spectralCentroid(a.raw, a.binHz, a.cfg.MinFrequency, a.cfg.MaxFrequency)
	domHz, domMag := dominant(a.raw, a.binHz, a.cfg.MinFrequency, a.cfg.MaxFrequency)
	beat, intensity := a.beat.Detect(rms*rms, a.clock)
	bandEnergies(a.raw, a.binHz, NamedBands, a.named)

	a.mu.Lock()
	a.seq++
	a.stamp = time.Now()
	copy(a.spectrum, a.raw)
	Smooth(a.smoothed, a.raw, a.cfg.Smoothing)
	HoldPeaks(a.peaks, a.raw, a.cfg.PeakDecay)
	reduceBands(a.smoothed, a.binHz, a.edges, a.bands)
	copy(a.energies, a.named)
	if w := len(a.waveform); w > 0 {
		step := float64(len(a.frame)) / float64(w)
		for i := range a.waveform {
			a.waveform[i] = float32(a.frame[int(float64(i)*step)])
		}
	}
	a.features = Features{RMS: rms, Peak: peak, ZeroCrossingRate: zcr, SpectralCentroid: centroid}
	a.beatOn, a.intensity = beat, intensity
	a.domHz, a.domMag = domHz, domMag
	a.mu.Unlock()

	if a.transport != nil {
		if err := a.transport.Send(a.Latest()); err != nil {
			log.Debugf("analysis: send frame: %v", err)
		}
	}
}

// Latest returns a copy of the most recent analysis.
func (a *Analyzer) Latest() Frame {
	a.mu.RLock()
	defer a.mu.RUnlock()
	energies := make(map[string]float64, len(NamedBands))
	for i, b := range NamedBands {
		energies[b.Name] = a.energies[i]
	}
	return Frame{
		Type:          FrameType,
		Sequence:      a.seq,
		Timestamp:     a.stamp,
		SampleRate:    a.cfg.SampleRate,
		FFTSize:       a.cfg.FFTSize,
		Spectrum:      clone(a.spectrum),
		Smoothed:      clone(a.smoothed),
		Peaks:         clone(a.peaks),
		Bands:         clone(a.bands),
		BandEnergy:    energies,
		Waveform:      clone(a.waveform),
		Features:      a.features,
		Beat:          a.beatOn,
		BeatIntensity: a.intensity,
		DominantHz:    a.domHz,
		DominantMag:   a.domMag,
	}
}

func clone[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// SpectrumInto copies the latest magnitude spectrum into dst, which must
// have BinCount elements.
func (a *Analyzer) SpectrumInto(dst []float64) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(dst) != len(a.spectrum) {
		return fmt.Errorf("%w: got %d, want %d", errSpectrumLength, len(dst), len(a.spectrum))
	}
	copy(dst, a.spectrum)
	return nil
}

// BandsInto copies the latest display bars into dst, which must have
// BandCount elements.
func (a *Analyzer) BandsInto(dst []float64) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(dst) != len(a.bands) {
		return fmt.Errorf("%w: got %d, want %d", errSpectrumLength, len(dst), len(a.bands))
	}
	copy(dst, a.bands)
	return nil
}

// Features returns the scalar features of the latest analysis.
func (a *Analyzer) Features() Features {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.features
}

// Sequence counts completed analyses.
func (a *Analyzer) Sequence() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.seq
}

// BinCount is the length of the magnitude spectrum, FFTSize/2.
func (a *Analyzer) BinCount() int { return a.cfg.FFTSize / 2 }

// BandCount is the number of display bars.
func (a *Analyzer) BandCount() int { return a.cfg.BandCount }

// FrequencyForBin returns the centre frequency of bin i in Hz.
func (a *Analyzer) FrequencyForBin(i int) float64 {
	if i < 0 || i >= a.BinCount() {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(i) * a.binHz
}

// FFTSize returns the configured FFT size.
func (a *Analyzer) FFTSize() int { return a.cfg.FFTSize }

// SampleRate returns the rate the analyzer is tuned to.
func (a *Analyzer) SampleRate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.SampleRate
}

// Reset drops all accumulated audio and visual state. It must not run
// concurrently with Process.
func (a *Analyzer) Reset() {
	clear(a.ring)
	a.pos, a.filled, a.sinceHop, a.clock = 0, 0, 0, 0
	a.beat.Reset()

	a.mu.Lock()
	clear(a.spectrum)
	clear(a.smoothed)
	clear(a.peaks)
	clear(a.bands)
	clear(a.energies)
	clear(a.waveform)
	a.features = Features{}
	a.beatOn, a.intensity = false, 0
	a.domHz, a.domMag = 0, 0
	a.mu.Unlock()
}

// Close closes the transport, if any.
func (a *Analyzer) Close() error {
	if a.transport == nil {
		return nil
	}
	return a.transport.Close()
}
