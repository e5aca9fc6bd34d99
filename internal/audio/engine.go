// SPDX-License-Identifier: MIT
/*
Package audio runs the effect chain on live audio:
- Duplex PortAudio stream (input, chain, output)
- Analysis tap behind a peak gate
- WAV recording of the processed signal

Thread Safety:
- The stream callback owns the work buffer
- Gate, statistics and recorder hand-off are atomic
- Pre-allocates buffers to avoid GC in hot path
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"audiofx/internal/analysis"
	"audiofx/internal/config"
	"audiofx/internal/log"
)

// ErrNotRunning is returned when stopping an engine that was never started.
var ErrNotRunning = errors.New("audio stream not running")

// BlockProcessor transforms interleaved blocks in place. *chain.Chain
// satisfies it.
type BlockProcessor interface {
	Process(buf []float32, channels, sampleRate int) error
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Blocks      uint64
	Errors      uint64
	Analyzed    uint64
	Peak        float32 // last processed block
	Recording   bool
	Frames      int64 // recorded
	InputDevice string
}

type Engine struct {
	cfg        config.AudioConfig
	sampleRate int
	inCh       int
	channels   int // processing and output width

	inputDevice   *portaudio.DeviceInfo
	outputDevice  *portaudio.DeviceInfo
	inputLatency  time.Duration
	outputLatency time.Duration
	stream        *portaudio.Stream
	streamMu      sync.Mutex

	processor BlockProcessor
	analyzer  analysis.AudioProcessor
	work      []float32

	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint32 // float32 bits, 0..1

	recorder atomic.Pointer[recorder]
	recMu    sync.Mutex
	closing  sync.WaitGroup

	blocks   atomic.Uint64
	errors   atomic.Uint64
	analyzed atomic.Uint64
	peak     atomic.Uint32 // float32 bits
}

// NewEngine resolves the configured devices. PortAudio must be
// initialized. analyzer may be nil.
func NewEngine(cfg config.AudioConfig, p BlockProcessor, analyzer analysis.AudioProcessor) (*Engine, error) {
	e, err := newEngine(cfg, p, analyzer)
	if err != nil {
		return nil, err
	}

	if e.inputDevice, err = InputDevice(cfg.InputDevice); err != nil {
		return nil, fmt.Errorf("input device: %w", err)
	}
	if cfg.OutputChannels > 0 {
		if e.outputDevice, err = OutputDevice(cfg.OutputDevice); err != nil {
			return nil, fmt.Errorf("output device: %w", err)
		}
	}

	if cfg.LowLatency {
		e.inputLatency = e.inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = e.inputDevice.DefaultHighInputLatency
	}
	if e.outputDevice != nil {
		if cfg.LowLatency {
			e.outputLatency = e.outputDevice.DefaultLowOutputLatency
		} else {
			e.outputLatency = e.outputDevice.DefaultHighOutputLatency
		}
	}
	return e, nil
}

func newEngine(cfg config.AudioConfig, p BlockProcessor, analyzer analysis.AudioProcessor) (*Engine, error) {
	if p == nil {
		return nil, errors.New("audio engine needs a block processor")
	}
	if cfg.InputChannels < 1 || cfg.OutputChannels < 0 || cfg.FramesPerBuffer < 1 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid audio configuration: %d in, %d out, %d frames, %.0f Hz",
			cfg.InputChannels, cfg.OutputChannels, cfg.FramesPerBuffer, cfg.SampleRate)
	}
	channels := cfg.OutputChannels
	if channels == 0 {
		channels = cfg.InputChannels
	}
	e := &Engine{
		cfg:        cfg,
		sampleRate: int(cfg.SampleRate),
		inCh:       cfg.InputChannels,
		channels:   channels,
		processor:  p,
		analyzer:   analyzer,
		work:       make([]float32, cfg.FramesPerBuffer*channels),
	}
	e.gateEnabled.Store(true)
	e.SetGateThreshold(defaultGateThreshold)
	return e, nil
}

// Start opens and starts the stream. Without output channels the engine
// runs capture only.
func (e *Engine) Start() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.stream != nil {
		return nil
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   e.inputDevice,
			Channels: e.inCh,
			Latency:  e.inputLatency,
		},
		FramesPerBuffer: e.cfg.FramesPerBuffer,
		SampleRate:      e.cfg.SampleRate,
	}

	var (
		stream *portaudio.Stream
		err    error
	)
	if e.outputDevice != nil {
		params.Output = portaudio.StreamDeviceParameters{
			Device:   e.outputDevice,
			Channels: e.cfg.OutputChannels,
			Latency:  e.outputLatency,
		}
		stream, err = portaudio.OpenStream(params, e.processDuplex)
	} else {
		stream, err = portaudio.OpenStream(params, e.processCapture)
	}
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}
	e.stream = stream

	out := "none"
	if e.outputDevice != nil {
		out = e.outputDevice.Name
	}
	log.Infof("audio: streaming %.0f Hz, %d frames, in %q (%d ch), out %q (%d ch)",
		e.cfg.SampleRate, e.cfg.FramesPerBuffer, e.inputDevice.Name, e.inCh, out, e.cfg.OutputChannels)
	return nil
}

// Stop stops and closes the stream.
func (e *Engine) Stop() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.stream == nil {
		return ErrNotRunning
	}
	stopErr := e.stream.Stop()
	closeErr := e.stream.Close()
	e.stream = nil
	return errors.Join(stopErr, closeErr)
}

func (e *Engine) processDuplex(in, out []float32) {
	e.processBlock(in, out)
}

func (e *Engine) processCapture(in []float32) {
	e.processBlock(in, nil)
}

// processBlock is the hot path: no allocations, no locks held across
// effects beyond the chain's own.
func (e *Engine) processBlock(in, out []float32) {
	frames := len(in) / e.inCh
	if n := frames * e.channels; n > len(e.work) {
		frames = len(e.work) / e.channels
	}
	work := e.work[:frames*e.channels]

	// Extra output channels repeat the last input channel.
	for f := range frames {
		src := in[f*e.inCh : (f+1)*e.inCh]
		dst := work[f*e.channels : (f+1)*e.channels]
		for ch := range dst {
			dst[ch] = src[min(ch, e.inCh-1)]
		}
	}

	e.blocks.Add(1)
	if err := e.processor.Process(work, e.channels, e.sampleRate); err != nil {
		e.errors.Add(1)
	}

	peak := blockPeak(work)
	e.peak.Store(math.Float32bits(peak))
	if e.analyzer != nil && e.gateOpen(peak) {
		e.analyzer.Process(work, e.channels, e.sampleRate)
		e.analyzed.Add(1)
	}

	if r := e.recorder.Load(); r != nil {
		if done := r.write(work); done {
			e.finishRecording(r)
		}
	}

	if out != nil {
		n := copy(out, work)
		clear(out[n:])
	}
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Blocks:   e.blocks.Load(),
		Errors:   e.errors.Load(),
		Analyzed: e.analyzed.Load(),
		Peak:     math.Float32frombits(e.peak.Load()),
	}
	if r := e.recorder.Load(); r != nil {
		s.Recording = true
		s.Frames = r.frames()
	}
	if e.inputDevice != nil {
		s.InputDevice = e.inputDevice.Name
	}
	return s
}

// SampleRate returns the stream rate in Hz.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Channels returns the processing width.
func (e *Engine) Channels() int { return e.channels }

// Close stops recording and the stream.
func (e *Engine) Close() error {
	recErr := e.StopRecording()
	streamErr := e.Stop()
	if errors.Is(streamErr, ErrNotRunning) {
		streamErr = nil
	}
	return errors.Join(recErr, streamErr)
}
