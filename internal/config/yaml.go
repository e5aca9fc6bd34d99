// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"audiofx/internal/log"
	"audiofx/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // A one-off command to execute instead of running the engine (e.g., "list").
	Audio     AudioConfig     `yaml:"audio"`             // Audio device settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`          // Spectral analysis settings.
	Chain     []EffectConfig  `yaml:"chain"`             // Effect chain, in processing order.
	Recording RecordingConfig `yaml:"recording"`         // Audio recording settings.
	Transport TransportConfig `yaml:"transport"`         // Visualization transport settings.
}

// AudioConfig holds settings related to audio input/output.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for audio output (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per processing block.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Number of input channels to capture.
	OutputChannels  int     `yaml:"output_channels"`   // Number of output channels; 0 disables playback.
}

// AnalysisConfig holds settings for the spectral analyzer.
type AnalysisConfig struct {
	FFTSize       int           `yaml:"fft_size"`       // Window length in samples, a power of two.
	HopSize       int           `yaml:"hop_size"`       // New samples between analyses (0 means fft_size).
	Window        string        `yaml:"window"`         // Window function (e.g., "hann", "hamming", "blackman").
	MinFrequency  float64       `yaml:"min_frequency"`  // Lower edge for centroid and display bands.
	MaxFrequency  float64       `yaml:"max_frequency"`  // Upper edge for centroid and display bands.
	WaveformSize  int           `yaml:"waveform_size"`  // Points in the published waveform.
	Smoothing     float64       `yaml:"smoothing"`      // Weight of the newest spectrum, 0..1.
	PeakDecay     float64       `yaml:"peak_decay"`     // Per-frame peak hold decay, 0..1.
	BeatThreshold float64       `yaml:"beat_threshold"` // Energy multiple over the rolling average.
	BeatHistory   int           `yaml:"beat_history"`   // Frames in the rolling average.
	BeatCooldown  time.Duration `yaml:"beat_cooldown"`  // Minimum time between beats.
	BandCount     int           `yaml:"band_count"`     // Log-spaced display bars.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`              // Record the processed output to file.
	OutputDir   string `yaml:"output_dir"`           // Directory to save recorded audio files.
	Format      string `yaml:"format"`               // File format for recordings ("wav").
	BitDepth    int    `yaml:"bit_depth"`            // Bit depth for recorded audio (16, 24 or 32).
	MaxDuration int    `yaml:"max_duration_seconds"` // Maximum duration of a single recording in seconds (0 for unlimited).
}

// TransportConfig holds settings related to sending analysis frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames to browser clients.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address (e.g., ":8080").
	WebSocketPath    string        `yaml:"websocket_path"`     // Upgrade endpoint.
	MaxFPS           int           `yaml:"max_fps"`            // WebSocket broadcast rate limit.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Publish band data over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultChannels,
			OutputChannels:  DefaultChannels,
		},
		Analysis: AnalysisConfig{
			FFTSize:       DefaultFFTSize,
			Window:        DefaultWindow,
			MinFrequency:  DefaultMinFrequency,
			MaxFrequency:  DefaultMaxFrequency,
			WaveformSize:  DefaultWaveformSize,
			Smoothing:     DefaultSmoothing,
			PeakDecay:     DefaultPeakDecay,
			BeatThreshold: DefaultBeatThreshold,
			BeatHistory:   DefaultBeatHistory,
			BeatCooldown:  DefaultBeatCooldown,
			BandCount:     DefaultBandCount,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultOutputDir,
			Format:    DefaultFormat,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			WebSocketPath:    DefaultWebSocketPath,
			MaxFPS:           DefaultMaxFPS,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "audiofx.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment wins over the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports every problem it finds, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		bad("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	a := c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		bad("audio.sample_rate %g outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer < 1 || a.FramesPerBuffer > MaxBufferFrames {
		bad("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 || a.InputChannels > MaxChannels {
		bad("audio.input_channels %d outside [1, %d]", a.InputChannels, MaxChannels)
	}
	if a.OutputChannels < 0 || a.OutputChannels > MaxChannels {
		bad("audio.output_channels %d outside [0, %d]", a.OutputChannels, MaxChannels)
	}
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		bad("audio device ids must be >= %d", MinDeviceID)
	}

	an := c.Analysis
	if !bitint.IsPowerOfTwo(an.FFTSize) || an.FFTSize < MinFFTSize || an.FFTSize > MaxFFTSize {
		bad("analysis.fft_size %d must be a power of two in [%d, %d]", an.FFTSize, MinFFTSize, MaxFFTSize)
	}
	if an.HopSize < 0 || an.HopSize > an.FFTSize {
		bad("analysis.hop_size %d outside [0, fft_size]", an.HopSize)
	}
	if an.MinFrequency < 0 || an.MaxFrequency <= an.MinFrequency {
		bad("analysis frequency range [%g, %g] is empty", an.MinFrequency, an.MaxFrequency)
	}
	if an.Smoothing < 0 || an.Smoothing > 1 {
		bad("analysis.smoothing %g outside [0, 1]", an.Smoothing)
	}
	if an.PeakDecay < 0 || an.PeakDecay > 1 {
		bad("analysis.peak_decay %g outside [0, 1]", an.PeakDecay)
	}
	if an.BeatThreshold <= 0 || an.BeatHistory < 1 {
		bad("analysis beat detection needs a positive threshold and history")
	}
	if an.BandCount < 1 || an.WaveformSize < 0 {
		bad("analysis.band_count must be positive and waveform_size non-negative")
	}

	for i, e := range c.Chain {
		if strings.TrimSpace(e.Type) == "" {
			bad("chain[%d]: missing type", i)
		}
		for name, v := range e.Params {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad("chain[%d].%s: value is not finite", i, name)
			}
		}
	}

	if c.Recording.Enabled {
		if c.Recording.Format != "wav" {
			bad("recording.format %q unsupported, only wav", c.Recording.Format)
		}
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			bad("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth)
		}
	}

	t := c.Transport
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			bad("transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			bad("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if t.WebSocketEnabled && t.MaxFPS <= 0 {
		bad("transport.max_fps must be positive when the websocket is enabled")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of file values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			log.Infof("configuration: overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("configuration: overriding log_level from env: %s", val)
	}

	// ENV_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = fVal
			log.Infof("configuration: overriding audio.sample_rate from env: %g", fVal)
		}
	}
	// ENV_FFT_SIZE
	if val, ok := os.LookupEnv("ENV_FFT_SIZE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			c.Analysis.FFTSize = iVal
			log.Infof("configuration: overriding analysis.fft_size from env: %d", iVal)
		}
	}

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = bVal
			log.Infof("configuration: overriding transport.websocket_enabled from env: %v", bVal)
		}
	}

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			log.Infof("configuration: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Infof("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			log.Infof("configuration: overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}
