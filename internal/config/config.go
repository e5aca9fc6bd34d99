// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the engine.
const (
	// Audio device defaults
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultChannels        = 2           // Stereo
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false
	DefaultSampleRate      = 44100 // CD-quality audio

	// Analysis defaults
	DefaultFFTSize       = 2048
	DefaultWindow        = "hann"
	DefaultMinFrequency  = 20.0
	DefaultMaxFrequency  = 20000.0
	DefaultWaveformSize  = 512
	DefaultSmoothing     = 0.3  // weight of the newest frame
	DefaultPeakDecay     = 0.95 // per frame
	DefaultBeatThreshold = 1.5  // energy over rolling average
	DefaultBeatHistory   = 43   // about one second of 1024-sample hops at 44.1kHz
	DefaultBeatCooldown  = 250 * time.Millisecond
	DefaultBandCount     = 32

	// Recording defaults
	DefaultFormat    = "wav"
	DefaultBitDepth  = 16
	DefaultOutputDir = "./recordings"

	// Transport defaults
	DefaultWebSocketAddress = ":8080"
	DefaultWebSocketPath    = "/ws"
	DefaultMaxFPS           = 60
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MaxChannels     = 8
	MinFFTSize      = 64
	MaxFFTSize      = 1 << 16

	// Error handling configuration
	DefaultMaxConsecutiveWriteFailures = 5 // Max failures before stopping
)
