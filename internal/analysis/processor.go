// SPDX-License-Identifier: MIT
package analysis

// AudioProcessor consumes processed blocks. Implementations should be
// efficient as Process is called from the audio callback.
type AudioProcessor interface {
	// Process reads an interleaved block recorded at sampleRate. It must
	// not retain block.
	Process(block []float32, channels, sampleRate int)
}

// ClosableProcessor combines AudioProcessor with a Close method for resource cleanup.
type ClosableProcessor interface {
	AudioProcessor
	Close() error
}
