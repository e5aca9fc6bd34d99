// SPDX-License-Identifier: MIT

// Package transport carries analysis results to visualization clients.
package transport

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller for
// long; the analyzer calls Send from the audio path.
type Transport interface {
	Send(data any) error
	Close() error
}

// SpectrumProvider is implemented by analyzers that can be polled for
// their latest results. Pollers such as the UDP publisher pre-allocate
// their buffers from BinCount and BandCount.
type SpectrumProvider interface {
	SpectrumInto(dst []float64) error
	BandsInto(dst []float64) error
	BinCount() int
	BandCount() int
	FrequencyForBin(binIndex int) float64
}
