// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"audiofx/internal/log"
)

// LoggingTransport logs a summary of what it is sent instead of transmitting
// it. Every payload is logged at debug level; every Nth at info.
type LoggingTransport struct {
	every uint64
	count atomic.Uint64
}

// NewLoggingTransport returns a transport that reports every nth payload at
// info level. n <= 0 means only debug logging.
func NewLoggingTransport(n int) *LoggingTransport {
	log.Infof("transport: using logging transport")
	return &LoggingTransport{every: uint64(max(n, 0))}
}

// Send records data.
func (lt *LoggingTransport) Send(data any) error {
	c := lt.count.Add(1)
	if lt.every > 0 && c%lt.every == 0 {
		log.Infof("transport: %d payloads, latest %T", c, data)
		return nil
	}
	log.Debugf("transport: payload %d (%T)", c, data)
	return nil
}

// Count returns the number of payloads received.
func (lt *LoggingTransport) Count() uint64 { return lt.count.Load() }

// Close logs the final count.
func (lt *LoggingTransport) Close() error {
	log.Infof("transport: logging transport closed after %d payloads", lt.count.Load())
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
