// SPDX-License-Identifier: MIT

// Package udp publishes spectrum snapshots as compact binary datagrams.
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"audiofx/internal/transport"
)

const (
	headerSize     = 4 + 8 + 2
	maxValues      = math.MaxUint16
	defaultPublish = 16 * time.Millisecond
)

var errShortPacket = errors.New("udp: short packet")

// tickLog reports failures that repeat on every tick.
var tickLog = udpLog.Limited(5 * time.Second)

// UDPPublisher periodically polls a SpectrumProvider, packs the magnitude
// spectrum and display bands into a binary packet and sends it with a
// UDPSender.
type UDPPublisher struct {
	sender   *UDPSender
	provider transport.SpectrumProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32

	mags   []float64
	bands  []float64
	packet []byte
}

// NewUDPPublisher creates a publisher. An interval <= 0 defaults to 16ms.
func NewUDPPublisher(interval time.Duration, sender *UDPSender, provider transport.SpectrumProvider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("UDPPublisher: spectrum provider cannot be nil")
	}
	if interval <= 0 {
		interval = defaultPublish
		udpLog.Warnf("invalid interval, defaulting to %s", interval)
	}
	bins, bands := provider.BinCount(), provider.BandCount()
	if bins > maxValues || bands > maxValues {
		return nil, fmt.Errorf("UDPPublisher: %d bins / %d bands exceed the packet format", bins, bands)
	}
	udpLog.Infof("publishing every %s (%d bins, %d bands)", interval, bins, bands)

	return &UDPPublisher{
		sender:   sender,
		provider: provider,
		interval: interval,
		mags:     make([]float64, bins),
		bands:    make([]float64, bands),
		packet:   make([]byte, 0, headerSize+4*bins+2+4*bands),
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is a
// no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		udpLog.Warnf("Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, doneChan := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it. It is safe to
// call repeatedly.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	udpLog.Infof("publisher stopped after %d packets", p.sequenceNum)
	return nil
}

/*
Packet layout, big endian:

	|<- 4 ->|<--- 8 --->|<- 2 ->|<-- N*4 -->|<- 2 ->|<-- M*4 -->|
	+-------+-----------+-------+-----------+-------+-----------+
	|  seq  | timestamp |   N   | magnitude |   M   |   bands   |
	|uint32 | int64 ns  |uint16 | float32[] |uint16 | float32[] |
	+-------+-----------+-------+-----------+-------+-----------+

The first three fields and the magnitudes match the older spectrum-only
packet, so readers that stop after the magnitudes keep working.
*/

// Packet is a decoded datagram.
type Packet struct {
	Sequence   uint32
	Timestamp  time.Time
	Magnitudes []float32
	Bands      []float32
}

func (p *UDPPublisher) publish() {
	if err := p.provider.SpectrumInto(p.mags); err != nil {
		tickLog.Errorf("read spectrum: %v", err)
		return
	}
	if err := p.provider.BandsInto(p.bands); err != nil {
		tickLog.Errorf("read bands: %v", err)
		return
	}
	p.sequenceNum++
	p.packet = appendPacket(p.packet[:0], p.sequenceNum, time.Now(), p.mags, p.bands)
	if err := p.sender.Send(p.packet); err == nil {
		udpLog.Debugf("sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
	}
}

func appendPacket(b []byte, seq uint32, ts time.Time, mags, bands []float64) []byte {
	b = binary.BigEndian.AppendUint32(b, seq)
	b = binary.BigEndian.AppendUint64(b, uint64(ts.UnixNano()))
	b = binary.BigEndian.AppendUint16(b, uint16(len(mags)))
	for _, m := range mags {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(m)))
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(bands)))
	for _, v := range bands {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(v)))
	}
	return b
}

// DecodePacket parses a datagram produced by the publisher. A packet that
// ends after the magnitudes decodes with no bands.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, errShortPacket
	}
	pkt := Packet{
		Sequence:  binary.BigEndian.Uint32(b),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:]))),
	}
	b = b[headerSize-2:]
	var err error
	if pkt.Magnitudes, b, err = readFloats(b); err != nil {
		return Packet{}, err
	}
	if len(b) == 0 {
		return pkt, nil
	}
	if pkt.Bands, _, err = readFloats(b); err != nil {
		return Packet{}, err
	}
	return pkt, nil
}

// readFloats reads a uint16 count and that many float32 values.
func readFloats(b []byte) ([]float32, []byte, error) {
	if len(b) < 2 {
		return nil, nil, errShortPacket
	}
	n := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if len(b) < 4*n {
		return nil, nil, fmt.Errorf("%w: %d values need %d bytes, have %d", errShortPacket, n, 4*n, len(b))
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(b[4*i:]))
	}
	return out, b[4*n:], nil
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
