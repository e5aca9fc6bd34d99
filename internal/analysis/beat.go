// SPDX-License-Identifier: MIT
package analysis

// BeatDetector flags frames whose energy jumps above the recent average.
//
// A frame is a beat when its energy exceeds threshold times the mean of the
// previous history frames, is above the floor, and at least cooldown
// samples have passed since the last beat. Nothing fires until the history
// is full.
type BeatDetector struct {
	threshold float64
	floor     float64
	cooldown  int64 // samples

	history []float64
	next    int
	count   int
	sum     float64

	lastBeat int64
	fired    bool
}

// DefaultBeatFloor keeps silence and hiss from producing beats.
const DefaultBeatFloor = 1e-6

// NewBeatDetector returns a detector with a rolling history of n frames.
func NewBeatDetector(threshold float64, n int, cooldownSamples int64) *BeatDetector {
	return &BeatDetector{
		threshold: threshold,
		floor:     DefaultBeatFloor,
		cooldown:  cooldownSamples,
		history:   make([]float64, max(n, 1)),
	}
}

// SetCooldown changes the minimum spacing between beats.
func (d *BeatDetector) SetCooldown(samples int64) { d.cooldown = samples }

// SetFloor changes the minimum energy a beat needs.
func (d *BeatDetector) SetFloor(floor float64) { d.floor = floor }

// Detect feeds the energy of the frame ending at sample position at. It
// returns whether the frame is a beat and the ratio of its energy to the
// rolling average.
func (d *BeatDetector) Detect(energy float64, at int64) (beat bool, intensity float64) {
	if d.count == len(d.history) {
		avg := d.sum / float64(d.count)
		if avg > 0 {
			intensity = energy / avg
		}
		cooled := !d.fired || at-d.lastBeat >= d.cooldown
		if energy > d.floor && energy > avg*d.threshold && cooled {
			beat = true
			d.fired = true
			d.lastBeat = at
		}
	}

	// Running sum of the ring.
	d.sum += energy - d.history[d.next]
	d.history[d.next] = energy
	d.next = (d.next + 1) % len(d.history)
	if d.count < len(d.history) {
		d.count++
	}
	if d.sum < 0 {
		d.sum = 0
	}
	return beat, intensity
}

// Reset forgets the history.
func (d *BeatDetector) Reset() {
	clear(d.history)
	d.next, d.count, d.sum = 0, 0, 0
	d.fired = false
	d.lastBeat = 0
}
