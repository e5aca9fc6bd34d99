// SPDX-License-Identifier: MIT

// Package chain runs an ordered, mutable list of effects over audio blocks.
package chain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"audiofx/internal/effects"
	"audiofx/internal/log"
)

var (
	// ErrIndexOutOfRange is returned by structural operations given a
	// position outside the chain.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnknownPreset is returned by LoadPreset for an unsaved name.
	ErrUnknownPreset = errors.New("unknown chain preset")
)

// EventKind says what happened to the chain.
type EventKind int

const (
	Added EventKind = iota
	Removed
	Moved
	Changed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Moved:
		return "moved"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Event describes one change. Index is the position after the change, or
// -1 when the whole chain changed. From is only set for Moved. Parameter
// and Value are set when a single parameter or enable flag changed.
type Event struct {
	Kind      EventKind
	Index     int
	From      int
	Effect    effects.Effect
	Parameter string
	Value     float64
}

// Chain is safe for concurrent use. Process holds the chain lock for one
// whole block, so structural edits land between blocks.
type Chain struct {
	mu         sync.Mutex
	effects    []effects.Effect
	channels   int
	sampleRate int
	scratch    []float32

	omu      sync.Mutex
	onChange []func(Event)
	onError  []func(error)

	pmu     sync.Mutex
	presets map[string]Preset
}

// New returns a chain holding fx in order.
func New(fx ...effects.Effect) *Chain {
	return &Chain{
		effects: slices.Clone(fx),
		presets: builtinPresets(),
	}
}

// Process runs every enabled effect over buf in order.
//
// A change of channel count or sample rate since the previous block resets
// every effect first and is reported as effects.ErrConfigMismatch; the block
// is still processed. A block whose length is not a multiple of channels is
// left untouched.
//
// If an effect fails, panics, or leaves a non-finite sample in the block,
// the block is restored to what that effect received and the effect is
// reset. Processing continues with the next effect.
//
// Every problem is passed to the OnError observers and logged. The returned
// error joins them.
func (c *Chain) Process(buf []float32, channels, sampleRate int) error {
	if channels <= 0 || sampleRate <= 0 || len(buf)%channels != 0 {
		err := fmt.Errorf("%w: %d samples, %d channels at %d Hz",
			effects.ErrConfigMismatch, len(buf), channels, sampleRate)
		c.report(err)
		return err
	}

	var problems []error

	c.mu.Lock()
	if c.channels != 0 && (channels != c.channels || sampleRate != c.sampleRate) {
		for _, e := range c.effects {
			e.Reset()
		}
		problems = append(problems, fmt.Errorf("%w: format changed from %d ch @ %d Hz to %d ch @ %d Hz",
			effects.ErrConfigMismatch, c.channels, c.sampleRate, channels, sampleRate))
	}
	c.channels, c.sampleRate = channels, sampleRate

	if cap(c.scratch) < len(buf) {
		c.scratch = make([]float32, len(buf))
	}
	saved := c.scratch[:len(buf)]

	for i, e := range c.effects {
		if !e.Enabled() {
			continue
		}
		copy(saved, buf)
		if err := run(e, buf, channels, sampleRate); err != nil {
			copy(buf, saved)
			e.Reset()
			problems = append(problems, fmt.Errorf("effect %d (%s) bypassed for one block: %w", i, e.Name(), err))
		}
	}
	c.mu.Unlock()

	for _, err := range problems {
		c.report(err)
	}
	return errors.Join(problems...)
}

// run processes one effect and checks its output.
func run(e effects.Effect, buf []float32, channels, sampleRate int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", effects.ErrNumericalInstability, r)
		}
	}()
	if err := e.Process(buf, channels, sampleRate); err != nil {
		return err
	}
	for _, v := range buf {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return effects.ErrNumericalInstability
		}
	}
	return nil
}

// Add appends an effect.
func (c *Chain) Add(e effects.Effect) {
	c.mu.Lock()
	c.effects = append(c.effects, e)
	i := len(c.effects) - 1
	c.mu.Unlock()
	c.emit(Event{Kind: Added, Index: i, Effect: e})
}

// Insert places e at position i, shifting later effects back.
func (c *Chain) Insert(i int, e effects.Effect) error {
	c.mu.Lock()
	if i < 0 || i > len(c.effects) {
		n := len(c.effects)
		c.mu.Unlock()
		return fmt.Errorf("%w: insert at %d in chain of %d", ErrIndexOutOfRange, i, n)
	}
	c.effects = slices.Insert(c.effects, i, e)
	c.mu.Unlock()
	c.emit(Event{Kind: Added, Index: i, Effect: e})
	return nil
}

// Remove deletes the effect at position i and returns it.
func (c *Chain) Remove(i int) (effects.Effect, error) {
	c.mu.Lock()
	if err := c.check(i); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	e := c.effects[i]
	c.effects = slices.Delete(c.effects, i, i+1)
	c.mu.Unlock()
	c.emit(Event{Kind: Removed, Index: i, Effect: e})
	return e, nil
}

// RemoveEffect deletes e wherever it is. It reports whether e was found.
func (c *Chain) RemoveEffect(e effects.Effect) bool {
	c.mu.Lock()
	i := slices.Index(c.effects, e)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.effects = slices.Delete(c.effects, i, i+1)
	c.mu.Unlock()
	c.emit(Event{Kind: Removed, Index: i, Effect: e})
	return true
}

// Move relocates the effect at from so that it ends up at position to.
func (c *Chain) Move(from, to int) error {
	c.mu.Lock()
	if err := c.check(from); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.check(to); err != nil {
		c.mu.Unlock()
		return err
	}
	e := c.effects[from]
	if from != to {
		c.effects = slices.Delete(c.effects, from, from+1)
		c.effects = slices.Insert(c.effects, to, e)
	}
	c.mu.Unlock()
	if from != to {
		c.emit(Event{Kind: Moved, Index: to, From: from, Effect: e})
	}
	return nil
}

// Clear removes every effect.
func (c *Chain) Clear() {
	c.mu.Lock()
	had := len(c.effects) > 0
	c.effects = nil
	c.mu.Unlock()
	if had {
		c.emit(Event{Kind: Changed, Index: -1})
	}
}

// Len returns the number of effects.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.effects)
}

// Effect returns the effect at position i.
func (c *Chain) Effect(i int) (effects.Effect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(i); err != nil {
		return nil, err
	}
	return c.effects[i], nil
}

// Effects returns a copy of the effect list.
func (c *Chain) Effects() []effects.Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.effects)
}

// SetEnabled toggles the effect at position i.
func (c *Chain) SetEnabled(i int, enabled bool) error {
	e, err := c.Effect(i)
	if err != nil {
		return err
	}
	if e.Enabled() == enabled {
		return nil
	}
	e.SetEnabled(enabled)
	v := 0.0
	if enabled {
		v = 1
	}
	c.emit(Event{Kind: Changed, Index: i, Effect: e, Parameter: "enabled", Value: v})
	return nil
}

// SetParameter sets a parameter on the effect at position i. Errors from
// the effect, including effects.ErrParameterClamped, are returned as is.
func (c *Chain) SetParameter(i int, name string, value float64) error {
	e, err := c.Effect(i)
	if err != nil {
		return err
	}
	err = e.SetParameter(name, value)
	if errors.Is(err, effects.ErrUnknownParameter) || errors.Is(err, effects.ErrInvalidValue) {
		return err
	}
	applied, _ := e.Parameter(name)
	c.emit(Event{Kind: Changed, Index: i, Effect: e, Parameter: name, Value: applied})
	return err
}

// Reset clears the state of every effect.
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.effects {
		e.Reset()
	}
}

// check validates i. Callers hold c.mu.
func (c *Chain) check(i int) error {
	if i < 0 || i >= len(c.effects) {
		return fmt.Errorf("%w: %d in chain of %d", ErrIndexOutOfRange, i, len(c.effects))
	}
	return nil
}

// OnChange registers an observer for structural and parameter changes
// made through the chain. Observers run on the goroutine that made the
// change, after the chain lock is released.
func (c *Chain) OnChange(fn func(Event)) {
	if fn == nil {
		return
	}
	c.omu.Lock()
	c.onChange = append(c.onChange, fn)
	c.omu.Unlock()
}

// OnError registers an observer for processing problems. Observers run on
// the processing goroutine and must not block.
func (c *Chain) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	c.omu.Lock()
	c.onError = append(c.onError, fn)
	c.omu.Unlock()
}

func (c *Chain) emit(ev Event) {
	c.omu.Lock()
	fns := slices.Clone(c.onChange)
	c.omu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// problemLog throttles reports from the processing goroutine.
var problemLog = log.Named("chain").Limited(time.Second)

func (c *Chain) report(err error) {
	problemLog.Warnf("%v", err)
	c.omu.Lock()
	fns := slices.Clone(c.onError)
	c.omu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
