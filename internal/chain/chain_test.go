// SPDX-License-Identifier: MIT
package chain

import (
	"errors"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"audiofx/internal/config"
	"audiofx/internal/dsp"
	"audiofx/internal/effects"
	"audiofx/pkg/testsignal"
)

const (
	testRate  = 44100
	testBlock = 512
)

// stub is an effect whose processing is supplied by the test. Everything
// else comes from a real unit.
type stub struct {
	effects.Effect
	fn     func(buf []float32) error
	calls  atomic.Int32
	resets atomic.Int32
}

func newStub(fn func(buf []float32) error) *stub {
	return &stub{Effect: effects.NewTremolo(), fn: fn}
}

func (s *stub) Process(buf []float32, _, _ int) error {
	s.calls.Add(1)
	return s.fn(buf)
}

func (s *stub) Reset() { s.resets.Add(1) }

func gain(g float32) *stub {
	return newStub(func(buf []float32) error {
		for i := range buf {
			buf[i] *= g
		}
		return nil
	})
}

func filled(n int, v float32) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func runBlocks(t *testing.T, c *Chain, buf []float32, channels int) {
	t.Helper()
	step := testBlock * channels
	for off := 0; off < len(buf); off += step {
		end := min(off+step, len(buf))
		if err := c.Process(buf[off:end], channels, testRate); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
}

func TestOrderMatters(t *testing.T) {
	build := func(eqFirst bool) *Chain {
		comp := effects.NewCompressor()
		eq := effects.NewEqualizer()
		eq.ClearBands()
		eq.AddBand(dsp.Band{Type: dsp.Peak, Frequency: 1000, GainDB: 12, Q: 1, Enabled: true})
		if eqFirst {
			return New(eq, comp)
		}
		return New(comp, eq)
	}

	compThenEQ := testsignal.Sine(testRate/2, 1, testRate, 1000, 0.1)
	eqThenComp := slices.Clone(compThenEQ)
	runBlocks(t, build(false), compThenEQ, 1)
	runBlocks(t, build(true), eqThenComp, 1)

	a := testsignal.Energy(compThenEQ[len(compThenEQ)/2:])
	b := testsignal.Energy(eqThenComp[len(eqThenComp)/2:])
	// Boosting before the compressor pushes the signal over threshold.
	if a < 2*b {
		t.Errorf("compressor->eq energy %g, eq->compressor %g; want the first clearly louder", a, b)
	}
}

func TestProcessFailsOpen(t *testing.T) {
	tests := []struct {
		name string
		fn   func(buf []float32) error
		want error
	}{
		{"nan", func(buf []float32) error {
			for i := range buf {
				buf[i] = 5
			}
			buf[0] = float32(math.NaN())
			return nil
		}, effects.ErrNumericalInstability},
		{"inf", func(buf []float32) error {
			buf[len(buf)-1] = float32(math.Inf(-1))
			return nil
		}, effects.ErrNumericalInstability},
		{"panic", func([]float32) error { panic("boom") }, effects.ErrNumericalInstability},
		{"error", func([]float32) error { return effects.ErrConfigMismatch }, effects.ErrConfigMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := newStub(tt.fn)
			c := New(gain(2), bad, gain(2))

			var reported []error
			c.OnError(func(err error) { reported = append(reported, err) })

			buf := filled(64, 0.25)
			err := c.Process(buf, 2, testRate)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Process error = %v, want %v", err, tt.want)
			}
			if len(reported) != 1 || !errors.Is(reported[0], tt.want) {
				t.Errorf("OnError saw %v", reported)
			}
			for i, v := range buf {
				if v != 1 {
					t.Fatalf("sample %d = %g; the failing unit should be bypassed, giving 0.25*2*2", i, v)
				}
			}
			if bad.resets.Load() != 1 {
				t.Errorf("failing unit reset %d times, want 1", bad.resets.Load())
			}
		})
	}
}

func TestDisabledEffectsAreSkipped(t *testing.T) {
	bad := newStub(func(buf []float32) error {
		buf[0] = float32(math.NaN())
		return nil
	})
	bad.SetEnabled(false)
	c := New(bad, gain(3))

	buf := filled(8, 1)
	if err := c.Process(buf, 1, testRate); err != nil {
		t.Fatal(err)
	}
	if bad.calls.Load() != 0 {
		t.Error("disabled unit was called")
	}
	if buf[0] != 3 {
		t.Errorf("buf[0] = %g, want 3", buf[0])
	}
}

func TestFormatChangeResetsEffects(t *testing.T) {
	s := gain(2)
	c := New(s)

	if err := c.Process(filled(16, 1), 2, 44100); err != nil {
		t.Fatal(err)
	}
	buf := filled(16, 1)
	err := c.Process(buf, 2, 48000)
	if !errors.Is(err, effects.ErrConfigMismatch) {
		t.Fatalf("format change error = %v", err)
	}
	if s.resets.Load() != 1 {
		t.Errorf("resets = %d, want 1", s.resets.Load())
	}
	if buf[0] != 2 {
		t.Error("block after a format change should still be processed")
	}
	if err := c.Process(filled(16, 1), 2, 48000); err != nil {
		t.Errorf("steady format reported %v", err)
	}
}

func TestBadLayoutLeavesBlockUntouched(t *testing.T) {
	s := gain(2)
	c := New(s)
	buf := filled(7, 1)
	if err := c.Process(buf, 2, testRate); !errors.Is(err, effects.ErrConfigMismatch) {
		t.Fatalf("error = %v", err)
	}
	if s.calls.Load() != 0 || buf[0] != 1 {
		t.Error("invalid block was processed")
	}
}

func TestStructuralOperations(t *testing.T) {
	a, b, x := gain(1), gain(1), gain(1)
	c := New()

	var events []Event
	c.OnChange(func(ev Event) { events = append(events, ev) })

	c.Add(a)
	c.Add(b)
	if err := c.Insert(0, x); err != nil {
		t.Fatal(err)
	}
	if got := c.Effects(); !slices.Equal(got, []effects.Effect{x, a, b}) {
		t.Fatalf("after insert: %v", got)
	}
	if err := c.Move(0, 2); err != nil {
		t.Fatal(err)
	}
	if got := c.Effects(); !slices.Equal(got, []effects.Effect{a, b, x}) {
		t.Fatalf("after move: %v", got)
	}
	removed, err := c.Remove(1)
	if err != nil || removed != b {
		t.Fatalf("Remove(1) = %v, %v", removed, err)
	}
	if !c.RemoveEffect(x) {
		t.Error("RemoveEffect did not find x")
	}
	if c.RemoveEffect(x) {
		t.Error("RemoveEffect found x twice")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	want := []EventKind{Added, Added, Added, Moved, Removed, Removed}
	if !slices.Equal(kinds, want) {
		t.Errorf("events %v, want %v", kinds, want)
	}
	if mv := events[3]; mv.From != 0 || mv.Index != 2 || mv.Effect != x {
		t.Errorf("move event = %+v", mv)
	}

	for name, err := range map[string]error{
		"insert": c.Insert(5, x),
		"move":   c.Move(0, 3),
		"remove": func() error { _, err := c.Remove(-1); return err }(),
		"effect": func() error { _, err := c.Effect(1); return err }(),
	} {
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("%s: error %v, want ErrIndexOutOfRange", name, err)
		}
	}

	c.Clear()
	if c.Len() != 0 || events[len(events)-1].Kind != Changed {
		t.Error("Clear did not empty the chain and report it")
	}
}

func TestSetParameterThroughChain(t *testing.T) {
	c := New(effects.NewTremolo())
	var events []Event
	c.OnChange(func(ev Event) { events = append(events, ev) })

	if err := c.SetParameter(0, "depth", 2); !errors.Is(err, effects.ErrParameterClamped) {
		t.Errorf("clamped set: %v", err)
	}
	if err := c.SetParameter(0, "nope", 1); !errors.Is(err, effects.ErrUnknownParameter) {
		t.Errorf("unknown name: %v", err)
	}
	if err := c.SetParameter(3, "depth", 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("bad index: %v", err)
	}
	if err := c.SetEnabled(0, false); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("events = %+v, want depth then enabled", events)
	}
	if ev := events[0]; ev.Parameter != "depth" || ev.Value != 1 {
		t.Errorf("depth event = %+v", ev)
	}
	if ev := events[1]; ev.Parameter != "enabled" || ev.Value != 0 {
		t.Errorf("enabled event = %+v", ev)
	}
}

func TestChainPresets(t *testing.T) {
	c := New()
	names := c.PresetNames()
	for _, want := range []string{"guitar", "master", "vocal"} {
		if !slices.Contains(names, want) {
			t.Errorf("built-in preset %q missing from %v", want, names)
		}
	}

	if err := c.LoadPreset("master"); err != nil {
		t.Fatal(err)
	}
	var types []effects.Type
	for _, e := range c.Effects() {
		types = append(types, e.Type())
	}
	if want := []effects.Type{effects.TypeEqualizer, effects.TypeCompressor, effects.TypeLimiter}; !slices.Equal(types, want) {
		t.Fatalf("master preset types %v, want %v", types, want)
	}
	if v, _ := c.Effects()[1].Parameter("thresholdDb"); v != -6 {
		t.Errorf("master compressor threshold = %g", v)
	}

	_ = c.SetParameter(1, "ratio", 8)
	c.SavePreset("mine")
	if err := c.LoadPreset("vocal"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 4 {
		t.Fatalf("vocal preset has %d units", c.Len())
	}
	if err := c.LoadPreset("mine"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Effects()[1].Parameter("ratio"); v != 8 || c.Len() != 3 {
		t.Errorf("restored preset: %d units, ratio %g", c.Len(), v)
	}

	if err := c.LoadPreset("nope"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("unknown preset: %v", err)
	}
}

func TestApplyUpdatesInPlace(t *testing.T) {
	off := false
	c, err := FromConfig([]config.EffectConfig{
		{Type: "reverb"},
		{Type: "eq"},
	})
	if err != nil {
		t.Fatal(err)
	}
	first := c.Effects()[0]

	err = c.Apply([]config.EffectConfig{
		{Type: "reverb", Params: map[string]float64{"roomSize": 0.9}},
		{Type: "equalizer", Enabled: &off},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Effects()[0] != first {
		t.Error("same shape should keep the existing units")
	}
	if v, _ := first.Parameter("roomSize"); v != 0.9 {
		t.Errorf("roomSize = %g", v)
	}
	if c.Effects()[1].Enabled() {
		t.Error("eq should be disabled")
	}

	err = c.Apply([]config.EffectConfig{{Type: "wahwah"}, {Type: "delay"}})
	if err == nil {
		t.Error("unknown type accepted")
	}
	if c.Len() != 1 || c.Effects()[0].Type() != effects.TypeEcho {
		t.Errorf("rebuilt chain = %v", c.Effects())
	}

	err = c.Apply([]config.EffectConfig{{Type: "echo", Params: map[string]float64{"feedback": 5}}})
	if !errors.Is(err, effects.ErrParameterClamped) {
		t.Errorf("out of range param: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	eq := effects.NewEqualizer()
	eq.SetBands([]dsp.Band{
		{Type: dsp.LowShelf, Frequency: 120, GainDB: 3, Q: 0.7, Enabled: true},
		{Type: dsp.Peak, Frequency: 2500, GainDB: -4, Q: 2, Enabled: false},
	})
	_ = eq.SetParameter("outputGainDb", -2)
	comp := effects.NewCompressor()
	_ = comp.SetParameter("ratio", 6)
	lim := effects.NewLimiter()
	lim.SetEnabled(false)

	orig := New(eq, comp, lim)
	restored, err := FromConfig(orig.Snapshot())
	if err != nil {
		t.Fatal(err)
	}

	a, b := orig.Effects(), restored.Effects()
	if len(a) != len(b) {
		t.Fatalf("restored %d units, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i].Type() != b[i].Type() || a[i].Enabled() != b[i].Enabled() {
			t.Errorf("unit %d: %v/%v vs %v/%v", i, a[i].Type(), a[i].Enabled(), b[i].Type(), b[i].Enabled())
		}
		if !maps.Equal(a[i].Parameters(), b[i].Parameters()) {
			t.Errorf("unit %d parameters differ:\n%v\n%v", i, a[i].Parameters(), b[i].Parameters())
		}
	}
	if got := b[0].(*effects.Equalizer).Bands(); !slices.Equal(got, eq.Bands()) {
		t.Errorf("bands %v, want %v", got, eq.Bands())
	}
}

func TestConcurrentEdits(t *testing.T) {
	c := New(effects.NewReverb(), effects.NewChorus())
	input := testsignal.WhiteNoise(testBlock, 2, 0.5, 9)
	buf := make([]float32, len(input))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = c.SetParameter(0, "roomSize", float64(i%10)/10)
			e := effects.NewTremolo()
			c.Add(e)
			c.RemoveEffect(e)
		}
	}()

	for range 200 {
		copy(buf, input)
		if err := c.Process(buf, 2, testRate); err != nil {
			t.Error(err)
			break
		}
	}
	close(stop)
	wg.Wait()
}

func TestProcessAllocs(t *testing.T) {
	c := New(effects.NewReverb(), effects.NewEcho(), effects.NewCompressor(), effects.NewEqualizer())
	buf := testsignal.WhiteNoise(testBlock, 2, 0.5, 1)
	if err := c.Process(buf, 2, testRate); err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(50, func() {
		_ = c.Process(buf, 2, testRate)
	})
	if allocs > 0 {
		t.Errorf("Process allocated %.1f times per block", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	c := New(effects.NewCompressor(), effects.NewEqualizer(), effects.NewChorus(), effects.NewReverb())
	input := testsignal.WhiteNoise(testBlock, 2, 0.5, 1)
	buf := make([]float32, len(input))
	b.ReportAllocs()
	for b.Loop() {
		copy(buf, input)
		_ = c.Process(buf, 2, 48000)
	}
}
