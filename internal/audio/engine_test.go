// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"testing"

	"audiofx/internal/config"
)

const (
	testSampleRate = 48000
	testFrameSize  = 256
)

// scaler multiplies every sample and optionally fails.
type scaler struct {
	gain  float32
	fail  bool
	calls int
	seen  int // channels of the last call
}

func (s *scaler) Process(buf []float32, channels, sampleRate int) error {
	s.calls++
	s.seen = channels
	for i := range buf {
		buf[i] *= s.gain
	}
	if s.fail {
		return errors.New("effect failed")
	}
	return nil
}

type tap struct {
	blocks  int
	samples int
}

func (t *tap) Process(block []float32, channels, sampleRate int) {
	t.blocks++
	t.samples += len(block)
}

func testAudioConfig(in, out int) config.AudioConfig {
	return config.AudioConfig{
		SampleRate:      testSampleRate,
		FramesPerBuffer: testFrameSize,
		InputChannels:   in,
		OutputChannels:  out,
	}
}

func newTestEngine(t testing.TB, in, out int) (*Engine, *scaler, *tap) {
	t.Helper()
	s, a := &scaler{gain: 2}, &tap{}
	e, err := newEngine(testAudioConfig(in, out), s, a)
	if err != nil {
		t.Fatal(err)
	}
	return e, s, a
}

func TestProcessBlockChannelMapping(t *testing.T) {
	tests := []struct {
		name    string
		in, out int
		input   []float32
		want    []float32
	}{
		{"mono to stereo", 1, 2, []float32{0.1, 0.2}, []float32{0.2, 0.2, 0.4, 0.4}},
		{"stereo to stereo", 2, 2, []float32{0.1, -0.1, 0.2, -0.2}, []float32{0.2, -0.2, 0.4, -0.4}},
		{"stereo to mono", 2, 1, []float32{0.1, 0.3, 0.2, 0.4}, []float32{0.2, 0.4}},
		{"capture only", 2, 0, []float32{0.1, 0.3}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s, _ := newTestEngine(t, tt.in, tt.out)
			var out []float32
			if tt.want != nil {
				out = make([]float32, len(tt.want)+2)
				out[len(out)-1] = 9 // must be cleared
			}
			e.processBlock(tt.input, out)

			if s.seen != e.Channels() {
				t.Errorf("chain saw %d channels, want %d", s.seen, e.Channels())
			}
			for i, w := range tt.want {
				if diff := out[i] - w; diff > 1e-6 || diff < -1e-6 {
					t.Errorf("out[%d] = %f, want %f", i, out[i], w)
				}
			}
			if out != nil && out[len(out)-1] != 0 {
				t.Error("output tail not cleared")
			}
		})
	}
}

func TestProcessBlockCountsErrors(t *testing.T) {
	e, s, _ := newTestEngine(t, 2, 2)
	s.fail = true
	e.processBlock(make([]float32, 8), make([]float32, 8))
	e.processBlock(make([]float32, 8), make([]float32, 8))
	st := e.Stats()
	if st.Blocks != 2 || st.Errors != 2 {
		t.Errorf("stats = %+v, want 2 blocks 2 errors", st)
	}
}

func TestGateSkipsQuietBlocks(t *testing.T) {
	e, _, a := newTestEngine(t, 1, 1)
	e.SetGateThreshold(0.1)

	quiet := []float32{0.01, -0.02, 0.01, 0}
	loud := []float32{0.01, -0.3, 0.01, 0}
	e.processBlock(quiet, nil)
	if a.blocks != 0 {
		t.Fatal("quiet block reached the analyzer")
	}
	e.processBlock(loud, nil)
	if a.blocks != 1 {
		t.Fatal("loud block did not reach the analyzer")
	}
	e.DisableGate()
	e.processBlock(quiet, nil)
	if a.blocks != 2 {
		t.Fatal("disabled gate blocked analysis")
	}
	if got := e.Stats().Analyzed; got != 2 {
		t.Errorf("Analyzed = %d, want 2", got)
	}
	// Peak is measured after the chain's gain of 2.
	if got := e.Stats().Peak; got < 0.039 || got > 0.041 {
		t.Errorf("Peak = %f, want 0.04", got)
	}
}

func TestNewEngineValidation(t *testing.T) {
	if _, err := newEngine(testAudioConfig(2, 2), nil, nil); err == nil {
		t.Error("nil processor accepted")
	}
	if _, err := newEngine(testAudioConfig(0, 2), &scaler{}, nil); err == nil {
		t.Error("zero input channels accepted")
	}
	e, err := newEngine(testAudioConfig(2, 2), &scaler{gain: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// A nil analyzer is fine.
	e.processBlock(make([]float32, 4), make([]float32, 4))
	if err := e.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestProcessBlockAllocs(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, 2)
	in := make([]float32, testFrameSize)
	out := make([]float32, 2*testFrameSize)
	for i := range in {
		in[i] = 0.5
	}
	allocs := testing.AllocsPerRun(100, func() { e.processBlock(in, out) })
	if allocs > 0 {
		t.Errorf("processBlock allocated %.1f times", allocs)
	}
}

func BenchmarkProcessBlock(b *testing.B) {
	e, _, _ := newTestEngine(b, 2, 2)
	in := make([]float32, 2*testFrameSize)
	out := make([]float32, 2*testFrameSize)
	b.ReportAllocs()
	for b.Loop() {
		e.processBlock(in, out)
	}
}
