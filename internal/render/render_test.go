// SPDX-License-Identifier: MIT
package render

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"audiofx/internal/analysis"
	"audiofx/internal/chain"
	"audiofx/internal/effects"
	"audiofx/internal/media"
	"audiofx/pkg/testsignal"
)

const rate = 8000

func writeInput(t *testing.T, path string, block []float32, channels int) {
	t.Helper()
	w, err := media.Create(path, rate, channels, 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(block); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func readOutput(t *testing.T, path string) []float32 {
	t.Helper()
	src, err := media.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	var out []float32
	buf := make([]float32, 512)
	for {
		n, err := src.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestFileRendersEchoTail(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav")
	input := testsignal.Impulse(4000, 1, 0)
	input[0] = 0.5
	writeInput(t, in, input, 1)

	echo := effects.NewEcho()
	_ = echo.SetParameter("delayTimeMs", 250)
	_ = echo.SetParameter("feedback", 0.5)
	_ = echo.SetParameter("numEchoes", 3)

	cfg := analysis.DefaultConfig(rate)
	cfg.FFTSize = 1024
	an, err := analysis.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	var progress int64
	res, err := File(context.Background(), in, out, chain.New(echo), Options{
		BlockFrames: 256,
		Tail:        time.Second,
		Analyzer:    an,
		Progress:    func(f int64) { progress = f },
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 12000 || progress != res.Frames {
		t.Errorf("frames = %d, progress = %d, want 12000", res.Frames, progress)
	}
	if res.Errors != 0 {
		t.Errorf("errors = %d", res.Errors)
	}
	if d := res.Duration(); d != 1500*time.Millisecond {
		t.Errorf("duration = %s", d)
	}
	if an.Sequence() == 0 {
		t.Error("analyzer never ran")
	}

	got := readOutput(t, out)
	if len(got) != 12000 {
		t.Fatalf("output has %d samples", len(got))
	}
	want := map[int]float64{0: 0.5, 2000: 0.25, 4000: 0.125, 6000: 0.0625}
	for i, v := range got {
		w := want[i]
		if math.Abs(float64(v)-w) > 2.0/32768 {
			t.Fatalf("sample %d = %f, want %f", i, v, w)
		}
	}
}

// chunkySource hands out at most max samples per Read.
type chunkySource struct {
	data     []float32
	max      int
	channels int
}

func (s *chunkySource) SampleRate() int { return rate }
func (s *chunkySource) Channels() int   { return s.channels }
func (s *chunkySource) Close() error    { return nil }

func (s *chunkySource) Read(dst []float32) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := copy(dst[:min(len(dst), s.max)], s.data)
	s.data = s.data[n:]
	return n, nil
}

type collect struct{ samples []float32 }

func (c *collect) Write(block []float32) error {
	c.samples = append(c.samples, block...)
	return nil
}

type flaky struct{ calls int }

func (f *flaky) Process(buf []float32, channels, sampleRate int) error {
	f.calls++
	if f.calls%2 == 0 {
		return errors.New("odd block")
	}
	return nil
}

func TestStreamShortReads(t *testing.T) {
	src := &chunkySource{data: testsignal.Sine(1000, 2, rate, 440, 0.5), max: 30, channels: 2}
	var sink collect
	p := &flaky{}
	res, err := Stream(context.Background(), src, &sink, p, Options{BlockFrames: 100})
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 1000 || len(sink.samples) != 2000 {
		t.Errorf("frames = %d, samples = %d", res.Frames, len(sink.samples))
	}
	if res.Blocks != 10 || res.Errors != 5 {
		t.Errorf("blocks = %d, errors = %d, want 10 and 5", res.Blocks, res.Errors)
	}
}

func TestStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &chunkySource{data: make([]float32, 100), max: 100, channels: 1}
	_, err := Stream(ctx, src, &collect{}, &flaky{}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := File(context.Background(), filepath.Join(dir, "none.wav"), filepath.Join(dir, "o.wav"), chain.New(), Options{}); err == nil {
		t.Error("missing input accepted")
	}
	in := filepath.Join(dir, "in.wav")
	writeInput(t, in, make([]float32, 10), 1)
	if _, err := File(context.Background(), in, filepath.Join(dir, "o.wav"), chain.New(), Options{BitDepth: 12}); !errors.Is(err, media.ErrUnsupportedFormat) {
		t.Errorf("bad bit depth: %v", err)
	}
}
