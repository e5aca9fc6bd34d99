// SPDX-License-Identifier: MIT
package media

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

type wavSource struct {
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	scale    float32
	offset   int
	rate     int
	channels int
}

func newWAVSource(r io.ReadSeeker) (*wavSource, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrInvalidFile)
	}
	if dec.WavAudioFormat != pcmFormat {
		return nil, fmt.Errorf("%w: WAV format %d, only integer PCM is read", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	format := dec.Format()
	depth := int(dec.SampleBitDepth())
	if format.NumChannels <= 0 || depth == 0 {
		return nil, fmt.Errorf("%w: %d channels, %d bits", ErrInvalidFile, format.NumChannels, depth)
	}
	s := &wavSource{
		dec:      dec,
		buf:      &audio.IntBuffer{Format: format, SourceBitDepth: depth},
		scale:    float32(math.Ldexp(1, depth-1)),
		rate:     format.SampleRate,
		channels: format.NumChannels,
	}
	if depth == 8 {
		s.offset = 128 // 8-bit WAV is unsigned
	}
	return s, nil
}

func (s *wavSource) SampleRate() int { return s.rate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) Read(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(s.buf.Data) < len(dst) {
		s.buf.Data = make([]int, len(dst))
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.buf)
	if n == 0 {
		if err != nil && err != io.EOF {
			return 0, err
		}
		return 0, io.EOF
	}
	for i, v := range s.buf.Data[:n] {
		dst[i] = float32(v-s.offset) / s.scale
	}
	return n, nil
}

// Writer encodes interleaved float32 blocks as integer PCM WAV.
type Writer struct {
	enc      *wav.Encoder
	file     *os.File
	buf      *audio.IntBuffer
	scale    float64
	channels int
	frames   int64
}

// Create writes a new WAV file at path. bitDepth is 16, 24 or 32.
func Create(path string, sampleRate, channels, bitDepth int) (*Writer, error) {
	if err := checkWriterFormat(sampleRate, channels, bitDepth); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		enc:  wav.NewEncoder(f, sampleRate, bitDepth, channels, pcmFormat),
		file: f,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		scale:    math.Ldexp(1, bitDepth-1) - 1,
		channels: channels,
	}, nil
}

func checkWriterFormat(sampleRate, channels, bitDepth int) error {
	switch {
	case bitDepth != 16 && bitDepth != 24 && bitDepth != 32:
		return fmt.Errorf("%w: %d bit WAV output", ErrUnsupportedFormat, bitDepth)
	case sampleRate <= 0 || channels <= 0:
		return fmt.Errorf("%w: %d Hz, %d channels", ErrUnsupportedFormat, sampleRate, channels)
	}
	return nil
}

// Write appends a block. Samples outside [-1, 1] are clipped.
func (w *Writer) Write(block []float32) error {
	if len(block)%w.channels != 0 {
		return fmt.Errorf("block of %d samples is not a whole number of %d-channel frames", len(block), w.channels)
	}
	if cap(w.buf.Data) < len(block) {
		w.buf.Data = make([]int, len(block))
	}
	w.buf.Data = w.buf.Data[:len(block)]
	for i, x := range block {
		v := min(max(float64(x), -1), 1)
		w.buf.Data[i] = int(math.Round(v * w.scale))
	}
	if err := w.enc.Write(w.buf); err != nil {
		return err
	}
	w.frames += int64(len(block) / w.channels)
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int64 { return w.frames }

// Path returns the output file name.
func (w *Writer) Path() string { return w.file.Name() }

// Close finalizes the header and closes the file.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize WAV: %w", encErr)
	}
	return fileErr
}
