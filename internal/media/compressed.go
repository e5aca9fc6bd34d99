// SPDX-License-Identifier: MIT
package media

import (
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// go-mp3 always produces 16-bit little endian stereo.
const mp3Channels = 2

type mp3Source struct {
	dec *gomp3.Decoder
	buf []byte
}

func newMP3Source(r io.Reader) (*mp3Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return &mp3Source{dec: dec}, nil
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return mp3Channels }
func (s *mp3Source) Close() error    { return nil }

func (s *mp3Source) Read(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := 2 * len(dst)
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	n, err := io.ReadFull(s.dec, s.buf)
	samples := n / 2
	for i := range samples {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(s.buf[2*i:]))) / 32768
	}
	switch {
	case samples > 0:
		return samples, nil
	case err == nil || err == io.ErrUnexpectedEOF:
		return 0, io.EOF
	default:
		return 0, err
	}
}

type vorbisSource struct {
	dec *oggvorbis.Reader
}

func newVorbisSource(r io.Reader) (*vorbisSource, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return &vorbisSource{dec: dec}, nil
}

func (s *vorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.dec.Channels() }
func (s *vorbisSource) Close() error    { return nil }

func (s *vorbisSource) Read(dst []float32) (int, error) {
	// The decoder wants whole frames.
	ch := s.dec.Channels()
	dst = dst[:len(dst)-len(dst)%ch]
	if len(dst) == 0 {
		return 0, nil
	}
	n, err := s.dec.Read(dst)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}
