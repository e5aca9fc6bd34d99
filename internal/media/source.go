// SPDX-License-Identifier: MIT

// Package media reads audio files into interleaved float32 blocks and
// writes processed blocks back out as PCM WAV.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidFile       = errors.New("invalid audio file")
)

// Source is a decoded stream of interleaved samples in [-1, 1].
type Source interface {
	SampleRate() int
	Channels() int
	// Read fills dst and returns the number of values written. It returns
	// 0, io.EOF once the stream is exhausted. A short read is not an end.
	Read(dst []float32) (int, error)
	Close() error
}

// Format names a container/codec.
type Format string

const (
	WAV    Format = "wav"
	MP3    Format = "mp3"
	Vorbis Format = "ogg"
)

// FormatFor picks a format from a file extension.
func FormatFor(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return WAV, nil
	case ".mp3":
		return MP3, nil
	case ".ogg", ".oga":
		return Vorbis, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Open decodes the file at path. Closing the source closes the file.
func Open(path string) (Source, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := Decode(format, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fileSource{Source: src, f: f}, nil
}

// Decode wraps r in a decoder for format. The returned source does not
// close r.
func Decode(format Format, r io.ReadSeeker) (Source, error) {
	switch format {
	case WAV:
		return newWAVSource(r)
	case MP3:
		return newMP3Source(r)
	case Vorbis:
		return newVorbisSource(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

type fileSource struct {
	Source
	f *os.File
}

func (s *fileSource) Close() error {
	return errors.Join(s.Source.Close(), s.f.Close())
}
