// SPDX-License-Identifier: MIT

// Package render runs audio files through an effect chain offline.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"audiofx/internal/analysis"
	"audiofx/internal/config"
	"audiofx/internal/log"
	"audiofx/internal/media"
)

// Processor transforms interleaved blocks in place.
type Processor interface {
	Process(buf []float32, channels, sampleRate int) error
}

// Options control a render.
type Options struct {
	BlockFrames int           // frames per block; 0 uses the default
	BitDepth    int           // output bit depth; 0 uses the default
	Tail        time.Duration // silence appended so effect tails ring out
	Analyzer    analysis.AudioProcessor
	// Progress, when set, is called after every block with the frames
	// written so far.
	Progress func(frames int64)
}

// Result summarizes a render.
type Result struct {
	SampleRate int
	Channels   int
	Frames     int64
	Blocks     int
	Errors     int // blocks the processor reported a problem for
}

// Duration is the rendered length.
func (r Result) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(r.Frames) / float64(r.SampleRate) * float64(time.Second))
}

// File renders the audio file at in to a WAV file at out.
func File(ctx context.Context, in, out string, p Processor, opts Options) (Result, error) {
	src, err := media.Open(in)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	w, err := media.Create(out, src.SampleRate(), src.Channels(), bitDepth(opts))
	if err != nil {
		return Result{}, err
	}
	res, err := Stream(ctx, src, w, p, opts)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return res, err
	}
	log.Infof("render: %s -> %s, %.2fs at %d Hz, %d ch, %d blocks with errors",
		in, out, res.Duration().Seconds(), res.SampleRate, res.Channels, res.Errors)
	return res, nil
}

func bitDepth(opts Options) int {
	if opts.BitDepth == 0 {
		return config.DefaultBitDepth
	}
	return opts.BitDepth
}

// Writer receives processed blocks.
type Writer interface {
	Write(block []float32) error
}

// Stream pulls blocks from src, processes them and writes them to w until
// src is exhausted and the tail has been rendered. Processor errors are
// counted, not fatal, since the chain already passed the block through.
func Stream(ctx context.Context, src media.Source, w Writer, p Processor, opts Options) (Result, error) {
	frames := opts.BlockFrames
	if frames <= 0 {
		frames = config.DefaultFramesPerBuffer
	}
	res := Result{SampleRate: src.SampleRate(), Channels: src.Channels()}
	if res.Channels <= 0 || res.SampleRate <= 0 {
		return res, fmt.Errorf("render: bad source format %d Hz, %d channels", res.SampleRate, res.Channels)
	}
	ch := res.Channels
	buf := make([]float32, frames*ch)
	tail := int64(opts.Tail.Seconds() * float64(res.SampleRate))
	eof := false

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n := 0
		if !eof {
			var err error
			n, err = fill(src, buf)
			if errors.Is(err, io.EOF) {
				eof = true
			} else if err != nil {
				return res, fmt.Errorf("render: read: %w", err)
			}
			n -= n % ch
		}
		if eof && n == 0 {
			if tail <= 0 {
				return res, nil
			}
			n = int(min(tail, int64(frames))) * ch
			clear(buf[:n])
			tail -= int64(n / ch)
		}

		block := buf[:n]
		if err := p.Process(block, ch, res.SampleRate); err != nil {
			res.Errors++
		}
		if opts.Analyzer != nil {
			opts.Analyzer.Process(block, ch, res.SampleRate)
		}
		if err := w.Write(block); err != nil {
			return res, fmt.Errorf("render: write: %w", err)
		}
		res.Frames += int64(n / ch)
		res.Blocks++
		if opts.Progress != nil {
			opts.Progress(res.Frames)
		}
	}
}

// fill reads until buf is full or the source ends. It returns io.EOF only
// alongside the final, possibly partial, count.
func fill(src media.Source, buf []float32) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := src.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}
