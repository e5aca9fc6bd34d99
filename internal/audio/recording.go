// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"audiofx/internal/config"
	"audiofx/internal/log"
	"audiofx/internal/media"
)

// ErrAlreadyRecording is returned by StartRecording while a recording runs.
var ErrAlreadyRecording = errors.New("already recording")

// RecordingOptions control a recording.
type RecordingOptions struct {
	BitDepth         int
	MaxDuration      time.Duration // 0 for unlimited
	MaxWriteFailures int           // consecutive; 0 uses the default
}

type recorder struct {
	mu        sync.Mutex
	w         *media.Writer
	maxFrames int64
	maxFails  int
	fails     int
	closed    bool
	err       error
}

// write appends a block and reports whether the recording should end.
func (r *recorder) write(block []float32) (done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if err := r.w.Write(block); err != nil {
		r.fails++
		r.err = err
		return r.fails >= r.maxFails
	}
	r.fails = 0
	return r.maxFrames > 0 && r.w.Frames() >= r.maxFrames
}

func (r *recorder) frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Frames()
}

func (r *recorder) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.w.Close()
}

// StartRecording writes the processed signal to filename as WAV.
func (e *Engine) StartRecording(filename string, opts RecordingOptions) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	if e.recorder.Load() != nil {
		return ErrAlreadyRecording
	}
	if opts.BitDepth == 0 {
		opts.BitDepth = config.DefaultBitDepth
	}
	if opts.MaxWriteFailures <= 0 {
		opts.MaxWriteFailures = config.DefaultMaxConsecutiveWriteFailures
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create recording directory: %w", err)
		}
	}
	w, err := media.Create(filename, e.sampleRate, e.channels, opts.BitDepth)
	if err != nil {
		return err
	}
	e.recorder.Store(&recorder{
		w:         w,
		maxFrames: int64(opts.MaxDuration.Seconds() * float64(e.sampleRate)),
		maxFails:  opts.MaxWriteFailures,
	})
	log.Infof("audio: recording to %s (%d-bit)", filename, opts.BitDepth)
	return nil
}

// StopRecording finalizes the current recording, if any.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	r := e.recorder.Swap(nil)
	if r == nil {
		// A recording that ended on its own may still be finalizing.
		e.closing.Wait()
		return nil
	}
	return e.closeRecorder(r)
}

// IsRecording reports whether a recording is active.
func (e *Engine) IsRecording() bool {
	return e.recorder.Load() != nil
}

// finishRecording ends r from the stream callback. Closing happens off the
// audio thread.
func (e *Engine) finishRecording(r *recorder) {
	if !e.recorder.CompareAndSwap(r, nil) {
		return
	}
	e.closing.Add(1)
	go func() {
		defer e.closing.Done()
		if err := e.closeRecorder(r); err != nil {
			log.Errorf("audio: %v", err)
		}
	}()
}

func (e *Engine) closeRecorder(r *recorder) error {
	frames := r.frames()
	if err := r.close(); err != nil {
		return fmt.Errorf("close recording %s: %w", r.w.Path(), err)
	}
	r.mu.Lock()
	writeErr, fails := r.err, r.fails
	r.mu.Unlock()
	if fails > 0 {
		log.Warnf("audio: recording %s stopped after %d failed writes: %v", r.w.Path(), fails, writeErr)
	}
	log.Infof("audio: saved %s (%.1fs)", r.w.Path(), float64(frames)/float64(e.sampleRate))
	return nil
}
