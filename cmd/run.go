// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"audiofx/internal/analysis"
	"audiofx/internal/audio"
	"audiofx/internal/chain"
	"audiofx/internal/config"
	"audiofx/internal/log"
	"audiofx/internal/transport"
	"audiofx/internal/transport/udp"
	"audiofx/internal/tui"
)

// buildChain returns the configured chain, or the named preset when one
// is given. Entries that fail to build are logged and skipped.
func buildChain(cfg *config.Config, preset string) (*chain.Chain, error) {
	c, err := chain.FromConfig(cfg.Chain)
	if err != nil {
		log.Warnf("chain: %v", err)
	}
	if preset != "" {
		if err := c.LoadPreset(preset); err != nil {
			return nil, fmt.Errorf("preset: %w (have %v)", err, c.PresetNames())
		}
	}
	c.OnError(func(err error) { log.Debugf("chain: %v", err) })
	for i, e := range c.Effects() {
		log.Infof("chain: %d. %s", i+1, e.Name())
	}
	return c, nil
}

// newTransports builds the frame transports the configuration enables.
// The result may be empty.
func newTransports(cfg *config.Config) transport.Multi {
	var ts transport.Multi
	t := cfg.Transport
	if t.WebSocketEnabled {
		ts = append(ts, transport.NewWebSocketTransport(t.WebSocketAddress, t.WebSocketPath, t.MaxFPS))
	}
	if cfg.Debug {
		ts = append(ts, transport.NewLoggingTransport(100))
	}
	return ts
}

// recordingPath names a recording in dir after the current time.
func recordingPath(dir, format string, now time.Time) string {
	return filepath.Join(dir, "recording-"+now.UTC().Format("02-01-2006-150405")+"."+format)
}

// logToFile diverts log output to path while the monitor owns the
// terminal. The returned func restores stderr and closes the file.
func logToFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	log.Infof("logging to %s while the monitor runs", path)
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

// run streams audio through the chain until ctx is done or the monitor
// quits.
func run(ctx context.Context, cfg *config.Config, opts *options) (err error) {
	if opts.Watch && opts.ConfigPath == "" {
		return errors.New("--watch needs --config")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	c, err := buildChain(cfg, opts.Preset)
	if err != nil {
		return err
	}

	acfg, err := analysis.FromConfig(cfg.Analysis, cfg.Audio.SampleRate)
	if err != nil {
		return err
	}
	var frames transport.Transport
	if ts := newTransports(cfg); len(ts) > 0 {
		frames = ts
	}
	analyzer, err := analysis.New(acfg, frames)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := analyzer.Close(); cerr != nil {
			log.Warnf("analysis: close: %v", cerr)
		}
	}()

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, analyzer)
		if err != nil {
			return err
		}
		pub.Start()
		defer pub.Close()
	}

	engine, err := audio.NewEngine(cfg.Audio, c, analyzer)
	if err != nil {
		return err
	}
	if err := engine.Start(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, engine.Close())
	}()

	if cfg.Recording.Enabled {
		path := opts.OutputFile
		if path == "" {
			path = recordingPath(cfg.Recording.OutputDir, cfg.Recording.Format, time.Now())
		}
		ropts := audio.RecordingOptions{
			BitDepth:    cfg.Recording.BitDepth,
			MaxDuration: time.Duration(cfg.Recording.MaxDuration) * time.Second,
		}
		if err := engine.StartRecording(path, ropts); err != nil {
			return err
		}
	}

	if opts.Watch {
		go func() {
			err := config.Watch(ctx, opts.ConfigPath, func(next *config.Config) {
				if err := c.Apply(next.Chain); err != nil {
					log.Warnf("chain: reload: %v", err)
				}
				applyLogLevel(next)
			})
			if err != nil {
				log.Errorf("%v", err)
			}
		}()
	}

	if opts.TUI {
		restore, err := logToFile(filepath.Join(os.TempDir(), "audiofx.log"))
		if err != nil {
			return err
		}
		defer restore()
		return tui.RunMonitor(tui.Sources{
			Chain: c,
			Stats: engine.Stats,
			Frame: analyzer.Latest,
		})
	}

	log.Infof("running, press Ctrl+C to stop")
	<-ctx.Done()
	s := engine.Stats()
	log.Infof("processed %d blocks, %d with errors, %d analyzed", s.Blocks, s.Errors, s.Analyzed)
	return nil
}
