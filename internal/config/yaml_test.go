// SPDX-License-Identifier: MIT
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_Chain(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
audio:
  sample_rate: 48000
analysis:
  fft_size: 4096
chain:
  - type: compressor
    preset: vocal
    params:
      thresholdDb: -24
  - type: eq
    enabled: false
    bands:
      - {type: peak, frequency: 1000, gain_db: 6, q: 1}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Analysis.FFTSize != 4096 {
		t.Errorf("audio/analysis not loaded: %+v %+v", cfg.Audio, cfg.Analysis)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer || cfg.Analysis.Window != DefaultWindow {
		t.Errorf("defaults lost: %+v", cfg.Audio)
	}
	if len(cfg.Chain) != 2 {
		t.Fatalf("chain has %d entries, want 2", len(cfg.Chain))
	}
	comp, eq := cfg.Chain[0], cfg.Chain[1]
	if comp.Type != "compressor" || comp.Preset != "vocal" || comp.Params["thresholdDb"] != -24 || !comp.IsEnabled() {
		t.Errorf("compressor entry = %+v", comp)
	}
	if eq.IsEnabled() {
		t.Error("eq entry should be disabled")
	}
	if len(eq.Bands) != 1 || eq.Bands[0].GainDB != 6 || !eq.Bands[0].IsEnabled() {
		t.Errorf("eq bands = %+v", eq.Bands)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 1000 }, "audio.sample_rate"},
		{"fft size", func(c *Config) { c.Analysis.FFTSize = 1000 }, "analysis.fft_size"},
		{"hop size", func(c *Config) { c.Analysis.HopSize = 1 << 20 }, "analysis.hop_size"},
		{"channels", func(c *Config) { c.Audio.InputChannels = 0 }, "audio.input_channels"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"chain type", func(c *Config) { c.Chain = []EffectConfig{{}} }, "chain[0]: missing type"},
		{"udp address", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
		{"bit depth", func(c *Config) {
			c.Recording.Enabled = true
			c.Recording.BitDepth = 12
		}, "recording.bit_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_SAMPLE_RATE", "96000")
	t.Setenv("ENV_FFT_SIZE", "1024")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "10ms")
	t.Setenv("ENV_WS_ENABLED", "not-a-bool")

	path := writeTempConfig(t, "audio:\n  sample_rate: 48000\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.SampleRate != 96000 {
		t.Errorf("sample rate = %g, env should win over the file", cfg.Audio.SampleRate)
	}
	if cfg.Analysis.FFTSize != 1024 {
		t.Errorf("fft size = %d", cfg.Analysis.FFTSize)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPSendInterval != 10*time.Millisecond {
		t.Errorf("udp overrides not applied: %+v", cfg.Transport)
	}
	if cfg.Transport.WebSocketEnabled {
		t.Error("unparseable bool should be ignored")
	}
}

func TestWatchReloads(t *testing.T) {
	path := writeTempConfig(t, "chain:\n  - type: reverb\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)

	// An invalid file is skipped.
	if err := os.WriteFile(path, []byte("analysis:\n  fft_size: 1000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(path, []byte("chain:\n  - type: echo\n  - type: chorus\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-got:
			if len(cfg.Chain) == 2 && cfg.Chain[0].Type == "echo" {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Watch returned %v", err)
				}
				return
			}
			if cfg.Analysis.FFTSize == 1000 {
				t.Fatal("invalid configuration was delivered")
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
