// SPDX-License-Identifier: MIT

// Package cmd wires the command line to the engine.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"audiofx/internal/config"
	"audiofx/internal/log"
	"audiofx/pkg/build"
)

// options holds flag values. Flags only override the loaded configuration
// when they were set on the command line.
type options struct {
	ConfigPath string
	Watch      bool
	TUI        bool
	Preset     string

	InputDevice     int
	OutputDevice    int
	InputChannels   int
	OutputChannels  int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool

	Record     bool
	OutputFile string
	BitDepth   int

	WebSocket bool
	UDP       bool
	Verbose   bool
}

// Execute parses os.Args and runs the selected command until it finishes
// or ctx is cancelled.
func Execute(ctx context.Context) error {
	rootCmd := newRootCmd(&options{})
	rootCmd.SetArgs(os.Args[1:])
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd(opts *options) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time audio effect chain with spectral analysis",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		newListCmd(),
		newDevicesCmd(),
		newEffectsCmd(),
		newRenderCmd(opts),
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "",
		"Configuration file (default: config.yaml or audiofx.yaml if present)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVarP(&opts.Preset, "preset", "p", "",
		"Load a chain preset (vocal, guitar, master) instead of the configured chain")

	// Audio Device Configuration
	f := rootCmd.Flags()
	f.IntVarP(&opts.InputDevice, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use 'list' command to see available devices.")
	f.IntVar(&opts.OutputDevice, "output-device", config.DefaultDeviceID,
		"Output device ID")
	f.IntVarP(&opts.InputChannels, "channels", "c", config.DefaultChannels,
		"Number of input channels (1=mono, 2=stereo)")
	f.IntVar(&opts.OutputChannels, "output-channels", config.DefaultChannels,
		"Number of output channels; 0 runs without playback")
	f.Float64VarP(&opts.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	f.IntVarP(&opts.FramesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	f.BoolVarP(&opts.LowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Recording Configuration
	f.BoolVarP(&opts.Record, "record", "r", false,
		"Record the processed output")
	f.StringVarP(&opts.OutputFile, "output", "o", "",
		"Recording file name. Default is <output_dir>/recording-DD-MM-YYYY-HHMMSS.wav")
	f.IntVar(&opts.BitDepth, "bit-depth", config.DefaultBitDepth,
		"Recording bit depth (16, 24 or 32)")

	// Visualization
	f.BoolVar(&opts.WebSocket, "websocket", false, "Serve analysis frames over WebSocket")
	f.BoolVar(&opts.UDP, "udp", false, "Publish spectrum packets over UDP")
	f.BoolVarP(&opts.TUI, "tui", "t", false, "Show the terminal monitor")
	f.BoolVarP(&opts.Watch, "watch", "w", false, "Reload the chain when the configuration file changes")

	return rootCmd
}

// loadConfig loads the configuration file and applies the flags that
// were set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	set := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if set("device") {
		cfg.Audio.InputDevice = opts.InputDevice
	}
	if set("output-device") {
		cfg.Audio.OutputDevice = opts.OutputDevice
	}
	if set("channels") {
		cfg.Audio.InputChannels = opts.InputChannels
	}
	if set("output-channels") {
		cfg.Audio.OutputChannels = opts.OutputChannels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = opts.SampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = opts.FramesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = opts.LowLatency
	}
	if set("record") {
		cfg.Recording.Enabled = opts.Record
	}
	if set("bit-depth") {
		cfg.Recording.BitDepth = opts.BitDepth
	}
	if set("websocket") {
		cfg.Transport.WebSocketEnabled = opts.WebSocket
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = opts.UDP
	}
	if opts.Verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	applyLogLevel(cfg)
	return cfg, nil
}

func applyLogLevel(cfg *config.Config) {
	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		log.Warnf("configuration: unknown log level %q, using info", cfg.LogLevel)
	}
	log.SetLevel(level)
}
