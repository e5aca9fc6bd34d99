// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"audiofx/internal/analysis"
	"audiofx/internal/audio"
	"audiofx/internal/config"
	"audiofx/internal/effects"
	"audiofx/internal/log"
	"audiofx/internal/media"
	"audiofx/internal/render"
	"audiofx/internal/tui"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Pick a device interactively and print its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, ok, err := tui.SelectDevice()
			if err != nil || !ok {
				return err
			}
			return writeDeviceConfig(cmd.OutOrStdout(), sel)
		},
	}
}

// writeDeviceConfig prints the audio section for sel as YAML.
func writeDeviceConfig(w io.Writer, sel tui.Selection) error {
	a := config.Default().Audio
	a.InputDevice = sel.Device.ID
	a.SampleRate = sel.SampleRate
	a.InputChannels = min(max(sel.Device.MaxInputChannels, 1), config.DefaultChannels)
	a.OutputChannels = min(sel.Device.MaxOutputChannels, config.DefaultChannels)
	if a.OutputChannels > 0 {
		a.OutputDevice = sel.Device.ID
	}
	out, err := yaml.Marshal(struct {
		Audio config.AudioConfig `yaml:"audio"`
	}{a})
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func newEffectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "effects [type...]",
		Short: "Describe effect types, their parameters and presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := effects.Types()
			if len(args) > 0 {
				types = types[:0]
				for _, name := range args {
					t, err := effects.ParseType(name)
					if err != nil {
						return err
					}
					types = append(types, t)
				}
			}
			return describeEffects(cmd.OutOrStdout(), types)
		},
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

// describeEffects prints a parameter table per effect type.
func describeEffects(w io.Writer, types []effects.Type) error {
	for _, t := range types {
		e, err := effects.New(t)
		if err != nil {
			return err
		}
		tbl := table.New().
			Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers("parameter", "min", "max", "default", "unit")
		for _, s := range e.ParameterSpecs() {
			tbl.Row(s.Name, fmt.Sprintf("%g", s.Min), fmt.Sprintf("%g", s.Max), fmt.Sprintf("%g", s.Default), s.Unit)
		}
		fmt.Fprintf(w, "%s (%s)\n%s\npresets: %s\n\n",
			t.DisplayName(), t, tbl.Render(), strings.Join(e.PresetNames(), ", "))
	}
	return nil
}

// fileAnalyzer builds an analyzer at the sample rate of the file at path.
func fileAnalyzer(c config.AnalysisConfig, path string) (*analysis.Analyzer, error) {
	src, err := media.Open(path)
	if err != nil {
		return nil, err
	}
	rate := float64(src.SampleRate())
	src.Close()

	acfg, err := analysis.FromConfig(c, rate)
	if err != nil {
		return nil, err
	}
	log.Debugf("render: analyzing at %.0f Hz, FFT %d", rate, acfg.FFTSize)
	return analysis.New(acfg, nil)
}

func newRenderCmd(opts *options) *cobra.Command {
	var (
		tail      time.Duration
		bitDepth  int
		block     int
		summarize bool
	)
	cmd := &cobra.Command{
		Use:   "render <input> <output.wav>",
		Short: "Process an audio file (wav, mp3, ogg) through the chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Verbose {
				cfg.LogLevel = "debug"
			}
			applyLogLevel(cfg)

			c, err := buildChain(cfg, opts.Preset)
			if err != nil {
				return err
			}
			ropts := render.Options{BlockFrames: block, BitDepth: bitDepth, Tail: tail}

			var analyzer *analysis.Analyzer
			if summarize {
				if analyzer, err = fileAnalyzer(cfg.Analysis, args[0]); err != nil {
					return err
				}
				defer analyzer.Close()
				ropts.Analyzer = analyzer
			}

			res, err := render.File(cmd.Context(), args[0], args[1], c, ropts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2fs, %d Hz, %d channels, %d blocks\n",
				args[1], res.Duration().Seconds(), res.SampleRate, res.Channels, res.Blocks)
			if analyzer != nil && analyzer.Sequence() > 0 {
				f := analyzer.Latest()
				fmt.Fprintf(cmd.OutOrStdout(), "last frame: rms %.3f, centroid %.0f Hz, dominant %.0f Hz\n",
					f.Features.RMS, f.Features.SpectralCentroid, f.DominantHz)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&tail, "tail", 2*time.Second, "Silence appended so reverb and echo tails ring out")
	cmd.Flags().IntVar(&bitDepth, "bit-depth", config.DefaultBitDepth, "Output bit depth (16, 24 or 32)")
	cmd.Flags().IntVar(&block, "block", config.DefaultFramesPerBuffer, "Frames per processing block")
	cmd.Flags().BoolVar(&summarize, "analyze", false, "Analyze the output and print the final frame")
	return cmd
}
