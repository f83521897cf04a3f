// SPDX-License-Identifier: MIT

// Package cmd wires the command-line interface: live detection, offline
// file analysis, dataset scoring, and device listing.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"keydetect/internal/config"
	applog "keydetect/internal/log"
	"keydetect/pkg/build"
)

// rootState carries the values shared by every subcommand.
type rootState struct {
	cfgPath  string
	logLevel string

	deviceID   int
	sampleRate int

	cfg *config.Config
}

// Execute parses arguments and runs the selected command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	info := build.GetBuildFlags()
	name := info.Name
	if name == "unknown" {
		name = "keydetect"
	}
	state := &rootState{}

	rootCmd := &cobra.Command{
		Use:           name,
		Short:         "Live musical key detection",
		Version:       info.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&state.cfgPath, "config", "",
		"Path to a YAML config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().IntVarP(&state.deviceID, "device", "d", config.DefaultInputDevice,
		"Input device ID; use the devices command to list them")
	rootCmd.PersistentFlags().IntVarP(&state.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Capture sample rate in Hz")

	rootCmd.AddCommand(
		newLiveCmd(state),
		newAnalyzeCmd(state),
		newScoreCmd(state),
		newDevicesCmd(),
	)
	return rootCmd
}

// load builds the effective configuration: file and environment first,
// then explicit command-line flags on top.
func (s *rootState) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(s.cfgPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("device") {
		cfg.Audio.InputDevice = s.deviceID
	}
	if cmd.Flags().Changed("sample-rate") {
		cfg.Audio.SampleRate = s.sampleRate
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	applog.SetLevel(level)

	s.cfg = cfg
	return nil
}
