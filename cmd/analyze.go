// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"keydetect/internal/analysis"
	"keydetect/internal/key"
	applog "keydetect/internal/log"
	"keydetect/internal/wavio"
)

func newAnalyzeCmd(state *rootState) *cobra.Command {
	var (
		mode    string
		seconds float64
	)

	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Detect the key of a WAV file offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			windowFunc, err := analysis.ParseWindowFunc(state.cfg.Detection.FFTWindow)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("window") {
				seconds = state.cfg.Detection.WindowSeconds
			}

			detected, err := analyzeFile(args[0], mode, seconds, windowFunc)
			if err != nil {
				return err
			}
			fmt.Println(detected)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "vote",
		"Analysis mode: vote (windowed majority) or full (single whole-file estimate)")
	cmd.Flags().Float64Var(&seconds, "window", 0,
		"Voting window length in seconds (vote mode)")
	return cmd
}

// analyzeFile runs one of the two offline strategies over the file and
// returns the detected key's display string.
func analyzeFile(path, mode string, seconds float64, windowFunc analysis.WindowFunc) (string, error) {
	clip, err := wavio.ReadFile(path)
	if err != nil {
		return "", err
	}
	applog.Debugf("analyze: %s (%d Hz, %d ch, %s)",
		path, clip.SampleRate, clip.Channels, clip.Duration().Round(0))

	estimator := analysis.NewChromaEstimator(windowFunc)

	switch mode {
	case "vote":
		detector, err := key.NewInlineDetector(clip.SampleRate, estimator)
		if err != nil {
			return "", err
		}
		detector.SetWindow(seconds)
		detector.Feed(clip.Stereo())
		detector.Flush()
		return detector.GetKey(), nil

	case "full":
		// One estimate over the whole file at its native rate.
		k, err := estimator.Estimate(clip.Mono(), clip.SampleRate)
		if err != nil {
			return "", err
		}
		return k.String(), nil

	default:
		return "", fmt.Errorf("unknown mode %q, want vote or full", mode)
	}
}
