// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/cobra"

	"keydetect/internal/analysis"
	"keydetect/internal/config"
	"keydetect/internal/key"
	applog "keydetect/internal/log"
	"keydetect/internal/score"
	"keydetect/internal/wavio"
)

func newScoreCmd(state *rootState) *cobra.Command {
	var (
		listPath string
		audioDir string
		jobs     int
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Grade detection accuracy against an annotated dataset",
		Long: `Runs windowed key detection over every file in an annotation list and
grades each result as exact, relative, fifth-related, or wrong. List
lines have the form "<base>|<key>", where <base>.wav lives in the audio
directory and <key> is an annotation such as "C major" or "F# minor".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(state.cfg.Detection, listPath, audioDir, jobs, verbose)
		},
	}

	cmd.Flags().StringVar(&listPath, "list", "", "Annotation list file (required)")
	cmd.Flags().StringVar(&audioDir, "dir", ".", "Directory holding the WAV files")
	cmd.Flags().IntVar(&jobs, "jobs", runtime.NumCPU(), "Files analyzed in parallel")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print one line per file")
	cmd.MarkFlagRequired("list")
	return cmd
}

// fileResult is one scored file.
type fileResult struct {
	base     string
	detected string
	expected string
	skipped  bool
}

func runScore(detection config.DetectionConfig, listPath, audioDir string, jobs int, verbose bool) error {
	windowFunc, err := analysis.ParseWindowFunc(detection.FFTWindow)
	if err != nil {
		return err
	}

	listFile, err := os.Open(listPath)
	if err != nil {
		return fmt.Errorf("failed to open annotation list: %w", err)
	}
	entries, err := score.ReadList(listFile)
	listFile.Close()
	if err != nil {
		return fmt.Errorf("failed to read annotation list: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("annotation list %s contains no entries", listPath)
	}
	if jobs < 1 {
		jobs = 1
	}

	// Estimators keep per-instance scratch, so each worker gets its own.
	work := make(chan score.Entry)
	results := make(chan fileResult)

	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			estimator := analysis.NewChromaEstimator(windowFunc)
			for entry := range work {
				results <- scoreFile(entry, audioDir, detection.WindowSeconds, estimator)
			}
		}()
	}
	go func() {
		for _, entry := range entries {
			work <- entry
		}
		close(work)
		wg.Wait()
		close(results)
	}()

	var (
		report  score.Report
		skipped int
	)
	for res := range results {
		if res.skipped {
			skipped++
			continue
		}
		m := report.Add(res.base, res.detected, res.expected)
		if verbose {
			fmt.Printf("  %s %-40s expected [%s] got [%s]\n",
				m.Marker(), res.base, res.expected, res.detected)
		}
	}

	if report.Total == 0 {
		return fmt.Errorf("no files scored (%d skipped)", skipped)
	}

	fmt.Printf("\nScored %d files (%d skipped)\n\n", report.Total, skipped)
	fmt.Println(report.String())
	if verbose && report.Wrong > 0 {
		fmt.Println("\nMisdetections:")
		for _, line := range report.WrongDetections() {
			fmt.Printf("  %s\n", line)
		}
	}
	return nil
}

// scoreFile detects the key of one dataset file with windowed voting.
// Unreadable files and unparsable annotations are skipped, matching the
// dataset's own convention of carrying a few unusable entries.
func scoreFile(entry score.Entry, audioDir string, windowSeconds float64, estimator key.Estimator) fileResult {
	expected, err := score.Normalize(entry.Key)
	if err != nil {
		applog.Warnf("score: skipping %s: %v", entry.Base, err)
		return fileResult{base: entry.Base, skipped: true}
	}

	clip, err := wavio.ReadFile(filepath.Join(audioDir, entry.Base+".wav"))
	if err != nil {
		applog.Warnf("score: skipping %s: %v", entry.Base, err)
		return fileResult{base: entry.Base, skipped: true}
	}

	detector, err := key.NewInlineDetector(clip.SampleRate, estimator)
	if err != nil {
		applog.Warnf("score: skipping %s: %v", entry.Base, err)
		return fileResult{base: entry.Base, skipped: true}
	}
	detector.SetWindow(windowSeconds)
	detector.Feed(clip.Stereo())
	detector.Flush()

	return fileResult{base: entry.Base, detected: detector.GetKey(), expected: expected}
}
