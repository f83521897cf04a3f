// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"keydetect/internal/analysis"
	"keydetect/internal/audio"
	"keydetect/internal/config"
	"keydetect/internal/key"
	applog "keydetect/internal/log"
	"keydetect/internal/param"
	"keydetect/internal/transport"
	"keydetect/internal/transport/udp"
	"keydetect/internal/tui"
)

func newLiveCmd(state *rootState) *cobra.Command {
	var (
		tuiMode    bool
		wsAddr     string
		udpAddr    string
		recordPath string
	)

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Detect the key of live audio input",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			if wsAddr != "" {
				cfg.Monitor.WebSocketAddr = wsAddr
			}
			if udpAddr != "" {
				cfg.Monitor.UDPAddr = udpAddr
			}
			if recordPath != "" {
				cfg.Monitor.RecordPath = recordPath
			}
			return runLive(cfg, state.cfgPath, tuiMode)
		},
	}

	cmd.Flags().BoolVar(&tuiMode, "tui", false, "Show the interactive terminal monitor")
	cmd.Flags().StringVar(&wsAddr, "ws", "", "Serve key updates over WebSocket on this address")
	cmd.Flags().StringVar(&udpAddr, "udp", "", "Send binary key packets to this UDP address")
	cmd.Flags().StringVar(&recordPath, "record", "", "Record the capture to this WAV file")
	return cmd
}

func runLive(cfg *config.Config, cfgPath string, tuiMode bool) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	windowFunc, err := analysis.ParseWindowFunc(cfg.Detection.FFTWindow)
	if err != nil {
		return err
	}

	detector, err := key.NewDetector(cfg.Audio.SampleRate, analysis.NewChromaEstimator(windowFunc))
	if err != nil {
		return err
	}
	defer detector.Close()
	detector.SetWindow(cfg.Detection.WindowSeconds)

	engine, err := audio.NewEngine(cfg, detector)
	if err != nil {
		return err
	}

	analyzer := engine.Analyzer()
	bridge := param.NewBridge(analyzer)

	monitor, err := transport.NewMonitor(analyzer, cfg.Monitor.PollInterval)
	if err != nil {
		return err
	}
	if !tuiMode {
		monitor.AddTransport(transport.NewLoggingTransport())
	}
	if cfg.Monitor.WebSocketAddr != "" {
		broadcaster := transport.NewBroadcaster(cfg.Monitor.WebSocketAddr, bridge)
		defer broadcaster.Close()
		monitor.AddTransport(broadcaster)
	}
	if cfg.Monitor.UDPAddr != "" {
		publisher, err := udp.NewPublisher(cfg.Monitor.UDPAddr)
		if err != nil {
			return err
		}
		defer publisher.Close()
		monitor.AddTransport(publisher)
	}

	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Close()

	if cfg.Monitor.RecordPath != "" {
		if err := engine.StartRecording(cfg.Monitor.RecordPath); err != nil {
			return err
		}
	}

	monitor.Start()
	defer monitor.Stop()

	// Hot-reload only applies when a config file was named explicitly:
	// there is nothing to watch otherwise.
	if cfgPath != "" {
		hot, err := config.NewHotConfig(cfgPath)
		if err == nil {
			hot.OnReload(func(c *config.Config) {
				if level, ok := applog.ParseLevel(c.LogLevel); ok {
					applog.SetLevel(level)
				}
				analyzer.SetWindow(c.Detection.WindowSeconds)
			})
			if err := hot.Watch(); err != nil {
				applog.Warnf("live: config watch disabled: %v", err)
			}
			defer hot.Close()
		}
	}

	if tuiMode {
		return tui.Run(analyzer, engine.InputLevel)
	}

	applog.Infof("live: detecting on %d Hz input, window %.1fs (Ctrl-C to stop)",
		cfg.Audio.SampleRate, detector.GetWindow())

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done
	fmt.Println()

	if cfg.Monitor.RecordPath != "" {
		if err := engine.StopRecording(); err != nil {
			applog.Errorf("live: error finalizing recording: %v", err)
		} else {
			fmt.Printf("Recording saved to: %s\n", cfg.Monitor.RecordPath)
		}
	}
	return nil
}
