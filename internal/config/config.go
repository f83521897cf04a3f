// SPDX-License-Identifier: MIT

// Package config holds the runtime configuration: capture device and
// format, detection parameters, and the monitor/transport endpoints.
// Values come from built-in defaults, overlaid by an optional YAML file,
// overlaid by KEYDETECT_* environment variables.
package config

import (
	"fmt"
	"time"

	"keydetect/pkg/bitint"
)

// Defaults and hard limits for the audio capture path.
const (
	DefaultInputDevice     = -1 // -1 selects the system default device.
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 128 // Matches the smallest host block we must handle.
	DefaultLowLatency      = false

	MinSampleRate      = 8000
	MaxSampleRate      = 192000
	MaxFramesPerBuffer = 8192
)

// Detection and monitor defaults.
const (
	DefaultWindowSeconds = 2.0
	DefaultFFTWindow     = "hann"
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultLogLevel      = "info"
)

// Config is the root configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Capture settings.
	Detection DetectionConfig `yaml:"detection"` // Key detection settings.
	Monitor   MonitorConfig   `yaml:"monitor"`   // Output and transport settings.
}

// AudioConfig holds settings for the PortAudio capture stream.
type AudioConfig struct {
	InputDevice     int  `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      int  `yaml:"sample_rate"`       // Capture rate in Hz.
	FramesPerBuffer int  `yaml:"frames_per_buffer"` // Frames per callback block (power of 2).
	LowLatency      bool `yaml:"low_latency"`       // Request the device's low-latency profile.
}

// DetectionConfig holds settings for the key detector.
type DetectionConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"` // Analysis window length; the detector clamps to [1, 8].
	FFTWindow     string  `yaml:"fft_window"`     // Taper for analysis frames (e.g. "hann", "hamming").
}

// MonitorConfig holds settings for key-change outputs.
type MonitorConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`  // How often the monitor samples the detector.
	WebSocketAddr string        `yaml:"websocket_addr"` // Listen address for the WebSocket broadcaster; empty disables it.
	UDPAddr       string        `yaml:"udp_addr"`       // Target address for UDP key packets; empty disables it.
	RecordPath    string        `yaml:"record_path"`    // WAV file to record the capture into; empty disables it.
}

// NewConfig returns a Config populated with every default.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultInputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
		},
		Detection: DetectionConfig{
			WindowSeconds: DefaultWindowSeconds,
			FFTWindow:     DefaultFFTWindow,
		},
		Monitor: MonitorConfig{
			PollInterval: DefaultPollInterval,
		},
	}
}

// Validate checks the hard limits that would otherwise surface as capture
// or detector failures much later.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %d outside [%d, %d]",
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) || c.Audio.FramesPerBuffer > MaxFramesPerBuffer {
		return fmt.Errorf("audio.frames_per_buffer %d must be a power of 2 up to %d",
			c.Audio.FramesPerBuffer, MaxFramesPerBuffer)
	}
	if c.Detection.WindowSeconds <= 0 {
		return fmt.Errorf("detection.window_seconds must be positive, got %g",
			c.Detection.WindowSeconds)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %s",
			c.Monitor.PollInterval)
	}
	return nil
}
