// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	applog "keydetect/internal/log"
)

// LoadConfig builds the configuration: defaults, then the YAML file at
// path (or "config.yaml" in the working directory when path is empty and
// the file exists), then KEYDETECT_* environment overrides, then
// validation. A missing explicit file is an error; a missing default
// location is not.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment overrides apply after the file so deployments can pin
	// individual values without editing it.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays KEYDETECT_* environment variables onto the
// loaded values. Unparseable values are skipped, keeping whatever the file
// or defaults provided.
func (cfg *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("KEYDETECT_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Debugf("config: log_level overridden from env: %s", val)
	}
	if val, ok := os.LookupEnv("KEYDETECT_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.InputDevice = iVal
			applog.Debugf("config: audio.input_device overridden from env: %d", iVal)
		}
	}
	if val, ok := os.LookupEnv("KEYDETECT_SAMPLE_RATE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.SampleRate = iVal
			applog.Debugf("config: audio.sample_rate overridden from env: %d", iVal)
		}
	}
	if val, ok := os.LookupEnv("KEYDETECT_WINDOW_SECONDS"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Detection.WindowSeconds = fVal
			applog.Debugf("config: detection.window_seconds overridden from env: %g", fVal)
		}
	}
	if val, ok := os.LookupEnv("KEYDETECT_POLL_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Monitor.PollInterval = dur
			applog.Debugf("config: monitor.poll_interval overridden from env: %s", dur)
		}
	}
	if val, ok := os.LookupEnv("KEYDETECT_WS_ADDR"); ok {
		cfg.Monitor.WebSocketAddr = val
		applog.Debugf("config: monitor.websocket_addr overridden from env: %s", val)
	}
	if val, ok := os.LookupEnv("KEYDETECT_UDP_ADDR"); ok {
		cfg.Monitor.UDPAddr = val
		applog.Debugf("config: monitor.udp_addr overridden from env: %s", val)
	}
}
