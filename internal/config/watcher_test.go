// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"testing"
	"time"
)

func TestHotConfig_Reload(t *testing.T) {
	path := writeTempConfig(t, "detection:\n  window_seconds: 2.0\n")

	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig error: %v", err)
	}
	defer hc.Close()

	if got := hc.Get().Detection.WindowSeconds; got != 2.0 {
		t.Fatalf("initial WindowSeconds = %g, want 2.0", got)
	}

	reloaded := make(chan *Config, 1)
	hc.OnReload(func(c *Config) { reloaded <- c })

	if err := hc.Watch(); err != nil {
		t.Fatalf("Watch error: %v", err)
	}

	if err := os.WriteFile(path, []byte("detection:\n  window_seconds: 5.0\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Detection.WindowSeconds != 5.0 {
			t.Errorf("reloaded WindowSeconds = %g, want 5.0", cfg.Detection.WindowSeconds)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}

	if got := hc.Get().Detection.WindowSeconds; got != 5.0 {
		t.Errorf("Get after reload = %g, want 5.0", got)
	}
}

func TestHotConfig_BadReloadKeepsPrevious(t *testing.T) {
	path := writeTempConfig(t, "audio:\n  sample_rate: 48000\n")

	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig error: %v", err)
	}
	defer hc.Close()

	// Reload directly rather than through fsnotify so the test stays
	// deterministic; Watch is exercised above.
	if err := os.WriteFile(path, []byte(":\n:bad"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	hc.reload()

	if got := hc.Get().Audio.SampleRate; got != 48000 {
		t.Errorf("SampleRate after failed reload = %d, want 48000", got)
	}
}

func TestHotConfig_CloseTwice(t *testing.T) {
	path := writeTempConfig(t, "")
	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig error: %v", err)
	}
	if err := hc.Watch(); err != nil {
		t.Fatalf("Watch error: %v", err)
	}
	if err := hc.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := hc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
