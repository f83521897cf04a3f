// SPDX-License-Identifier: MIT

// Package param exposes the detector through a host-style string
// parameter surface: named values read and written as strings, plus a
// JSON state blob for save/restore. Control paths (CLI, WebSocket
// clients) talk to the detector through a Bridge instead of holding the
// Analyzer directly.
package param

import (
	"encoding/json"
	"fmt"
	"strconv"

	"keydetect/internal/key"
)

// Parameter names understood by Get and Set.
const (
	Window      = "window"       // Analysis window length in seconds. Read/write.
	DetectedKey = "detected_key" // Current key display string. Read-only.
	DisplayName = "display_name" // "KeyDetect: <key>" status line. Read-only.
	State       = "state"        // JSON persistence blob. Read/write.
)

// state is the persisted parameter set. Only the window survives a
// restart; the detection itself always starts over.
type state struct {
	Window float64 `json:"window"`
}

// Bridge adapts an Analyzer to the named-parameter surface. Set calls
// reconfigure the analyzer, so they follow the analyzer's own rule: never
// concurrent with the audio feed path.
type Bridge struct {
	analyzer key.Analyzer
}

// NewBridge wraps an analyzer. The bridge holds no state of its own.
func NewBridge(a key.Analyzer) *Bridge {
	return &Bridge{analyzer: a}
}

// Get reads a named parameter as a string.
func (b *Bridge) Get(name string) (string, error) {
	switch name {
	case Window:
		return strconv.FormatFloat(b.analyzer.GetWindow(), 'g', -1, 64), nil
	case DetectedKey:
		return b.analyzer.GetKey(), nil
	case DisplayName:
		return "KeyDetect: " + b.analyzer.GetKey(), nil
	case State:
		data, err := json.Marshal(state{Window: b.analyzer.GetWindow()})
		if err != nil {
			return "", fmt.Errorf("failed to encode state: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown parameter %q", name)
	}
}

// Set writes a named parameter from its string form. Read-only
// parameters and unknown names are errors.
func (b *Bridge) Set(name, value string) error {
	switch name {
	case Window:
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid window value %q: %w", value, err)
		}
		b.analyzer.SetWindow(seconds)
		return nil
	case State:
		var s state
		if err := json.Unmarshal([]byte(value), &s); err != nil {
			return fmt.Errorf("invalid state blob: %w", err)
		}
		b.analyzer.SetWindow(s.Window)
		return nil
	case DetectedKey, DisplayName:
		return fmt.Errorf("parameter %q is read-only", name)
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
}

// Names returns the readable parameter names, for control surfaces that
// enumerate them.
func Names() []string {
	return []string{Window, DetectedKey, DisplayName, State}
}
