// SPDX-License-Identifier: MIT
package param

import (
	"strings"
	"testing"

	"keydetect/internal/key"
)

// stubAnalyzer records calls without doing any analysis.
type stubAnalyzer struct {
	window  float64
	current string
}

func (s *stubAnalyzer) Feed(pcm []int16)          {}
func (s *stubAnalyzer) GetKey() string            { return s.current }
func (s *stubAnalyzer) SetWindow(seconds float64) { s.window = clamp(seconds) }
func (s *stubAnalyzer) GetWindow() float64        { return s.window }
func (s *stubAnalyzer) Close() error              { return nil }

func clamp(seconds float64) float64 {
	if seconds < key.MinWindowSeconds {
		return key.MinWindowSeconds
	}
	if seconds > key.MaxWindowSeconds {
		return key.MaxWindowSeconds
	}
	return seconds
}

func newStub() *stubAnalyzer {
	return &stubAnalyzer{window: key.DefaultWindowSeconds, current: key.NoKeyName}
}

func TestBridge_Get(t *testing.T) {
	stub := newStub()
	stub.current = "C maj"
	b := NewBridge(stub)

	tests := []struct {
		name string
		want string
	}{
		{Window, "2"},
		{DetectedKey, "C maj"},
		{DisplayName, "KeyDetect: C maj"},
		{State, `{"window":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Get(tt.name)
			if err != nil {
				t.Fatalf("Get(%q) error: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	if _, err := b.Get("bogus"); err == nil || !strings.Contains(err.Error(), "unknown parameter") {
		t.Errorf("Get(bogus) error = %v, want unknown parameter", err)
	}
}

func TestBridge_SetWindow(t *testing.T) {
	stub := newStub()
	b := NewBridge(stub)

	if err := b.Set(Window, "4.5"); err != nil {
		t.Fatalf("Set window error: %v", err)
	}
	if stub.window != 4.5 {
		t.Errorf("window = %g, want 4.5", stub.window)
	}

	if err := b.Set(Window, "four"); err == nil {
		t.Error("expected error for non-numeric window")
	}
	if stub.window != 4.5 {
		t.Errorf("failed Set must not change window, got %g", stub.window)
	}
}

func TestBridge_StateRoundTrip(t *testing.T) {
	src := newStub()
	if err := NewBridge(src).Set(Window, "6.25"); err != nil {
		t.Fatalf("Set window error: %v", err)
	}
	blob, err := NewBridge(src).Get(State)
	if err != nil {
		t.Fatalf("Get state error: %v", err)
	}

	dst := newStub()
	if err := NewBridge(dst).Set(State, blob); err != nil {
		t.Fatalf("Set state error: %v", err)
	}
	if dst.window != 6.25 {
		t.Errorf("restored window = %g, want 6.25", dst.window)
	}

	if err := NewBridge(dst).Set(State, "{broken"); err == nil {
		t.Error("expected error for malformed state blob")
	}
}

func TestBridge_ReadOnly(t *testing.T) {
	b := NewBridge(newStub())
	for _, name := range []string{DetectedKey, DisplayName} {
		if err := b.Set(name, "x"); err == nil || !strings.Contains(err.Error(), "read-only") {
			t.Errorf("Set(%q) error = %v, want read-only", name, err)
		}
	}
	if err := b.Set("bogus", "x"); err == nil || !strings.Contains(err.Error(), "unknown parameter") {
		t.Errorf("Set(bogus) error = %v, want unknown parameter", err)
	}
}
