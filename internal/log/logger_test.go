package log

import (
	"bytes"
	"strings"
	"testing"
)

// capture redirects output to a buffer for the duration of the test and
// restores the previous level afterwards.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(bytes.NewBuffer(nil))
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected LogLevel
		ok       bool
	}{
		{"debug", LevelDebug, true},
		{"DEBUG", LevelDebug, true},
		{"Info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			level, ok := ParseLevel(tc.input)
			if level != tc.expected || ok != tc.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)",
					tc.input, level, ok, tc.expected, tc.ok)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	testCases := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFatal, "FATAL"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tc := range testCases {
		if got := tc.level.String(); got != tc.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tc.level, got, tc.expected)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)

	SetLevel(LevelWarn)
	Debugf("debug message")
	Infof("info message")
	Warnf("warn message")
	Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below the configured level were logged:\n%s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("messages at or above the configured level were dropped:\n%s", out)
	}
}

func TestMessagesCarryLevelPrefix(t *testing.T) {
	buf := capture(t)

	SetLevel(LevelDebug)
	Debugf("value=%d", 42)

	out := buf.String()
	if !strings.Contains(out, "[DEBUG] value=42") {
		t.Errorf("unexpected log line: %q", out)
	}
}

func TestSetLevelRoundTrip(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	for _, level := range []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal} {
		SetLevel(level)
		if got := GetLevel(); got != level {
			t.Errorf("GetLevel() = %v after SetLevel(%v)", got, level)
		}
	}
}
