// SPDX-License-Identifier: MIT

// Package tui renders a live key-detection monitor in the terminal:
// the current key, the analysis window, and the input level, refreshed on
// a tick. The +/- keys adjust the window through the control path.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"keydetect/internal/key"
)

const (
	refreshInterval = 200 * time.Millisecond
	windowStep      = 0.5
	levelBarWidth   = 30
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true).
			Padding(1, 2)

	noKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// tickMsg triggers a refresh of the polled values.
type tickMsg time.Time

// Model is the Bubble Tea model for the key monitor.
type Model struct {
	analyzer key.Analyzer
	level    func() float64 // Input peak in [0, 1]; nil hides the meter.

	currentKey string
	window     float64
	inputPeak  float64
}

// New builds a monitor over the analyzer. level may be nil when no
// capture engine is attached (offline runs).
func New(a key.Analyzer, level func() float64) Model {
	return Model{
		analyzer:   a,
		level:      level,
		currentKey: a.GetKey(),
		window:     a.GetWindow(),
	}
}

// Init schedules the first refresh.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses and refresh ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "+", "=":
			m.analyzer.SetWindow(m.analyzer.GetWindow() + windowStep)
			m.window = m.analyzer.GetWindow()
		case "-", "_":
			m.analyzer.SetWindow(m.analyzer.GetWindow() - windowStep)
			m.window = m.analyzer.GetWindow()
		}

	case tickMsg:
		m.currentKey = m.analyzer.GetKey()
		m.window = m.analyzer.GetWindow()
		if m.level != nil {
			m.inputPeak = m.level()
		}
		return m, tick()
	}
	return m, nil
}

// View renders the monitor.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("keydetect"))
	b.WriteString("\n")

	if m.currentKey == key.NoKeyName {
		b.WriteString(noKeyStyle.Render("listening..."))
	} else {
		b.WriteString(keyStyle.Render(m.currentKey))
	}
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf("window: %.1fs", m.window)))
	b.WriteString("\n")

	if m.level != nil {
		b.WriteString(infoStyle.Render("level:  " + levelBar(m.inputPeak)))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("+/- adjust window · q quit"))
	b.WriteString("\n")
	return b.String()
}

// levelBar renders peak as a fixed-width meter.
func levelBar(peak float64) string {
	if peak < 0 {
		peak = 0
	}
	if peak > 1 {
		peak = 1
	}
	filled := int(peak * levelBarWidth)
	return strings.Repeat("█", filled) + strings.Repeat("░", levelBarWidth-filled)
}

// Run starts the monitor in the alternate screen and blocks until the
// user quits.
func Run(a key.Analyzer, level func() float64) error {
	_, err := tea.NewProgram(New(a, level), tea.WithAltScreen()).Run()
	return err
}
