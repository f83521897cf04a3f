// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"time"

	"keydetect/internal/key"
	applog "keydetect/internal/log"
)

// Monitor polls an analyzer at a fixed interval and pushes a KeyUpdate to
// every registered transport whenever the detected key changes. It runs
// in its own goroutine managed by Start and Stop.
type Monitor struct {
	analyzer   key.Analyzer
	interval   time.Duration
	transports []Transport

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	lastKey string
}

// NewMonitor creates a monitor over the analyzer. An interval <= 0
// defaults to 500ms. Transports may be empty; AddTransport registers more
// before Start.
func NewMonitor(a key.Analyzer, interval time.Duration, transports ...Transport) (*Monitor, error) {
	if a == nil {
		return nil, fmt.Errorf("monitor: analyzer cannot be nil")
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
		applog.Warnf("monitor: invalid interval provided, defaulting to %s", interval)
	}
	return &Monitor{
		analyzer:   a,
		interval:   interval,
		transports: transports,
		lastKey:    key.NoKeyName,
	}, nil
}

// AddTransport registers another consumer. Not safe to call after Start.
func (m *Monitor) AddTransport(t Transport) {
	m.transports = append(m.transports, t)
}

// Start launches the polling goroutine. Safe to call more than once;
// subsequent calls while running are no-ops.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.ticker != nil {
		m.mu.Unlock()
		applog.Warnf("monitor: Start called but already running")
		return
	}

	m.ticker = time.NewTicker(m.interval)
	m.doneChan = make(chan struct{})
	m.stopOnce = sync.Once{}

	ticker := m.ticker
	doneChan := m.doneChan
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		applog.Debugf("monitor: polling every %s", m.interval)
		for {
			select {
			case <-ticker.C:
				m.poll()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the polling goroutine and waits for it to exit. Safe to
// call more than once. Transports are not closed; their owner closes them.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.ticker == nil {
		m.mu.Unlock()
		return nil
	}
	m.stopOnce.Do(func() {
		close(m.doneChan)
		m.ticker.Stop()
		m.ticker = nil
	})
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// Close implements io.Closer by stopping the monitor.
func (m *Monitor) Close() error {
	return m.Stop()
}

// poll samples the analyzer and fans out one update if the key changed.
// A transport failure is logged and does not stop delivery to the rest.
func (m *Monitor) poll() {
	current := m.analyzer.GetKey()
	if current == m.lastKey {
		return
	}
	m.lastKey = current

	id, _ := key.ParseKey(current)
	update := KeyUpdate{
		Key:       current,
		KeyID:     int(id),
		Window:    m.analyzer.GetWindow(),
		Timestamp: time.Now().UnixNano(),
	}
	for _, t := range m.transports {
		if err := t.Send(update); err != nil {
			applog.Errorf("monitor: transport send failed: %v", err)
		}
	}
}
