// SPDX-License-Identifier: MIT
/*
Package audio captures live input through PortAudio and feeds it to the
key detector. The capture callback is the real-time path: it hands the
block to the detector, tracks the input peak, and optionally appends to a
WAV recording, all on pre-allocated buffers with no locking.

Everything else (device resolution, stream lifecycle, window changes) is
cold-path control code.
*/
package audio

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"keydetect/internal/config"
	"keydetect/internal/key"
	applog "keydetect/internal/log"
)

// Engine owns the capture stream and the detector it feeds. Capture is
// always two-channel interleaved int16, which is exactly what the
// detector ingests.
type Engine struct {
	cfg      *config.Config
	detector *key.Detector

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// ctlMu serializes the cold-path stream controls (Start, Stop,
	// SetWindow, recording) against each other, never against the
	// callback.
	ctlMu sync.Mutex

	// peak holds the previous block's maximum amplitude for level meters.
	peak atomic.Int32

	isRecording atomic.Int32
	recording   *recording
}

// NewEngine resolves the input device and prepares a capture engine that
// feeds det. The stream is not started; call Start.
func NewEngine(cfg *config.Config, det *key.Detector) (*Engine, error) {
	if det == nil {
		return nil, fmt.Errorf("engine: detector cannot be nil")
	}

	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		detector:    det,
		inputDevice: inputDevice,
	}
	if cfg.Audio.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = inputDevice.DefaultHighInputLatency
	}

	applog.Infof("engine: using input %q (%d Hz, %d frames/buffer)",
		inputDevice.Name, cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer)
	return e, nil
}

// Start opens and starts the capture stream. The first callback marks the
// beginning of the real-time path.
func (e *Engine) Start() error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.inputStream != nil {
		return fmt.Errorf("engine: capture already running")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 2,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		FramesPerBuffer: e.cfg.Audio.FramesPerBuffer,
		SampleRate:      float64(e.cfg.Audio.SampleRate),
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("engine: failed to open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("engine: failed to start capture stream: %w", err)
	}
	e.inputStream = stream
	return nil
}

// Stop stops and closes the capture stream. Pending callbacks complete
// before Stop returns.
func (e *Engine) Stop() error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if e.inputStream == nil {
		return nil
	}
	if err := e.inputStream.Stop(); err != nil {
		return fmt.Errorf("engine: failed to stop capture stream: %w", err)
	}
	if err := e.inputStream.Close(); err != nil {
		return fmt.Errorf("engine: failed to close capture stream: %w", err)
	}
	e.inputStream = nil
	return nil
}

// SetWindow applies a new analysis window length. The detector requires
// window changes to be serialized against Feed, so a running stream is
// paused around the change; PortAudio's Stop waits for in-flight
// callbacks to drain.
func (e *Engine) SetWindow(seconds float64) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	stream := e.inputStream
	if stream != nil {
		if err := stream.Stop(); err != nil {
			return fmt.Errorf("engine: failed to pause capture: %w", err)
		}
	}
	e.detector.SetWindow(seconds)
	if stream != nil {
		if err := stream.Start(); err != nil {
			return fmt.Errorf("engine: failed to resume capture: %w", err)
		}
	}
	return nil
}

// Close stops any recording and the capture stream. The detector is not
// closed; its creator owns it.
func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		applog.Errorf("engine: error stopping recording: %v", err)
	}
	return e.Stop()
}

// Analyzer returns a control-path view of the engine satisfying
// key.Analyzer: reads go straight to the detector, window changes go
// through the engine's pause-and-apply path.
func (e *Engine) Analyzer() key.Analyzer {
	return liveAnalyzer{e: e}
}

// processInputStream is the capture callback and the hot path: no
// allocation, no locks, bounded work per block.
func (e *Engine) processInputStream(in []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.detector.Feed(in)
	e.trackPeak(in)

	if e.isRecording.Load() == 1 {
		e.writeRecording(in)
	}
}

// liveAnalyzer adapts a running engine to the Analyzer surface used by
// the parameter bridge and the TUI.
type liveAnalyzer struct {
	e *Engine
}

func (a liveAnalyzer) Feed(pcm []int16) {
	// Live capture feeds the detector; external feeds just merge in.
	a.e.detector.Feed(pcm)
}

func (a liveAnalyzer) GetKey() string {
	return a.e.detector.GetKey()
}

func (a liveAnalyzer) SetWindow(seconds float64) {
	if err := a.e.SetWindow(seconds); err != nil {
		applog.Errorf("engine: window change failed: %v", err)
	}
}

func (a liveAnalyzer) GetWindow() float64 {
	return a.e.detector.GetWindow()
}

// Close is a no-op: the engine's lifecycle belongs to its creator.
func (a liveAnalyzer) Close() error {
	return nil
}

var _ key.Analyzer = liveAnalyzer{}
