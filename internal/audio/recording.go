// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "keydetect/internal/log"
)

// recording bundles the open WAV output and its reusable conversion
// buffer. Allocated once in StartRecording so the callback never does.
type recording struct {
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *goaudio.IntBuffer
}

// StartRecording begins writing the capture to a 16-bit stereo WAV file.
// Returns an error if a recording is already in progress.
func (e *Engine) StartRecording(filename string) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.isRecording.Load() == 1 {
		return fmt.Errorf("engine: already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("engine: failed to create recording file: %w", err)
	}

	rec := &recording{
		outputFile: file,
		wavEncoder: wav.NewEncoder(file, e.cfg.Audio.SampleRate, 16, 2, 1),
		sampleBuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: 2,
				SampleRate:  e.cfg.Audio.SampleRate,
			},
			Data: make([]int, e.cfg.Audio.FramesPerBuffer*2),
		},
	}
	e.recording = rec

	// The flag flips last so the callback only ever sees a fully built
	// recording.
	e.isRecording.Store(1)
	applog.Infof("engine: recording to %s", filename)
	return nil
}

// StopRecording finalizes the WAV file. A short window exists where a
// callback started before the flag flipped may still write one block;
// stop the stream first when that matters.
func (e *Engine) StopRecording() error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	if e.isRecording.Load() == 0 {
		return nil
	}
	e.isRecording.Store(0)

	rec := e.recording
	e.recording = nil

	if err := rec.wavEncoder.Close(); err != nil {
		rec.outputFile.Close()
		return fmt.Errorf("engine: failed to finalize recording: %w", err)
	}
	if err := rec.outputFile.Close(); err != nil {
		return fmt.Errorf("engine: failed to close recording file: %w", err)
	}
	return nil
}

// writeRecording appends one callback block to the open recording. Runs
// on the capture callback; the conversion buffer is pre-allocated.
func (e *Engine) writeRecording(in []int16) {
	rec := e.recording
	if rec == nil {
		return
	}

	n := len(in)
	if n > cap(rec.sampleBuf.Data) {
		n = cap(rec.sampleBuf.Data)
	}
	rec.sampleBuf.Data = rec.sampleBuf.Data[:n]
	for i := 0; i < n; i++ {
		rec.sampleBuf.Data[i] = int(in[i])
	}

	if err := rec.wavEncoder.Write(rec.sampleBuf); err != nil {
		applog.Errorf("engine: error writing to WAV file: %v", err)
	}
}
