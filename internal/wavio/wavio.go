// SPDX-License-Identifier: MIT

// Package wavio reads 16-bit PCM WAV files into memory for offline
// analysis. It deliberately supports only the formats the detector
// consumes: mono or stereo, 16 bits per sample.
package wavio

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// readChunkFrames is the number of frames pulled per decoder call.
const readChunkFrames = 4096

// Clip is a fully decoded WAV file.
type Clip struct {
	SampleRate int
	Channels   int
	// Samples holds interleaved 16-bit PCM, Channels values per frame.
	Samples []int16
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / float64(c.SampleRate) * float64(time.Second))
}

// Stereo returns the clip as interleaved stereo frames. Mono clips have
// each sample duplicated into both channels; stereo clips are returned
// as stored, without copying.
func (c *Clip) Stereo() []int16 {
	if c.Channels == 2 {
		return c.Samples
	}
	out := make([]int16, 2*len(c.Samples))
	for i, s := range c.Samples {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// Mono returns the clip downmixed to mono float64 samples in [-1, 1),
// for whole-file spectral analysis.
func (c *Clip) Mono() []float64 {
	const scale = 1.0 / 32768.0
	frames := c.Frames()
	out := make([]float64, frames)
	if c.Channels == 1 {
		for i, s := range c.Samples {
			out[i] = float64(s) * scale
		}
		return out
	}
	for i := 0; i < frames; i++ {
		l := float64(c.Samples[2*i]) * scale
		r := float64(c.Samples[2*i+1]) * scale
		out[i] = (l + r) * 0.5
	}
	return out
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	clip, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

// Read decodes a WAV stream. It returns an error for files that are not
// valid WAV, not 16-bit, or carry more than two channels.
func Read(r io.ReadSeeker) (*Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	if decoder.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, want 16", decoder.BitDepth)
	}

	format := decoder.Format()
	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d, want mono or stereo", format.NumChannels)
	}
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", format.SampleRate)
	}

	clip := &Clip{
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
	}

	buf := &audio.IntBuffer{
		Format: format,
		Data:   make([]int, readChunkFrames*format.NumChannels),
	}

	for {
		// PCMBuffer returns short counts at end of file.
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("decode PCM: %w", err)
		}
		if n == 0 {
			break
		}
		for _, v := range buf.Data[:n] {
			clip.Samples = append(clip.Samples, int16(v))
		}
	}

	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("WAV file contains no samples")
	}

	return clip, nil
}
