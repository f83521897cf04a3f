// SPDX-License-Identifier: MIT

// Package analysis turns windows of mono audio into musical key estimates.
// Each window is sliced into overlapping FFT frames, spectral energy is
// folded into a twelve-bin chroma vector, and the vector is matched against
// tone profiles for all 24 keys.
package analysis

import (
	"fmt"
	"log"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"keydetect/internal/key"
)

const (
	// chromaFrameSize is the FFT length per frame (power of 2). At the
	// 11025 Hz effective rate this gives ~2.7 Hz bins, enough to separate
	// adjacent semitones down to A1.
	chromaFrameSize = 4096
	chromaHopSize   = chromaFrameSize / 2

	// Spectral band folded into the chroma vector: A1 through A7. Below,
	// bins are too coarse to name a pitch; above, overtones smear.
	minPitchHz = 55.0
	maxPitchHz = 3520.0

	// referenceHz anchors pitch class 0 (A).
	referenceHz = 440.0

	// silenceFloorRMS gates windows with no usable signal.
	silenceFloorRMS = 1e-3
)

// Krumhansl-Kessler tone profiles, tonic first.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// Pre-allocated buffers for chroma extraction.
type chromaWorkspace struct {
	frame  []float64    // Windowed (and zero-padded) frame fed to the FFT.
	coeffs []complex128 // FFT results, chromaFrameSize/2 + 1 values.
	window []float64    // Pre-calculated window coefficients.
	chroma [12]float64  // Energy per pitch class, 0 = A.
}

// ChromaEstimator scores windows of mono samples against the 24-key profile
// set. It reuses its workspace across calls and is therefore not safe for
// concurrent use; give each detector its own instance.
type ChromaEstimator struct {
	fft       *fourier.FFT
	profiles  [key.NumKeys][12]float64
	workspace chromaWorkspace

	// pitchClass caches the FFT-bin to pitch-class mapping per sample
	// rate (-1 marks bins outside the scored band).
	pitchClass map[int][]int8
}

var _ key.Estimator = (*ChromaEstimator)(nil)

// NewChromaEstimator builds an estimator using the given FFT window
// function. Hann is the usual choice.
func NewChromaEstimator(windowType WindowFunc) *ChromaEstimator {
	windowCoeffs := make([]float64, chromaFrameSize)
	applyWindow(windowCoeffs, windowType)

	e := &ChromaEstimator{
		fft: fourier.NewFFT(chromaFrameSize),
		workspace: chromaWorkspace{
			frame:  make([]float64, chromaFrameSize),
			coeffs: make([]complex128, chromaFrameSize/2+1),
			window: windowCoeffs,
		},
		pitchClass: make(map[int][]int8),
	}

	// Rotate each profile so it is indexed by absolute pitch class, then
	// normalize so the cosine score reduces to a dot product.
	for root := 0; root < 12; root++ {
		for _, minor := range []bool{false, true} {
			k := key.KeyFor(root, minor)
			base := &majorProfile
			if minor {
				base = &minorProfile
			}
			for pc := 0; pc < 12; pc++ {
				e.profiles[k][pc] = base[((pc-root)%12+12)%12]
			}
			row := e.profiles[k][:]
			floats.Scale(1/floats.Norm(row, 2), row)
		}
	}

	log.Printf("Analysis: Initializing ChromaEstimator (Frame: %d, Hop: %d, Band: %.0f-%.0f Hz)",
		chromaFrameSize, chromaHopSize, minPitchHz, maxPitchHz)
	return e
}

// Estimate implements key.Estimator. Quiet windows and windows with no
// energy in the scored band report Silence without error.
func (e *ChromaEstimator) Estimate(samples []float64, rate int) (key.Key, error) {
	if rate <= 0 {
		return key.Silence, fmt.Errorf("sample rate must be positive, got %d", rate)
	}
	if len(samples) == 0 {
		return key.Silence, fmt.Errorf("empty analysis window")
	}

	if rms(samples) < silenceFloorRMS {
		return key.Silence, nil
	}

	classes := e.binClasses(rate)
	ws := &e.workspace
	for i := range ws.chroma {
		ws.chroma[i] = 0
	}

	for start := 0; start < len(samples); start += chromaHopSize {
		frameLen := len(samples) - start
		if frameLen > chromaFrameSize {
			frameLen = chromaFrameSize
		}
		for i := 0; i < frameLen; i++ {
			ws.frame[i] = samples[start+i] * ws.window[i]
		}
		for i := frameLen; i < chromaFrameSize; i++ {
			ws.frame[i] = 0 // Zero-padding.
		}

		e.fft.Coefficients(ws.coeffs, ws.frame)

		for bin, c := range ws.coeffs {
			if pc := classes[bin]; pc >= 0 {
				ws.chroma[pc] += cmplx.Abs(c)
			}
		}
	}

	norm := floats.Norm(ws.chroma[:], 2)
	if norm == 0 {
		return key.Silence, nil
	}
	floats.Scale(1/norm, ws.chroma[:])

	// Highest cosine score wins; scanning upward keeps ties on the lowest
	// key identifier.
	best := key.Silence
	bestScore := 0.0
	for k := key.AMajor; k < key.NumKeys; k++ {
		if score := floats.Dot(ws.chroma[:], e.profiles[k][:]); score > bestScore {
			bestScore = score
			best = k
		}
	}
	return best, nil
}

// binClasses returns the bin to pitch-class table for rate, building and
// caching it on first use.
func (e *ChromaEstimator) binClasses(rate int) []int8 {
	if classes, ok := e.pitchClass[rate]; ok {
		return classes
	}

	classes := make([]int8, chromaFrameSize/2+1)
	for bin := range classes {
		freq := float64(bin) * float64(rate) / chromaFrameSize
		if freq < minPitchHz || freq > maxPitchHz {
			classes[bin] = -1
			continue
		}
		semis := int(math.Round(12 * math.Log2(freq/referenceHz)))
		classes[bin] = int8(((semis % 12) + 12) % 12)
	}
	e.pitchClass[rate] = classes
	return classes
}

func rms(samples []float64) float64 {
	return math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
}
