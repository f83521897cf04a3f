// Package synth generates deterministic test signals: pure tones, chords,
// and triads with known musical keys, as mono float64 samples or as the
// interleaved stereo int16 PCM the detector ingests.
package synth

import "math"

// NoteFrequency returns the equal-tempered frequency n semitones above A4.
func NoteFrequency(semitones int) float64 {
	return 440.0 * math.Pow(2, float64(semitones)/12.0)
}

// Sine returns n mono samples of a pure tone with peak amplitude amp.
func Sine(freq float64, rate, n int, amp float64) []float64 {
	buffer := make([]float64, n)
	for i := range buffer {
		t := float64(i) / float64(rate)
		buffer[i] = amp * math.Sin(2*math.Pi*freq*t)
	}
	return buffer
}

// ChordMono mixes one tone per (frequency, weight) pair into n mono samples.
// The mix is scaled by the weight total so the peak never exceeds amp.
func ChordMono(freqs, weights []float64, rate, n int, amp float64) []float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return make([]float64, n)
	}

	buffer := make([]float64, n)
	scale := amp / total
	for i := range buffer {
		t := float64(i) / float64(rate)
		v := 0.0
		for j, f := range freqs {
			v += weights[j] * math.Sin(2*math.Pi*f*t)
		}
		buffer[i] = v * scale
	}
	return buffer
}

// Interleave duplicates mono samples into both channels of interleaved
// stereo int16 PCM, clipping anything outside [-1, 1].
func Interleave(mono []float64) []int16 {
	pcm := make([]int16, 2*len(mono))
	for i, v := range mono {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(v * math.MaxInt16)
		pcm[2*i] = s
		pcm[2*i+1] = s
	}
	return pcm
}

// Silence returns the given number of frames of stereo digital silence.
func Silence(frames int) []int16 {
	return make([]int16, 2*frames)
}

// TriadMono renders a root-position triad with the root doubled an octave
// up, voiced so key estimation has a clear winner. The root is given in
// semitones above A, placed in the octave starting at A3 (220 Hz).
func TriadMono(root int, minor bool, rate, n int) []float64 {
	freqs, weights := triadParts(root, minor)
	return ChordMono(freqs, weights, rate, n, 0.6)
}

// Triad is TriadMono rendered as interleaved stereo PCM16.
func Triad(root int, minor bool, rate, frames int) []int16 {
	return Interleave(TriadMono(root, minor, rate, frames))
}

func triadParts(root int, minor bool) ([]float64, []float64) {
	third := 4
	if minor {
		third = 3
	}
	base := 220.0 * math.Pow(2, float64(root)/12.0)
	freqs := []float64{
		base,
		base * math.Pow(2, float64(third)/12.0),
		base * math.Pow(2, 7.0/12.0),
		base * 2,
	}
	// The doubled root outweighs third and fifth, which keeps the tonic
	// dominant in the chroma vector without drowning the mode cues.
	weights := []float64{1.0, 1.0, 0.9, 0.9}
	return freqs, weights
}
