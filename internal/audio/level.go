// SPDX-License-Identifier: MIT
package audio

// trackPeak records the block's peak amplitude for level meters. The
// abs/max scan is branchless, keeping the callback's cost uniform
// whatever the signal looks like.
func (e *Engine) trackPeak(in []int16) {
	var maxAmplitude int32
	for i := range in {
		sample := int32(in[i])
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	e.peak.Store(maxAmplitude)
}

// InputLevel returns the most recent block's peak in [0, 1], readable
// from any goroutine.
func (e *Engine) InputLevel() float64 {
	return float64(e.peak.Load()) / 32768.0
}
