// SPDX-License-Identifier: MIT
/*
Package key implements continuous musical key detection over a live PCM
stream. The hot path is Detector.Feed, which runs on the caller's audio
thread: it downmixes, decimates, and hands completed analysis windows to a
background worker through a lock-free two-buffer swap. The worker scores
each window with an Estimator and folds the result into a decaying majority
vote, so the published key stays stable through noisy per-window guesses
but follows a genuine change within a few windows.

Feed never allocates, never locks, and never waits on analysis. Everything
else in the package runs on ordinary goroutines.
*/
package key

// Key identifies one of the 24 musical keys, or Silence.
type Key int32

// Keys in vocabulary order: twelve chromatic roots upward from A with flat
// spellings, major before minor. The accuracy tooling depends on this
// numbering, as ties between equal votes resolve to the lower identifier.
const (
	AMajor Key = iota
	AMinor
	BFlatMajor
	BFlatMinor
	BMajor
	BMinor
	CMajor
	CMinor
	DFlatMajor
	DFlatMinor
	DMajor
	DMinor
	EFlatMajor
	EFlatMinor
	EMajor
	EMinor
	FMajor
	FMinor
	GFlatMajor
	GFlatMinor
	GMajor
	GMinor
	AFlatMajor
	AFlatMinor

	// Silence marks a window with no usable tonal content. It never
	// receives votes and renders as NoKeyName.
	Silence
)

// NumKeys is the number of votable keys, excluding Silence.
const NumKeys = 24

// NoKeyName is reported before the first confident window and after a
// window reset.
const NoKeyName = "---"

var keyNames = [NumKeys + 1]string{
	"A maj", "A min",
	"Bb maj", "Bb min",
	"B maj", "B min",
	"C maj", "C min",
	"Db maj", "Db min",
	"D maj", "D min",
	"Eb maj", "Eb min",
	"E maj", "E min",
	"F maj", "F min",
	"Gb maj", "Gb min",
	"G maj", "G min",
	"Ab maj", "Ab min",
	NoKeyName,
}

// String returns the canonical display name. Silence and out-of-range
// values render as NoKeyName.
func (k Key) String() string {
	if k < 0 || k > Silence {
		return NoKeyName
	}
	return keyNames[k]
}

// Valid reports whether k identifies an actual key rather than Silence.
func (k Key) Valid() bool {
	return k >= 0 && k < NumKeys
}

// Root returns the chromatic root as semitones above A (0 = A .. 11 = Ab).
// Only meaningful for valid keys.
func (k Key) Root() int {
	return int(k) / 2
}

// IsMinor reports whether k is a minor key. Only meaningful for valid keys.
func (k Key) IsMinor() bool {
	return k&1 == 1
}

// KeyFor returns the key with the given chromatic root (semitones above A,
// taken modulo 12) and mode.
func KeyFor(root int, minor bool) Key {
	root = ((root % 12) + 12) % 12
	k := Key(2 * root)
	if minor {
		k++
	}
	return k
}

// ParseKey maps a canonical display name back to its identifier. The
// sentinel parses as Silence. Unrecognized names return ok == false.
func ParseKey(s string) (Key, bool) {
	for i := range keyNames {
		if keyNames[i] == s {
			return Key(i), true
		}
	}
	return Silence, false
}

// Estimator turns one window of mono samples into a key identifier.
//
// Samples are in [-1, 1] at rate Hz. Implementations return Silence when
// the window carries no usable tonal content. An error (or a panic, on the
// live path) counts as silence for that window and never stops detection.
// Estimate is invoked from one goroutine at a time per detector, so
// implementations may reuse internal scratch buffers.
type Estimator interface {
	Estimate(samples []float64, rate int) (Key, error)
}

// Analyzer is the surface shared by the live Detector and the synchronous
// InlineDetector, letting offline tooling swap between them.
type Analyzer interface {
	Feed(pcm []int16)
	GetKey() string
	SetWindow(seconds float64)
	GetWindow() float64
	Close() error
}
