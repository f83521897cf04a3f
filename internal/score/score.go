// SPDX-License-Identifier: MIT

// Package score grades detected keys against ground-truth annotations.
// A detection counts as Exact, Relative (relative major/minor pair),
// Fifth (roots a fifth apart in the same mode) or Wrong, and a Report
// accumulates the buckets across a dataset run.
package score

import (
	"fmt"
	"strings"
)

// Match classifies one detection against its annotation.
type Match int

const (
	Exact Match = iota
	Relative
	Fifth
	Wrong
)

// String returns the bucket name.
func (m Match) String() string {
	switch m {
	case Exact:
		return "exact"
	case Relative:
		return "relative"
	case Fifth:
		return "fifth"
	default:
		return "wrong"
	}
}

// Marker returns the single-character status used in per-file output.
func (m Match) Marker() string {
	switch m {
	case Exact:
		return "="
	case Relative:
		return "~"
	case Fifth:
		return "5"
	default:
		return "X"
	}
}

// noteSemitone maps flat note names to semitones above C.
var noteSemitone = map[string]int{
	"C": 0, "Db": 1, "D": 2, "Eb": 3, "E": 4, "F": 5,
	"Gb": 6, "G": 7, "Ab": 8, "A": 9, "Bb": 10, "B": 11,
}

// enharmonic folds sharp spellings onto the flat names used everywhere
// else in this project.
var enharmonic = map[string]string{
	"C#": "Db", "D#": "Eb", "F#": "Gb", "G#": "Ab", "A#": "Bb",
}

// Normalize converts an annotation such as "C major" or "F# minor" to
// the canonical "<root> maj|min" form, folding sharps to flats. Both
// long ("major") and short ("maj") mode spellings are accepted.
func Normalize(annotation string) (string, error) {
	parts := strings.Fields(annotation)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed key annotation %q", annotation)
	}

	root := parts[0]
	if flat, ok := enharmonic[root]; ok {
		root = flat
	}
	if _, ok := noteSemitone[root]; !ok {
		return "", fmt.Errorf("unknown root note %q", parts[0])
	}

	var mode string
	switch strings.ToLower(parts[1]) {
	case "major", "maj":
		mode = "maj"
	case "minor", "min":
		mode = "min"
	default:
		return "", fmt.Errorf("unknown mode %q", parts[1])
	}

	return root + " " + mode, nil
}

// parseKey splits a normalized key into root semitone and mode.
func parseKey(key string) (root int, minor bool, ok bool) {
	parts := strings.Fields(key)
	if len(parts) != 2 {
		return 0, false, false
	}
	root, ok = noteSemitone[parts[0]]
	if !ok {
		return 0, false, false
	}
	switch parts[1] {
	case "maj":
		return root, false, true
	case "min":
		return root, true, true
	default:
		return 0, false, false
	}
}

// Classify grades a detected key against the expected one. Both must be
// in normalized "<root> maj|min" form; anything unparsable is Wrong.
func Classify(detected, expected string) Match {
	if detected == expected {
		return Exact
	}

	dr, dMinor, dOK := parseKey(detected)
	er, eMinor, eOK := parseKey(expected)
	if !dOK || !eOK {
		return Wrong
	}

	// Relative pair: the minor key sits nine semitones above its
	// relative major (A min for C maj).
	if dMinor != eMinor {
		majRoot, minRoot := dr, er
		if dMinor {
			majRoot, minRoot = er, dr
		}
		if (majRoot+9)%12 == minRoot {
			return Relative
		}
	}

	if dMinor == eMinor {
		diff := ((er - dr) % 12 + 12) % 12
		if diff == 5 || diff == 7 {
			return Fifth
		}
	}

	return Wrong
}

// Report accumulates classification buckets over a dataset run.
type Report struct {
	Total    int
	Exact    int
	Relative int
	Fifth    int
	Wrong    int

	wrongDetections []string
}

// Add classifies one detection, updates the buckets and returns the
// bucket it landed in.
func (r *Report) Add(base, detected, expected string) Match {
	m := Classify(detected, expected)
	r.Total++
	switch m {
	case Exact:
		r.Exact++
	case Relative:
		r.Relative++
	case Fifth:
		r.Fifth++
	default:
		r.Wrong++
		r.wrongDetections = append(r.wrongDetections,
			fmt.Sprintf("%s: expected [%s] got [%s]", base, expected, detected))
	}
	return m
}

// Correct returns the count graded exact or relative.
func (r *Report) Correct() int {
	return r.Exact + r.Relative
}

// WrongDetections lists the misdetections recorded so far.
func (r *Report) WrongDetections() []string {
	return r.wrongDetections
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// String renders the summary block.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exact:    %3d / %d  (%.1f%%)\n", r.Exact, r.Total, pct(r.Exact, r.Total))
	fmt.Fprintf(&b, "Relative: %3d / %d  (%.1f%%)\n", r.Relative, r.Total, pct(r.Relative, r.Total))
	fmt.Fprintf(&b, "Fifth:    %3d / %d  (%.1f%%)\n", r.Fifth, r.Total, pct(r.Fifth, r.Total))
	fmt.Fprintf(&b, "Correct:  %3d / %d  (%.1f%%)  [exact + relative]\n",
		r.Correct(), r.Total, pct(r.Correct(), r.Total))
	fmt.Fprintf(&b, "Wrong:    %3d / %d  (%.1f%%)", r.Wrong, r.Total, pct(r.Wrong, r.Total))
	return b.String()
}
