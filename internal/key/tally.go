// SPDX-License-Identifier: MIT
package key

// voteDecay scales every standing vote before a new one lands. After j
// identical votes the winner holds the geometric sum (1 - voteDecay^j) /
// (1 - voteDecay), so recent windows dominate and the displayed key follows
// a track change within a handful of analysis windows.
const voteDecay = 0.6

// voteTally is the decaying per-key vote count. It belongs to the goroutine
// running the analysis loop and is never shared.
type voteTally struct {
	votes [NumKeys]float64
}

// cast decays all standing votes, credits k with a fresh full vote, and
// returns the current leader. k must be a valid key.
func (t *voteTally) cast(k Key) Key {
	for i := range t.votes {
		t.votes[i] *= voteDecay
	}
	t.votes[k]++
	return t.leader()
}

// leader returns the key with the highest tally. Equal tallies resolve to
// the lowest identifier. Returns Silence when no votes are standing.
func (t *voteTally) leader() Key {
	best := Silence
	bestVotes := 0.0
	for i := range t.votes {
		if t.votes[i] > bestVotes {
			bestVotes = t.votes[i]
			best = Key(i)
		}
	}
	return best
}

// reset drops every standing vote.
func (t *voteTally) reset() {
	for i := range t.votes {
		t.votes[i] = 0
	}
}
