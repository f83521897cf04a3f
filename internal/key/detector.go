// SPDX-License-Identifier: MIT
package key

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	applog "keydetect/internal/log"
)

const (
	// Downsample keeps one input frame in four, so analysis runs at a
	// quarter of the stream rate: 11025 Hz for 44100 Hz input.
	Downsample = 4

	// DefaultWindowSeconds is the analysis window length after creation.
	// SetWindow clamps to [MinWindowSeconds, MaxWindowSeconds].
	DefaultWindowSeconds = 2.0
	MinWindowSeconds     = 1.0
	MaxWindowSeconds     = 8.0

	// pollInterval is the worker's idle sleep between ready-slot checks.
	pollInterval = 50 * time.Millisecond

	// blockHeadroom pads each buffer past the largest window by one
	// typical host block.
	blockHeadroom = 128

	// pcmScale normalizes int16 PCM to [-1, 1).
	pcmScale = 1.0 / 32768.0

	// slotEmpty is the ready-slot value when no window is pending. Packed
	// slots are always non-negative, so the two never collide.
	slotEmpty int64 = -1
)

// Ready-slot layout: bits 0..23 hold the valid sample count, bit 24 the
// buffer index, bits 25..56 the reset epoch the window was recorded under.
// Bit 63 stays clear.
func packSlot(buf, n int, epoch uint32) int64 {
	return int64(epoch)<<25 | int64(buf)<<24 | int64(n)
}

func unpackSlot(s int64) (buf, n int, epoch uint32) {
	return int(s>>24) & 1, int(s & 0xFFFFFF), uint32(s >> 25)
}

// Detector estimates the musical key of a live interleaved-stereo PCM
// stream.
//
// Feed is safe on a real-time audio thread: it never allocates, locks, or
// blocks, and never waits on analysis. A worker goroutine owned by the
// detector drains completed windows, scores them with the Estimator, and
// publishes the winning key, which any goroutine may read with GetKey.
//
// Each detector is fully self-contained; independent instances never share
// state.
type Detector struct {
	est Estimator

	sampleRate    int
	effectiveRate int

	// Ping-pong window buffers. The buffer referenced by the ready slot
	// belongs to the worker until the worker clears the slot; the
	// producer only ever writes bufs[active]. Neither side touches a
	// buffer it does not hold.
	bufs   [2][]float64
	active int

	// Producer-private accumulation state. windowSamples is also written
	// by SetWindow, which callers must not run concurrently with Feed.
	cursor        int
	decim         int
	windowSamples int

	// ready carries a packed (buffer, count, epoch) window or slotEmpty.
	// The store in Feed is the release half of the handoff and the load
	// in the worker is the acquire half: a worker that observes the slot
	// also observes every sample written before the publish.
	ready atomic.Int64

	// state packs the reset epoch (high half) with the published key
	// identifier (low half). Readers render the identifier through the
	// immutable name table, so a stale read is possible but a torn one
	// is not. SetWindow bumps the epoch, which orphans every window and
	// vote recorded before it. windowBits holds the float bits of the
	// window length for GetWindow.
	state      atomic.Uint64
	windowBits atomic.Uint64

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Analyzer = (*Detector)(nil)

// NewDetector allocates both window buffers for rate Hz input, applies the
// default window, and starts the analysis worker. The handle must be
// released with Close.
func NewDetector(rate int, est Estimator) (*Detector, error) {
	if rate < Downsample {
		return nil, fmt.Errorf("sample rate must be at least %d Hz, got %d", Downsample, rate)
	}
	if est == nil {
		return nil, fmt.Errorf("estimator must not be nil")
	}

	effective := rate / Downsample
	capacity := int(MaxWindowSeconds)*effective + blockHeadroom
	if capacity >= 1<<24 {
		// The ready slot stores sample counts in 24 bits.
		return nil, fmt.Errorf("sample rate %d Hz is out of range", rate)
	}

	d := &Detector{
		est:           est,
		sampleRate:    rate,
		effectiveRate: effective,
		windowSamples: int(DefaultWindowSeconds * float64(effective)),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	d.bufs[0] = make([]float64, capacity)
	d.bufs[1] = make([]float64, capacity)
	d.ready.Store(slotEmpty)
	d.state.Store(uint64(uint32(Silence)))
	d.windowBits.Store(math.Float64bits(DefaultWindowSeconds))

	go d.run()

	applog.Debugf("key: detector ready (rate %d Hz, effective %d Hz, window %.1fs)",
		rate, effective, DefaultWindowSeconds)
	return d, nil
}

// Feed accepts interleaved stereo int16 PCM at the detector's sample rate.
// Nil input, or input shorter than one frame, is a no-op. Any trailing
// half frame is ignored.
//
// Hot path: no allocation, no locks, no blocking. When a window completes
// while the previous one is still pending analysis, the new window is
// dropped; at most one completed window is ever in flight.
func (d *Detector) Feed(pcm []int16) {
	frames := len(pcm) / 2
	if frames <= 0 {
		return
	}

	buf := d.bufs[d.active]
	for i := 0; i < frames; i++ {
		if d.decim == 0 {
			l := float64(pcm[2*i]) * pcmScale
			r := float64(pcm[2*i+1]) * pcmScale
			buf[d.cursor] = (l + r) * 0.5
			d.cursor++

			if d.cursor >= d.windowSamples {
				if d.ready.Load() == slotEmpty {
					// Release store: the samples become
					// visible along with the slot.
					epoch := uint32(d.state.Load() >> 32)
					d.ready.Store(packSlot(d.active, d.cursor, epoch))
					d.active ^= 1
					buf = d.bufs[d.active]
				}
				// Otherwise the worker is behind; this window
				// is dropped and accumulation restarts.
				d.cursor = 0
			}
		}
		d.decim++
		if d.decim == Downsample {
			d.decim = 0
		}
	}
}

// GetKey returns the current detection as its canonical display string,
// NoKeyName before the first confident window. Safe from any goroutine.
func (d *Detector) GetKey() string {
	return Key(uint32(d.state.Load())).String()
}

// ReadKey copies the current key string into dst, truncating to len(dst),
// and returns the number of bytes written; 0 for an empty dst. Does not
// allocate, for readers polling from tight display loops.
func (d *Detector) ReadKey(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	return copy(dst, Key(uint32(d.state.Load())).String())
}

// SetWindow changes the analysis window length in seconds, clamped to
// [MinWindowSeconds, MaxWindowSeconds]. The change is a full reset: the
// write cursor, any pending window, the vote tally, and the published key
// all clear, so audio fed before the call never influences the next
// reading. Callers must not run SetWindow concurrently with Feed; overlap
// with GetKey and GetWindow is fine.
func (d *Detector) SetWindow(seconds float64) {
	seconds = clampWindow(seconds)

	d.windowSamples = int(seconds * float64(d.effectiveRate))
	d.cursor = 0
	d.decim = 0
	d.windowBits.Store(math.Float64bits(seconds))

	// Bumping the epoch reverts the key to silence and marks every
	// window recorded so far as stale. The worker discards stale windows
	// without analysis and can no longer land votes under the old epoch,
	// whatever stage of the pipeline they are in.
	epoch := uint32(d.state.Load() >> 32)
	d.state.Store(uint64(epoch+1)<<32 | uint64(uint32(Silence)))

	applog.Debugf("key: window set to %.1fs (%d samples)", seconds, d.windowSamples)
}

// GetWindow returns the current window length in seconds. Safe from any
// goroutine.
func (d *Detector) GetWindow() float64 {
	return math.Float64frombits(d.windowBits.Load())
}

// Close stops the worker and waits for it to exit; in-flight analysis is
// allowed to finish, so Close returns within one poll interval plus the
// worst-case estimation time. Safe to call more than once. Feed on a
// closed detector is harmless: completed windows publish into the slot
// and sit there unconsumed.
func (d *Detector) Close() error {
	d.closeOnce.Do(func() {
		close(d.quit)
	})
	<-d.done
	return nil
}

// run is the analysis worker. The vote tally lives on its stack and is
// unreachable from any other goroutine.
func (d *Detector) run() {
	defer close(d.done)

	var tally voteTally
	epoch := uint32(d.state.Load() >> 32)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
		}

		slot := d.ready.Load()
		if slot == slotEmpty {
			continue
		}
		buf, n, tag := unpackSlot(slot)

		if e := uint32(d.state.Load() >> 32); e != epoch {
			epoch = e
			tally.reset()
		}
		if tag != epoch {
			// Recorded before the last reset. Hand the buffer
			// back without analysing it.
			d.ready.Store(slotEmpty)
			continue
		}

		k := d.estimate(d.bufs[buf][:n])

		// The buffer changes hands only now: clearing the slot any
		// earlier would let the producer flip into it mid-analysis.
		// Windows that complete in the meantime are dropped, which
		// bounds loss during a stall to the stall's own duration.
		d.ready.Store(slotEmpty)

		if !k.Valid() {
			// Silence or a failed estimate must not erode the last
			// confident reading.
			continue
		}
		d.publish(tally.cast(k), epoch)
	}
}

// publish lands the winning key unless a reset has moved the epoch on, in
// which case the vote belongs to a dead configuration and is dropped.
func (d *Detector) publish(k Key, epoch uint32) {
	next := uint64(epoch)<<32 | uint64(uint32(k))
	for {
		cur := d.state.Load()
		if uint32(cur>>32) != epoch {
			return
		}
		if d.state.CompareAndSwap(cur, next) {
			return
		}
	}
}

// estimate invokes the external estimator with failures contained: an error
// or a panic counts as silence for the window and never crosses the worker
// boundary.
func (d *Detector) estimate(samples []float64) (k Key) {
	defer func() {
		if r := recover(); r != nil {
			applog.Errorf("key: estimator panic treated as silence: %v", r)
			k = Silence
		}
	}()

	k, err := d.est.Estimate(samples, d.effectiveRate)
	if err != nil {
		applog.Debugf("key: estimator error treated as silence: %v", err)
		return Silence
	}
	return k
}

func clampWindow(seconds float64) float64 {
	if math.IsNaN(seconds) || seconds < MinWindowSeconds {
		return MinWindowSeconds
	}
	if seconds > MaxWindowSeconds {
		return MaxWindowSeconds
	}
	return seconds
}
