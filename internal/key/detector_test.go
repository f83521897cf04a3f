// SPDX-License-Identifier: MIT
package key

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// estimatorFunc adapts a plain function to the Estimator interface.
type estimatorFunc func(samples []float64, rate int) (Key, error)

func (f estimatorFunc) Estimate(samples []float64, rate int) (Key, error) {
	return f(samples, rate)
}

func constEstimator(k Key) estimatorFunc {
	return func([]float64, int) (Key, error) { return k, nil }
}

// stereoFrames returns n interleaved stereo frames, both channels at amp.
func stereoFrames(n int, amp int16) []int16 {
	pcm := make([]int16, 2*n)
	for i := range pcm {
		pcm[i] = amp
	}
	return pcm
}

// oneWindow returns exactly enough frames to complete one analysis window
// at the detector's current window length.
func oneWindow(d *Detector) []int16 {
	return stereoFrames(d.windowSamples*Downsample, 4096)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForKey(t *testing.T, d *Detector, want string) {
	t.Helper()
	waitUntil(t, "key "+want, func() bool { return d.GetKey() == want })
}

// testRate keeps windows small: effective rate 100 Hz, so the default 2s
// window is 200 samples and one window is 800 input frames.
const testRate = 400

func TestNewDetectorRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		rate int
		est  Estimator
	}{
		{"zero rate", 0, constEstimator(Silence)},
		{"rate below downsample", Downsample - 1, constEstimator(Silence)},
		{"nil estimator", 44100, nil},
		{"rate overflows slot packing", 1 << 26, constEstimator(Silence)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d, err := NewDetector(tt.rate, tt.est); err == nil {
				d.Close()
				t.Fatal("NewDetector succeeded, want error")
			}
		})
	}
}

func TestGetKeyBeforeFirstWindow(t *testing.T) {
	d, err := NewDetector(testRate, constEstimator(CMajor))
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	if got := d.GetKey(); got != NoKeyName {
		t.Errorf("GetKey() = %q, want %q", got, NoKeyName)
	}
	if got := len(d.GetKey()); got != 3 {
		t.Errorf("len(GetKey()) = %d, want 3", got)
	}
}

func TestFeedIgnoresInvalidInput(t *testing.T) {
	d, err := NewDetector(testRate, constEstimator(CMajor))
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	d.Feed(nil)
	d.Feed([]int16{})
	d.Feed([]int16{1234}) // half a frame

	if d.cursor != 0 || d.decim != 0 {
		t.Errorf("cursor/decim = %d/%d after invalid input, want 0/0", d.cursor, d.decim)
	}
	if got := d.GetKey(); got != NoKeyName {
		t.Errorf("GetKey() = %q after invalid input, want %q", got, NoKeyName)
	}
}

func TestDetectorReportsKeyAfterTwoWindows(t *testing.T) {
	var calls atomic.Int32
	est := estimatorFunc(func([]float64, int) (Key, error) {
		calls.Add(1)
		return EMinor, nil
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	d.Feed(oneWindow(d))
	waitUntil(t, "first window consumed", func() bool { return d.ready.Load() == slotEmpty && calls.Load() >= 1 })
	d.Feed(oneWindow(d))
	waitUntil(t, "second window analysed", func() bool { return calls.Load() >= 2 })

	waitForKey(t, d, "E min")
}

func TestDetectorEstimatorReceivesWindow(t *testing.T) {
	var gotLen atomic.Int32
	var gotRate atomic.Int32
	est := estimatorFunc(func(samples []float64, rate int) (Key, error) {
		gotLen.Store(int32(len(samples)))
		gotRate.Store(int32(rate))
		return Silence, nil
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	d.Feed(oneWindow(d))
	waitUntil(t, "window analysed", func() bool { return gotLen.Load() != 0 })

	if got, want := int(gotLen.Load()), d.windowSamples; got != want {
		t.Errorf("estimator got %d samples, want %d", got, want)
	}
	if got, want := int(gotRate.Load()), testRate/Downsample; got != want {
		t.Errorf("estimator got rate %d, want %d", got, want)
	}
}

func TestDetectorFollowsMajorityNotLastWindow(t *testing.T) {
	// Three windows of one key followed by a single outlier: the
	// established key must keep the lead.
	var calls atomic.Int32
	est := estimatorFunc(func([]float64, int) (Key, error) {
		if calls.Add(1) <= 3 {
			return CMajor, nil
		}
		return AMinor, nil
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	for i := int32(1); i <= 4; i++ {
		d.Feed(oneWindow(d))
		waitUntil(t, "window consumed", func() bool {
			return calls.Load() >= i && d.ready.Load() == slotEmpty
		})
	}
	waitForKey(t, d, "C maj")

	// Two more consistent windows are enough to take over.
	for i := int32(5); i <= 6; i++ {
		d.Feed(oneWindow(d))
		waitUntil(t, "window consumed", func() bool {
			return calls.Load() >= i && d.ready.Load() == slotEmpty
		})
	}
	waitForKey(t, d, "A min")
}

func TestSilenceKeepsLastReading(t *testing.T) {
	var calls atomic.Int32
	est := estimatorFunc(func([]float64, int) (Key, error) {
		if calls.Add(1) == 1 {
			return GMajor, nil
		}
		return Silence, nil
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	d.Feed(oneWindow(d))
	waitForKey(t, d, "G maj")

	d.Feed(oneWindow(d))
	waitUntil(t, "silent window analysed", func() bool { return calls.Load() >= 2 })
	if got := d.GetKey(); got != "G maj" {
		t.Errorf("GetKey() = %q after a silent window, want %q", got, "G maj")
	}
}

func TestSetWindowClamps(t *testing.T) {
	d, err := NewDetector(testRate, constEstimator(Silence))
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	if got := d.GetWindow(); got != DefaultWindowSeconds {
		t.Errorf("GetWindow() = %v at creation, want %v", got, DefaultWindowSeconds)
	}

	tests := []struct {
		in   float64
		want float64
	}{
		{0.1, MinWindowSeconds},
		{100.0, MaxWindowSeconds},
		{math.NaN(), MinWindowSeconds},
		{3.5, 3.5},
		{MinWindowSeconds, MinWindowSeconds},
		{MaxWindowSeconds, MaxWindowSeconds},
	}

	for _, tt := range tests {
		d.SetWindow(tt.in)
		if got := d.GetWindow(); got != tt.want {
			t.Errorf("SetWindow(%v): GetWindow() = %v, want %v", tt.in, got, tt.want)
		}
		if got, want := d.windowSamples, int(tt.want*float64(testRate/Downsample)); got != want {
			t.Errorf("SetWindow(%v): windowSamples = %d, want %d", tt.in, got, want)
		}
	}
}

func TestSetWindowResetsDetection(t *testing.T) {
	// Five agreeing windows build up a tally that would take several
	// opposing votes to displace. After a reset, a single window of the
	// new key must lead immediately, proving the old votes are gone.
	var calls atomic.Int32
	est := estimatorFunc(func([]float64, int) (Key, error) {
		if calls.Add(1) <= 5 {
			return CMajor, nil
		}
		return AMinor, nil
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	for i := int32(1); i <= 5; i++ {
		d.Feed(oneWindow(d))
		waitUntil(t, "window consumed", func() bool {
			return calls.Load() >= i && d.ready.Load() == slotEmpty
		})
	}
	waitForKey(t, d, "C maj")

	d.SetWindow(DefaultWindowSeconds)
	if got := d.GetKey(); got != NoKeyName {
		t.Fatalf("GetKey() = %q immediately after SetWindow, want %q", got, NoKeyName)
	}

	d.Feed(oneWindow(d))
	waitForKey(t, d, "A min")
}

func TestSetWindowDiscardsInFlightAnalysis(t *testing.T) {
	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()

	var calls atomic.Int32
	est := estimatorFunc(func([]float64, int) (Key, error) {
		n := calls.Add(1)
		entered <- struct{}{}
		<-release
		if n == 1 {
			return CMajor, nil
		}
		return AMinor, nil
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	// Stall the worker inside the first window's analysis, then reset.
	// The C maj vote was earned under the old epoch and must be dropped.
	d.Feed(oneWindow(d))
	<-entered
	d.SetWindow(DefaultWindowSeconds)
	if got := d.GetKey(); got != NoKeyName {
		t.Fatalf("GetKey() = %q immediately after SetWindow, want %q", got, NoKeyName)
	}

	unblock()
	waitUntil(t, "stalled analysis to finish", func() bool { return d.ready.Load() == slotEmpty })

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		if got := d.GetKey(); got != NoKeyName {
			t.Fatalf("GetKey() = %q after reset, want %q (pre-reset vote leaked)", got, NoKeyName)
		}
		time.Sleep(5 * time.Millisecond)
	}

	d.Feed(oneWindow(d))
	waitForKey(t, d, "A min")
}

func TestBackpressureDropsWindowsWhileWorkerStalled(t *testing.T) {
	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()

	var calls atomic.Int32
	est := estimatorFunc(func([]float64, int) (Key, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return GMajor, nil
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	d.Feed(oneWindow(d))
	<-entered // worker is inside analysis and still holds the slot

	// Windows completing during the stall are dropped, never queued.
	d.Feed(oneWindow(d))
	d.Feed(oneWindow(d))
	if d.ready.Load() == slotEmpty {
		t.Fatal("ready slot freed while analysis was in flight")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("estimator ran %d times during stall, want 1", got)
	}

	// Catching up restores normal operation: the next completed window
	// publishes and is analysed.
	unblock()
	waitUntil(t, "stalled analysis to finish", func() bool { return d.ready.Load() == slotEmpty })
	d.Feed(oneWindow(d))
	waitUntil(t, "fresh window analysed", func() bool { return calls.Load() == 2 })
	waitForKey(t, d, "G maj")
}

func TestEstimatorFailureContained(t *testing.T) {
	var calls atomic.Int32
	est := estimatorFunc(func([]float64, int) (Key, error) {
		switch calls.Add(1) {
		case 1:
			panic("estimator blew up")
		case 2:
			return Silence, errors.New("bad window")
		default:
			return DMajor, nil
		}
	})

	d, err := NewDetector(testRate, est)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	for i := int32(1); i <= 2; i++ {
		d.Feed(oneWindow(d))
		waitUntil(t, "window consumed", func() bool {
			return calls.Load() >= i && d.ready.Load() == slotEmpty
		})
		if got := d.GetKey(); got != NoKeyName {
			t.Fatalf("GetKey() = %q after failed estimate, want %q", got, NoKeyName)
		}
	}

	// The worker survived a panic and an error and keeps analysing.
	d.Feed(oneWindow(d))
	waitForKey(t, d, "D maj")
}

func TestReadKey(t *testing.T) {
	d, err := NewDetector(testRate, constEstimator(CMajor))
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	dst := make([]byte, 16)
	if n := d.ReadKey(dst); n != 3 || string(dst[:n]) != NoKeyName {
		t.Errorf("ReadKey() = %d %q, want 3 %q", n, dst[:n], NoKeyName)
	}
	if n := d.ReadKey(nil); n != 0 {
		t.Errorf("ReadKey(nil) = %d, want 0", n)
	}

	d.Feed(oneWindow(d))
	waitForKey(t, d, "C maj")

	if n := d.ReadKey(dst); n != 5 || string(dst[:n]) != "C maj" {
		t.Errorf("ReadKey() = %d %q, want 5 %q", n, dst[:n], "C maj")
	}
	short := make([]byte, 3)
	if n := d.ReadKey(short); n != 3 || string(short) != "C m" {
		t.Errorf("ReadKey(short) = %d %q, want 3 %q", n, short, "C m")
	}
}

func TestCloseIsIdempotentAndFeedAfterCloseIsSafe(t *testing.T) {
	d, err := NewDetector(testRate, constEstimator(CMajor))
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}

	d.Feed(oneWindow(d))
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	// The worker is gone; feeding must still be harmless.
	d.Feed(oneWindow(d))
	d.Feed(oneWindow(d))
	_ = d.GetKey()
}

func TestFeedDoesNotAllocate(t *testing.T) {
	d, err := NewDetector(44100, constEstimator(Silence))
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	// Stop the worker first so only Feed's own allocations are counted:
	// AllocsPerRun sees mallocs from every goroutine. Shrinking the
	// window makes the run cross several window boundaries, covering the
	// publish and drop paths as well as plain accumulation.
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	d.SetWindow(MinWindowSeconds)

	block := stereoFrames(128, 8192)
	allocs := testing.AllocsPerRun(1000, func() {
		d.Feed(block)
	})
	if allocs != 0 {
		t.Errorf("Feed allocated %.1f times per call, want 0", allocs)
	}
}

func TestKeyReadsDoNotAllocate(t *testing.T) {
	d, err := NewDetector(44100, constEstimator(Silence))
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	dst := make([]byte, 16)
	allocs := testing.AllocsPerRun(200, func() {
		_ = d.GetKey()
		d.ReadKey(dst)
	})
	if allocs != 0 {
		t.Errorf("key reads allocated %.1f times per call, want 0", allocs)
	}
}

func TestSlotPacking(t *testing.T) {
	tests := []struct {
		buf   int
		n     int
		epoch uint32
	}{
		{0, 1, 0},
		{1, 1, 0},
		{0, 200, 7},
		{1, 1<<24 - 1, 42},
		{0, 88328, math.MaxUint32},
	}

	for _, tt := range tests {
		s := packSlot(tt.buf, tt.n, tt.epoch)
		if s == slotEmpty {
			t.Errorf("packSlot(%d, %d, %d) collides with the empty sentinel", tt.buf, tt.n, tt.epoch)
		}
		buf, n, epoch := unpackSlot(s)
		if buf != tt.buf || n != tt.n || epoch != tt.epoch {
			t.Errorf("unpackSlot(packSlot(%d, %d, %d)) = (%d, %d, %d)",
				tt.buf, tt.n, tt.epoch, buf, n, epoch)
		}
	}
}

func BenchmarkFeed(b *testing.B) {
	d, err := NewDetector(44100, constEstimator(Silence))
	if err != nil {
		b.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	block := stereoFrames(128, 8192)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d.Feed(block)
	}
}

func BenchmarkReadKey(b *testing.B) {
	d, err := NewDetector(44100, constEstimator(Silence))
	if err != nil {
		b.Fatalf("NewDetector failed: %v", err)
	}
	defer d.Close()

	dst := make([]byte, 16)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d.ReadKey(dst)
	}
}
