package key

import "fmt"

// InlineDetector is the synchronous counterpart of Detector for offline
// work such as file analysis: Feed scores each completed window before it
// returns, so results are deterministic with respect to the samples fed so
// far. It spawns no goroutine and is not safe for concurrent use.
type InlineDetector struct {
	est Estimator

	effectiveRate int

	buf           []float64
	cursor        int
	decim         int
	windowSamples int
	windowSecs    float64

	tally   voteTally
	current Key
}

var _ Analyzer = (*InlineDetector)(nil)

// NewInlineDetector mirrors NewDetector's validation and defaults but
// performs all analysis inline.
func NewInlineDetector(rate int, est Estimator) (*InlineDetector, error) {
	if rate < Downsample {
		return nil, fmt.Errorf("sample rate must be at least %d Hz, got %d", Downsample, rate)
	}
	if est == nil {
		return nil, fmt.Errorf("estimator must not be nil")
	}

	effective := rate / Downsample
	return &InlineDetector{
		est:           est,
		effectiveRate: effective,
		buf:           make([]float64, int(MaxWindowSeconds)*effective+blockHeadroom),
		windowSamples: int(DefaultWindowSeconds * float64(effective)),
		windowSecs:    DefaultWindowSeconds,
		current:       Silence,
	}, nil
}

// Feed accepts interleaved stereo int16 PCM and analyses every window it
// completes. Nil or sub-frame input is a no-op.
func (d *InlineDetector) Feed(pcm []int16) {
	frames := len(pcm) / 2
	if frames <= 0 {
		return
	}

	for i := 0; i < frames; i++ {
		if d.decim == 0 {
			l := float64(pcm[2*i]) * pcmScale
			r := float64(pcm[2*i+1]) * pcmScale
			d.buf[d.cursor] = (l + r) * 0.5
			d.cursor++

			if d.cursor >= d.windowSamples {
				d.analyzeWindow(d.buf[:d.cursor])
				d.cursor = 0
			}
		}
		d.decim++
		if d.decim == Downsample {
			d.decim = 0
		}
	}
}

// Flush analyses whatever partial window has accumulated, provided it
// covers at least the minimum window length. File tails shorter than that
// carry too little evidence to vote.
func (d *InlineDetector) Flush() {
	if float64(d.cursor) >= MinWindowSeconds*float64(d.effectiveRate) {
		d.analyzeWindow(d.buf[:d.cursor])
	}
	d.cursor = 0
	d.decim = 0
}

func (d *InlineDetector) analyzeWindow(samples []float64) {
	k, err := d.est.Estimate(samples, d.effectiveRate)
	if err != nil || !k.Valid() {
		return
	}
	d.current = d.tally.cast(k)
}

// GetKey returns the current detection as its canonical display string.
func (d *InlineDetector) GetKey() string {
	return d.current.String()
}

// CurrentKey returns the detection as a Key value.
func (d *InlineDetector) CurrentKey() Key {
	return d.current
}

// SetWindow matches Detector.SetWindow: clamp, recompute, full reset.
func (d *InlineDetector) SetWindow(seconds float64) {
	seconds = clampWindow(seconds)
	d.windowSecs = seconds
	d.windowSamples = int(seconds * float64(d.effectiveRate))
	d.cursor = 0
	d.decim = 0
	d.tally.reset()
	d.current = Silence
}

// GetWindow returns the current window length in seconds.
func (d *InlineDetector) GetWindow() float64 {
	return d.windowSecs
}

// Close satisfies Analyzer; an inline detector holds no resources.
func (d *InlineDetector) Close() error {
	return nil
}
