// Package warmup measures capture rate stability from frame arrival times.
package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the largest FPS standard deviation, as a
	// fraction of the mean, of a stable source.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the largest mean jitter, as a fraction of
	// the expected frame interval, of a stable source.
	jitterStabilityThreshold = 0.20
)

// Stats summarises frame arrivals over a warm-up window.
type Stats struct {
	FramesReceived int
	Duration       time.Duration

	FPSMean   float64
	FPSStdDev float64
	FPSMin    float64
	FPSMax    float64

	// Jitter is |actual interval - expected interval|, in seconds.
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64

	IsStable bool
}

// Calculate derives Stats from arrival times collected over total.
//
// Stable means FPS stddev < 15% of the mean and mean jitter < 20% of the
// expected interval. Fewer than two arrivals is never stable.
func Calculate(arrivals []time.Time, total time.Duration) Stats {
	n := len(arrivals)
	s := Stats{FramesReceived: n, Duration: total}
	if n == 0 || total <= 0 {
		return s
	}
	s.FPSMean = float64(n) / total.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if d := arrivals[i].Sub(arrivals[i-1]).Seconds(); d > 0 {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 {
		return s
	}

	s.FPSMin, s.FPSMax = math.Inf(1), 0
	var sq float64
	for _, d := range intervals {
		fps := 1 / d
		s.FPSMin = math.Min(s.FPSMin, fps)
		s.FPSMax = math.Max(s.FPSMax, fps)
		sq += (fps - s.FPSMean) * (fps - s.FPSMean)
	}
	s.FPSStdDev = math.Sqrt(sq / float64(len(intervals)))

	expected := 1 / s.FPSMean
	jitters := make([]float64, len(intervals))
	var sum float64
	for i, d := range intervals {
		jitters[i] = math.Abs(d - expected)
		sum += jitters[i]
		s.JitterMax = math.Max(s.JitterMax, jitters[i])
	}
	s.JitterMean = sum / float64(len(jitters))

	sq = 0
	for _, j := range jitters {
		sq += (j - s.JitterMean) * (j - s.JitterMean)
	}
	s.JitterStdDev = math.Sqrt(sq / float64(len(jitters)))

	s.IsStable = s.FPSStdDev < s.FPSMean*fpsStabilityThreshold &&
		s.JitterMean < expected*jitterStabilityThreshold
	return s
}

// Recorder collects arrival times while armed. Not safe for concurrent
// use; the owner serialises access.
type Recorder struct {
	arrivals []time.Time
	armed    bool
}

// Arm clears previous samples and starts recording.
func (r *Recorder) Arm() {
	r.arrivals = r.arrivals[:0]
	r.armed = true
}

// Observe records an arrival when armed.
func (r *Recorder) Observe(t time.Time) {
	if r.armed {
		r.arrivals = append(r.arrivals, t)
	}
}

// Disarm stops recording and returns the collected arrivals.
func (r *Recorder) Disarm() []time.Time {
	r.armed = false
	out := make([]time.Time, len(r.arrivals))
	copy(out, r.arrivals)
	return out
}
