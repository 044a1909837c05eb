package logging

import "math"

// ProgressSampler decides which progress samples are worth a log line: the
// first sample of every phase, then one each time progress reaches the next
// multiple of the step.
type ProgressSampler struct {
	step    float64
	phase   string
	next    float64
	started bool
}

// NewProgressSampler returns a sampler that logs every step percent
// (default 5).
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether a sample at percent during phase should be
// logged. A negative percent is unknown progress; only a phase change logs it.
func (s *ProgressSampler) ShouldLog(percent float64, phase string) bool {
	if !s.started || phase != s.phase {
		s.started = true
		s.phase = phase
		s.next = s.threshold(percent)
		return true
	}
	if percent < 0 || min(percent, 100) < s.next {
		return false
	}
	s.next = s.threshold(percent)
	return true
}

// threshold is the first multiple of step above percent.
func (s *ProgressSampler) threshold(percent float64) float64 {
	if percent < 0 {
		return s.step
	}
	return (math.Floor(min(percent, 100)/s.step) + 1) * s.step
}
