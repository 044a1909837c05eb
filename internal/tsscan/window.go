package tsscan

// peakWindow tracks the highest byte rate of one PID over a sliding window
// of presentation time. Samples are (elapsed ticks, bytes sent since the
// previous sample); the front sample only marks the window start.
type peakWindow struct {
	size  uint64
	times []uint64
	bytes []uint64
	sum   uint64
	peak  int64
}

func newPeakWindow(size uint64) *peakWindow {
	if size == 0 {
		size = ptsHz
	}
	return &peakWindow{size: size}
}

func (w *peakWindow) add(at, bytes uint64) {
	if len(w.times) > 0 && at < w.times[len(w.times)-1] {
		at = w.times[len(w.times)-1]
	}
	w.times = append(w.times, at)
	w.bytes = append(w.bytes, bytes)
	if len(w.times) > 1 {
		w.sum += bytes
	}
	for len(w.times) > 2 && at-w.times[1] >= w.size {
		w.times = w.times[1:]
		w.bytes = w.bytes[1:]
		w.sum -= w.bytes[0]
	}
	if span := at - w.times[0]; span >= w.size {
		w.observe(span)
	}
}

func (w *peakWindow) observe(span uint64) {
	if span == 0 {
		return
	}
	rate := int64(float64(w.sum) * 8 * ptsHz / float64(span))
	if rate > w.peak {
		w.peak = rate
	}
}

// result returns the peak rate. Streams shorter than the window report the
// rate over their whole span.
func (w *peakWindow) result() int64 {
	if w.peak == 0 && len(w.times) > 1 {
		w.observe(w.times[len(w.times)-1] - w.times[0])
	}
	return w.peak
}
