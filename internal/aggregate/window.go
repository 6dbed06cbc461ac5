// Package aggregate buffers decoded samples and reduces them to one value
// per path at the end of each window.
package aggregate

import (
	"strconv"
	"time"
)

// DefaultDuration is the window length used when none is configured.
const DefaultDuration = 10 * time.Second

// Window collects samples for a fixed duration.
// Not safe for concurrent use; the caller must synchronize Add and Flush.
type Window struct {
	duration  time.Duration
	start     time.Time
	samples   map[string][]float64
	precision map[string]int
}

// NewWindow creates a window that opens at start. precisions is copied.
func NewWindow(duration time.Duration, start time.Time, precisions map[string]int) *Window {
	if duration <= 0 {
		duration = DefaultDuration
	}
	w := &Window{
		duration:  duration,
		start:     start,
		samples:   make(map[string][]float64),
		precision: make(map[string]int, len(precisions)),
	}
	for path, p := range precisions {
		w.precision[path] = p
	}
	return w
}

// Add appends a sample to the current window.
func (w *Window) Add(path string, v float64) {
	w.samples[path] = append(w.samples[path], v)
}

// Due reports whether the window has run its full duration at now.
func (w *Window) Due(now time.Time) bool {
	return now.Sub(w.start) >= w.duration
}

// Duration returns the configured window length.
func (w *Window) Duration() time.Duration {
	return w.duration
}

// Pending returns the number of samples buffered in the current window.
func (w *Window) Pending() int {
	n := 0
	for _, s := range w.samples {
		n += len(s)
	}
	return n
}

// Flush averages every path that received samples, rounds the mean to the
// path's precision and starts a new window at now. Paths without samples
// are absent from the result.
func (w *Window) Flush(now time.Time) map[string]float64 {
	samples := w.samples
	w.samples = make(map[string][]float64, len(samples))
	w.start = now

	out := make(map[string]float64, len(samples))
	for path, values := range samples {
		if len(values) == 0 {
			continue
		}
		avg := mean(values)
		if p, ok := w.precision[path]; ok {
			avg = round(avg, p)
		}
		out[path] = avg
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// round formats v with the given number of fractional digits and parses it
// back, so the result matches the decimal that would be printed.
func round(v float64, digits int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', digits, 64), 64)
	if err != nil {
		return v
	}
	return r
}
