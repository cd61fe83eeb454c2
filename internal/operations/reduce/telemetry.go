package reduce

import (
	"sync"
	"time"
)

// Telemetry window sizing.
const (
	// minSamples is how many observations a window needs before its mean is
	// trusted over the placeholder estimate.
	minSamples = 5

	// maxSamples caps each window; the oldest sample is evicted first.
	maxSamples = 1000

	// placeholderSeconds is the assumed fold/merge latency before any real
	// measurements exist. The scheduler starts conservative and re-estimates
	// once the placeholder is no longer needed.
	placeholderSeconds = 1.0
)

// window is a bounded FIFO of observed durations in seconds. Not safe for
// concurrent use on its own; telemetry serializes access.
type window struct {
	samples [maxSamples]float64
	head    int
	count   int
	sum     float64
}

// push appends a sample, evicting the oldest once the window is full.
func (w *window) push(seconds float64) {
	if w.count == maxSamples {
		w.sum -= w.samples[w.head]
		w.samples[w.head] = seconds
		w.head = (w.head + 1) % maxSamples
	} else {
		w.samples[(w.head+w.count)%maxSamples] = seconds
		w.count++
	}

	w.sum += seconds
}

func (w *window) mean() float64 {
	if w.count == 0 {
		return 0
	}

	return w.sum / float64(w.count)
}

func (w *window) len() int {
	return w.count
}

// telemetry tracks observed fold and merge durations across every group and
// every execution of one operation instance. Both windows share a single
// lock; contention is irrelevant next to model-call latency.
type telemetry struct {
	mu     sync.Mutex
	folds  window
	merges window

	// foldOverride and mergeOverride come from the operation config
	// (fold_time / merge_time) and short-circuit measurement entirely.
	foldOverride  *float64
	mergeOverride *float64
}

func newTelemetry(foldOverride, mergeOverride *float64) *telemetry {
	return &telemetry{foldOverride: foldOverride, mergeOverride: mergeOverride}
}

// recordFold appends one observed fold duration.
func (t *telemetry) recordFold(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.folds.push(d.Seconds())
}

// recordMerge appends one observed merge duration.
func (t *telemetry) recordMerge(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.merges.push(d.Seconds())
}

// foldEstimate returns the estimated fold latency in seconds. The boolean is
// true when the value is the placeholder rather than a measurement or
// override; the estimator uses it to keep re-deriving lane counts until real
// timings exist.
func (t *telemetry) foldEstimate() (float64, bool) {
	if t.foldOverride != nil {
		return *t.foldOverride, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.folds.len() >= minSamples {
		return t.folds.mean(), false
	}

	return placeholderSeconds, true
}

// mergeEstimate mirrors foldEstimate for the merge window.
func (t *telemetry) mergeEstimate() (float64, bool) {
	if t.mergeOverride != nil {
		return *t.mergeOverride, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.merges.len() >= minSamples {
		return t.merges.mean(), false
	}

	return placeholderSeconds, true
}

// mergeSampleCount reports how many merge durations have been observed. The
// parallel engine merges eagerly while this is below minSamples so the
// scheduler gathers merge telemetry instead of waiting for it.
func (t *telemetry) mergeSampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.merges.len()
}
