package reduce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowFIFOEviction(t *testing.T) {
	t.Parallel()

	w := &window{}

	for i := 0; i < maxSamples; i++ {
		w.push(1.0)
	}

	assert.Equal(t, maxSamples, w.len())
	assert.InDelta(t, 1.0, w.mean(), 1e-9)

	// Each new sample evicts the oldest; capacity never grows.
	for i := 0; i < maxSamples; i++ {
		w.push(3.0)
	}

	assert.Equal(t, maxSamples, w.len())
	assert.InDelta(t, 3.0, w.mean(), 1e-9)
}

func TestWindowPartialMean(t *testing.T) {
	t.Parallel()

	w := &window{}
	w.push(1.0)
	w.push(2.0)
	w.push(6.0)

	assert.Equal(t, 3, w.len())
	assert.InDelta(t, 3.0, w.mean(), 1e-9)
}

func TestWindowEmptyMean(t *testing.T) {
	t.Parallel()

	w := &window{}
	assert.Zero(t, w.mean())
}

func TestFoldEstimatePlaceholderUntilMinSamples(t *testing.T) {
	t.Parallel()

	tel := newTelemetry(nil, nil)

	for i := 0; i < minSamples-1; i++ {
		tel.recordFold(2 * time.Second)

		est, placeholder := tel.foldEstimate()
		assert.True(t, placeholder, "below %d samples the estimate is a placeholder", minSamples)
		assert.InDelta(t, placeholderSeconds, est, 1e-9)
	}

	tel.recordFold(2 * time.Second)

	est, placeholder := tel.foldEstimate()
	assert.False(t, placeholder)
	assert.InDelta(t, 2.0, est, 1e-9)
}

func TestMergeEstimateMirrorsFold(t *testing.T) {
	t.Parallel()

	tel := newTelemetry(nil, nil)

	est, placeholder := tel.mergeEstimate()
	assert.True(t, placeholder)
	assert.InDelta(t, placeholderSeconds, est, 1e-9)

	for i := 0; i < minSamples; i++ {
		tel.recordMerge(500 * time.Millisecond)
	}

	assert.Equal(t, minSamples, tel.mergeSampleCount())

	est, placeholder = tel.mergeEstimate()
	assert.False(t, placeholder)
	assert.InDelta(t, 0.5, est, 1e-9)
}

func TestOverridesShortCircuitMeasurement(t *testing.T) {
	t.Parallel()

	foldOverride := 4.0
	mergeOverride := 0.25
	tel := newTelemetry(&foldOverride, &mergeOverride)

	// Overrides win even with a full window of contradicting samples.
	for i := 0; i < minSamples; i++ {
		tel.recordFold(time.Second)
		tel.recordMerge(time.Second)
	}

	est, placeholder := tel.foldEstimate()
	assert.False(t, placeholder)
	assert.InDelta(t, 4.0, est, 1e-9)

	est, placeholder = tel.mergeEstimate()
	assert.False(t, placeholder)
	assert.InDelta(t, 0.25, est, 1e-9)
}
