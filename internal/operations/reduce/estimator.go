package reduce

import "math"

// estimateParallelFolds derives how many fold lanes to run concurrently for
// one group. The numerator approximates outstanding fold work (per-batch fold
// time × number of batches, scaled by the logarithmic merge fan-in); the
// denominator approximates per-lane merge throughput. The result is advisory
// and re-derived whenever it was computed from placeholder timings.
//
// mergeBatchSize ≤ 1 drives the logarithm non-positive, so the result floors
// at one lane. mergeTime is never zero: telemetry placeholders default to one
// second and config overrides are validated positive.
func estimateParallelFolds(foldTime, mergeTime float64, groupSize, foldBatchSize, mergeBatchSize int) int {
	lanes := int(foldTime * float64(groupSize) * math.Log(float64(mergeBatchSize)) /
		(float64(foldBatchSize) * mergeTime))

	return max(lanes, 1)
}

// laneEstimate couples the advisory lane count with whether placeholder
// timings went into it.
type laneEstimate struct {
	lanes       int
	placeholder bool
}

// estimateLanes runs the estimator against current telemetry.
func (op *Operation) estimateLanes(groupSize int) laneEstimate {
	foldTime, foldPlaceholder := op.telemetry.foldEstimate()
	mergeTime, mergePlaceholder := op.telemetry.mergeEstimate()

	lanes := estimateParallelFolds(foldTime, mergeTime, groupSize, op.cfg.FoldBatchSize, op.cfg.MergeBatchSize)

	return laneEstimate{lanes: lanes, placeholder: foldPlaceholder || mergePlaceholder}
}
