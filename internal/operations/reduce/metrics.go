package reduce

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	metricFoldsTotal         = "docetl.reduce.folds.total"
	metricMergesTotal        = "docetl.reduce.merges.total"
	metricFoldDuration       = "docetl.reduce.fold.duration.seconds"
	metricMergeDuration      = "docetl.reduce.merge.duration.seconds"
	metricValidationFailures = "docetl.reduce.validation.failures.total"
	metricCostTotal          = "docetl.reduce.cost.dollars"
)

// durationBucketBoundaries covers 100ms to 300s of model-call latency.
var durationBucketBoundaries = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Metrics holds the OTel instruments for the reduce operation. A nil *Metrics
// is valid and records nothing, keeping the engine correct under default,
// no-telemetry conditions.
type Metrics struct {
	foldsTotal         metric.Int64Counter
	mergesTotal        metric.Int64Counter
	foldDuration       metric.Float64Histogram
	mergeDuration      metric.Float64Histogram
	validationFailures metric.Int64Counter
	costTotal          metric.Float64Counter
}

// NewMetrics creates the reduce instruments from the given meter.
func NewMetrics(mt metric.Meter) (*Metrics, error) {
	folds, err := mt.Int64Counter(metricFoldsTotal,
		metric.WithDescription("Total fold calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFoldsTotal, err)
	}

	merges, err := mt.Int64Counter(metricMergesTotal,
		metric.WithDescription("Total merge calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMergesTotal, err)
	}

	foldDur, err := mt.Float64Histogram(metricFoldDuration,
		metric.WithDescription("Fold call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFoldDuration, err)
	}

	mergeDur, err := mt.Float64Histogram(metricMergeDuration,
		metric.WithDescription("Merge call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMergeDuration, err)
	}

	failures, err := mt.Int64Counter(metricValidationFailures,
		metric.WithDescription("Records that failed output schema validation"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricValidationFailures, err)
	}

	cost, err := mt.Float64Counter(metricCostTotal,
		metric.WithDescription("Accumulated model call cost in dollars"),
		metric.WithUnit("{dollar}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCostTotal, err)
	}

	return &Metrics{
		foldsTotal:         folds,
		mergesTotal:        merges,
		foldDuration:       foldDur,
		mergeDuration:      mergeDur,
		validationFailures: failures,
		costTotal:          cost,
	}, nil
}

func (m *Metrics) recordFold(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}

	m.foldsTotal.Add(ctx, 1)
	m.foldDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) recordMerge(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}

	m.mergesTotal.Add(ctx, 1)
	m.mergeDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) recordValidationFailure(ctx context.Context) {
	if m == nil {
		return
	}

	m.validationFailures.Add(ctx, 1)
}

func (m *Metrics) recordCost(ctx context.Context, dollars float64) {
	if m == nil {
		return
	}

	m.costTotal.Add(ctx, dollars)
}
