package reduce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(noopmetric.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.recordFold(ctx, time.Second)
	m.recordMerge(ctx, time.Second)
	m.recordValidationFailure(ctx)
	m.recordCost(ctx, 0.5)
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics

	ctx := context.Background()
	m.recordFold(ctx, time.Second)
	m.recordMerge(ctx, time.Second)
	m.recordValidationFailure(ctx)
	m.recordCost(ctx, 1.0)
}
