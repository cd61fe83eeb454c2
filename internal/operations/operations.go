// Package operations defines the operation abstraction and the factory that
// builds a concrete operation from its configuration.
package operations

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/linxule/docetl/internal/config"
	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/operations/filter"
	"github.com/linxule/docetl/internal/operations/reduce"
	"github.com/linxule/docetl/internal/record"
)

// Operation transforms a record sequence into another record sequence,
// reporting the total model-call cost incurred.
type Operation interface {
	Name() string
	Execute(ctx context.Context, records []record.Record) ([]record.Record, float64, error)
}

// Tracker receives completion-order progress during execution.
type Tracker interface {
	Increment(n int64)
}

// Options carries optional collaborators passed down to operations.
type Options struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
	Progress Tracker
}

// New builds the operation named by the config's type. The operation's
// config syntax check runs here; any ConfigError surfaces before a single
// record is processed.
func New(cfg *config.Operation, rt config.Runtime, client llm.Client, opts Options) (Operation, error) {
	switch cfg.Type {
	case config.TypeReduce:
		return reduce.New(cfg, rt, client, reduce.Options{
			Logger:   opts.Logger,
			Tracer:   opts.Tracer,
			Meter:    opts.Meter,
			Progress: opts.Progress,
		})
	case config.TypeFilter:
		return filter.New(cfg, rt, client, filter.Options{
			Logger:   opts.Logger,
			Progress: opts.Progress,
		})
	case "":
		return nil, config.ErrMissingType
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownType, cfg.Type)
	}
}
