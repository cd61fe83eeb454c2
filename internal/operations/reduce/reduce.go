// Package reduce implements the grouped reduction operation: records are
// grouped by a reduce key and each group is collapsed into one record by a
// language model, using one of three strategies fixed at config-check time.
//
// The parallel fold/merge strategy is the interesting one: it folds a group
// in lane-parallel batches, merges partial accumulators, and sizes its lane
// count from a rolling latency model of its own fold and merge calls.
package reduce

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/linxule/docetl/internal/config"
	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/record"
	"github.com/linxule/docetl/internal/schema"
)

// tracerName is the fallback OTel tracer name.
const tracerName = "docetl"

// strategy selects how a group is reduced. Fixed per operation instance at
// construction time, never re-dispatched per call.
type strategy int

const (
	// strategyBatch reduces the whole group with a single model call.
	strategyBatch strategy = iota

	// strategyIncremental folds fixed-size batches sequentially.
	strategyIncremental

	// strategyParallel runs the adaptive lane-parallel fold/merge engine.
	strategyParallel
)

// Tracker receives completion-order progress while groups are processed.
type Tracker interface {
	Increment(n int64)
}

// Options carries the optional collaborators for an Operation. Zero values
// select no-op behavior throughout.
type Options struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
	Progress Tracker
}

// Operation is a configured reduce operation. Telemetry windows persist
// across repeated Execute calls on the same instance.
type Operation struct {
	cfg       *config.Operation
	client    llm.Client
	validator *schema.Validator
	telemetry *telemetry
	strategy  strategy

	model      string
	maxThreads int

	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	progress Tracker
}

// New builds a reduce operation, running the full config syntax check and
// compiling the output schema eagerly so no configuration problem can
// surface mid-execution.
func New(cfg *config.Operation, rt config.Runtime, client llm.Client, opts Options) (*Operation, error) {
	err := cfg.Check()
	if err != nil {
		return nil, err
	}

	validator, err := schema.Compile(cfg.Output.Schema)
	if err != nil {
		return nil, err
	}

	op := &Operation{
		cfg:        cfg,
		client:     client,
		validator:  validator,
		telemetry:  newTelemetry(cfg.FoldTime, cfg.MergeTime),
		strategy:   selectStrategy(cfg),
		model:      cfg.Model,
		maxThreads: rt.MaxThreads,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		metrics:    nil,
		progress:   opts.Progress,
	}

	if op.model == "" {
		op.model = rt.Model
	}

	if op.maxThreads <= 0 {
		op.maxThreads = 1
	}

	if op.logger == nil {
		op.logger = slog.Default()
	}

	if opts.Meter != nil {
		op.metrics, err = NewMetrics(opts.Meter)
		if err != nil {
			return nil, err
		}
	}

	return op, nil
}

// selectStrategy encodes the config-level invariant: a merge template
// implies parallel fold/merge, a fold template alone implies incremental
// folding, neither implies single-shot batch reduction.
func selectStrategy(cfg *config.Operation) strategy {
	switch {
	case cfg.MergePrompt != "":
		return strategyParallel
	case cfg.FoldPrompt != "":
		return strategyIncremental
	default:
		return strategyBatch
	}
}

// Name returns the operation name.
func (op *Operation) Name() string {
	if op.cfg.Name != "" {
		return op.cfg.Name
	}

	return config.TypeReduce
}

// groupOutcome is one finished group dispatch.
type groupOutcome struct {
	rec  record.Record
	cost float64
	err  error
}

// Execute groups the input records by the reduce key and reduces each group
// on a bounded worker pool. Output order is completion order, not group-key
// order; absent results are excluded. The returned cost is the sum of every
// model call made, including calls whose output failed validation.
func (op *Operation) Execute(ctx context.Context, records []record.Record) ([]record.Record, float64, error) {
	ctx, span := op.getTracer().Start(ctx, "reduce.execute",
		trace.WithAttributes(
			attribute.String("reduce.key", op.cfg.ReduceKey),
			attribute.Int("reduce.records", len(records)),
		))
	defer span.End()

	start := time.Now()
	groups := groupByKey(records, op.cfg.ReduceKey)
	span.SetAttributes(attribute.Int("reduce.groups", len(groups)))

	outcomes := make(chan groupOutcome, len(groups))

	eg := &errgroup.Group{}
	eg.SetLimit(op.maxThreads)

	for _, g := range groups {
		projected := projectGroup(g, op.cfg.Input.Schema)

		eg.Go(func() error {
			rec, cost, err := op.processGroup(ctx, projected)
			outcomes <- groupOutcome{rec: rec, cost: cost, err: err}

			if op.progress != nil {
				op.progress.Increment(int64(len(projected.records)))
			}

			return nil
		})
	}

	_ = eg.Wait()
	close(outcomes)

	var (
		results   []record.Record
		totalCost float64
		firstErr  error
	)

	for outcome := range outcomes {
		totalCost += outcome.cost

		switch {
		case outcome.err != nil:
			if firstErr == nil {
				firstErr = outcome.err
			}
		case outcome.rec != nil:
			results = append(results, outcome.rec)
		}
	}

	op.metrics.recordCost(ctx, totalCost)

	if firstErr != nil {
		return nil, totalCost, firstErr
	}

	op.logger.Info("reduce complete",
		"operation", op.Name(),
		"groups", len(groups),
		"results", len(results),
		"cost", totalCost,
		"duration", time.Since(start))

	return results, totalCost, nil
}

// processGroup runs the selected strategy on one group and applies
// pass-through fields to a successful result.
func (op *Operation) processGroup(ctx context.Context, g group) (record.Record, float64, error) {
	ctx, span := op.getTracer().Start(ctx, "reduce.group",
		trace.WithAttributes(attribute.Int("reduce.group_size", len(g.records))))
	defer span.End()

	var (
		result record.Record
		cost   float64
		err    error
	)

	switch op.strategy {
	case strategyParallel:
		result, cost, err = op.foldAndMerge(ctx, g.key, g.records)
	case strategyIncremental:
		result, cost, err = op.incrementalReduce(ctx, g.key, g.records)
	default:
		result, cost, err = op.batchReduce(ctx, g.key, g.records)
	}

	if err != nil || result == nil {
		return nil, cost, err
	}

	if op.cfg.PassThrough && len(g.records) > 0 {
		op.applyPassThrough(result, g.records[0])
	}

	return result, cost, nil
}

// applyPassThrough copies every field from the group's first record that is
// neither declared by the output schema nor already present in the result.
func (op *Operation) applyPassThrough(result, first record.Record) {
	for field, value := range first {
		if _, declared := op.cfg.Output.Schema[field]; declared {
			continue
		}

		if _, present := result[field]; present {
			continue
		}

		result[field] = value
	}
}

func (op *Operation) getTracer() trace.Tracer {
	if op.tracer != nil {
		return op.tracer
	}

	return otel.Tracer(tracerName)
}
