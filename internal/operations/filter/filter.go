// Package filter implements the per-record filter operation: one model call
// per record decides, via a single boolean output field, whether the record
// survives. No grouping and no adaptive scheduling are involved.
package filter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linxule/docetl/internal/config"
	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/record"
	"github.com/linxule/docetl/internal/schema"
	"github.com/linxule/docetl/internal/templates"
)

// Tracker receives completion-order progress while records are processed.
type Tracker interface {
	Increment(n int64)
}

// Options carries optional collaborators. Zero values are no-ops.
type Options struct {
	Logger   *slog.Logger
	Progress Tracker
}

// Operation is a configured filter operation.
type Operation struct {
	cfg       *config.Operation
	client    llm.Client
	validator *schema.Validator
	filterKey string

	model      string
	maxThreads int

	logger   *slog.Logger
	progress Tracker
}

// New builds a filter operation, validating the config eagerly.
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
		model:      cfg.Model,
		maxThreads: rt.MaxThreads,
		logger:     opts.Logger,
		progress:   opts.Progress,
	}

	// The config check guarantees exactly one schema field.
	for field := range cfg.Output.Schema {
		op.filterKey = field
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

	return op, nil
}

// Name returns the operation name.
func (op *Operation) Name() string {
	if op.cfg.Name != "" {
		return op.cfg.Name
	}

	return config.TypeFilter
}

type itemOutcome struct {
	rec  record.Record
	cost float64
	err  error
}

// Execute runs the filter over every record on a bounded worker pool.
// Surviving records carry the boolean judgment field plus every original
// field not declared by the output schema; output order is completion
// order. Cost counts every call, including ones whose output failed
// validation or judged false.
func (op *Operation) Execute(ctx context.Context, records []record.Record) ([]record.Record, float64, error) {
	start := time.Now()
	outcomes := make(chan itemOutcome, len(records))

	eg := &errgroup.Group{}
	eg.SetLimit(op.maxThreads)

	for _, rec := range records {
		rec := rec
		eg.Go(func() error {
			out, cost, err := op.processItem(ctx, rec)
			outcomes <- itemOutcome{rec: out, cost: cost, err: err}

			if op.progress != nil {
				op.progress.Increment(1)
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

	if firstErr != nil {
		return nil, totalCost, firstErr
	}

	op.logger.Info("filter complete",
		"operation", op.Name(),
		"input", len(records),
		"kept", len(results),
		"cost", totalCost,
		"duration", time.Since(start))

	return results, totalCost, nil
}

// processItem judges one record. A record is returned only when its output
// validates and the boolean filter field is true.
func (op *Operation) processItem(ctx context.Context, rec record.Record) (record.Record, float64, error) {
	prompt, err := templates.Render(op.cfg.Prompt, templates.Bindings{Input: rec})
	if err != nil {
		return nil, 0, err
	}

	resp, err := op.client.Invoke(ctx, op.model, llm.KindFilter, prompt, op.cfg.Output.Schema)
	if err != nil {
		return nil, 0, err
	}

	cost := resp.Cost()

	out, parseErr := llm.ParseRecord(resp)
	if parseErr != nil {
		return nil, cost, parseErr
	}

	// Original fields outside the output schema ride along; the schema's
	// boolean field stays, carrying the judgment.
	for field, value := range rec {
		if _, declared := op.cfg.Output.Schema[field]; !declared {
			out[field] = value
		}
	}

	if !op.validator.Validate(out) {
		return nil, cost, nil
	}

	keep, _ := out[op.filterKey].(bool)
	if !keep {
		return nil, cost, nil
	}

	return out, cost, nil
}
