package reduce

import (
	"context"
	"time"

	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/record"
	"github.com/linxule/docetl/internal/templates"
)

// fold combines a batch of records with a prior accumulator. With no prior
// accumulator this degenerates to batchReduce, which does not contribute a
// fold-time sample. Otherwise the call's wall-clock duration feeds the fold
// telemetry window regardless of validation outcome.
func (op *Operation) fold(ctx context.Context, key any, batch []record.Record, acc record.Record) (record.Record, float64, error) {
	if acc == nil {
		return op.batchReduce(ctx, key, batch)
	}

	prompt, err := templates.Render(op.cfg.FoldPrompt, templates.Bindings{
		Values:    batch,
		Output:    acc,
		ReduceKey: key,
	})
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()

	resp, err := op.client.Invoke(ctx, op.model, llm.KindReduce, prompt, op.cfg.Output.Schema)
	if err != nil {
		return nil, 0, err
	}

	elapsed := time.Since(start)
	op.telemetry.recordFold(elapsed)
	op.metrics.recordFold(ctx, elapsed)

	cost := resp.Cost()

	out, parseErr := llm.ParseRecord(resp)
	if parseErr != nil {
		return nil, cost, parseErr
	}

	out[op.cfg.ReduceKey] = key

	if !op.validator.Validate(out) {
		op.metrics.recordValidationFailure(ctx)

		return nil, cost, nil
	}

	return out, cost, nil
}

// incrementalReduce processes the group in fold_batch_size batches,
// sequentially folding each batch into the running accumulator. The first
// batch seeds the accumulator via batchReduce. Any absent fold aborts the
// whole group: no partial result is emitted, but the cost already incurred is
// still reported.
func (op *Operation) incrementalReduce(ctx context.Context, key any, records []record.Record) (record.Record, float64, error) {
	var (
		acc   record.Record
		total float64
	)

	for start := 0; start < len(records); start += op.cfg.FoldBatchSize {
		end := min(start+op.cfg.FoldBatchSize, len(records))

		folded, cost, err := op.fold(ctx, key, records[start:end], acc)
		total += cost

		if err != nil {
			return nil, total, err
		}

		if folded == nil {
			return nil, total, nil
		}

		acc = folded
	}

	return acc, total, nil
}
