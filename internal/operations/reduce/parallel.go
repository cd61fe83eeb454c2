package reduce

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/record"
	"github.com/linxule/docetl/internal/templates"
)

// minMergeFanIn is the chunk size floor during merge rounds. A configured
// merge_batch_size of one would merge every accumulator into itself and never
// converge, so merge rounds always combine at least two.
const minMergeFanIn = 2

// foldOutcome carries one finished lane task back to the scheduler.
type foldOutcome struct {
	lane int
	rec  record.Record
	cost float64
	err  error
}

// foldAndMerge is the adaptive lane-parallel fold/merge scheduler.
//
// The group is consumed in rounds. Each round folds up to numLanes batches
// concurrently, one per lane; a lane's results chain sequentially across
// rounds through its own accumulator. While merge telemetry is still sparse
// (< minSamples observations) the engine eagerly merges accumulators in
// merge_batch_size chunks, both to bound their number and to gather merge
// timings. Lane counts computed from placeholder timings are re-derived each
// round until real measurements take over. Once the group is exhausted,
// accumulators are merged down in rounds until one remains.
//
// Lanes keep their identity: each task writes back to its own slot, and a
// fold that fails validation leaves the lane's prior accumulator in place.
func (op *Operation) foldAndMerge(ctx context.Context, key any, records []record.Record) (record.Record, float64, error) {
	est := op.estimateLanes(len(records))

	var (
		lanes     []record.Record
		total     float64
		remaining = records
	)

	for len(remaining) > 0 {
		roundCost, err := op.foldRound(ctx, key, &lanes, &remaining, est.lanes)
		total += roundCost

		if err != nil {
			return nil, total, err
		}

		// Eager merge while merge telemetry is below the trust threshold.
		if op.telemetry.mergeSampleCount() < minSamples {
			accs := compact(lanes)
			if len(accs) >= op.cfg.MergeBatchSize {
				merged, mergeCost, mergeErr := op.mergeRound(ctx, key, accs)
				total += mergeCost

				if mergeErr != nil {
					return nil, total, mergeErr
				}

				lanes = merged
			}
		}

		if est.placeholder {
			next := op.estimateLanes(len(records))
			est.placeholder = next.placeholder

			if !next.placeholder {
				op.logger.Debug("recalculated parallel folds",
					"operation", op.cfg.Name, "from", est.lanes, "to", next.lanes)
				est.lanes = next.lanes
			}
		}
	}

	accs := compact(lanes)

	for len(accs) > 1 {
		merged, mergeCost, mergeErr := op.mergeRound(ctx, key, accs)
		total += mergeCost

		if mergeErr != nil {
			return nil, total, mergeErr
		}

		accs = merged
	}

	if len(accs) == 0 {
		return nil, total, nil
	}

	return accs[0], total, nil
}

// foldRound schedules up to numLanes concurrent lane folds, each consuming
// the next fold_batch_size records, and applies completed results to their
// own lane slots. Lane slots are created lazily on first use.
func (op *Operation) foldRound(
	ctx context.Context, key any, lanes *[]record.Record, remaining *[]record.Record, numLanes int,
) (float64, error) {
	tasks := min(numLanes, len(*remaining))
	outcomes := make(chan foldOutcome, tasks)

	eg := &errgroup.Group{}
	eg.SetLimit(op.maxThreads)

	scheduled := 0

	for i := 0; i < tasks && len(*remaining) > 0; i++ {
		batchEnd := min(op.cfg.FoldBatchSize, len(*remaining))
		batch := (*remaining)[:batchEnd]
		*remaining = (*remaining)[batchEnd:]

		if i >= len(*lanes) {
			*lanes = append(*lanes, nil)
		}

		lane := i
		acc := (*lanes)[lane]
		scheduled++

		eg.Go(func() error {
			rec, cost, err := op.fold(ctx, key, batch, acc)
			outcomes <- foldOutcome{lane: lane, rec: rec, cost: cost, err: err}

			return nil
		})
	}

	_ = eg.Wait()
	close(outcomes)

	var (
		total    float64
		firstErr error
	)

	for outcome := range outcomes {
		total += outcome.cost

		switch {
		case outcome.err != nil:
			if firstErr == nil {
				firstErr = outcome.err
			}
		case outcome.rec != nil:
			(*lanes)[outcome.lane] = outcome.rec
		}
	}

	return total, firstErr
}

// mergeRound partitions accumulators into contiguous chunks and merges each
// chunk concurrently. Results come back in chunk order; a chunk whose merge
// fails validation is dropped, its cost still counted. Single-accumulator
// chunks pass through without a model call.
func (op *Operation) mergeRound(ctx context.Context, key any, accs []record.Record) ([]record.Record, float64, error) {
	fanIn := max(op.cfg.MergeBatchSize, minMergeFanIn)
	numChunks := (len(accs) + fanIn - 1) / fanIn
	results := make([]record.Record, numChunks)
	outcomes := make(chan foldOutcome, numChunks)

	eg := &errgroup.Group{}
	eg.SetLimit(op.maxThreads)

	for chunk := 0; chunk < numChunks; chunk++ {
		start := chunk * fanIn
		end := min(start+fanIn, len(accs))
		batch := accs[start:end]
		idx := chunk

		if len(batch) == 1 {
			results[idx] = batch[0]

			continue
		}

		eg.Go(func() error {
			rec, cost, err := op.merge(ctx, key, batch)
			outcomes <- foldOutcome{lane: idx, rec: rec, cost: cost, err: err}

			return nil
		})
	}

	_ = eg.Wait()
	close(outcomes)

	var (
		total    float64
		firstErr error
	)

	for outcome := range outcomes {
		total += outcome.cost

		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}

			continue
		}

		results[outcome.lane] = outcome.rec
	}

	if firstErr != nil {
		return nil, total, firstErr
	}

	return compact(results), total, nil
}

// merge combines multiple accumulators into one with a single model call,
// reporting the call's duration to merge telemetry.
func (op *Operation) merge(ctx context.Context, key any, outputs []record.Record) (record.Record, float64, error) {
	prompt, err := templates.Render(op.cfg.MergePrompt, templates.Bindings{
		Outputs:   outputs,
		ReduceKey: key,
	})
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()

	resp, err := op.client.Invoke(ctx, op.model, llm.KindMerge, prompt, op.cfg.Output.Schema)
	if err != nil {
		return nil, 0, err
	}

	elapsed := time.Since(start)
	op.telemetry.recordMerge(elapsed)
	op.metrics.recordMerge(ctx, elapsed)

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

// compact returns the non-nil records in order.
func compact(recs []record.Record) []record.Record {
	out := make([]record.Record, 0, len(recs))

	for _, rec := range recs {
		if rec != nil {
			out = append(out, rec)
		}
	}

	return out
}
