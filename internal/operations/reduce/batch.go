package reduce

import (
	"context"

	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/record"
	"github.com/linxule/docetl/internal/templates"
)

// batchReduce collapses one batch (or whole group) into a single record with
// one model call, or the gleaning variant when configured. The reduce key is
// injected into the produced record before validation. Cost is reported even
// when the record fails validation; a failed validation yields a nil record
// and no error.
func (op *Operation) batchReduce(ctx context.Context, key any, records []record.Record) (record.Record, float64, error) {
	prompt, err := templates.Render(op.cfg.Prompt, templates.Bindings{
		Values:    records,
		ReduceKey: key,
	})
	if err != nil {
		return nil, 0, err
	}

	var (
		resp *llm.Response
		cost float64
	)

	if op.cfg.Gleaning != nil {
		resp, cost, err = op.client.InvokeWithGleaning(ctx, op.model, llm.KindReduce, prompt, op.cfg.Output.Schema,
			op.cfg.Gleaning.ValidationPrompt, op.cfg.Gleaning.NumRounds)
	} else {
		resp, err = op.client.Invoke(ctx, op.model, llm.KindReduce, prompt, op.cfg.Output.Schema)
		if err == nil {
			cost = resp.Cost()
		}
	}

	if err != nil {
		return nil, cost, err
	}

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
