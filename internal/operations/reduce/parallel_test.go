package reduce

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linxule/docetl/internal/config"
	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/record"
)

func parallelConfig() *config.Operation {
	foldTime := 1.0
	mergeTime := 1.0

	cfg := batchConfig()
	cfg.FoldPrompt = "FOLD prior={{toJson .output}} new={{range .values}}{{toJson .}} {{end}}"
	cfg.FoldBatchSize = 5
	cfg.MergePrompt = "MERGE {{range .outputs}}{{toJson .}} {{end}}"
	cfg.MergeBatchSize = 2
	cfg.FoldTime = &foldTime
	cfg.MergeTime = &mergeTime

	return cfg
}

func groupRecords(n int) []record.Record {
	records := make([]record.Record, n)
	for i := range records {
		records[i] = record.Record{"category": "k", "id": i}
	}

	return records
}

func TestParallelFoldAndMerge(t *testing.T) {
	t.Parallel()

	client := &stubClient{}

	op, err := New(parallelConfig(), testRuntime(), client, Options{})
	require.NoError(t, err)

	results, cost, err := op.Execute(context.Background(), groupRecords(20))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "k", results[0]["category"])
	assert.Contains(t, results[0], "summary")

	// Every call made is priced exactly once.
	assert.InDelta(t, float64(client.callCount())*stubCallCost, cost, 1e-9)

	reduceCalls := client.countKind(llm.KindReduce)
	mergeCalls := client.countKind(llm.KindMerge)
	assert.Equal(t, client.callCount(), reduceCalls+mergeCalls)
	assert.Equal(t, 4, reduceCalls, "20 records in fold batches of 5")
	assert.Positive(t, mergeCalls)
}

func TestParallelSingleBatchGroup(t *testing.T) {
	t.Parallel()

	client := &stubClient{}

	op, err := New(parallelConfig(), testRuntime(), client, Options{})
	require.NoError(t, err)

	// A group smaller than one fold batch needs exactly one model call
	// and no merges.
	results, cost, err := op.Execute(context.Background(), groupRecords(3))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1, client.callCount())
	assert.Zero(t, client.countKind(llm.KindMerge))
	assert.InDelta(t, stubCallCost, cost, 1e-9)
}

func TestMergeRoundFanIn(t *testing.T) {
	t.Parallel()

	client := &stubClient{}

	op, err := New(parallelConfig(), testRuntime(), client, Options{})
	require.NoError(t, err)

	accs := make([]record.Record, 5)
	for i := range accs {
		accs[i] = record.Record{"summary": fmt.Sprintf("acc%d", i), "category": "k"}
	}

	// 5 → 3 → 2 → 1 with a fan-in of two; single-accumulator chunks pass
	// through without a model call.
	rounds := 0
	for len(accs) > 1 {
		merged, _, mergeErr := op.mergeRound(context.Background(), "k", accs)
		require.NoError(t, mergeErr)
		require.Less(t, len(merged), len(accs), "every round must shrink the set")

		accs = merged
		rounds++
	}

	assert.Equal(t, 3, rounds)
	assert.Equal(t, 4, client.callCount(), "2+1+1 merge calls; pass-through chunks are free")
	assert.Equal(t, 4, client.countKind(llm.KindMerge))
}

func TestMergeRoundBatchSizeOneStillConverges(t *testing.T) {
	t.Parallel()

	cfg := parallelConfig()
	cfg.MergeBatchSize = 1

	client := &stubClient{}

	op, err := New(cfg, testRuntime(), client, Options{})
	require.NoError(t, err)

	accs := []record.Record{
		{"summary": "a", "category": "k"},
		{"summary": "b", "category": "k"},
		{"summary": "c", "category": "k"},
	}

	merged, _, mergeErr := op.mergeRound(context.Background(), "k", accs)
	require.NoError(t, mergeErr)

	assert.Len(t, merged, 2, "fan-in floors at two so rounds always converge")
}

func TestMergeValidationFailureDropsChunk(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		reply: func(_ int, kind llm.Kind, _ string) (string, error) {
			if kind == llm.KindMerge {
				return `{"bogus": 1}`, nil
			}

			return `{"summary": "ok"}`, nil
		},
	}

	op, err := New(parallelConfig(), testRuntime(), client, Options{})
	require.NoError(t, err)

	accs := []record.Record{
		{"summary": "a", "category": "k"},
		{"summary": "b", "category": "k"},
	}

	merged, cost, mergeErr := op.mergeRound(context.Background(), "k", accs)
	require.NoError(t, mergeErr)

	assert.Empty(t, merged, "a chunk whose merge fails validation is dropped")
	assert.InDelta(t, stubCallCost, cost, 1e-9, "its cost still counts")
}

func TestParallelLaneKeepsAccumulatorOnFailedFold(t *testing.T) {
	t.Parallel()

	cfg := parallelConfig()
	// Large enough merge batch to keep eager merging out of the way.
	cfg.MergeBatchSize = 100

	client := &stubClient{
		reply: func(n int, kind llm.Kind, _ string) (string, error) {
			if kind == llm.KindReduce && n == 2 {
				return `{"invalid": true}`, nil
			}

			return fmt.Sprintf(`{"summary": "r%d"}`, n), nil
		},
	}

	op, err := New(cfg, testRuntime(), client, Options{})
	require.NoError(t, err)

	// Group of 10 on one lane with batches of 5: two sequential rounds.
	// The second round's fold fails validation, so the lane keeps the
	// round-one accumulator and the group still produces a result.
	lanes := []record.Record{}
	remaining := groupRecords(10)

	_, roundErr := op.foldRound(context.Background(), "k", &lanes, &remaining, 1)
	require.NoError(t, roundErr)
	require.Len(t, lanes, 1)
	first := lanes[0]
	require.NotNil(t, first)

	_, roundErr = op.foldRound(context.Background(), "k", &lanes, &remaining, 1)
	require.NoError(t, roundErr)

	assert.Equal(t, first, lanes[0], "failed fold leaves the prior accumulator in place")
	assert.Empty(t, remaining)
}
