package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReduce() *Operation {
	return &Operation{
		Name:      "summarize",
		Type:      TypeReduce,
		ReduceKey: "category",
		Prompt:    "Summarize {{range .values}}{{.}}{{end}}",
		Output:    SchemaBlock{Schema: map[string]string{"summary": "string"}},
	}
}

func validParallelReduce() *Operation {
	op := validReduce()
	op.FoldPrompt = "Fold {{range .values}}{{.}}{{end}} into {{toJson .output}}"
	op.FoldBatchSize = 10
	op.MergePrompt = "Merge {{range .outputs}}{{.}}{{end}}"
	op.MergeBatchSize = 2

	return op
}

func TestCheckReduceValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, validReduce().Check())
	require.NoError(t, validParallelReduce().Check())
}

func TestCheckReduceErrors(t *testing.T) {
	t.Parallel()

	negative := -1.0

	tests := []struct {
		name    string
		mutate  func(*Operation)
		wantErr error
	}{
		{"missing reduce_key", func(op *Operation) { op.ReduceKey = "" }, ErrMissingReduceKey},
		{"missing prompt", func(op *Operation) { op.Prompt = "" }, ErrMissingPrompt},
		{"empty output schema", func(op *Operation) { op.Output.Schema = nil }, ErrMissingOutputSchema},
		{"prompt without values", func(op *Operation) { op.Prompt = "key: {{.reduce_key}}" }, ErrPromptMissingValues},
		{"merge without fold", func(op *Operation) {
			op.MergePrompt = "Merge {{.outputs}}"
			op.MergeBatchSize = 2
		}, ErrFoldPromptRequired},
		{"fold without batch size", func(op *Operation) {
			op.FoldPrompt = "Fold {{.values}} {{.output}}"
		}, ErrFoldBatchSizeRequired},
		{"negative fold batch size", func(op *Operation) {
			op.FoldPrompt = "Fold {{.values}} {{.output}}"
			op.FoldBatchSize = -3
		}, ErrInvalidBatchSize},
		{"fold prompt missing output", func(op *Operation) {
			op.FoldPrompt = "Fold {{.values}}"
			op.FoldBatchSize = 5
		}, ErrFoldPromptVars},
		{"merge prompt missing outputs", func(op *Operation) {
			op.FoldPrompt = "Fold {{.values}} {{.output}}"
			op.FoldBatchSize = 5
			op.MergePrompt = "Merge {{.reduce_key}}"
			op.MergeBatchSize = 2
		}, ErrMergePromptVars},
		{"merge without batch size", func(op *Operation) {
			op.FoldPrompt = "Fold {{.values}} {{.output}}"
			op.FoldBatchSize = 5
			op.MergePrompt = "Merge {{.outputs}}"
		}, ErrMergeBatchSizeRequired},
		{"non-positive fold_time", func(op *Operation) { op.FoldTime = &negative }, ErrInvalidTimeOverride},
		{"non-positive merge_time", func(op *Operation) { op.MergeTime = &negative }, ErrInvalidTimeOverride},
		{"incomplete gleaning", func(op *Operation) {
			op.Gleaning = &Gleaning{ValidationPrompt: "check", NumRounds: 0}
		}, ErrInvalidGleaning},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			op := validReduce()
			tc.mutate(op)

			require.ErrorIs(t, op.Check(), tc.wantErr)
		})
	}
}

func TestCheckTemplateParseError(t *testing.T) {
	t.Parallel()

	op := validReduce()
	op.Prompt = "{{range .values}}"

	err := op.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt")
}

func TestCheckType(t *testing.T) {
	t.Parallel()

	op := &Operation{}
	require.ErrorIs(t, op.Check(), ErrMissingType)

	op.Type = "resolve"
	require.ErrorIs(t, op.Check(), ErrUnknownType)
}

func TestCheckFilter(t *testing.T) {
	t.Parallel()

	op := &Operation{
		Type:   TypeFilter,
		Prompt: "Keep? {{toJson .input}}",
		Output: SchemaBlock{Schema: map[string]string{"keep": "bool"}},
	}
	require.NoError(t, op.Check())

	op.Output.Schema = map[string]string{"keep": "bool", "why": "string"}
	require.ErrorIs(t, op.Check(), ErrFilterSchemaShape)

	op.Output.Schema = map[string]string{"keep": "string"}
	require.ErrorIs(t, op.Check(), ErrFilterSchemaShape)

	op.Output.Schema = map[string]string{"keep": "bool"}
	op.Prompt = "Keep {{.reduce_key}}?"
	require.ErrorIs(t, op.Check(), ErrPromptMissingInput)
}
