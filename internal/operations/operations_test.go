package operations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linxule/docetl/internal/config"
	"github.com/linxule/docetl/internal/llm"
)

type noopClient struct{}

func (noopClient) Invoke(
	context.Context, string, llm.Kind, string, map[string]string,
) (*llm.Response, error) {
	return &llm.Response{Content: "{}"}, nil
}

func (noopClient) InvokeWithGleaning(
	context.Context, string, llm.Kind, string, map[string]string, string, int,
) (*llm.Response, float64, error) {
	return &llm.Response{Content: "{}"}, 0, nil
}

func TestNewDispatchesOnType(t *testing.T) {
	t.Parallel()

	rt := config.Runtime{MaxThreads: 1, Model: "m"}

	reduceOp, err := New(&config.Operation{
		Name:      "r",
		Type:      config.TypeReduce,
		ReduceKey: "k",
		Prompt:    "Summarize {{.values}}",
		Output:    config.SchemaBlock{Schema: map[string]string{"summary": "string"}},
	}, rt, noopClient{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "r", reduceOp.Name())

	filterOp, err := New(&config.Operation{
		Name:   "f",
		Type:   config.TypeFilter,
		Prompt: "Keep? {{toJson .input}}",
		Output: config.SchemaBlock{Schema: map[string]string{"keep": "bool"}},
	}, rt, noopClient{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "f", filterOp.Name())
}

func TestNewRejectsUnknownType(t *testing.T) {
	t.Parallel()

	rt := config.Runtime{MaxThreads: 1}

	_, err := New(&config.Operation{Type: "join"}, rt, noopClient{}, Options{})
	require.ErrorIs(t, err, config.ErrUnknownType)

	_, err = New(&config.Operation{}, rt, noopClient{}, Options{})
	require.ErrorIs(t, err, config.ErrMissingType)
}
