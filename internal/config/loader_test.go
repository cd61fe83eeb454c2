package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "op.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
operation:
  name: summarize_reviews
  type: reduce
  reduce_key: category
  prompt: "Summarize {{range .values}}{{.}}{{end}}"
  fold_prompt: "Fold {{range .values}}{{.}}{{end}} into {{toJson .output}}"
  fold_batch_size: 10
  merge_prompt: "Merge {{range .outputs}}{{.}}{{end}}"
  merge_batch_size: 2
  fold_time: 1.5
  pass_through: true
  output:
    schema:
      summary: string
      count: int
runtime:
  max_threads: 8
  model: gpt-4o
`)

	file, err := Load(path)
	require.NoError(t, err)

	op := file.Operation
	assert.Equal(t, "summarize_reviews", op.Name)
	assert.Equal(t, TypeReduce, op.Type)
	assert.Equal(t, "category", op.ReduceKey)
	assert.Equal(t, 10, op.FoldBatchSize)
	assert.Equal(t, 2, op.MergeBatchSize)
	assert.True(t, op.PassThrough)
	assert.Equal(t, map[string]string{"summary": "string", "count": "int"}, op.Output.Schema)

	require.NotNil(t, op.FoldTime)
	assert.InDelta(t, 1.5, *op.FoldTime, 1e-9)
	assert.Nil(t, op.MergeTime, "absent override must stay nil, not zero")

	assert.Equal(t, 8, file.Runtime.MaxThreads)
	assert.Equal(t, "gpt-4o", file.Runtime.Model)

	require.NoError(t, op.Check())
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
operation:
  type: reduce
  reduce_key: k
  prompt: "Summarize {{.values}}"
  output:
    schema:
      summary: string
`)

	file, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, defaultModel, file.Runtime.Model)
	assert.Positive(t, file.Runtime.MaxThreads)
}

func TestLoadNoOperation(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
runtime:
  max_threads: 2
`)

	_, err := Load(path)
	require.ErrorIs(t, err, ErrNoOperation)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
