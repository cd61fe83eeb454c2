// Package config holds operation configuration, its loader, and the eager
// syntax checks. Every structural problem is reported at check time; nothing
// in here is ever raised mid-execution.
package config

import (
	"errors"
	"fmt"

	"github.com/linxule/docetl/internal/templates"
)

// Operation type identifiers.
const (
	TypeReduce = "reduce"
	TypeFilter = "filter"
)

// Sentinel errors for configuration validation.
var (
	// ErrMissingType indicates the operation type is absent.
	ErrMissingType = errors.New("missing operation type")
	// ErrUnknownType indicates an unrecognized operation type.
	ErrUnknownType = errors.New("unknown operation type")
	// ErrMissingReduceKey indicates reduce_key is absent.
	ErrMissingReduceKey = errors.New("missing required key 'reduce_key'")
	// ErrMissingPrompt indicates the main prompt is absent.
	ErrMissingPrompt = errors.New("missing required key 'prompt'")
	// ErrMissingOutputSchema indicates output.schema is absent or empty.
	ErrMissingOutputSchema = errors.New("'output.schema' must be a non-empty mapping")
	// ErrPromptMissingValues indicates the main prompt never references 'values'.
	ErrPromptMissingValues = errors.New("prompt template must reference 'values'")
	// ErrFoldPromptRequired indicates merge_prompt is set without fold_prompt.
	ErrFoldPromptRequired = errors.New("'fold_prompt' is required when 'merge_prompt' is specified")
	// ErrFoldBatchSizeRequired indicates fold_prompt is set without fold_batch_size.
	ErrFoldBatchSizeRequired = errors.New("'fold_batch_size' is required when 'fold_prompt' is specified")
	// ErrMergeBatchSizeRequired indicates merge_prompt is set without merge_batch_size.
	ErrMergeBatchSizeRequired = errors.New("'merge_batch_size' is required when 'merge_prompt' is specified")
	// ErrFoldPromptVars indicates the fold prompt misses a required binding.
	ErrFoldPromptVars = errors.New("fold prompt template must reference 'values' and 'output'")
	// ErrMergePromptVars indicates the merge prompt misses the outputs binding.
	ErrMergePromptVars = errors.New("merge prompt template must reference 'outputs'")
	// ErrInvalidBatchSize indicates a batch size is not a positive integer.
	ErrInvalidBatchSize = errors.New("batch size must be a positive integer")
	// ErrInvalidTimeOverride indicates a telemetry override is not positive.
	ErrInvalidTimeOverride = errors.New("telemetry time override must be positive")
	// ErrInvalidGleaning indicates the gleaning block is incomplete.
	ErrInvalidGleaning = errors.New("gleaning requires 'validation_prompt' and a positive 'num_rounds'")
	// ErrFilterSchemaShape indicates a filter output schema is not a single boolean field.
	ErrFilterSchemaShape = errors.New("filter output schema must be exactly one boolean field")
	// ErrPromptMissingInput indicates a filter prompt never references 'input'.
	ErrPromptMissingInput = errors.New("prompt template must reference 'input'")
)

// Operation is one operation's configuration as loaded from YAML.
type Operation struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`

	ReduceKey string      `mapstructure:"reduce_key"`
	Prompt    string      `mapstructure:"prompt"`
	Output    SchemaBlock `mapstructure:"output"`
	Input     SchemaBlock `mapstructure:"input"`
	Gleaning  *Gleaning   `mapstructure:"gleaning"`

	FoldPrompt     string `mapstructure:"fold_prompt"`
	FoldBatchSize  int    `mapstructure:"fold_batch_size"`
	MergePrompt    string `mapstructure:"merge_prompt"`
	MergeBatchSize int    `mapstructure:"merge_batch_size"`

	// FoldTime and MergeTime are optional telemetry overrides in seconds.
	// nil means "measure at runtime".
	FoldTime  *float64 `mapstructure:"fold_time"`
	MergeTime *float64 `mapstructure:"merge_time"`

	PassThrough bool   `mapstructure:"pass_through"`
	Model       string `mapstructure:"model"`
}

// SchemaBlock wraps a field→type mapping.
type SchemaBlock struct {
	Schema map[string]string `mapstructure:"schema"`
}

// Gleaning configures iterative validation-guided refinement.
type Gleaning struct {
	ValidationPrompt string `mapstructure:"validation_prompt"`
	NumRounds        int    `mapstructure:"num_rounds"`
}

// Check performs the full eager syntax check for the operation. It validates
// required keys, template parseability, and template variable references.
func (op *Operation) Check() error {
	switch op.Type {
	case TypeReduce:
		return op.checkReduce()
	case TypeFilter:
		return op.checkFilter()
	case "":
		return ErrMissingType
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, op.Type)
	}
}

func (op *Operation) checkReduce() error {
	if op.ReduceKey == "" {
		return ErrMissingReduceKey
	}

	if op.Prompt == "" {
		return ErrMissingPrompt
	}

	if len(op.Output.Schema) == 0 {
		return ErrMissingOutputSchema
	}

	vars, err := templates.ReferencedVars(op.Prompt)
	if err != nil {
		return fmt.Errorf("invalid template in 'prompt': %w", err)
	}

	if !vars[templates.VarValues] {
		return ErrPromptMissingValues
	}

	if op.MergePrompt != "" && op.FoldPrompt == "" {
		return ErrFoldPromptRequired
	}

	err = op.checkFoldPrompt()
	if err != nil {
		return err
	}

	err = op.checkMergePrompt()
	if err != nil {
		return err
	}

	err = op.checkOverrides()
	if err != nil {
		return err
	}

	return op.checkGleaning()
}

func (op *Operation) checkFoldPrompt() error {
	if op.FoldPrompt == "" {
		return nil
	}

	if op.FoldBatchSize <= 0 {
		if op.FoldBatchSize == 0 {
			return ErrFoldBatchSizeRequired
		}

		return fmt.Errorf("%w: fold_batch_size=%d", ErrInvalidBatchSize, op.FoldBatchSize)
	}

	vars, err := templates.ReferencedVars(op.FoldPrompt)
	if err != nil {
		return fmt.Errorf("invalid template in 'fold_prompt': %w", err)
	}

	if !vars[templates.VarValues] || !vars[templates.VarOutput] {
		return ErrFoldPromptVars
	}

	return nil
}

func (op *Operation) checkMergePrompt() error {
	if op.MergePrompt == "" {
		return nil
	}

	if op.MergeBatchSize <= 0 {
		if op.MergeBatchSize == 0 {
			return ErrMergeBatchSizeRequired
		}

		return fmt.Errorf("%w: merge_batch_size=%d", ErrInvalidBatchSize, op.MergeBatchSize)
	}

	vars, err := templates.ReferencedVars(op.MergePrompt)
	if err != nil {
		return fmt.Errorf("invalid template in 'merge_prompt': %w", err)
	}

	if !vars[templates.VarOutputs] {
		return ErrMergePromptVars
	}

	return nil
}

func (op *Operation) checkOverrides() error {
	if op.FoldTime != nil && *op.FoldTime <= 0 {
		return fmt.Errorf("%w: fold_time=%v", ErrInvalidTimeOverride, *op.FoldTime)
	}

	if op.MergeTime != nil && *op.MergeTime <= 0 {
		return fmt.Errorf("%w: merge_time=%v", ErrInvalidTimeOverride, *op.MergeTime)
	}

	return nil
}

func (op *Operation) checkGleaning() error {
	if op.Gleaning == nil {
		return nil
	}

	if op.Gleaning.ValidationPrompt == "" || op.Gleaning.NumRounds <= 0 {
		return ErrInvalidGleaning
	}

	return nil
}

func (op *Operation) checkFilter() error {
	if op.Prompt == "" {
		return ErrMissingPrompt
	}

	if len(op.Output.Schema) != 1 {
		return ErrFilterSchemaShape
	}

	for _, typ := range op.Output.Schema {
		if typ != "bool" && typ != "boolean" {
			return ErrFilterSchemaShape
		}
	}

	vars, err := templates.ReferencedVars(op.Prompt)
	if err != nil {
		return fmt.Errorf("invalid template in 'prompt': %w", err)
	}

	if !vars[templates.VarInput] {
		return ErrPromptMissingInput
	}

	return nil
}
