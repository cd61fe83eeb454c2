// Package llm invokes language models and turns their responses into records.
//
// The core operations only depend on the [Client] interface; the default
// implementation speaks the OpenAI-compatible chat completions protocol.
// Cost accounting and the iterative gleaning refinement loop live here so
// operations never need to know how a model is reached.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/linxule/docetl/internal/record"
)

// Kind identifies the operation issuing a model call. It is passed through to
// the provider as metadata and used in telemetry attributes.
type Kind string

// Call kinds.
const (
	KindReduce Kind = "reduce"
	KindMerge  Kind = "merge"
	KindFilter Kind = "filter"
)

// Sentinel errors for response handling.
var (
	// ErrEmptyResponse is returned when a model produced no content.
	ErrEmptyResponse = errors.New("model returned empty response")

	// ErrNotAnObject is returned when a response does not decode to a JSON object.
	ErrNotAnObject = errors.New("model response is not a JSON object")
)

// Usage holds token counts reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is one model completion plus the accounting data needed to price it.
type Response struct {
	Model   string
	Content string
	Usage   Usage
}

// Cost returns the dollar cost of the response from the per-model price table.
func (r *Response) Cost() float64 {
	return priceFor(r.Model).cost(r.Usage)
}

// Client is the model invocation service consumed by operations.
type Client interface {
	// Invoke renders one completion. The output schema constrains the model
	// to emit a JSON object with the declared fields.
	Invoke(ctx context.Context, model string, kind Kind, prompt string, outputSchema map[string]string) (*Response, error)

	// InvokeWithGleaning runs Invoke and then up to rounds of
	// validation-guided refinement, returning the final response and the
	// total cost of every call made (including the final response's own cost).
	InvokeWithGleaning(ctx context.Context, model string, kind Kind, prompt string, outputSchema map[string]string,
		validationPrompt string, rounds int) (*Response, float64, error)
}

// ParseRecord decodes a model response into a record. Providers are
// instructed to reply with a bare JSON object; fenced code blocks are
// tolerated because models emit them anyway.
func ParseRecord(resp *Response) (record.Record, error) {
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, ErrEmptyResponse
	}

	content = stripFence(content)

	var rec record.Record

	err := json.Unmarshal([]byte(content), &rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAnObject, firstLine(content))
	}

	return rec, nil
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	return strings.TrimSpace(content)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}

	return s
}
