package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Default endpoint settings.
const (
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultTimeout = 120 * time.Second

	completionsPath = "/chat/completions"
)

// ErrHTTPStatus is returned when the provider replies with a non-2xx status.
var ErrHTTPStatus = errors.New("model endpoint returned error status")

// HTTPClient is a Client speaking the OpenAI-compatible chat completions
// protocol. It is safe for concurrent use.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewHTTPClient creates a client for an OpenAI-compatible endpoint.
// An empty baseURL selects the public OpenAI API.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Invoke performs one chat completion constrained to a JSON object matching
// the output schema.
func (c *HTTPClient) Invoke(
	ctx context.Context, model string, kind Kind, prompt string, outputSchema map[string]string,
) (*Response, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(kind, outputSchema)},
		{Role: "user", Content: prompt},
	}

	return c.complete(ctx, model, messages)
}

// InvokeWithGleaning performs the initial completion and then up to rounds of
// validation-guided refinement. Each round asks the model to judge the
// current output against the validation prompt; if the judge requests
// improvement, the output is regenerated with the judge's feedback. The
// returned cost covers every call made, each counted exactly once.
func (c *HTTPClient) InvokeWithGleaning(
	ctx context.Context, model string, kind Kind, prompt string, outputSchema map[string]string,
	validationPrompt string, rounds int,
) (*Response, float64, error) {
	resp, err := c.Invoke(ctx, model, kind, prompt, outputSchema)
	if err != nil {
		return nil, 0, err
	}

	totalCost := resp.Cost()

	for round := 0; round < rounds; round++ {
		verdict, judgeCost, judgeErr := c.judge(ctx, model, resp.Content, validationPrompt)
		totalCost += judgeCost

		if judgeErr != nil {
			return nil, totalCost, judgeErr
		}

		if !verdict.NeedsImprovement {
			break
		}

		refined, refineErr := c.refine(ctx, model, kind, prompt, outputSchema, resp.Content, verdict.Feedback)
		if refineErr != nil {
			return nil, totalCost, refineErr
		}

		totalCost += refined.Cost()
		resp = refined
	}

	return resp, totalCost, nil
}

// gleaningVerdict is the judge's structured reply.
type gleaningVerdict struct {
	NeedsImprovement bool   `json:"needs_improvement"`
	Feedback         string `json:"feedback"`
}

func (c *HTTPClient) judge(ctx context.Context, model, output, validationPrompt string) (gleaningVerdict, float64, error) {
	messages := []chatMessage{
		{Role: "system", Content: "You review a previously generated JSON output. Respond with a JSON object " +
			`{"needs_improvement": bool, "feedback": string}.`},
		{Role: "user", Content: fmt.Sprintf("Output:\n%s\n\nValidation criteria:\n%s", output, validationPrompt)},
	}

	resp, err := c.complete(ctx, model, messages)
	if err != nil {
		return gleaningVerdict{}, 0, err
	}

	var verdict gleaningVerdict

	decodeErr := json.Unmarshal([]byte(stripFence(strings.TrimSpace(resp.Content))), &verdict)
	if decodeErr != nil {
		// An unparsable verdict ends the loop rather than failing the group.
		return gleaningVerdict{}, resp.Cost(), nil
	}

	return verdict, resp.Cost(), nil
}

func (c *HTTPClient) refine(
	ctx context.Context, model string, kind Kind, prompt string, outputSchema map[string]string,
	previous, feedback string,
) (*Response, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(kind, outputSchema)},
		{Role: "user", Content: prompt},
		{Role: "assistant", Content: previous},
		{Role: "user", Content: "Improve the previous output. Reviewer feedback:\n" + feedback},
	}

	return c.complete(ctx, model, messages)
}

func (c *HTTPClient) complete(ctx context.Context, model string, messages []chatMessage) (*Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       messages,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d: %s", ErrHTTPStatus, httpResp.StatusCode, firstLine(string(raw)))
	}

	var decoded chatResponse

	decodeErr := json.Unmarshal(raw, &decoded)
	if decodeErr != nil {
		return nil, fmt.Errorf("decode chat response: %w", decodeErr)
	}

	if len(decoded.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	respModel := decoded.Model
	if respModel == "" {
		respModel = model
	}

	return &Response{
		Model:   respModel,
		Content: decoded.Choices[0].Message.Content,
		Usage:   decoded.Usage,
	}, nil
}

// systemPrompt instructs the model to emit a JSON object with the declared
// output fields. Field order is stable so prompts are reproducible.
func systemPrompt(kind Kind, outputSchema map[string]string) string {
	names := make([]string, 0, len(outputSchema))
	for name := range outputSchema {
		names = append(names, name)
	}

	sort.Strings(names)

	var sb strings.Builder

	fmt.Fprintf(&sb, "You perform a %s step in a data pipeline. ", kind)
	sb.WriteString("Respond with a single JSON object containing exactly these fields:\n")

	for _, name := range names {
		fmt.Fprintf(&sb, "- %s (%s)\n", name, outputSchema[name])
	}

	sb.WriteString("Do not include any other commentary.")

	return sb.String()
}
