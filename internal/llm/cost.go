package llm

import "strings"

// pricing holds dollar prices per million tokens.
type pricing struct {
	PromptPerMTok     float64
	CompletionPerMTok float64
}

const tokensPerMillion = 1e6

func (p pricing) cost(u Usage) float64 {
	return float64(u.PromptTokens)*p.PromptPerMTok/tokensPerMillion +
		float64(u.CompletionTokens)*p.CompletionPerMTok/tokensPerMillion
}

// defaultPricing is used for models missing from the table so cost totals
// stay non-zero rather than silently under-reporting.
var defaultPricing = pricing{PromptPerMTok: 1.0, CompletionPerMTok: 2.0}

// priceTable maps model name prefixes to prices. Longest prefix wins.
var priceTable = map[string]pricing{
	"gpt-4o-mini":   {PromptPerMTok: 0.15, CompletionPerMTok: 0.60},
	"gpt-4o":        {PromptPerMTok: 2.50, CompletionPerMTok: 10.00},
	"gpt-4-turbo":   {PromptPerMTok: 10.00, CompletionPerMTok: 30.00},
	"gpt-3.5-turbo": {PromptPerMTok: 0.50, CompletionPerMTok: 1.50},
}

// priceFor resolves the price entry for a model name, matching by longest
// known prefix so dated snapshots ("gpt-4o-2024-08-06") price correctly.
func priceFor(model string) pricing {
	best := ""

	for prefix := range priceTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}

	if best == "" {
		return defaultPricing
	}

	return priceTable[best]
}
