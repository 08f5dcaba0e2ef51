package governor

// Price is the USD cost per 1K tokens.
type Price struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// FallbackModel is the price tier used for models missing from the table.
const FallbackModel = "gpt-3.5-turbo"

// DefaultPrices returns the built-in price table.
func DefaultPrices() map[string]Price {
	return map[string]Price{
		"gpt-4-turbo-preview": {InputPer1K: 0.01, OutputPer1K: 0.03},
		"gpt-4":               {InputPer1K: 0.03, OutputPer1K: 0.06},
		"gpt-3.5-turbo-1106":  {InputPer1K: 0.001, OutputPer1K: 0.002},
		"gpt-3.5-turbo":       {InputPer1K: 0.001, OutputPer1K: 0.002},
	}
}

// TokenEstimate splits a token allowance into input and output shares.
type TokenEstimate struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// price returns the entry for model and whether it was found.
// The fallback tier is returned for unknown models.
func (g *Governor) price(model string) (Price, bool) {
	if p, ok := g.prices[model]; ok {
		return p, true
	}
	return g.prices[FallbackModel], false
}

// CalculateCost returns the USD cost of a call. Unknown models are billed at
// the FallbackModel tier and logged; the call never fails.
func (g *Governor) CalculateCost(tokensIn, tokensOut int, model string) float64 {
	p, ok := g.price(model)
	if !ok {
		g.logger.Warn("unknown model, using fallback pricing", "model", model, "fallback", FallbackModel)
	}
	return float64(tokensIn)/1000*p.InputPer1K + float64(tokensOut)/1000*p.OutputPer1K
}

// EstimateMaxTokensForBudget estimates how many tokens budget (USD) buys on
// model, assuming outputRatio of them are output tokens.
func (g *Governor) EstimateMaxTokensForBudget(budget float64, model string, outputRatio float64) (TokenEstimate, error) {
	p, ok := g.prices[model]
	if !ok {
		return TokenEstimate{}, errUnknownModel(model)
	}
	if outputRatio < 0 || outputRatio > 1 {
		return TokenEstimate{}, errBadRatio(outputRatio)
	}

	perK := p.InputPer1K*(1-outputRatio) + p.OutputPer1K*outputRatio
	if perK <= 0 || budget <= 0 {
		return TokenEstimate{}, nil
	}
	total := budget * 1000 / perK
	return TokenEstimate{
		TotalTokens:  int(total),
		InputTokens:  int(total * (1 - outputRatio)),
		OutputTokens: int(total * outputRatio),
	}, nil
}
