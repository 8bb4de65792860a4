package cost

import "github.com/sells-group/precon-cli/internal/model"

// Rate holds per-model token pricing (USD per million tokens).
type Rate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps backend model ids to pricing.
type Rates map[string]Rate

// Calculator computes costs for backend usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Pass computes the cost of one pass's token usage against the named
// backend. Unknown backends cost 0.
func (c *Calculator) Pass(backend string, usage model.TokenUsage) float64 {
	rate, ok := c.rates[backend]
	if !ok {
		return 0
	}

	inCost := (float64(usage.InputTokens) / 1e6) * rate.Input
	outCost := (float64(usage.OutputTokens) / 1e6) * rate.Output
	cwCost := (float64(usage.CacheCreationTokens) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(usage.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Estimate computes a pre-flight cost for a call with the given estimated
// input and output token counts. Used for budgeting, not billed amounts.
func (c *Calculator) Estimate(backend string, inputTokens, outputTokens int) float64 {
	rate, ok := c.rates[backend]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// Known reports whether the backend has a configured rate.
func (c *Calculator) Known(backend string) bool {
	_, ok := c.rates[backend]
	return ok
}

// DefaultRates returns the default pricing table.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-opus-4-6": {
			Input: 15.00, Output: 75.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}
