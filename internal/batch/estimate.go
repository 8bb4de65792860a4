package batch

import (
	"github.com/sells-group/precon-cli/internal/cost"
	"github.com/sells-group/precon-cli/internal/model"
)

// outputTokenFraction is the assumed ratio of output to input tokens for
// pre-flight cost estimates.
const outputTokenFraction = 0.20

// CostEstimate is a pre-flight budget for a batch plan. Estimates only,
// never billed amounts.
type CostEstimate struct {
	Backend      string             `json:"backend"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
	Total        float64            `json:"total"`
	PerTrade     map[string]float64 `json:"per_trade"`
}

// EstimateTotalCost prices a batch plan against one backend, computing
// output tokens as a fixed fraction of estimated input tokens.
func EstimateTotalCost(batches []model.Batch, backend string, calc *cost.Calculator) CostEstimate {
	est := CostEstimate{
		Backend:  backend,
		PerTrade: make(map[string]float64),
	}

	for _, b := range batches {
		in := b.EstimatedTokens
		out := int(float64(in) * outputTokenFraction)
		c := calc.Estimate(backend, in, out)

		est.InputTokens += in
		est.OutputTokens += out
		est.Total += c
		est.PerTrade[b.Trade] += c
	}

	return est
}
