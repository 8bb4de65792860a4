// Package batch converts a classified document into an ordered list of
// token- and page-bounded, trade-scoped batches.
package batch

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/internal/trade"
)

// PlanConfig bounds the planner. All values have documented defaults in the
// config package; the planner only honors what it is given.
type PlanConfig struct {
	MaxTokensPerBatch int
	MinTokensPerBatch int
	MaxPagesPerBatch  int
	FocusTrades       []string
	SkipTrades        []string
}

// Plan partitions the document into pending batches: focus trades first,
// remaining trades by descending page count, small trades folded into one
// combined batch, oversized trades split across sequential batches. The
// planner performs no I/O.
func Plan(doc *model.ClassifiedDocument, runID string, cfg PlanConfig) ([]model.Batch, error) {
	if doc == nil || doc.PageCount() == 0 {
		return nil, eris.New("batch: document has no pages")
	}
	if cfg.MaxTokensPerBatch <= 0 {
		return nil, eris.New("batch: max tokens per batch must be positive")
	}
	if cfg.MaxPagesPerBatch <= 0 {
		return nil, eris.New("batch: max pages per batch must be positive")
	}

	skip := make(map[string]bool, len(cfg.SkipTrades))
	for _, t := range cfg.SkipTrades {
		skip[t] = true
	}

	ordered := orderTrades(doc, cfg.FocusTrades, skip)

	focus := make(map[string]bool, len(cfg.FocusTrades))
	for _, t := range cfg.FocusTrades {
		focus[t] = true
	}

	var batches []model.Batch
	var smallTrades []string
	now := time.Now().UTC()
	seq := 1

	appendBatch := func(tradeName string, pages []model.Page, tokens int) {
		batches = append(batches, model.Batch{
			ID:              uuid.New().String(),
			RunID:           runID,
			Sequence:        seq,
			Trade:           tradeName,
			Divisions:       divisionsOf(pages),
			PageNumbers:     pageNumbersOf(pages),
			EstimatedTokens: tokens,
			Status:          model.BatchStatusPending,
			CreatedAt:       now,
		})
		seq++
	}

	for _, tradeName := range ordered {
		tradePages := trade.TradePages(doc, tradeName)
		tradeTokens := trade.EstimateTokens(tradePages)

		// Small-trade folding: negligible content is not worth its own
		// per-call overhead. Focus trades are never folded.
		if tradeTokens < cfg.MinTokensPerBatch && !focus[tradeName] {
			smallTrades = append(smallTrades, tradeName)
			continue
		}

		if len(tradePages) > cfg.MaxPagesPerBatch {
			for _, chunk := range chunkPages(tradePages, cfg.MaxPagesPerBatch) {
				ctx, err := trade.BuildPageSubset(doc, chunk, cfg.MaxTokensPerBatch)
				if err != nil {
					return nil, eris.Wrapf(err, "batch: split trade %s", tradeName)
				}
				appendBatch(tradeName, ctx.Pages, ctx.EstimatedTokens)
			}
			continue
		}

		ctx, err := trade.BuildContext(doc, tradeName, cfg.MaxTokensPerBatch)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: trade %s", tradeName)
		}
		appendBatch(tradeName, ctx.Pages, ctx.EstimatedTokens)
	}

	if len(smallTrades) > 0 {
		var pooled []model.Page
		for _, tradeName := range smallTrades {
			pooled = append(pooled, trade.TradePages(doc, tradeName)...)
		}
		ctx, err := trade.BuildPageSubset(doc, pooled, cfg.MaxTokensPerBatch)
		if err != nil {
			return nil, eris.Wrap(err, "batch: combined batch")
		}
		appendBatch(model.TradeCombined, ctx.Pages, ctx.EstimatedTokens)

		zap.L().Debug("batch: folded small trades",
			zap.Strings("trades", smallTrades),
			zap.Int("pages", len(ctx.Pages)),
		)
	}

	zap.L().Info("batch: plan complete",
		zap.String("run_id", runID),
		zap.Int("batches", len(batches)),
		zap.Int("small_trades_folded", len(smallTrades)),
	)
	return batches, nil
}

// orderTrades returns the trades to schedule: focus trades first in caller
// order, then the rest by descending page count (name ascending on ties).
func orderTrades(doc *model.ClassifiedDocument, focusTrades []string, skip map[string]bool) []string {
	present := make(map[string]bool)
	for _, t := range doc.Trades() {
		present[t] = true
	}

	var ordered []string
	taken := make(map[string]bool)
	for _, t := range focusTrades {
		if present[t] && !skip[t] && !taken[t] {
			ordered = append(ordered, t)
			taken[t] = true
		}
	}

	var rest []string
	for _, t := range doc.Trades() {
		if !taken[t] && !skip[t] {
			rest = append(rest, t)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		ci, cj := len(doc.PagesByTrade(rest[i])), len(doc.PagesByTrade(rest[j]))
		if ci != cj {
			return ci > cj
		}
		return rest[i] < rest[j]
	})

	return append(ordered, rest...)
}

// chunkPages splits pages into ceil(len/size) sequential chunks.
func chunkPages(pages []model.Page, size int) [][]model.Page {
	var chunks [][]model.Page
	for start := 0; start < len(pages); start += size {
		end := start + size
		if end > len(pages) {
			end = len(pages)
		}
		chunks = append(chunks, pages[start:end])
	}
	return chunks
}

func pageNumbersOf(pages []model.Page) []int {
	nums := make([]int, len(pages))
	for i, p := range pages {
		nums[i] = p.PageNumber
	}
	return nums
}

func divisionsOf(pages []model.Page) []string {
	seen := make(map[string]bool)
	var divisions []string
	for _, p := range pages {
		if p.CSIDivision != "" && !seen[p.CSIDivision] {
			seen[p.CSIDivision] = true
			divisions = append(divisions, p.CSIDivision)
		}
	}
	sort.Strings(divisions)
	return divisions
}
