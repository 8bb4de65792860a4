package trade

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/model"
)

// relatedSampleCap bounds how many pages of each related trade are sampled
// into a context when budget remains.
const relatedSampleCap = 3

// Context is a bounded, ordered page selection for one trade.
type Context struct {
	Trade           string       `json:"trade"`
	Pages           []model.Page `json:"pages"`
	EstimatedTokens int          `json:"estimated_tokens"`
}

// GeneralPages returns the document's general pages (cover, index, and any
// page classified under the General pseudo-trade), in page order. Read-only.
func GeneralPages(doc *model.ClassifiedDocument) []model.Page {
	var general []model.Page
	for _, p := range doc.Pages() {
		if p.IsGeneral() {
			general = append(general, p)
		}
	}
	return general
}

// TradePages returns the pages classified under the given trade, excluding
// general pages, in page order. Unknown trades yield nil. Read-only.
func TradePages(doc *model.ClassifiedDocument, trade string) []model.Page {
	var pages []model.Page
	for _, p := range doc.PagesByTrade(trade) {
		if !p.IsGeneral() {
			pages = append(pages, p)
		}
	}
	return pages
}

// EstimateTokens sums the estimated token cost of the given pages.
func EstimateTokens(pages []model.Page) int {
	total := 0
	for _, p := range pages {
		total += p.EstimatedTokens
	}
	return total
}

// BuildContext selects a token-bounded page list for one trade: general
// pages first, then the trade's own pages, then a small sample from related
// trades if budget remains. The returned pages are sorted by page number and
// their summed estimate never exceeds the budget. An unknown trade yields an
// empty page list, not an error.
func BuildContext(doc *model.ClassifiedDocument, tradeName string, budget int) (*Context, error) {
	if budget <= 0 {
		return nil, eris.Errorf("trade: token budget must be positive, got %d", budget)
	}

	tradePages := TradePages(doc, tradeName)
	if len(tradePages) == 0 {
		zap.L().Debug("trade: no pages for trade", zap.String("trade", tradeName))
		return &Context{Trade: tradeName}, nil
	}

	ctx := &Context{Trade: tradeName}
	seen := make(map[int]bool)
	remaining := budget

	take := func(pages []model.Page, limit int) {
		taken := 0
		for _, p := range pages {
			if limit > 0 && taken >= limit {
				return
			}
			if seen[p.PageNumber] {
				continue
			}
			if p.EstimatedTokens > remaining {
				return
			}
			seen[p.PageNumber] = true
			ctx.Pages = append(ctx.Pages, p)
			remaining -= p.EstimatedTokens
			taken++
		}
	}

	take(GeneralPages(doc), 0)
	take(tradePages, 0)

	for _, related := range RelatedTrades(tradeName) {
		take(TradePages(doc, related), relatedSampleCap)
	}

	sort.Slice(ctx.Pages, func(i, j int) bool {
		return ctx.Pages[i].PageNumber < ctx.Pages[j].PageNumber
	})
	ctx.EstimatedTokens = budget - remaining

	return ctx, nil
}

// BuildPageSubset selects a bounded context from an explicit page list
// rather than a whole trade. Used when a large trade is split across
// batches: each chunk still leads with the general pages.
func BuildPageSubset(doc *model.ClassifiedDocument, pages []model.Page, budget int) (*Context, error) {
	if budget <= 0 {
		return nil, eris.Errorf("trade: token budget must be positive, got %d", budget)
	}

	ctx := &Context{}
	seen := make(map[int]bool)
	remaining := budget

	for _, p := range append(GeneralPages(doc), pages...) {
		if seen[p.PageNumber] {
			continue
		}
		if p.EstimatedTokens > remaining {
			break
		}
		seen[p.PageNumber] = true
		ctx.Pages = append(ctx.Pages, p)
		remaining -= p.EstimatedTokens
	}

	sort.Slice(ctx.Pages, func(i, j int) bool {
		return ctx.Pages[i].PageNumber < ctx.Pages[j].PageNumber
	})
	ctx.EstimatedTokens = budget - remaining

	return ctx, nil
}
