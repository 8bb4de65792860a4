package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/precon-cli/internal/model"
)

type itemAccumulator struct {
	key         string
	packageID   string
	description string // first-encountered raw form
	families    map[string]struct{}
	quantities  []float64
	unitCounts  map[string]int
	unitOrder   []string // first-encountered order, for tie breaks
}

// buildItems aggregates every line item across every run into one consensus
// record per derived key. Runs are pre-sorted by id, so "first-encountered"
// is deterministic regardless of caller input order.
func (e *Engine) buildItems(runs []*model.PermutationResult, runFamilies map[string]string, families []string) []model.LineItemConsensus {
	acc := make(map[string]*itemAccumulator)
	var order []string

	for _, run := range runs {
		fam := runFamilies[run.RunID]
		for _, pkg := range run.Packages {
			for _, item := range pkg.Items {
				key := itemKey(pkg.ID, item.Description)
				a, ok := acc[key]
				if !ok {
					a = &itemAccumulator{
						key:         key,
						packageID:   pkg.ID,
						description: item.Description,
						families:    make(map[string]struct{}),
						unitCounts:  make(map[string]int),
					}
					acc[key] = a
					order = append(order, key)
				}
				a.families[fam] = struct{}{}
				if item.Quantity != nil {
					a.quantities = append(a.quantities, *item.Quantity)
				}
				if item.Unit != "" {
					if _, seen := a.unitCounts[item.Unit]; !seen {
						a.unitOrder = append(a.unitOrder, item.Unit)
					}
					a.unitCounts[item.Unit]++
				}
			}
		}
	}

	items := make([]model.LineItemConsensus, 0, len(order))
	for _, key := range order {
		a := acc[key]
		score := float64(len(a.families)) / float64(len(families))

		lic := model.LineItemConsensus{
			Key:                a.key,
			PackageID:          a.packageID,
			Description:        a.description,
			FoundByFamilies:    sortedKeys(a.families),
			Score:              score,
			ConsensusQuantity:  medianQuantity(a.quantities),
			ConsensusUnit:      modeUnit(a.unitCounts, a.unitOrder),
			LikelyTruePositive: score >= 0.5,
			Analysis:           analyzeItem(score, sortedKeys(a.families), families),
		}
		items = append(items, lic)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Key < items[j].Key
	})
	return items
}

// medianQuantity returns the lower-middle of the sorted quantities, or nil
// when no run reported one.
func medianQuantity(quantities []float64) *float64 {
	if len(quantities) == 0 {
		return nil
	}
	sorted := make([]float64, len(quantities))
	copy(sorted, quantities)
	sort.Float64s(sorted)
	mid := sorted[(len(sorted)-1)/2]
	return &mid
}

// modeUnit returns the most frequently reported unit, ties broken by
// first-encountered order.
func modeUnit(counts map[string]int, order []string) string {
	best := ""
	bestCount := 0
	for _, unit := range order {
		if counts[unit] > bestCount {
			best = unit
			bestCount = counts[unit]
		}
	}
	return best
}

func analyzeItem(score float64, found, all []string) string {
	missing := make([]string, 0, len(all))
	foundSet := make(map[string]struct{}, len(found))
	for _, f := range found {
		foundSet[f] = struct{}{}
	}
	for _, f := range all {
		if _, ok := foundSet[f]; !ok {
			missing = append(missing, f)
		}
	}

	detail := fmt.Sprintf("found by %s", strings.Join(found, ", "))
	if len(missing) > 0 {
		detail += fmt.Sprintf("; not by %s", strings.Join(missing, ", "))
	}

	switch {
	case score >= 1:
		return fmt.Sprintf("found by all %d backend families (%s)", len(all), strings.Join(found, ", "))
	case score >= 0.66:
		return "medium-high confidence: " + detail
	case score >= 0.5:
		return "medium confidence: " + detail
	case score >= 0.33:
		return "low confidence: " + detail
	default:
		return "possible false positive, flag for manual review: " + detail
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
