package consensus

import (
	"fmt"
	"sort"

	"github.com/sells-group/precon-cli/internal/model"
)

// Blend weights for the overall accuracy estimate: item corroboration
// matters more than structural package agreement.
const (
	itemWeight    = 0.6
	packageWeight = 0.4
)

// synthesize rolls pass-level value up to per-purpose keep/drop guidance
// and a single workflow accuracy estimate.
func synthesize(items []model.LineItemConsensus, packages []model.WorkPackageComparison, passes []model.PassValueAnalysis) model.Recommendations {
	type agg struct {
		purpose  model.PassPurpose
		count    int
		totalVPC float64
		noise    int
	}
	byPurpose := make(map[model.PassPurpose]*agg)
	var order []model.PassPurpose
	for _, pv := range passes {
		a, ok := byPurpose[pv.Purpose]
		if !ok {
			a = &agg{purpose: pv.Purpose}
			byPurpose[pv.Purpose] = a
			order = append(order, pv.Purpose)
		}
		a.count++
		a.totalVPC += pv.ValuePerCost
		a.noise += pv.Noise
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	summaries := make([]model.PurposeSummary, 0, len(order))
	for _, purpose := range order {
		a := byPurpose[purpose]
		avg := a.totalVPC / float64(a.count)

		// The base extraction is always kept; dropping it leaves nothing to
		// review. Other purposes earn their place on value per cost.
		keep := purpose == model.PurposeInitialExtraction || avg > moderateValueVPC
		rationale := fmt.Sprintf("avg value/cost %.1f over %d passes, %d noise items", avg, a.count, a.noise)
		if purpose == model.PurposeInitialExtraction {
			rationale = "base extraction pass; required"
		} else if !keep {
			rationale = "consider dropping: " + rationale
		}

		summaries = append(summaries, model.PurposeSummary{
			Purpose:         purpose,
			Passes:          a.count,
			AvgValuePerCost: avg,
			TotalNoise:      a.noise,
			Keep:            keep,
			Rationale:       rationale,
		})
	}

	var highConfidence int
	for _, item := range items {
		if item.LikelyTruePositive {
			highConfidence++
		}
	}
	itemRatio := 0.0
	if len(items) > 0 {
		itemRatio = float64(highConfidence) / float64(len(items))
	}

	pkgAgreement := 0.0
	if len(packages) > 0 {
		var total float64
		for _, cmp := range packages {
			total += (cmp.NameAgreement + cmp.DivisionAgreement + cmp.TradeAgreement) / 3
		}
		pkgAgreement = total / float64(len(packages))
	}

	accuracy := itemWeight*itemRatio + packageWeight*pkgAgreement

	notes := []string{
		fmt.Sprintf("%d of %d items are likely true positives (%.0f%%)", highConfidence, len(items), itemRatio*100),
		fmt.Sprintf("mean work-package agreement %.2f across %d packages", pkgAgreement, len(packages)),
	}

	return model.Recommendations{
		Purposes:          summaries,
		EstimatedAccuracy: accuracy,
		Notes:             notes,
	}
}
