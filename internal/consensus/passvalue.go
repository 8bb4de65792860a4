package consensus

import (
	"sort"

	"github.com/sells-group/precon-cli/internal/model"
)

// Classification thresholds shared with buildItems.
const (
	corroboratedFloor = 0.5
	halfValueFloor    = 0.33
)

// Value-per-cost buckets.
const (
	highValueVPC     = 50
	moderateValueVPC = 20
)

// analyzePassValue scores, per (run, pass), how many of the items that pass
// introduced were later corroborated by other backend families. An item's
// introducing pass is the earliest pass recorded for its key in that run.
// Merging drops re-reports, so normally each key carries one provenance
// stamp; counting keys rather than occurrences keeps the attribution right
// for results that were not built by the merger.
func (e *Engine) analyzePassValue(runs []*model.PermutationResult, items []model.LineItemConsensus) []model.PassValueAnalysis {
	scores := make(map[string]float64, len(items))
	for _, item := range items {
		scores[item.Key] = item.Score
	}

	var analyses []model.PassValueAnalysis
	for _, run := range runs {
		byPass := make(map[int]*model.PassValueAnalysis)

		for _, pc := range run.Passes {
			pv := &model.PassValueAnalysis{
				RunID:   run.RunID,
				Pass:    pc.Pass,
				Backend: pc.Backend,
				Purpose: pc.Purpose,
			}
			if pr := run.ResultFor(pc.Pass); pr != nil {
				pv.Cost = pr.Cost
			}
			byPass[pc.Pass] = pv
		}

		intro := make(map[string]int)
		for _, pkg := range run.Packages {
			for _, item := range pkg.Items {
				key := itemKey(pkg.ID, item.Description)
				if pass, ok := intro[key]; !ok || item.FoundPass < pass {
					intro[key] = item.FoundPass
				}
			}
		}

		counted := make(map[string]struct{}, len(intro))
		for _, pkg := range run.Packages {
			for _, item := range pkg.Items {
				key := itemKey(pkg.ID, item.Description)
				if _, done := counted[key]; done {
					continue
				}
				counted[key] = struct{}{}

				pv, ok := byPass[intro[key]]
				if !ok {
					continue
				}
				pv.NewItems++
				score := scores[key]
				switch {
				case score >= corroboratedFloor:
					pv.Corroborated++
				case score >= halfValueFloor:
					pv.HalfValue++
				default:
					pv.Noise++
				}
			}
		}

		for _, pc := range run.Passes {
			pv := byPass[pc.Pass]
			weighted := float64(pv.Corroborated) + 0.5*float64(pv.HalfValue)
			if pv.Cost > 0 {
				pv.ValuePerCost = weighted / pv.Cost
			}
			pv.Recommendation = recommendPass(pv, weighted)
			analyses = append(analyses, *pv)
		}
	}

	sort.Slice(analyses, func(i, j int) bool {
		if analyses[i].RunID != analyses[j].RunID {
			return analyses[i].RunID < analyses[j].RunID
		}
		return analyses[i].Pass < analyses[j].Pass
	})
	return analyses
}

func recommendPass(pv *model.PassValueAnalysis, weighted float64) model.PassValueRecommendation {
	switch {
	case pv.ValuePerCost > highValueVPC:
		return model.PassValueHigh
	case pv.ValuePerCost > moderateValueVPC:
		return model.PassValueModerate
	case float64(pv.Noise) > weighted:
		return model.PassValueNoise
	default:
		return model.PassValueLow
	}
}
