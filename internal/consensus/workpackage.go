package consensus

import (
	"fmt"
	"sort"

	"github.com/sells-group/precon-cli/internal/model"
)

// axisMatchThreshold is the string-similarity floor for name and trade
// agreement between two runs' versions of the same package.
const axisMatchThreshold = 0.7

// comparePackages scores cross-run agreement per package id. A package seen
// in only one run scores 1.0 on every axis; the analysis text carries the
// lack-of-corroboration caveat instead, mirroring how single-family line
// items are flagged rather than penalized.
func (e *Engine) comparePackages(runs []*model.PermutationResult) []model.WorkPackageComparison {
	versions := make(map[string][]model.WorkPackage)
	var order []string

	for _, run := range runs {
		seen := make(map[string]struct{})
		for _, pkg := range run.Packages {
			// One version per run per id.
			if _, dup := seen[pkg.ID]; dup {
				continue
			}
			seen[pkg.ID] = struct{}{}
			if _, ok := versions[pkg.ID]; !ok {
				order = append(order, pkg.ID)
			}
			versions[pkg.ID] = append(versions[pkg.ID], pkg)
		}
	}
	sort.Strings(order)

	comparisons := make([]model.WorkPackageComparison, 0, len(order))
	for _, id := range order {
		vs := versions[id]
		cmp := model.WorkPackageComparison{
			PackageID: id,
			RunCount:  len(vs),
		}

		if len(vs) == 1 {
			cmp.NameAgreement = 1
			cmp.DivisionAgreement = 1
			cmp.TradeAgreement = 1
			cmp.Analysis = "only found by one backend family"
			comparisons = append(comparisons, cmp)
			continue
		}

		var pairs, nameMatches, divMatches, tradeMatches int
		for i := 0; i < len(vs); i++ {
			for j := i + 1; j < len(vs); j++ {
				pairs++
				if similarity(vs[i].Name, vs[j].Name) >= axisMatchThreshold {
					nameMatches++
				}
				if normDivision(vs[i].CSIDivision) == normDivision(vs[j].CSIDivision) {
					divMatches++
				}
				if similarity(vs[i].Trade, vs[j].Trade) >= axisMatchThreshold {
					tradeMatches++
				}
			}
		}

		cmp.NameAgreement = float64(nameMatches) / float64(pairs)
		cmp.DivisionAgreement = float64(divMatches) / float64(pairs)
		cmp.TradeAgreement = float64(tradeMatches) / float64(pairs)

		avg := (cmp.NameAgreement + cmp.DivisionAgreement + cmp.TradeAgreement) / 3
		switch {
		case avg >= 0.9:
			cmp.Analysis = fmt.Sprintf("strong agreement across %d runs", len(vs))
		case avg >= 0.6:
			cmp.Analysis = fmt.Sprintf("partial agreement across %d runs", len(vs))
		default:
			cmp.Analysis = fmt.Sprintf("runs disagree on this package (%d runs)", len(vs))
		}
		comparisons = append(comparisons, cmp)
	}
	return comparisons
}
