package consensus

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/model"
)

// Engine compares completed runs. It is stateless beyond the family table;
// every score is recomputed from scratch on each Compare call, so the
// output depends only on the supplied run set, never on call history.
type Engine struct {
	families FamilyTable
}

// New creates an Engine. A nil table gets the default.
func New(families FamilyTable) *Engine {
	if families == nil {
		families = DefaultFamilyTable()
	}
	return &Engine{families: families}
}

// Compare reconciles runs over the same source documents. Input order does
// not matter: runs are sorted by id before any aggregation, and every
// output list has a documented deterministic order. Low agreement is data,
// not an error; Compare fails only on structurally invalid input.
func (e *Engine) Compare(runs []*model.PermutationResult) (*model.ConsensusReport, error) {
	if len(runs) == 0 {
		return nil, eris.New("consensus: no runs supplied")
	}

	ordered := make([]*model.PermutationResult, len(runs))
	copy(ordered, runs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RunID < ordered[j].RunID })

	runFamilies := make(map[string]string, len(ordered))
	familySet := make(map[string]struct{})
	runIDs := make([]string, 0, len(ordered))
	for _, run := range ordered {
		base := run.BasePass()
		if base == nil {
			return nil, eris.Errorf("consensus: run %s has no initial extraction pass", run.RunID)
		}
		fam := e.families.Family(base.Backend)
		runFamilies[run.RunID] = fam
		familySet[fam] = struct{}{}
		runIDs = append(runIDs, run.RunID)
	}

	families := make([]string, 0, len(familySet))
	for fam := range familySet {
		families = append(families, fam)
	}
	sort.Strings(families)

	items := e.buildItems(ordered, runFamilies, families)
	packages := e.comparePackages(ordered)
	passes := e.analyzePassValue(ordered, items)
	recs := synthesize(items, packages, passes)

	zap.L().Info("consensus: comparison complete",
		zap.Int("runs", len(ordered)),
		zap.Int("families", len(families)),
		zap.Int("items", len(items)),
		zap.Int("packages", len(packages)),
	)

	return &model.ConsensusReport{
		Runs:            runIDs,
		Families:        families,
		Items:           items,
		Packages:        packages,
		Passes:          passes,
		Recommendations: recs,
	}, nil
}
