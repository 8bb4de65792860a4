package orchestrator

import (
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/pkg/backend"
)

// Merge folds one pass response into the cumulative work-package set and
// returns the new set. The base state is the initial extraction's packages;
// later passes contribute additions and new packages. Packages are never
// removed or renamed, and an addition naming an unknown package id is
// dropped: an unknown target is a data-quality signal, not something to
// auto-repair. Line items are identified by package id plus normalized
// description; re-reports of an item already in the set are dropped, so
// provenance always points at the pass that first found it. Deterministic
// for a given ordered pass sequence.
func Merge(base []model.WorkPackage, resp *backend.Response, backendID string, pass int) []model.WorkPackage {
	merged := clonePackages(base)

	switch resp.Purpose {
	case model.PurposeInitialExtraction:
		if resp.Extraction == nil {
			return merged
		}
		for _, pkg := range resp.Extraction.Packages {
			merged = insertPackage(merged, pkg, backendID, pass)
		}

	case model.PurposeSelfReview, model.PurposeTradeDeepDive, model.PurposeCrossValidation:
		if resp.Review == nil {
			return merged
		}
		for _, add := range resp.Review.Additions {
			merged = appendItem(merged, add, backendID, pass)
		}
		for _, pkg := range resp.Review.NewPackages {
			if indexOf(merged, pkg.ID) >= 0 {
				// Existing id: treat the payload's items as additions.
				for _, item := range pkg.Items {
					merged = appendItem(merged, backend.Addition{PackageID: pkg.ID, Item: item}, backendID, pass)
				}
				continue
			}
			merged = insertPackage(merged, pkg, backendID, pass)
		}

	case model.PurposeFinalValidation:
		if resp.Validation == nil {
			return merged
		}
		for _, add := range resp.Validation.Additions {
			merged = appendItem(merged, add, backendID, pass)
		}
	}

	return merged
}

// insertPackage appends a package, stamping provenance on its items. When
// the id already exists its items are folded into the existing package
// instead (initial extraction over several batches can legitimately emit
// the same package id more than once). Items whose key is already present
// are dropped.
func insertPackage(packages []model.WorkPackage, pkg model.WorkPackage, backendID string, pass int) []model.WorkPackage {
	idx := indexOf(packages, pkg.ID)

	seen := make(map[string]struct{})
	if idx >= 0 {
		for _, item := range packages[idx].Items {
			seen[model.ItemKey(pkg.ID, item.Description)] = struct{}{}
		}
	}

	var items []model.LineItem
	for _, item := range pkg.Items {
		key := model.ItemKey(pkg.ID, item.Description)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		stamp(&item, backendID, pass)
		items = append(items, item)
	}

	if idx >= 0 {
		packages[idx].Items = append(packages[idx].Items, items...)
		return packages
	}
	pkg.Items = items
	return append(packages, pkg)
}

// appendItem appends an addition's line item to its target package. The
// addition is dropped when the target is unknown, or when the package
// already holds an item with the same key.
func appendItem(packages []model.WorkPackage, add backend.Addition, backendID string, pass int) []model.WorkPackage {
	idx := indexOf(packages, add.PackageID)
	if idx < 0 {
		zap.L().Warn("merge: dropping addition for unknown package",
			zap.String("package_id", add.PackageID),
			zap.String("description", add.Item.Description),
			zap.Int("pass", pass),
		)
		return packages
	}

	key := model.ItemKey(add.PackageID, add.Item.Description)
	for _, existing := range packages[idx].Items {
		if model.ItemKey(add.PackageID, existing.Description) == key {
			zap.L().Debug("merge: dropping re-reported item",
				zap.String("key", key),
				zap.Int("pass", pass),
			)
			return packages
		}
	}

	item := add.Item
	stamp(&item, backendID, pass)
	packages[idx].Items = append(packages[idx].Items, item)
	return packages
}

// ObservationsFrom extracts the observations of a pass response, stamping
// provenance.
func ObservationsFrom(resp *backend.Response, backendID string, pass int) []model.AIObservation {
	var obs []model.AIObservation
	switch resp.Purpose {
	case model.PurposeInitialExtraction:
		if resp.Extraction != nil {
			obs = resp.Extraction.Observations
		}
	case model.PurposeSelfReview, model.PurposeTradeDeepDive, model.PurposeCrossValidation:
		if resp.Review != nil {
			obs = resp.Review.Observations
		}
	case model.PurposeFinalValidation:
		if resp.Validation != nil {
			obs = resp.Validation.Observations
		}
	}

	stamped := make([]model.AIObservation, len(obs))
	for i, o := range obs {
		o.FoundBy = backendID
		o.FoundPass = pass
		stamped[i] = o
	}
	return stamped
}

func stamp(item *model.LineItem, backendID string, pass int) {
	if item.FoundBy == "" {
		item.FoundBy = backendID
	}
	if item.FoundPass == 0 {
		item.FoundPass = pass
	}
}

func indexOf(packages []model.WorkPackage, id string) int {
	for i := range packages {
		if packages[i].ID == id {
			return i
		}
	}
	return -1
}

func clonePackages(packages []model.WorkPackage) []model.WorkPackage {
	cloned := make([]model.WorkPackage, len(packages))
	for i, pkg := range packages {
		items := make([]model.LineItem, len(pkg.Items))
		copy(items, pkg.Items)
		pkg.Items = items
		cloned[i] = pkg
	}
	return cloned
}
