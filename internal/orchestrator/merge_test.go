package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/pkg/backend"
)

func basePackages() []model.WorkPackage {
	return []model.WorkPackage{
		{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{
			{Description: "Install RTU-1", FoundBy: "claude-sonnet-4-5-20250929", FoundPass: 1},
		}},
	}
}

func TestMerge_ReviewAdditionStampsProvenance(t *testing.T) {
	resp := &backend.Response{
		Purpose: model.PurposeSelfReview,
		Review: &backend.ReviewPayload{
			Additions: []backend.Addition{
				{PackageID: "MEC", Item: model.LineItem{Description: "Condensate piping"}},
			},
		},
	}

	merged := Merge(basePackages(), resp, "gpt-5", 2)
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Items, 2)
	assert.Equal(t, "gpt-5", merged[0].Items[1].FoundBy)
	assert.Equal(t, 2, merged[0].Items[1].FoundPass)

	// Items carried from earlier passes keep their original provenance.
	assert.Equal(t, 1, merged[0].Items[0].FoundPass)
}

func TestMerge_UnknownPackageAdditionDropped(t *testing.T) {
	resp := &backend.Response{
		Purpose: model.PurposeSelfReview,
		Review: &backend.ReviewPayload{
			Additions: []backend.Addition{
				{PackageID: "NOPE", Item: model.LineItem{Description: "Orphan item"}},
			},
		},
	}

	merged := Merge(basePackages(), resp, "gpt-5", 2)
	require.Len(t, merged, 1)
	assert.Len(t, merged[0].Items, 1)
}

func TestMerge_ReReportedItemDropped(t *testing.T) {
	// "install rtu #1" normalizes to the same key as "Install RTU-1", so
	// the addition is a re-report, not a new item.
	resp := &backend.Response{
		Purpose: model.PurposeSelfReview,
		Review: &backend.ReviewPayload{
			Additions: []backend.Addition{
				{PackageID: "MEC", Item: model.LineItem{Description: "install rtu #1"}},
			},
		},
	}

	merged := Merge(basePackages(), resp, "gpt-5", 2)
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Items, 1)
	assert.Equal(t, "Install RTU-1", merged[0].Items[0].Description)
	assert.Equal(t, 1, merged[0].Items[0].FoundPass)
	assert.Equal(t, "claude-sonnet-4-5-20250929", merged[0].Items[0].FoundBy)
}

func TestMerge_ExtractionDuplicatesWithinPackageDropped(t *testing.T) {
	resp := &backend.Response{
		Purpose: model.PurposeInitialExtraction,
		Extraction: &backend.ExtractionPayload{
			Packages: []model.WorkPackage{
				{ID: "ELE", Name: "Electrical", Items: []model.LineItem{
					{Description: "Panel LP-1"},
					{Description: "panel lp-1"},
				}},
			},
		},
	}

	merged := Merge(nil, resp, "gpt-5", 1)
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Items, 1)
	assert.Equal(t, "Panel LP-1", merged[0].Items[0].Description)
}

func TestMerge_NewPackageWithExistingIDFoldsItems(t *testing.T) {
	resp := &backend.Response{
		Purpose: model.PurposeTradeDeepDive,
		Review: &backend.ReviewPayload{
			NewPackages: []model.WorkPackage{
				{ID: "MEC", Name: "Mechanical HVAC", Items: []model.LineItem{
					{Description: "Replace exhaust fan EF-3"},
				}},
				{ID: "PLB", Name: "Plumbing", Items: []model.LineItem{
					{Description: "Rough-in fixtures"},
				}},
			},
		},
	}

	merged := Merge(basePackages(), resp, "gpt-5", 3)
	require.Len(t, merged, 2)

	// Existing id: the payload's items are treated as additions and the
	// original name survives.
	assert.Equal(t, "Mechanical", merged[0].Name)
	assert.Len(t, merged[0].Items, 2)

	assert.Equal(t, "PLB", merged[1].ID)
	assert.Equal(t, 3, merged[1].Items[0].FoundPass)
}

func TestMerge_DoesNotMutateBase(t *testing.T) {
	base := basePackages()
	resp := &backend.Response{
		Purpose: model.PurposeSelfReview,
		Review: &backend.ReviewPayload{
			Additions: []backend.Addition{
				{PackageID: "MEC", Item: model.LineItem{Description: "Condensate piping"}},
			},
		},
	}

	Merge(base, resp, "gpt-5", 2)
	assert.Len(t, base[0].Items, 1)
}

func TestMerge_NilPayloadIsNoop(t *testing.T) {
	merged := Merge(basePackages(), &backend.Response{Purpose: model.PurposeSelfReview}, "gpt-5", 2)
	assert.Equal(t, basePackages(), merged)
}

func TestObservationsFrom_StampsEveryPurpose(t *testing.T) {
	obs := []model.AIObservation{{
		Severity:    model.SeverityInfo,
		Category:    model.CategoryAmbiguity,
		Description: "keynote 12 unreferenced",
	}}

	cases := []struct {
		purpose model.PassPurpose
		resp    *backend.Response
	}{
		{model.PurposeInitialExtraction, &backend.Response{
			Purpose:    model.PurposeInitialExtraction,
			Extraction: &backend.ExtractionPayload{Observations: obs},
		}},
		{model.PurposeCrossValidation, &backend.Response{
			Purpose: model.PurposeCrossValidation,
			Review:  &backend.ReviewPayload{Observations: obs},
		}},
		{model.PurposeFinalValidation, &backend.Response{
			Purpose:    model.PurposeFinalValidation,
			Validation: &backend.ValidationPayload{Observations: obs},
		}},
	}

	for _, tc := range cases {
		t.Run(string(tc.purpose), func(t *testing.T) {
			stamped := ObservationsFrom(tc.resp, "gpt-5", 4)
			require.Len(t, stamped, 1)
			assert.Equal(t, "gpt-5", stamped[0].FoundBy)
			assert.Equal(t, 4, stamped[0].FoundPass)
		})
	}
}

func TestRenderObservations(t *testing.T) {
	text := renderObservations([]model.AIObservation{
		{Severity: model.SeverityCritical, Category: model.CategoryConflict, Description: "duct clashes with beam", SuggestedAction: "RFI to structural"},
		{Severity: model.SeverityInfo, Category: model.CategoryAmbiguity, Description: "keynote 12 unreferenced"},
	})

	assert.Equal(t,
		"[critical/conflict] duct clashes with beam (suggested: RFI to structural)\n"+
			"[info/ambiguity] keynote 12 unreferenced\n",
		text)
}
