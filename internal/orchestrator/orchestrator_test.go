package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/precon-cli/internal/batch"
	"github.com/sells-group/precon-cli/internal/cost"
	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/internal/passcache"
	"github.com/sells-group/precon-cli/pkg/backend"
)

const testBackend = "claude-sonnet-4-5-20250929"

func testDoc() *model.ClassifiedDocument {
	return model.NewClassifiedDocument([]model.Page{
		{PageNumber: 1, Trade: model.TradeGeneral, PageType: model.PageTypeCover, EstimatedTokens: 500, Content: "cover"},
		{PageNumber: 2, Trade: "Mechanical", PageType: model.PageTypePlan, EstimatedTokens: 4000, Content: "M-101"},
		{PageNumber: 3, Trade: "Mechanical", PageType: model.PageTypeSchedule, EstimatedTokens: 3000, Content: "M-601"},
		{PageNumber: 4, Trade: "Electrical", PageType: model.PageTypePlan, EstimatedTokens: 5000, Content: "E-101"},
	})
}

func testOptions() Options {
	return Options{
		SchemaVersion: "v1",
		Plan: batch.PlanConfig{
			MaxTokensPerBatch: 100000,
			MinTokensPerBatch: 1000,
			MaxPagesPerBatch:  20,
		},
		BatchConcurrency: 2,
	}
}

func newTestOrchestrator(client backend.Client, cache passcache.Cache) *Orchestrator {
	return New(client, cache, cost.NewCalculator(cost.DefaultRates()), testOptions())
}

func extractionResponse(pkgs ...model.WorkPackage) *backend.Response {
	return &backend.Response{
		Purpose:    model.PurposeInitialExtraction,
		Extraction: &backend.ExtractionPayload{Packages: pkgs},
		Usage:      model.TokenUsage{InputTokens: 10000, OutputTokens: 2000},
	}
}

func reviewResponse(additions []backend.Addition, newPkgs []model.WorkPackage) *backend.Response {
	return &backend.Response{
		Purpose: model.PurposeSelfReview,
		Review:  &backend.ReviewPayload{Additions: additions, NewPackages: newPkgs},
		Usage:   model.TokenUsage{InputTokens: 8000, OutputTokens: 1000},
	}
}

func TestRun_TwoPassHappyPath(t *testing.T) {
	client := &mockBackend{}
	client.On("Call", mock.Anything, reqWithTrade("Mechanical")).Return(extractionResponse(
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Trade: "Mechanical", Items: []model.LineItem{
			{Description: "Install RTU-1"},
		}},
	), nil).Once()
	client.On("Call", mock.Anything, reqWithTrade("Electrical")).Return(extractionResponse(
		model.WorkPackage{ID: "ELE", Name: "Electrical", Trade: "Electrical", Items: []model.LineItem{
			{Description: "Panel schedule LP-1"},
		}},
	), nil).Once()
	client.On("Call", mock.Anything, reqWithPurpose(model.PurposeSelfReview)).Return(reviewResponse(
		[]backend.Addition{{PackageID: "MEC", Item: model.LineItem{Description: "Condensate piping"}}},
		nil,
	), nil).Once()

	orch := newTestOrchestrator(client, passcache.NewMemory())
	result, err := orch.Run(context.Background(), "run-1", testDoc(), []model.PassConfig{
		{Pass: 2, Backend: testBackend, Purpose: model.PurposeSelfReview, DependsOn: []int{1}},
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
	})
	require.NoError(t, err)
	client.AssertExpectations(t)

	// Passes execute in ascending order regardless of config order.
	require.Len(t, result.PassResults, 2)
	assert.Equal(t, 1, result.PassResults[0].Pass)
	assert.Equal(t, 2, result.PassResults[1].Pass)

	// Batches combine in plan order: Mechanical has more pages than
	// Electrical, so its package lands first.
	require.Len(t, result.Packages, 2)
	assert.Equal(t, "MEC", result.Packages[0].ID)
	assert.Equal(t, "ELE", result.Packages[1].ID)

	// The review addition folded into MEC with provenance stamped.
	require.Len(t, result.Packages[0].Items, 2)
	added := result.Packages[0].Items[1]
	assert.Equal(t, "Condensate piping", added.Description)
	assert.Equal(t, testBackend, added.FoundBy)
	assert.Equal(t, 2, added.FoundPass)

	assert.Equal(t, 2, result.Metrics.LiveCalls)
	assert.Zero(t, result.Metrics.CacheHits)
	assert.Greater(t, result.Metrics.Cost, 0.0)
	assert.Equal(t, 28000, result.Metrics.Usage.InputTokens)
	for _, pr := range result.PassResults {
		assert.False(t, pr.CacheHit)
		assert.NotEmpty(t, pr.CacheKey)
		assert.NotEmpty(t, pr.ResponseJSON)
	}
}

func TestRun_CacheHitSkipsBackend(t *testing.T) {
	cache := passcache.NewMemory()
	doc := testDoc()
	passes := []model.PassConfig{
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
	}

	client := &mockBackend{}
	client.On("Call", mock.Anything, mock.Anything).Return(extractionResponse(
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{{Description: "Install RTU-1"}}},
	), nil)

	first, err := newTestOrchestrator(client, cache).Run(context.Background(), "run-1", doc, passes)
	require.NoError(t, err)
	require.Equal(t, 1, first.Metrics.LiveCalls)

	// Second run on the same inputs never touches the backend.
	silent := &mockBackend{}
	second, err := newTestOrchestrator(silent, cache).Run(context.Background(), "run-2", doc, passes)
	require.NoError(t, err)
	silent.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)

	assert.Equal(t, 1, second.Metrics.CacheHits)
	assert.Zero(t, second.Metrics.LiveCalls)
	assert.Zero(t, second.Metrics.Cost, "cache hits are free")
	require.Len(t, second.PassResults, 1)
	assert.True(t, second.PassResults[0].CacheHit)
	assert.Equal(t, first.Packages, second.Packages)
}

func TestRun_FailedPassKeepsEarlierPassesCached(t *testing.T) {
	cache := passcache.NewMemory()
	doc := testDoc()
	passes := []model.PassConfig{
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
		{Pass: 2, Backend: testBackend, Purpose: model.PurposeSelfReview, DependsOn: []int{1}},
	}

	broken := &mockBackend{}
	broken.On("Call", mock.Anything, reqWithPurpose(model.PurposeInitialExtraction)).Return(extractionResponse(
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{{Description: "Install RTU-1"}}},
	), nil)
	broken.On("Call", mock.Anything, reqWithPurpose(model.PurposeSelfReview)).
		Return(nil, errors.New("response was not valid JSON"))

	_, err := newTestOrchestrator(broken, cache).Run(context.Background(), "run-1", doc, passes)
	require.Error(t, err)
	var passErr *PassError
	require.ErrorAs(t, err, &passErr)
	assert.Equal(t, 2, passErr.Pass)
	assert.Equal(t, testBackend, passErr.Backend)

	// The retry reuses pass 1 from the cache and only calls pass 2 live.
	fixed := &mockBackend{}
	fixed.On("Call", mock.Anything, reqWithPurpose(model.PurposeSelfReview)).Return(reviewResponse(
		[]backend.Addition{{PackageID: "MEC", Item: model.LineItem{Description: "Condensate piping"}}},
		nil,
	), nil).Once()

	result, err := newTestOrchestrator(fixed, cache).Run(context.Background(), "run-1", doc, passes)
	require.NoError(t, err)
	fixed.AssertExpectations(t)
	fixed.AssertNotCalled(t, "Call", mock.Anything, reqWithPurpose(model.PurposeInitialExtraction))

	assert.Equal(t, 1, result.Metrics.CacheHits)
	assert.Equal(t, 1, result.Metrics.LiveCalls)
	require.Len(t, result.Packages, 1)
	assert.Len(t, result.Packages[0].Items, 2)
}

func TestRun_NoDocuments(t *testing.T) {
	orch := newTestOrchestrator(&mockBackend{}, passcache.NewMemory())
	passes := []model.PassConfig{{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction}}

	_, err := orch.Run(context.Background(), "run-1", nil, passes)
	assert.ErrorIs(t, err, ErrNoDocuments)

	_, err = orch.Run(context.Background(), "run-1", model.NewClassifiedDocument(nil), passes)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestRun_EmptyPassPlan(t *testing.T) {
	orch := newTestOrchestrator(&mockBackend{}, passcache.NewMemory())
	_, err := orch.Run(context.Background(), "run-1", testDoc(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty pass plan")
}

func TestRun_UnknownPurposeRejectedUpfront(t *testing.T) {
	client := &mockBackend{}
	orch := newTestOrchestrator(client, passcache.NewMemory())

	_, err := orch.Run(context.Background(), "run-1", testDoc(), []model.PassConfig{
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
		{Pass: 2, Backend: testBackend, Purpose: model.PassPurpose("ocr_cleanup")},
	})
	var unknownErr *UnknownPurposeError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, 2, unknownErr.Pass)
	assert.Equal(t, model.PassPurpose("ocr_cleanup"), unknownErr.Purpose)

	// Validation happens before any backend call.
	client.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
}

func TestRun_MissingDependency(t *testing.T) {
	orch := newTestOrchestrator(&mockBackend{}, passcache.NewMemory())

	_, err := orch.Run(context.Background(), "run-1", testDoc(), []model.PassConfig{
		{Pass: 2, Backend: testBackend, Purpose: model.PurposeSelfReview, DependsOn: []int{1}},
	})
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, 2, depErr.Pass)
	assert.Equal(t, []int{1}, depErr.Missing)
}

func TestRun_FinalValidationReceivesObservationsText(t *testing.T) {
	resp := extractionResponse(
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{{Description: "Install RTU-1"}}},
	)
	resp.Extraction.Observations = []model.AIObservation{{
		Severity:        model.SeverityWarning,
		Category:        model.CategoryMissingScope,
		Description:     "no roofing sheets found",
		SuggestedAction: "confirm roofing is a separate contract",
	}}

	client := &mockBackend{}
	client.On("Call", mock.Anything, reqWithPurpose(model.PurposeInitialExtraction)).Return(resp, nil)
	client.On("Call", mock.Anything, mock.MatchedBy(func(req backend.Request) bool {
		return req.Purpose == model.PurposeFinalValidation &&
			strings.Contains(req.ObservationsText, "[warning/missing_scope] no roofing sheets found") &&
			strings.Contains(req.ObservationsText, "(suggested: confirm roofing is a separate contract)") &&
			len(req.Merged) == 1
	})).Return(&backend.Response{
		Purpose:    model.PurposeFinalValidation,
		Validation: &backend.ValidationPayload{},
		Usage:      model.TokenUsage{InputTokens: 5000, OutputTokens: 500},
	}, nil).Once()

	orch := newTestOrchestrator(client, passcache.NewMemory())
	result, err := orch.Run(context.Background(), "run-1", testDoc(), []model.PassConfig{
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
		{Pass: 2, Backend: testBackend, Purpose: model.PurposeFinalValidation, DependsOn: []int{1}},
	})
	require.NoError(t, err)
	client.AssertExpectations(t)

	require.Len(t, result.Observations, 1)
	assert.Equal(t, testBackend, result.Observations[0].FoundBy)
	assert.Equal(t, 1, result.Observations[0].FoundPass)
}

func TestRun_DuplicatePackageIDsMergedAcrossBatches(t *testing.T) {
	// General-notes packages show up in every batch; the combined result
	// carries one package with all items.
	client := &mockBackend{}
	client.On("Call", mock.Anything, reqWithTrade("Mechanical")).Return(extractionResponse(
		model.WorkPackage{ID: "GEN", Name: "General Conditions", Items: []model.LineItem{{Description: "Mobilization"}}},
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{{Description: "Install RTU-1"}}},
	), nil)
	client.On("Call", mock.Anything, reqWithTrade("Electrical")).Return(extractionResponse(
		model.WorkPackage{ID: "GEN", Name: "General Conditions", Items: []model.LineItem{{Description: "Temporary power"}}},
	), nil)

	orch := newTestOrchestrator(client, passcache.NewMemory())
	result, err := orch.Run(context.Background(), "run-1", testDoc(), []model.PassConfig{
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
	})
	require.NoError(t, err)

	require.Len(t, result.Packages, 2)
	assert.Equal(t, "GEN", result.Packages[0].ID)
	require.Len(t, result.Packages[0].Items, 2)
	assert.Equal(t, "Mobilization", result.Packages[0].Items[0].Description)
	assert.Equal(t, "Temporary power", result.Packages[0].Items[1].Description)
}

func TestRun_IdenticalBatchResultsCollapse(t *testing.T) {
	// Every batch sees the general pages, so identical re-extractions of
	// the same package, item, and observation are routine.
	dup := extractionResponse(
		model.WorkPackage{ID: "GEN", Name: "General Conditions", Items: []model.LineItem{{Description: "Mobilization"}}},
	)
	dup.Extraction.Observations = []model.AIObservation{{
		Severity:    model.SeverityInfo,
		Category:    model.CategoryAmbiguity,
		Description: "general notes reference addendum 2",
	}}

	client := &mockBackend{}
	client.On("Call", mock.Anything, reqWithPurpose(model.PurposeInitialExtraction)).Return(dup, nil)

	orch := newTestOrchestrator(client, passcache.NewMemory())
	result, err := orch.Run(context.Background(), "run-1", testDoc(), []model.PassConfig{
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
	})
	require.NoError(t, err)

	require.Len(t, result.Packages, 1)
	assert.Len(t, result.Packages[0].Items, 1)
	require.Len(t, result.Observations, 1)
	assert.Equal(t, "general notes reference addendum 2", result.Observations[0].Description)
}

func TestRun_ReviewReReportKeepsFirstProvenance(t *testing.T) {
	client := &mockBackend{}
	client.On("Call", mock.Anything, reqWithPurpose(model.PurposeInitialExtraction)).Return(extractionResponse(
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{{Description: "Install RTU-1"}}},
	), nil)
	// The review re-reports RTU-1 under a wording variant alongside one
	// genuinely new item.
	client.On("Call", mock.Anything, reqWithPurpose(model.PurposeSelfReview)).Return(reviewResponse(
		[]backend.Addition{
			{PackageID: "MEC", Item: model.LineItem{Description: "install rtu #1"}},
			{PackageID: "MEC", Item: model.LineItem{Description: "Condensate piping"}},
		},
		nil,
	), nil).Once()

	orch := newTestOrchestrator(client, passcache.NewMemory())
	result, err := orch.Run(context.Background(), "run-1", testDoc(), []model.PassConfig{
		{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction},
		{Pass: 2, Backend: testBackend, Purpose: model.PurposeSelfReview, DependsOn: []int{1}},
	})
	require.NoError(t, err)

	require.Len(t, result.Packages, 1)
	require.Len(t, result.Packages[0].Items, 2)
	assert.Equal(t, "Install RTU-1", result.Packages[0].Items[0].Description)
	assert.Equal(t, 1, result.Packages[0].Items[0].FoundPass)
	assert.Equal(t, "Condensate piping", result.Packages[0].Items[1].Description)
	assert.Equal(t, 2, result.Packages[0].Items[1].FoundPass)
}

func TestRun_RecordsExecutedBatches(t *testing.T) {
	cache := passcache.NewMemory()
	doc := testDoc()
	passes := []model.PassConfig{{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction}}

	client := &mockBackend{}
	client.On("Call", mock.Anything, mock.Anything).Return(extractionResponse(
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{{Description: "Install RTU-1"}}},
	), nil)

	result, err := newTestOrchestrator(client, cache).Run(context.Background(), "run-1", doc, passes)
	require.NoError(t, err)

	require.Len(t, result.Batches, 2)
	for _, b := range result.Batches {
		assert.Equal(t, "run-1", b.RunID)
		assert.Equal(t, model.BatchStatusCompleted, b.Status)
		assert.NotNil(t, b.Result)
		assert.NotNil(t, b.CompletedAt)
	}

	// A cache-hit run makes no backend calls, so it has no batch records.
	cached, err := newTestOrchestrator(&mockBackend{}, cache).Run(context.Background(), "run-2", doc, passes)
	require.NoError(t, err)
	assert.Empty(t, cached.Batches)
}

func TestRun_SchemaVersionChangesCacheKey(t *testing.T) {
	cache := passcache.NewMemory()
	doc := testDoc()
	passes := []model.PassConfig{{Pass: 1, Backend: testBackend, Purpose: model.PurposeInitialExtraction}}

	client := &mockBackend{}
	client.On("Call", mock.Anything, mock.Anything).Return(extractionResponse(
		model.WorkPackage{ID: "MEC", Name: "Mechanical", Items: []model.LineItem{{Description: "Install RTU-1"}}},
	), nil)

	_, err := newTestOrchestrator(client, cache).Run(context.Background(), "run-1", doc, passes)
	require.NoError(t, err)

	opts := testOptions()
	opts.SchemaVersion = "v2"
	bumped := New(client, cache, cost.NewCalculator(cost.DefaultRates()), opts)
	result, err := bumped.Run(context.Background(), "run-2", doc, passes)
	require.NoError(t, err)

	assert.Zero(t, result.Metrics.CacheHits)
	assert.Equal(t, 1, result.Metrics.LiveCalls)
}
