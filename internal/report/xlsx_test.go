package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/precon-cli/internal/model"
)

func f64(v float64) *float64 { return &v }

func testResult() *model.PermutationResult {
	return &model.PermutationResult{
		RunID: "run-1",
		Passes: []model.PassConfig{
			{Pass: 1, Backend: "claude-sonnet-4-5-20250929", Purpose: model.PurposeInitialExtraction},
		},
		PassResults: []model.PassResult{
			{Pass: 1, Backend: "claude-sonnet-4-5-20250929", Purpose: model.PurposeInitialExtraction, DurationMS: 1200, Cost: 0.45},
		},
		Packages: []model.WorkPackage{
			{ID: "MEC", Name: "Mechanical", Trade: "Mechanical", CSIDivision: "23", Items: []model.LineItem{
				{Description: "Install RTU-1", Action: "install", Quantity: f64(2), Unit: "EA", SheetRef: "M-101", FoundBy: "claude-sonnet-4-5-20250929", FoundPass: 1},
			}},
		},
		Observations: []model.AIObservation{
			{Severity: model.SeverityWarning, Category: model.CategoryMissingScope, Description: "no controls sheets", PackageIDs: []string{"MEC"}},
		},
		Metrics: model.RunMetrics{Cost: 0.45, LiveCalls: 1},
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-1.xlsx")
	require.NoError(t, WriteWorkbook(path, testResult()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)

	assert.Equal(t, "Summary", f.Sheets[0].Name)
	assert.Equal(t, "MEC Mechanical", f.Sheets[1].Name)
	assert.Equal(t, "Observations", f.Sheets[2].Name)

	summary := f.Sheets[0]
	assert.Equal(t, "Run", summary.Rows[0].Cells[0].String())
	assert.Equal(t, "run-1", summary.Rows[0].Cells[1].String())
	assert.Equal(t, "Line Items", summary.Rows[2].Cells[0].String())
	assert.Equal(t, "1", summary.Rows[2].Cells[1].String())

	pkg := f.Sheets[1]
	assert.Equal(t, "Mechanical", pkg.Rows[0].Cells[0].String())
	assert.Equal(t, "Description", pkg.Rows[1].Cells[1].String())
	assert.Equal(t, "Install RTU-1", pkg.Rows[2].Cells[1].String())
	assert.Equal(t, "2", pkg.Rows[2].Cells[3].String())
	assert.Equal(t, "EA", pkg.Rows[2].Cells[4].String())

	obs := f.Sheets[2]
	assert.Equal(t, "warning", obs.Rows[1].Cells[0].String())
	assert.Equal(t, "no controls sheets", obs.Rows[1].Cells[2].String())
}

func TestWriteWorkbook_LineItemCountSpansPackages(t *testing.T) {
	result := testResult()
	result.Packages = append(result.Packages, model.WorkPackage{
		ID: "ELE", Name: "Electrical", Trade: "Electrical", CSIDivision: "26",
		Items: []model.LineItem{
			{Description: "Panel LP-1", Action: "install", FoundBy: "claude-sonnet-4-5-20250929", FoundPass: 1},
			{Description: "Feeder to RTU-1", Action: "install", FoundBy: "claude-sonnet-4-5-20250929", FoundPass: 1},
		},
	})

	path := filepath.Join(t.TempDir(), "run-1.xlsx")
	require.NoError(t, WriteWorkbook(path, result))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	summary := f.Sheets[0]
	assert.Equal(t, "Line Items", summary.Rows[2].Cells[0].String())
	assert.Equal(t, "3", summary.Rows[2].Cells[1].String())
}

func TestWriteWorkbook_NilResult(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "x.xlsx"), nil)
	assert.Error(t, err)
}

func TestWriteWorkbook_LongPackageNameTruncated(t *testing.T) {
	result := testResult()
	result.Packages[0].Name = "Mechanical HVAC and Controls Including BAS Integration"

	path := filepath.Join(t.TempDir(), "run-1.xlsx")
	require.NoError(t, WriteWorkbook(path, result))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets[1].Name, 31)
}

func TestWriteConsensus(t *testing.T) {
	report := &model.ConsensusReport{
		Runs:     []string{"run-a", "run-b"},
		Families: []string{"anthropic", "openai"},
		Items: []model.LineItemConsensus{
			{
				Key:                "MEC:install rtu 1",
				PackageID:          "MEC",
				Description:        "Install RTU-1",
				FoundByFamilies:    []string{"anthropic", "openai"},
				Score:              1.0,
				ConsensusQuantity:  f64(2),
				ConsensusUnit:      "EA",
				LikelyTruePositive: true,
				Analysis:           "found by all 2 backend families (anthropic, openai)",
			},
		},
		Packages: []model.WorkPackageComparison{
			{PackageID: "MEC", RunCount: 2, NameAgreement: 1, DivisionAgreement: 1, TradeAgreement: 1, Analysis: "strong agreement across 2 runs"},
		},
		Passes: []model.PassValueAnalysis{
			{RunID: "run-a", Pass: 1, Backend: "claude-sonnet-4-5-20250929", Purpose: model.PurposeInitialExtraction, NewItems: 1, Corroborated: 1, Cost: 0.45, ValuePerCost: 2.2, Recommendation: model.PassValueLow},
		},
	}

	path := filepath.Join(t.TempDir(), "consensus.xlsx")
	require.NoError(t, WriteConsensus(path, report))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Equal(t, "Item Agreement", f.Sheets[0].Name)
	assert.Equal(t, "Package Agreement", f.Sheets[1].Name)
	assert.Equal(t, "Pass Value", f.Sheets[2].Name)

	items := f.Sheets[0]
	assert.Equal(t, "MEC:install rtu 1", items.Rows[1].Cells[0].String())
	assert.Equal(t, "1.000", items.Rows[1].Cells[3].String())
	assert.Equal(t, "anthropic, openai", items.Rows[1].Cells[4].String())
	assert.Equal(t, "yes", items.Rows[1].Cells[7].String())

	passes := f.Sheets[2]
	assert.Equal(t, "run-a", passes.Rows[1].Cells[0].String())
	assert.Equal(t, "low_value", passes.Rows[1].Cells[10].String())
}

func TestWriteConsensus_NilReport(t *testing.T) {
	assert.Error(t, WriteConsensus(filepath.Join(t.TempDir(), "x.xlsx"), nil))
}
