// Package report renders run results and consensus reports into bid-form
// workbooks.
package report

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/precon-cli/internal/model"
)

var itemHeader = []string{"Item", "Description", "Action", "Qty", "Unit", "Unit Price", "Total Price", "Spec", "Sheet", "Notes", "Found By", "Pass"}

// WriteWorkbook writes one workbook for a run: a summary sheet, one sheet
// per work package, and an observations sheet.
func WriteWorkbook(path string, result *model.PermutationResult) error {
	if result == nil {
		return eris.New("report: nil result")
	}

	f := xlsx.NewFile()

	if err := writeSummary(f, result); err != nil {
		return err
	}
	for _, pkg := range result.Packages {
		if err := writePackage(f, pkg); err != nil {
			return err
		}
	}
	if err := writeObservations(f, result.Observations); err != nil {
		return err
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func writeSummary(f *xlsx.File, result *model.PermutationResult) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	addRow(sheet, "Run", result.RunID)
	addRow(sheet, "Work Packages", fmt.Sprintf("%d", len(result.Packages)))
	addRow(sheet, "Line Items", fmt.Sprintf("%d", itemCount(result.Packages)))
	addRow(sheet, "Observations", fmt.Sprintf("%d", len(result.Observations)))
	addRow(sheet, "Passes", fmt.Sprintf("%d (%d cached)", len(result.PassResults), result.Metrics.CacheHits))
	addRow(sheet, "Tokens", fmt.Sprintf("%d", result.Metrics.Usage.Total()))
	addRow(sheet, "Cost (USD)", fmt.Sprintf("%.4f", result.Metrics.Cost))

	addRow(sheet)
	addRow(sheet, "Pass", "Backend", "Purpose", "Cached", "Duration (ms)", "Cost (USD)")
	for _, pr := range result.PassResults {
		cached := ""
		if pr.CacheHit {
			cached = "yes"
		}
		addRow(sheet,
			fmt.Sprintf("%d", pr.Pass),
			pr.Backend,
			string(pr.Purpose),
			cached,
			fmt.Sprintf("%d", pr.DurationMS),
			fmt.Sprintf("%.4f", pr.Cost),
		)
	}
	return nil
}

func writePackage(f *xlsx.File, pkg model.WorkPackage) error {
	sheet, err := f.AddSheet(sheetName(pkg))
	if err != nil {
		return eris.Wrapf(err, "report: add sheet for package %s", pkg.ID)
	}

	addRow(sheet, pkg.Name, pkg.Trade, pkg.CSIDivision)
	addRow(sheet, itemHeader...)

	for _, item := range pkg.Items {
		addRow(sheet,
			item.ItemNumber,
			item.Description,
			item.Action,
			floatCell(item.Quantity),
			item.Unit,
			floatCell(item.UnitPrice),
			floatCell(item.TotalPrice),
			item.Specification,
			item.SheetRef,
			item.Notes,
			item.FoundBy,
			fmt.Sprintf("%d", item.FoundPass),
		)
	}
	return nil
}

func writeObservations(f *xlsx.File, observations []model.AIObservation) error {
	sheet, err := f.AddSheet("Observations")
	if err != nil {
		return eris.Wrap(err, "report: add observations sheet")
	}

	addRow(sheet, "Severity", "Category", "Description", "Packages", "References", "Suggested Action")
	for _, obs := range observations {
		addRow(sheet,
			string(obs.Severity),
			string(obs.Category),
			obs.Description,
			strings.Join(obs.PackageIDs, ", "),
			strings.Join(obs.References, ", "),
			obs.SuggestedAction,
		)
	}
	return nil
}

// WriteConsensus writes a consensus report workbook: one sheet of item
// agreement, one of package agreement, one of pass value.
func WriteConsensus(path string, report *model.ConsensusReport) error {
	if report == nil {
		return eris.New("report: nil consensus report")
	}

	f := xlsx.NewFile()

	items, err := f.AddSheet("Item Agreement")
	if err != nil {
		return eris.Wrap(err, "report: add item sheet")
	}
	addRow(items, "Key", "Package", "Description", "Score", "Families", "Qty", "Unit", "Likely TP", "Analysis")
	for _, item := range report.Items {
		tp := ""
		if item.LikelyTruePositive {
			tp = "yes"
		}
		addRow(items,
			item.Key,
			item.PackageID,
			item.Description,
			fmt.Sprintf("%.3f", item.Score),
			strings.Join(item.FoundByFamilies, ", "),
			floatCell(item.ConsensusQuantity),
			item.ConsensusUnit,
			tp,
			item.Analysis,
		)
	}

	packages, err := f.AddSheet("Package Agreement")
	if err != nil {
		return eris.Wrap(err, "report: add package sheet")
	}
	addRow(packages, "Package", "Runs", "Name", "Division", "Trade", "Analysis")
	for _, cmp := range report.Packages {
		addRow(packages,
			cmp.PackageID,
			fmt.Sprintf("%d", cmp.RunCount),
			fmt.Sprintf("%.2f", cmp.NameAgreement),
			fmt.Sprintf("%.2f", cmp.DivisionAgreement),
			fmt.Sprintf("%.2f", cmp.TradeAgreement),
			cmp.Analysis,
		)
	}

	passes, err := f.AddSheet("Pass Value")
	if err != nil {
		return eris.Wrap(err, "report: add pass value sheet")
	}
	addRow(passes, "Run", "Pass", "Backend", "Purpose", "New", "Corroborated", "Half", "Noise", "Cost", "Value/Cost", "Recommendation")
	for _, pv := range report.Passes {
		addRow(passes,
			pv.RunID,
			fmt.Sprintf("%d", pv.Pass),
			pv.Backend,
			string(pv.Purpose),
			fmt.Sprintf("%d", pv.NewItems),
			fmt.Sprintf("%d", pv.Corroborated),
			fmt.Sprintf("%d", pv.HalfValue),
			fmt.Sprintf("%d", pv.Noise),
			fmt.Sprintf("%.4f", pv.Cost),
			fmt.Sprintf("%.1f", pv.ValuePerCost),
			string(pv.Recommendation),
		)
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

// helpers

func itemCount(packages []model.WorkPackage) int {
	total := 0
	for _, pkg := range packages {
		total += len(pkg.Items)
	}
	return total
}

// sheetName keeps within Excel's 31-char sheet name limit.
func sheetName(pkg model.WorkPackage) string {
	name := pkg.ID
	if pkg.Name != "" {
		name = pkg.ID + " " + pkg.Name
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
