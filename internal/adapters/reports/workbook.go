// Package reports renders procurement results as spreadsheets and archives
// them to the artifact store.
package reports

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"procurecore/pkg/domain"
)

// ContentTypeXLSX is the MIME type of generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names used by the generated workbooks.
const (
	SheetRanking    = "Ranking"
	SheetStatistics = "Statistics"
	SheetOutliers   = "Outliers"
	SheetSummary    = "Summary"
	SheetLines      = "Lines"
	SheetMilestones = "Milestones"
	SheetLedger     = "SAL Ledger"
)

type sheet struct {
	name    string
	headers []string
	rows    [][]any
}

// ComparisonWorkbook renders a computed comparison: ranked offers, cohort
// statistics and the outlier analysis.
func ComparisonWorkbook(rdo domain.RDO, cmp domain.Comparison) (*bytes.Buffer, error) {
	ranking := sheet{
		name: SheetRanking,
		headers: []string{"Rank", "Vendor", "Offer", "Total Price", "Total Time (days)", "Price Score",
			"Time Score", "Quality Score", "Weighted Score", "Tier", "Outlier", "Manual Review", "Warnings"},
	}
	for _, r := range cmp.Ranked {
		ranking.rows = append(ranking.rows, []any{
			r.Ranking.Rank, r.VendorID, r.OfferID, r.TotalPrice.InexactFloat64(), r.TotalTime,
			r.Scoring.PriceScore, r.Scoring.TimeScore, r.Scoring.QualityScore, r.Scoring.WeightedScore,
			string(r.Ranking.Tier), yesNo(r.Scoring.IsOutlier), yesNo(r.Scoring.ManualReview),
			strings.Join(r.Scoring.Warnings, "; "),
		})
	}

	st := cmp.Statistics
	stats := sheet{name: SheetStatistics, headers: []string{"Measure", "Value"}, rows: [][]any{
		{"RDO", rdo.ID},
		{"Title", rdo.Title},
		{"Computed at", cmp.ComputedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Offers", st.OfferCount},
		{"Min price", st.MinPrice.InexactFloat64()},
		{"Max price", st.MaxPrice.InexactFloat64()},
		{"Average price", st.AvgPrice.InexactFloat64()},
		{"Price median", st.PriceMedian},
		{"Price MAD", st.PriceMAD},
		{"Price spread %", st.SpreadPricePct},
		{"Min time", st.MinTime},
		{"Max time", st.MaxTime},
		{"Average time", st.AvgTime},
		{"Time median", st.TimeMedian},
		{"Time MAD", st.TimeMAD},
		{"Best weighted", st.MaxWeighted},
		{"Worst weighted", st.MinWeighted},
		{"Manual reviews", st.ManualReviews},
		{"Excluded offers", strings.Join(cmp.ExcludedOfferIDs, ", ")},
		{"Warnings", strings.Join(cmp.Warnings, "; ")},
	}}

	outliers := sheet{name: SheetOutliers, headers: []string{"Offer", "Vendor", "Dimension", "Value", "Median", "MAD", "Deviation"}}
	for _, o := range cmp.Outliers {
		outliers.rows = append(outliers.rows, []any{o.OfferID, o.VendorID, o.Dimension, o.Value, o.Median, o.MAD, o.Deviation})
	}
	return render(ranking, stats, outliers)
}

// SyncWorkbook renders a committed business plan sync: the bucket movement
// and every contributing contract line.
func SyncWorkbook(diff domain.CommittedDiff) (*bytes.Buffer, error) {
	res := diff.Result
	summary := sheet{name: SheetSummary, headers: []string{"Measure", "Before", "After"}, rows: [][]any{
		{"Sync", res.ID, ""},
		{"Plan version", "", diff.PlanVersion},
		{"Total cost", res.PreviousTotalCost.InexactFloat64(), res.NewTotalCost.InexactFloat64()},
		{"Margin", res.Before.Margin, res.After.Margin},
		{"ROI", res.Before.ROI, res.After.ROI},
		{"NPV", res.Before.NPV.InexactFloat64(), res.After.NPV.InexactFloat64()},
		{"IRR", irrCell(res.Before.IRR), irrCell(res.After.IRR)},
		{"Impact", "", string(res.Impact)},
	}}
	buckets := make([]string, 0, len(diff.NewBuckets))
	for name := range diff.NewBuckets {
		buckets = append(buckets, name)
	}
	sort.Strings(buckets)
	for _, name := range buckets {
		summary.rows = append(summary.rows, []any{"Bucket " + name, diff.PreviousBuckets[name].InexactFloat64(), diff.NewBuckets[name].InexactFloat64()})
	}
	for _, rec := range res.Recommendations {
		summary.rows = append(summary.rows, []any{"Recommendation", "", rec})
	}

	lines := sheet{name: SheetLines, headers: []string{"Contract Line", "Bundle", "Bucket", "Contracted", "Previously Consumed", "Consumed To Date", "Line Delta", "Increment"}}
	for _, l := range res.Lines {
		lines.rows = append(lines.rows, []any{
			l.ContractLineID, l.BundleID, l.CostBucket, l.ContractedValue.InexactFloat64(),
			l.PreviousConsumed.InexactFloat64(), l.ConsumedToDate.InexactFloat64(),
			l.LineDelta.InexactFloat64(), l.Increment.InexactFloat64(),
		})
	}
	return render(summary, lines)
}

// SettlementWorkbook renders a bundle's milestone schedule, the per-line
// settlement state and the full SAL ledger. entries holds the SAL history of
// each contract line keyed by line id; lines are written in bundle order.
func SettlementWorkbook(bundle domain.ContractBundle, settlement domain.BundleSettlement, entries map[string][]domain.SALEntry) (*bytes.Buffer, error) {
	summary := sheet{name: SheetSummary, headers: []string{"Measure", "Value"}, rows: [][]any{
		{"Bundle", bundle.ID},
		{"Vendor", settlement.VendorID},
		{"RDO", bundle.RDOID},
		{"Total", settlement.Total.InexactFloat64()},
		{"Consuntivo", settlement.Consuntivo.InexactFloat64()},
		{"Delta vs budget", settlement.DeltaVsBudget.InexactFloat64()},
		{"Milestones paid", fmt.Sprintf("%d/%d", settlement.MilestonesPaid, settlement.MilestoneCount)},
	}}
	if !settlement.LastUpdated.IsZero() {
		summary.rows = append(summary.rows, []any{"Last updated", settlement.LastUpdated.UTC().Format("2006-01-02 15:04:05")})
	}

	milestones := sheet{name: SheetMilestones, headers: []string{"#", "Name", "Percentage", "Amount", "Status", "Paid At", "Skip Reason"}}
	for _, m := range bundle.Milestones {
		paid := ""
		if m.PaidAt != nil {
			paid = m.PaidAt.UTC().Format("2006-01-02")
		}
		milestones.rows = append(milestones.rows, []any{
			m.Index, m.Name, m.Percentage.InexactFloat64(), m.Amount.InexactFloat64(), string(m.Status), paid, m.SkipReason,
		})
	}

	lines := sheet{name: SheetLines, headers: []string{"Contract Line", "Description", "Bucket", "Contracted", "Consumed To Date", "Remaining", "Overrun", "Delta", "Entries"}}
	ledgers := make(map[string]domain.LineLedger, len(settlement.Lines))
	for _, l := range settlement.Lines {
		ledgers[l.ContractLineID] = l
	}
	for _, line := range bundle.Lines {
		l := ledgers[line.ID]
		lines.rows = append(lines.rows, []any{
			line.ID, line.Description, line.CostBucket, line.ContractedValue.InexactFloat64(),
			l.ConsumedToDate.InexactFloat64(), l.RemainingBudget.InexactFloat64(), yesNo(l.IsOverrun),
			l.Delta.InexactFloat64(), l.EntryCount,
		})
	}

	ledger := sheet{name: SheetLedger, headers: []string{"Entry", "Contract Line", "Kind", "Amount", "Description", "Corrects", "Recorded At", "Consumed To Date", "Remaining", "Overrun"}}
	for _, line := range bundle.Lines {
		for _, e := range entries[line.ID] {
			ledger.rows = append(ledger.rows, []any{
				e.ID, e.ContractLineID, string(e.Kind), e.Amount.InexactFloat64(), e.Description, e.CorrectsEntryID,
				e.RecordedAt.UTC().Format("2006-01-02 15:04:05"), e.ConsumedToDate.InexactFloat64(),
				e.RemainingBudget.InexactFloat64(), yesNo(e.IsOverrun),
			})
		}
	}
	return render(summary, milestones, lines, ledger)
}

func render(sheets ...sheet) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, s := range sheets {
		index, err := f.NewSheet(s.name)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", s.name, err)
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		if err := writeSheet(f, s, headerStyle); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	return f.WriteToBuffer()
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	header := make([]any, len(s.headers))
	for i, h := range s.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(s.name, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(s.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return err
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(s.headers))
	if err != nil {
		return err
	}
	return f.SetColWidth(s.name, "A", lastCol, 18)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func irrCell(v *float64) any {
	if v == nil {
		return "n/a"
	}
	return *v
}
