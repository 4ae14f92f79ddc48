// Package export turns reports into sheet-oriented workbooks and encodes
// them as xlsx documents.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ncecere/usage_reports/backend/internal/aggregate"
	"github.com/ncecere/usage_reports/backend/internal/models"
)

type Mode string

const (
	ModeMerged     Mode = "merged"
	ModeIndividual Mode = "individual"
)

var ErrInvalidMode = errors.New("invalid export mode")

const (
	SheetMerged  = "Merged"
	SheetDetail  = "Detail"
	SheetSummary = "Summary"

	grandTotalLabel = "Grand Total"
	totalLabel      = "Total"
	modelRowPrefix  = "  └ "
)

var (
	dailyColumns   = []string{"date", "inputTokens", "outputTokens", "cacheCreationTokens", "cacheReadTokens", "totalTokens", "totalCost", "modelsUsed"}
	detailColumns  = []string{"period", "member", "date", "inputTokens", "outputTokens", "cacheCreationTokens", "cacheReadTokens", "totalTokens", "totalCost", "modelsUsed"}
	summaryColumns = []string{"period", "member", "totalCost", "totalTokens", "percentage"}
)

// Row is one sheet line keyed by column name. An empty row is a blank line.
type Row map[string]any

type Sheet struct {
	Name    string
	Columns []string
	Rows    []Row
}

type Workbook struct {
	Sheets []Sheet
}

// Sheet returns the sheet with the given name.
func (w Workbook) Sheet(name string) (Sheet, bool) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return Sheet{}, false
}

// ParseMode accepts "merged" (the default) or "individual".
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeMerged:
		return ModeMerged, nil
	case ModeIndividual:
		return ModeIndividual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Filename is the download name of a workbook built at the given time.
func Filename(now time.Time) string {
	return fmt.Sprintf("Claude_Usage_%s.xlsx", now.Format("2006-01-02"))
}

// Shape builds the workbook for the selected reports.
func Shape(reports []models.Report, mode Mode) Workbook {
	if mode == ModeIndividual {
		return shapeIndividual(reports)
	}
	return shapeMerged(reports)
}

func shapeMerged(reports []models.Report) Workbook {
	records := make([]models.UsageRecord, 0, len(reports))
	for _, r := range reports {
		records = append(records, r.RawData.MergedData)
	}
	merged := aggregate.MergeDaily(records...)

	combined := Sheet{Name: SheetMerged, Columns: dailyColumns}
	combined.Rows = append(dailyRows(merged.Daily), totalsRow(grandTotalLabel, merged.Totals))

	detail := Sheet{Name: SheetDetail, Columns: detailColumns, Rows: []Row{}}
	for _, r := range reports {
		for _, c := range r.Contributions() {
			for _, d := range c.Record.Daily {
				detail.Rows = append(detail.Rows, Row{
					"period":              r.Period,
					"member":              displayName(c.Owner),
					"date":                d.Date,
					"inputTokens":         d.InputTokens,
					"outputTokens":        d.OutputTokens,
					"cacheCreationTokens": d.CacheCreationTokens,
					"cacheReadTokens":     d.CacheReadTokens,
					"totalTokens":         d.TotalTokens,
					"totalCost":           Currency(d.TotalCost),
					"modelsUsed":          strings.Join(d.ModelsUsed, ", "),
				})
			}
		}
	}

	return Workbook{Sheets: []Sheet{combined, detail, summarySheet(reports)}}
}

func shapeIndividual(reports []models.Report) Workbook {
	names := newSheetNamer(SheetSummary)
	wb := Workbook{}
	for _, r := range reports {
		merged := aggregate.MergeDaily(r.RawData.MergedData)
		sheet := Sheet{Name: names.next(sheetLabel(r)), Columns: dailyColumns}
		sheet.Rows = append(dailyRows(merged.Daily), totalsRow(totalLabel, merged.Totals))
		wb.Sheets = append(wb.Sheets, sheet)
	}
	wb.Sheets = append(wb.Sheets, summarySheet(reports))
	return wb
}

func sheetLabel(r models.Report) string {
	if name := strings.TrimSpace(r.ReporterName); name != "" {
		return name
	}
	return r.Period
}

func dailyRows(daily []models.DailyEntry) []Row {
	rows := make([]Row, 0, len(daily))
	for _, d := range daily {
		rows = append(rows, Row{
			"date":                d.Date,
			"inputTokens":         d.InputTokens,
			"outputTokens":        d.OutputTokens,
			"cacheCreationTokens": d.CacheCreationTokens,
			"cacheReadTokens":     d.CacheReadTokens,
			"totalTokens":         d.TotalTokens,
			"totalCost":           Currency(d.TotalCost),
			"modelsUsed":          strings.Join(d.ModelsUsed, ", "),
		})
		for _, m := range d.ModelBreakdowns {
			rows = append(rows, Row{
				"date":                "",
				"inputTokens":         m.InputTokens,
				"outputTokens":        m.OutputTokens,
				"cacheCreationTokens": m.CacheCreationTokens,
				"cacheReadTokens":     m.CacheReadTokens,
				"totalTokens":         m.TotalTokens(),
				"totalCost":           Currency(m.Cost),
				"modelsUsed":          modelRowPrefix + m.ModelName,
			})
		}
	}
	return rows
}

func totalsRow(label string, t models.TokenCostTotals) Row {
	return Row{
		"date":                label,
		"inputTokens":         t.InputTokens,
		"outputTokens":        t.OutputTokens,
		"cacheCreationTokens": t.CacheCreationTokens,
		"cacheReadTokens":     t.CacheReadTokens,
		"totalTokens":         t.TotalTokens,
		"totalCost":           Currency(t.TotalCost),
		"modelsUsed":          "",
	}
}

func summarySheet(reports []models.Report) Sheet {
	sheet := Sheet{Name: SheetSummary, Columns: summaryColumns, Rows: []Row{}}
	for _, r := range reports {
		for _, m := range r.Summary.Members {
			sheet.Rows = append(sheet.Rows, Row{
				"period":      r.Period,
				"member":      displayName(m.Name),
				"totalCost":   Currency(m.Cost),
				"totalTokens": m.Tokens,
				"percentage":  decimal.NewFromFloat(m.Percentage).StringFixed(1),
			})
		}
	}
	return sheet
}

// Currency formats an amount with exactly two decimals.
func Currency(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return models.UnknownName
	}
	return name
}
