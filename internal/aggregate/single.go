package aggregate

import (
	"strings"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

// SaveOptions carries the optional period override of a save.
type SaveOptions struct {
	Since    string
	Until    string
	FileName string
}

// MergeSingle derives the report fields for one owner's validated record.
// The record's supplied totals are trusted for the summary; the stored
// merged record has its days sorted and merged by date.
func MergeSingle(owner string, rec models.UsageRecord, opts SaveOptions) models.ReportFields {
	merged := MergeDaily(rec)
	merged.Totals = rec.Totals

	name := normalizeName(owner)
	stats := models.TeamStats{
		TotalMembers:       1,
		TotalCost:          rec.Totals.TotalCost,
		TotalTokens:        rec.Totals.TotalTokens,
		AvgCostPerMember:   rec.Totals.TotalCost,
		AvgTokensPerMember: float64(rec.Totals.TotalTokens),
		Members: []models.MemberStat{{
			Name:       name,
			Cost:       rec.Totals.TotalCost,
			Tokens:     rec.Totals.TotalTokens,
			Percentage: Percent(rec.Totals.TotalCost, rec.Totals.TotalCost),
		}},
	}

	return models.ReportFields{
		Period: period(merged, opts),
		RawData: models.RawData{
			MergedData:  merged,
			TeamData:    []models.MemberData{{Name: name, FileName: opts.FileName, Data: rec}},
			CustomSince: displayDate(opts.Since),
			CustomUntil: displayDate(opts.Until),
		},
		Summary: stats,
	}
}

// MergeTeam derives report fields for several members saved together under
// one team. All sums are recomputed.
func MergeTeam(team string, members []models.MemberData, opts SaveOptions) models.ReportFields {
	records := make([]models.UsageRecord, 0, len(members))
	contribs := make([]models.Contribution, 0, len(members))
	kept := make([]models.MemberData, 0, len(members))
	for _, m := range members {
		records = append(records, m.Data)
		contribs = append(contribs, models.Contribution{Owner: m.Name, Team: team, Record: m.Data})
		m.Name = normalizeName(m.Name)
		kept = append(kept, m)
	}
	merged := MergeDaily(records...)
	summary := MergeMembers(contribs)

	return models.ReportFields{
		Period: period(merged, opts),
		RawData: models.RawData{
			MergedData:  merged,
			TeamData:    kept,
			CustomSince: displayDate(opts.Since),
			CustomUntil: displayDate(opts.Until),
		},
		Summary: BuildTeamStats(summary.Members),
	}
}

func period(merged models.UsageRecord, opts SaveOptions) string {
	start := displayDate(opts.Since)
	end := displayDate(opts.Until)
	if start == "" {
		start = merged.FirstDate()
	}
	if end == "" {
		end = merged.LastDate()
	}
	if start == "" && end == "" {
		return ""
	}
	return models.FormatPeriod(start, end)
}

// displayDate renders YYYYMMDD as YYYY-MM-DD; other inputs pass through.
func displayDate(date string) string {
	date = strings.TrimSpace(date)
	if len(date) == 8 && strings.IndexFunc(date, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
		return date[:4] + "-" + date[4:6] + "-" + date[6:]
	}
	return date
}
