package aggregate

import (
	"github.com/ncecere/usage_reports/backend/internal/models"
)

// View bundles every aggregate shape a caller renders.
type View struct {
	Daily     []models.DailyEntry    `json:"dailyData"`
	Totals    models.TokenCostTotals `json:"totals"`
	Models    []ModelRow             `json:"modelData"`
	Members   []MemberRow            `json:"memberData"`
	Teams     []TeamRow              `json:"teamData"`
	TeamNames []string               `json:"teams"`
	TeamStats models.TeamStats       `json:"teamStats"`
}

// Aggregate runs the date, model and owner merges over a set of
// contributions. Model rows are folded from the unmerged per-owner days,
// so a model used by two owners on one day counts two requests.
func Aggregate(contribs []models.Contribution) View {
	records := make([]models.UsageRecord, 0, len(contribs))
	var rawDays []models.DailyEntry
	for _, c := range contribs {
		records = append(records, c.Record)
		rawDays = append(rawDays, c.Record.Daily...)
	}
	merged := MergeDaily(records...)
	members := MergeMembers(contribs)

	return View{
		Daily:     merged.Daily,
		Totals:    merged.Totals,
		Models:    MergeModels(rawDays),
		Members:   members.Members,
		Teams:     RollupTeams(members.Members),
		TeamNames: members.Teams,
		TeamStats: BuildTeamStats(members.Members),
	}
}

// AggregateReports is Aggregate over every contribution of the reports.
func AggregateReports(reports []models.Report) View {
	return Aggregate(Contributions(reports))
}
