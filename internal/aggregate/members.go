package aggregate

import (
	"sort"
	"strings"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

// MemberRow is one (team, owner) bucket.
type MemberRow struct {
	Key                 string  `json:"key"`
	Name                string  `json:"name"`
	TeamName            string  `json:"teamName"`
	Cost                float64 `json:"cost"`
	TotalTokens         int64   `json:"totalTokens"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
}

// MemberSummary is the owner/team merge result.
type MemberSummary struct {
	Members      []MemberRow `json:"members"`
	Teams        []string    `json:"teams"`
	TotalMembers int         `json:"totalMembers"`
}

// TeamRow is the team-only rollup of member rows.
type TeamRow struct {
	TeamName            string  `json:"teamName"`
	Members             int     `json:"members"`
	Cost                float64 `json:"cost"`
	TotalTokens         int64   `json:"totalTokens"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	Percentage          string  `json:"percentage"`
}

// MemberKey builds the "team:owner" composite used to bucket contributions.
func MemberKey(team, owner string) string {
	return normalizeName(team) + ":" + normalizeName(owner)
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.UnknownName
	}
	return name
}

// MergeMembers sums every contribution into its (team, owner) bucket. Sums
// are recomputed from each record's daily entries. Rows are ordered by cost
// descending with first-seen order on ties; teams are sorted by name.
func MergeMembers(contribs []models.Contribution) MemberSummary {
	index := make(map[string]int)
	rows := []MemberRow{}
	teamSet := make(map[string]struct{})

	for _, c := range contribs {
		owner := normalizeName(c.Owner)
		team := normalizeName(c.Team)
		key := team + ":" + owner
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, MemberRow{Key: key, Name: owner, TeamName: team})
		}
		teamSet[team] = struct{}{}

		r := &rows[i]
		for _, day := range c.Record.Daily {
			r.Cost += day.TotalCost
			r.TotalTokens += day.ComponentTokens()
			r.InputTokens += day.InputTokens
			r.OutputTokens += day.OutputTokens
			r.CacheCreationTokens += day.CacheCreationTokens
			r.CacheReadTokens += day.CacheReadTokens
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Cost > rows[j].Cost
	})

	teams := make([]string, 0, len(teamSet))
	for t := range teamSet {
		teams = append(teams, t)
	}
	sort.Strings(teams)

	return MemberSummary{Members: rows, Teams: teams, TotalMembers: len(rows)}
}

// RollupTeams groups member rows by team name. It is a pure composition
// over MergeMembers output so both views always agree.
func RollupTeams(members []MemberRow) []TeamRow {
	index := make(map[string]int)
	rows := []TeamRow{}
	var grandTotal float64
	for _, m := range members {
		i, ok := index[m.TeamName]
		if !ok {
			i = len(rows)
			index[m.TeamName] = i
			rows = append(rows, TeamRow{TeamName: m.TeamName})
		}
		r := &rows[i]
		r.Members++
		r.Cost += m.Cost
		r.TotalTokens += m.TotalTokens
		r.InputTokens += m.InputTokens
		r.OutputTokens += m.OutputTokens
		r.CacheCreationTokens += m.CacheCreationTokens
		r.CacheReadTokens += m.CacheReadTokens
		grandTotal += m.Cost
	}
	for i := range rows {
		rows[i].Percentage = FormatPercent(rows[i].Cost, grandTotal)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Cost > rows[j].Cost
	})
	return rows
}

// BuildTeamStats converts member rows into the TeamStats snapshot.
func BuildTeamStats(members []MemberRow) models.TeamStats {
	stats := models.TeamStats{
		TotalMembers: len(members),
		Members:      make([]models.MemberStat, 0, len(members)),
	}
	for _, m := range members {
		stats.TotalCost += m.Cost
		stats.TotalTokens += m.TotalTokens
	}
	for _, m := range members {
		stats.Members = append(stats.Members, models.MemberStat{
			Name:       m.Name,
			Cost:       m.Cost,
			Tokens:     m.TotalTokens,
			Percentage: Percent(m.Cost, stats.TotalCost),
		})
	}
	if stats.TotalMembers > 0 {
		stats.AvgCostPerMember = stats.TotalCost / float64(stats.TotalMembers)
		stats.AvgTokensPerMember = float64(stats.TotalTokens) / float64(stats.TotalMembers)
	}
	return stats
}
