package models

import (
	"strings"
	"time"
)

// UnknownName replaces an empty owner or team when grouping.
const UnknownName = "Unknown"

// Report is one persisted reporting run.
type Report struct {
	ID           string    `json:"id"`
	ReporterName string    `json:"reporterName,omitempty"`
	TeamName     string    `json:"teamName,omitempty"`
	Period       string    `json:"period"`
	RawData      RawData   `json:"rawData"`
	Summary      TeamStats `json:"summary"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RawData keeps the merged record and every contributing member record
// verbatim so reports can be re-aggregated later.
type RawData struct {
	MergedData  UsageRecord  `json:"mergedData"`
	TeamData    []MemberData `json:"teamData"`
	CustomSince string       `json:"customSince,omitempty"`
	CustomUntil string       `json:"customUntil,omitempty"`
}

type MemberData struct {
	Name     string      `json:"name"`
	FileName string      `json:"fileName,omitempty"`
	Data     UsageRecord `json:"data"`
}

// ReportFields are the derived parts of a report produced at save time.
type ReportFields struct {
	Period  string    `json:"period"`
	RawData RawData   `json:"rawData"`
	Summary TeamStats `json:"summary"`
}

type TeamStats struct {
	TotalMembers       int          `json:"totalMembers"`
	TotalCost          float64      `json:"totalCost"`
	TotalTokens        int64        `json:"totalTokens"`
	AvgCostPerMember   float64      `json:"avgCostPerMember"`
	AvgTokensPerMember float64      `json:"avgTokensPerMember"`
	Members            []MemberStat `json:"members"`
}

type MemberStat struct {
	Name       string  `json:"name"`
	Cost       float64 `json:"cost"`
	Tokens     int64   `json:"tokens"`
	Percentage float64 `json:"percentage"`
}

// ReportListItem is the lightweight listing shape; it never carries raw data.
type ReportListItem struct {
	ID           string    `json:"id"`
	ReporterName string    `json:"reporterName,omitempty"`
	TeamName     string    `json:"teamName,omitempty"`
	Period       string    `json:"period"`
	Summary      TeamStats `json:"summary"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FormatPeriod renders the "<start> ~ <end>" display string.
func FormatPeriod(start, end string) string {
	return start + " ~ " + end
}

// PeriodStart returns the start date of a period string normalized to
// YYYYMMDD. Both "2026-02-01 ~ ..." and "20260201 ~ ..." are accepted.
func PeriodStart(period string) string {
	start, _, _ := strings.Cut(period, "~")
	return NormalizeDate(start)
}

// NormalizeDate strips separators from a date, yielding YYYYMMDD.
func NormalizeDate(date string) string {
	return strings.ReplaceAll(strings.TrimSpace(date), "-", "")
}

// Contributions yields the (owner, team, record) tuples a report adds to an
// aggregation: one per member record, or the merged record under the
// reporter's name when no member records were kept.
func (r Report) Contributions() []Contribution {
	if len(r.RawData.TeamData) == 0 {
		return []Contribution{{Owner: r.ReporterName, Team: r.TeamName, Record: r.RawData.MergedData}}
	}
	out := make([]Contribution, 0, len(r.RawData.TeamData))
	for _, m := range r.RawData.TeamData {
		owner := m.Name
		if strings.TrimSpace(owner) == "" {
			owner = r.ReporterName
		}
		out = append(out, Contribution{Owner: owner, Team: r.TeamName, Record: m.Data})
	}
	return out
}

// Contribution is one owner's record inside an aggregation.
type Contribution struct {
	Owner  string
	Team   string
	Record UsageRecord
}
