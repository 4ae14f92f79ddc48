package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

func TestMergeSingleTrustsSuppliedTotals(t *testing.T) {
	rec := record(day("2026-02-03", usage("X", 10, 10, 1)), day("2026-02-01", usage("Y", 5, 5, 0.5)))
	rec.Totals.TotalCost = 1.5
	rec.Totals.TotalTokens = 31

	fields := MergeSingle("alice", rec, SaveOptions{FileName: "alice.json"})
	require.Equal(t, "2026-02-01 ~ 2026-02-03", fields.Period)
	require.Equal(t, "2026-02-01", fields.RawData.MergedData.Daily[0].Date)
	require.Equal(t, int64(31), fields.RawData.MergedData.Totals.TotalTokens)

	require.Len(t, fields.RawData.TeamData, 1)
	require.Equal(t, "alice", fields.RawData.TeamData[0].Name)
	require.Equal(t, "alice.json", fields.RawData.TeamData[0].FileName)

	require.Equal(t, 1, fields.Summary.TotalMembers)
	require.InDelta(t, 1.5, fields.Summary.TotalCost, 1e-9)
	require.Equal(t, int64(31), fields.Summary.TotalTokens)
	require.Equal(t, float64(100), fields.Summary.Members[0].Percentage)
}

func TestMergeSinglePeriodOverride(t *testing.T) {
	rec := record(day("2026-02-03", usage("X", 1, 1, 1)))
	fields := MergeSingle("", rec, SaveOptions{Since: "20260201", Until: "2026-02-28"})
	require.Equal(t, "2026-02-01 ~ 2026-02-28", fields.Period)
	require.Equal(t, "2026-02-01", fields.RawData.CustomSince)
	require.Equal(t, "Unknown", fields.Summary.Members[0].Name)
}

func TestMergeSingleEmptyRecord(t *testing.T) {
	fields := MergeSingle("alice", record(), SaveOptions{})
	require.Equal(t, "", fields.Period)
	require.Empty(t, fields.RawData.MergedData.Daily)
	require.Zero(t, fields.Summary.Members[0].Percentage)
}

func TestMergeTeamRecomputesSums(t *testing.T) {
	alice := record(day("2026-02-01", usage("X", 100, 50, 1.00)))
	bob := record(day("2026-02-01", usage("X", 200, 100, 2.00)), day("2026-02-05", usage("Y", 1, 1, 1)))
	bob.Totals.TotalCost = 42

	fields := MergeTeam("core", []models.MemberData{{Name: "alice", Data: alice}, {Name: "bob", Data: bob}}, SaveOptions{})
	require.Equal(t, "2026-02-01 ~ 2026-02-05", fields.Period)
	require.InDelta(t, 4.0, fields.RawData.MergedData.Totals.TotalCost, 1e-9)
	require.InDelta(t, 4.0, fields.Summary.TotalCost, 1e-9)
	require.Equal(t, 2, fields.Summary.TotalMembers)
	require.Equal(t, "bob", fields.Summary.Members[0].Name)
	require.InDelta(t, 75, fields.Summary.Members[0].Percentage, 1e-9)
	require.InDelta(t, 2.0, fields.Summary.AvgCostPerMember, 1e-9)
}
