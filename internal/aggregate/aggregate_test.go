package aggregate

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func day(date string, breakdowns ...models.ModelUsage) models.DailyEntry {
	d := models.DailyEntry{Date: date, ModelsUsed: []string{}, ModelBreakdowns: []models.ModelUsage{}}
	for _, b := range breakdowns {
		d.InputTokens += b.InputTokens
		d.OutputTokens += b.OutputTokens
		d.CacheCreationTokens += b.CacheCreationTokens
		d.CacheReadTokens += b.CacheReadTokens
		d.TotalCost += b.Cost
		d.ModelsUsed = append(d.ModelsUsed, b.ModelName)
		d.ModelBreakdowns = append(d.ModelBreakdowns, b)
	}
	d.TotalTokens = d.ComponentTokens()
	return d
}

func usage(model string, input, output int64, cost float64) models.ModelUsage {
	return models.ModelUsage{ModelName: model, InputTokens: input, OutputTokens: output, Cost: cost}
}

func record(days ...models.DailyEntry) models.UsageRecord {
	return models.UsageRecord{Daily: days, Totals: SumDaily(days)}
}

func sampleRecords() []models.UsageRecord {
	return []models.UsageRecord{
		record(day("2026-02-02", usage("X", 10, 5, 0.5)), day("2026-02-01", usage("X", 100, 50, 1), usage("Y", 7, 3, 0.25))),
		record(day("2026-02-01", usage("X", 200, 100, 2)), day("2026-02-03", usage("Z", 1, 1, 0.01))),
		record(day("2026-02-03", usage("Y", 30, 20, 0.3), usage("Z", 2, 2, 0.02))),
		record(),
	}
}

func TestMergeDailyTwoOwnersSameDay(t *testing.T) {
	alice := record(day("2026-02-01", usage("X", 100, 50, 1.00)))
	bob := record(day("2026-02-01", usage("X", 200, 100, 2.00)))

	merged := MergeDaily(alice, bob)
	require.Len(t, merged.Daily, 1)

	got := merged.Daily[0]
	require.Equal(t, int64(300), got.InputTokens)
	require.Equal(t, int64(150), got.OutputTokens)
	require.InDelta(t, 3.00, got.TotalCost, 1e-9)
	require.Equal(t, []string{"X"}, got.ModelsUsed)
	require.Len(t, got.ModelBreakdowns, 1)
	require.Equal(t, "X", got.ModelBreakdowns[0].ModelName)
	require.Equal(t, int64(300), got.ModelBreakdowns[0].InputTokens)
	require.Equal(t, int64(150), got.ModelBreakdowns[0].OutputTokens)
	require.InDelta(t, 3.00, got.ModelBreakdowns[0].Cost, 1e-9)
}

func TestMergeDailyEmpty(t *testing.T) {
	merged := MergeDaily()
	require.Empty(t, merged.Daily)
	require.Equal(t, models.TokenCostTotals{}, merged.Totals)
}

func TestMergeDailySortsAndRecomputesTotals(t *testing.T) {
	rec := record(day("2026-02-03", usage("X", 1, 1, 1)), day("2026-02-01", usage("X", 1, 1, 1)))
	rec.Totals = models.TokenCostTotals{TotalCost: 999}

	merged := MergeDaily(rec)
	require.Equal(t, "2026-02-01", merged.Daily[0].Date)
	require.Equal(t, "2026-02-03", merged.Daily[1].Date)
	require.InDelta(t, 2.0, merged.Totals.TotalCost, 1e-9)
	require.Equal(t, int64(4), merged.Totals.TotalTokens)
}

func TestMergeDailyDoesNotMutateInputs(t *testing.T) {
	a := record(day("2026-02-01", usage("X", 1, 1, 1)))
	b := record(day("2026-02-01", usage("X", 2, 2, 2)))
	MergeDaily(a, b)
	require.Equal(t, int64(1), a.Daily[0].ModelBreakdowns[0].InputTokens)
	require.Equal(t, int64(2), b.Daily[0].ModelBreakdowns[0].InputTokens)
}

func TestMergeDailyAssociative(t *testing.T) {
	recs := sampleRecords()
	all := MergeDaily(recs...)
	left := MergeDaily(recs[0], recs[1])
	right := MergeDaily(recs[2], recs[3])
	grouped := MergeDaily(left, right)

	if diff := cmp.Diff(normalize(all), normalize(grouped), approx); diff != "" {
		t.Fatalf("grouped merge differs (-all +grouped):\n%s", diff)
	}
}

func TestMergeDailyOrderIndependent(t *testing.T) {
	recs := sampleRecords()
	want := MergeDaily(recs...)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.UsageRecord(nil), recs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := MergeDaily(shuffled...)
		if diff := cmp.Diff(normalize(want), normalize(got), approx); diff != "" {
			t.Fatalf("shuffle %d differs:\n%s", i, diff)
		}
	}
}

func TestMergeDailyIdempotentReMerge(t *testing.T) {
	merged := MergeDaily(sampleRecords()...)
	again := MergeDaily(merged)
	if diff := cmp.Diff(merged, again, approx); diff != "" {
		t.Fatalf("re-merge changed output:\n%s", diff)
	}
}

func TestMergeDailyKeepsEveryDateModelPair(t *testing.T) {
	recs := sampleRecords()
	in := map[string]struct{}{}
	for _, r := range recs {
		for _, d := range r.Daily {
			for _, b := range d.ModelBreakdowns {
				in[d.Date+"|"+b.ModelName] = struct{}{}
			}
		}
	}
	out := map[string]struct{}{}
	for _, d := range MergeDaily(recs...).Daily {
		for _, b := range d.ModelBreakdowns {
			out[d.Date+"|"+b.ModelName] = struct{}{}
		}
	}
	require.Equal(t, in, out)
}

func TestMergeDailyPreservesSums(t *testing.T) {
	recs := sampleRecords()
	var cost float64
	var input int64
	for _, r := range recs {
		for _, d := range r.Daily {
			cost += d.TotalCost
			input += d.InputTokens
		}
	}
	merged := MergeDaily(recs...)
	require.InDelta(t, cost, merged.Totals.TotalCost, 1e-9)
	require.Equal(t, input, merged.Totals.InputTokens)
}

func TestMergeModelsRequestCount(t *testing.T) {
	daily := []models.DailyEntry{
		day("2026-02-01", usage("X", 10, 10, 1)),
		day("2026-02-02", usage("X", 10, 10, 1)),
		day("2026-02-03", usage("Y", 5, 5, 2)),
	}
	rows := MergeModels(daily)
	require.Len(t, rows, 2)

	byName := map[string]ModelRow{}
	for _, r := range rows {
		byName[r.ModelName] = r
	}
	require.Equal(t, 2, byName["X"].RequestCount)
	require.Equal(t, 1, byName["Y"].RequestCount)
	require.Equal(t, int64(40), byName["X"].TotalTokens)
	require.Equal(t, "50.0", byName["X"].Percentage)
	require.Equal(t, "50.0", byName["Y"].Percentage)
}

func TestMergeModelsStableTieBreak(t *testing.T) {
	daily := []models.DailyEntry{
		day("2026-02-01", usage("B", 1, 1, 1), usage("A", 1, 1, 1)),
		day("2026-02-02", usage("C", 1, 1, 3)),
	}
	rows := MergeModels(daily)
	names := []string{rows[0].ModelName, rows[1].ModelName, rows[2].ModelName}
	require.Equal(t, []string{"C", "B", "A"}, names)
}

func TestMergeModelsZeroCost(t *testing.T) {
	rows := MergeModels([]models.DailyEntry{day("2026-02-01", usage("X", 1, 1, 0))})
	require.Len(t, rows, 1)
	require.Equal(t, "0", rows[0].Percentage)
}

func TestMergeMembersUnknownTeam(t *testing.T) {
	contribs := []models.Contribution{
		{Owner: "alice", Record: record(day("2026-02-01", usage("X", 1, 1, 1)))},
		{Owner: "bob", Record: record(day("2026-02-01", usage("X", 1, 1, 2)))},
		{Owner: "", Team: "", Record: record(day("2026-02-02", usage("X", 1, 1, 0.5)))},
	}
	summary := MergeMembers(contribs)
	require.Equal(t, []string{"Unknown"}, summary.Teams)
	require.Equal(t, 3, summary.TotalMembers)
	require.Equal(t, "Unknown:bob", summary.Members[0].Key)
	require.Equal(t, "Unknown:Unknown", summary.Members[2].Key)

	teams := RollupTeams(summary.Members)
	require.Len(t, teams, 1)
	require.Equal(t, "Unknown", teams[0].TeamName)
	require.Equal(t, 3, teams[0].Members)
	require.InDelta(t, 3.5, teams[0].Cost, 1e-9)
	require.Equal(t, "100.0", teams[0].Percentage)
}

func TestMergeMembersSumsRepeatedOwner(t *testing.T) {
	contribs := []models.Contribution{
		{Owner: "alice", Team: "core", Record: record(day("2026-02-01", usage("X", 10, 0, 1)))},
		{Owner: "alice", Team: "core", Record: record(day("2026-02-02", usage("X", 5, 0, 2)))},
		{Owner: "alice", Team: "infra", Record: record(day("2026-02-02", usage("X", 1, 0, 0.1)))},
	}
	summary := MergeMembers(contribs)
	require.Equal(t, 2, summary.TotalMembers)
	require.Equal(t, []string{"core", "infra"}, summary.Teams)
	require.Equal(t, "core:alice", summary.Members[0].Key)
	require.InDelta(t, 3.0, summary.Members[0].Cost, 1e-9)
	require.Equal(t, int64(15), summary.Members[0].InputTokens)
}

func TestRollupTeamsMatchesMemberTotals(t *testing.T) {
	contribs := []models.Contribution{
		{Owner: "a", Team: "t1", Record: sampleRecords()[0]},
		{Owner: "b", Team: "t2", Record: sampleRecords()[1]},
		{Owner: "c", Team: "t1", Record: sampleRecords()[2]},
	}
	summary := MergeMembers(contribs)
	var memberCost, teamCost float64
	for _, m := range summary.Members {
		memberCost += m.Cost
	}
	for _, team := range RollupTeams(summary.Members) {
		teamCost += team.Cost
	}
	require.InDelta(t, memberCost, teamCost, 1e-9)
}

func TestBuildTeamStatsPercentageClosure(t *testing.T) {
	contribs := []models.Contribution{}
	costs := []float64{0.33, 1.17, 2.5, 0.01, 9.99, 3.333}
	for i, c := range costs {
		contribs = append(contribs, models.Contribution{
			Owner:  string(rune('a' + i)),
			Record: record(day("2026-02-01", usage("X", 1, 1, c))),
		})
	}
	stats := BuildTeamStats(MergeMembers(contribs).Members)
	var sum float64
	for _, m := range stats.Members {
		sum += m.Percentage
	}
	require.InDelta(t, 100, sum, 0.2)
	require.InDelta(t, stats.TotalCost/float64(len(costs)), stats.AvgCostPerMember, 1e-9)
}

func TestBuildTeamStatsZeroCost(t *testing.T) {
	contribs := []models.Contribution{
		{Owner: "a", Record: record(day("2026-02-01", usage("X", 1, 1, 0)))},
		{Owner: "b", Record: record()},
	}
	stats := BuildTeamStats(MergeMembers(contribs).Members)
	for _, m := range stats.Members {
		if m.Percentage != 0 {
			t.Fatalf("expected zero percentage, got %v", m.Percentage)
		}
	}
	empty := BuildTeamStats(nil)
	require.Zero(t, empty.AvgCostPerMember)
	require.Zero(t, empty.TotalMembers)
}

func TestAggregateOrderIndependent(t *testing.T) {
	contribs := []models.Contribution{
		{Owner: "a", Team: "t1", Record: sampleRecords()[0]},
		{Owner: "b", Team: "t2", Record: sampleRecords()[1]},
		{Owner: "c", Team: "t1", Record: sampleRecords()[2]},
	}
	want := Aggregate(contribs)
	reversed := []models.Contribution{contribs[2], contribs[1], contribs[0]}
	got := Aggregate(reversed)

	if diff := cmp.Diff(normalize(models.UsageRecord{Daily: want.Daily, Totals: want.Totals}),
		normalize(models.UsageRecord{Daily: got.Daily, Totals: got.Totals}), approx); diff != "" {
		t.Fatalf("daily differs:\n%s", diff)
	}
	sortModels := cmpopts.SortSlices(func(a, b ModelRow) bool { return a.ModelName < b.ModelName })
	if diff := cmp.Diff(want.Models, got.Models, approx, sortModels); diff != "" {
		t.Fatalf("models differ:\n%s", diff)
	}
	sortMembers := cmpopts.SortSlices(func(a, b MemberRow) bool { return a.Key < b.Key })
	if diff := cmp.Diff(want.Members, got.Members, approx, sortMembers); diff != "" {
		t.Fatalf("members differ:\n%s", diff)
	}
}

func TestAggregateCountsPerOwnerRequests(t *testing.T) {
	alice := record(day("2026-02-01", usage("X", 100, 50, 1.00)))
	bob := record(day("2026-02-01", usage("X", 200, 100, 2.00)))
	view := Aggregate([]models.Contribution{{Owner: "alice", Record: alice}, {Owner: "bob", Record: bob}})
	require.Len(t, view.Daily, 1)
	require.Len(t, view.Models, 1)
	require.Equal(t, 2, view.Models[0].RequestCount)
	require.Equal(t, "100.0", view.Models[0].Percentage)
	require.Equal(t, 2, view.TeamStats.TotalMembers)
	require.Equal(t, "bob", view.TeamStats.Members[0].Name)
}

// normalize sorts set-like fields so comparisons ignore encounter order.
func normalize(rec models.UsageRecord) models.UsageRecord {
	out := models.UsageRecord{Totals: rec.Totals}
	for _, d := range rec.Daily {
		d.ModelsUsed = append([]string(nil), d.ModelsUsed...)
		sort.Strings(d.ModelsUsed)
		d.ModelBreakdowns = append([]models.ModelUsage(nil), d.ModelBreakdowns...)
		sort.Slice(d.ModelBreakdowns, func(i, j int) bool {
			return d.ModelBreakdowns[i].ModelName < d.ModelBreakdowns[j].ModelName
		})
		out.Daily = append(out.Daily, d)
	}
	return out
}
