// Package aggregate folds usage records into merged daily timelines and
// per-model, per-member and per-team summaries. Every function is pure:
// inputs are never mutated and new accumulators are allocated per call.
package aggregate

import (
	"sort"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

type dayAccumulator struct {
	entry      models.DailyEntry
	seenModels map[string]struct{}
	breakdowns map[string]int
}

// MergeDaily combines the daily entries of every record into one sequence
// sorted by date, with totals recomputed from the merged days. Supplied
// totals are never consulted.
func MergeDaily(records ...models.UsageRecord) models.UsageRecord {
	byDate := make(map[string]*dayAccumulator)
	for _, rec := range records {
		for _, day := range rec.Daily {
			acc, ok := byDate[day.Date]
			if !ok {
				acc = &dayAccumulator{
					entry: models.DailyEntry{
						Date:            day.Date,
						ModelsUsed:      []string{},
						ModelBreakdowns: []models.ModelUsage{},
					},
					seenModels: make(map[string]struct{}),
					breakdowns: make(map[string]int),
				}
				byDate[day.Date] = acc
			}
			acc.add(day)
		}
	}

	merged := models.UsageRecord{Daily: make([]models.DailyEntry, 0, len(byDate))}
	for _, acc := range byDate {
		merged.Daily = append(merged.Daily, acc.entry)
	}
	sort.Slice(merged.Daily, func(i, j int) bool {
		return merged.Daily[i].Date < merged.Daily[j].Date
	})
	merged.Totals = SumDaily(merged.Daily)
	return merged
}

func (a *dayAccumulator) add(day models.DailyEntry) {
	e := &a.entry
	e.InputTokens += day.InputTokens
	e.OutputTokens += day.OutputTokens
	e.CacheCreationTokens += day.CacheCreationTokens
	e.CacheReadTokens += day.CacheReadTokens
	e.TotalTokens += day.ComponentTokens()
	e.TotalCost += day.TotalCost

	for _, name := range day.ModelsUsed {
		if _, ok := a.seenModels[name]; ok {
			continue
		}
		a.seenModels[name] = struct{}{}
		e.ModelsUsed = append(e.ModelsUsed, name)
	}

	for _, mu := range day.ModelBreakdowns {
		idx, ok := a.breakdowns[mu.ModelName]
		if !ok {
			a.breakdowns[mu.ModelName] = len(e.ModelBreakdowns)
			e.ModelBreakdowns = append(e.ModelBreakdowns, mu)
			continue
		}
		m := &e.ModelBreakdowns[idx]
		m.InputTokens += mu.InputTokens
		m.OutputTokens += mu.OutputTokens
		m.CacheCreationTokens += mu.CacheCreationTokens
		m.CacheReadTokens += mu.CacheReadTokens
		m.Cost += mu.Cost
	}
}

// SumDaily is the field-wise sum of a daily sequence.
func SumDaily(daily []models.DailyEntry) models.TokenCostTotals {
	var totals models.TokenCostTotals
	for _, d := range daily {
		totals.Add(d)
	}
	return totals
}
