package aggregate

import (
	"sort"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

// ModelRow is one model's usage across a whole timeline.
type ModelRow struct {
	ModelName           string  `json:"model"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	Cost                float64 `json:"cost"`
	RequestCount        int     `json:"requestCount"`
	Percentage          string  `json:"percentage"`
}

// MergeModels produces one row per model name. RequestCount counts the
// (day, model) occurrences that contributed, and percentages are relative
// to the summed daily cost. Rows are ordered by cost descending; equal
// costs keep first-seen order.
func MergeModels(daily []models.DailyEntry) []ModelRow {
	index := make(map[string]int)
	rows := []ModelRow{}
	var grandTotal float64

	for _, day := range daily {
		grandTotal += day.TotalCost
		for _, mu := range day.ModelBreakdowns {
			i, ok := index[mu.ModelName]
			if !ok {
				i = len(rows)
				index[mu.ModelName] = i
				rows = append(rows, ModelRow{ModelName: mu.ModelName})
			}
			r := &rows[i]
			r.InputTokens += mu.InputTokens
			r.OutputTokens += mu.OutputTokens
			r.CacheCreationTokens += mu.CacheCreationTokens
			r.CacheReadTokens += mu.CacheReadTokens
			r.TotalTokens += mu.TotalTokens()
			r.Cost += mu.Cost
			r.RequestCount++
		}
	}

	for i := range rows {
		rows[i].Percentage = FormatPercent(rows[i].Cost, grandTotal)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Cost > rows[j].Cost
	})
	return rows
}
