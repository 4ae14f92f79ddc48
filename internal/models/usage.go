package models

// UsageRecord is one parsed usage export: daily entries plus the totals the
// exporting tool computed over them.
type UsageRecord struct {
	Daily  []DailyEntry    `json:"daily"`
	Totals TokenCostTotals `json:"totals"`
}

// DailyEntry is one calendar day of usage.
type DailyEntry struct {
	Date                string       `json:"date"`
	InputTokens         int64        `json:"inputTokens"`
	OutputTokens        int64        `json:"outputTokens"`
	CacheCreationTokens int64        `json:"cacheCreationTokens"`
	CacheReadTokens     int64        `json:"cacheReadTokens"`
	TotalTokens         int64        `json:"totalTokens"`
	TotalCost           float64      `json:"totalCost"`
	ModelsUsed          []string     `json:"modelsUsed"`
	ModelBreakdowns     []ModelUsage `json:"modelBreakdowns"`
}

// ComponentTokens sums the four token fields, ignoring the supplied total.
func (d DailyEntry) ComponentTokens() int64 {
	return d.InputTokens + d.OutputTokens + d.CacheCreationTokens + d.CacheReadTokens
}

// ModelUsage is one model's slice of a day.
type ModelUsage struct {
	ModelName           string  `json:"modelName"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	Cost                float64 `json:"cost"`
}

// TotalTokens is always derived from the four token fields.
func (m ModelUsage) TotalTokens() int64 {
	return m.InputTokens + m.OutputTokens + m.CacheCreationTokens + m.CacheReadTokens
}

type TokenCostTotals struct {
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	TotalCost           float64 `json:"totalCost"`
}

// Add accumulates a day into the totals, re-deriving the token total.
func (t *TokenCostTotals) Add(d DailyEntry) {
	t.InputTokens += d.InputTokens
	t.OutputTokens += d.OutputTokens
	t.CacheCreationTokens += d.CacheCreationTokens
	t.CacheReadTokens += d.CacheReadTokens
	t.TotalTokens += d.ComponentTokens()
	t.TotalCost += d.TotalCost
}

// FirstDate and LastDate return the lexicographic bounds of the daily list.
func (r UsageRecord) FirstDate() string {
	first := ""
	for _, d := range r.Daily {
		if first == "" || d.Date < first {
			first = d.Date
		}
	}
	return first
}

func (r UsageRecord) LastDate() string {
	last := ""
	for _, d := range r.Daily {
		if d.Date > last {
			last = d.Date
		}
	}
	return last
}
