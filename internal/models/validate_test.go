package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validExport = `{
  "daily": [
    {
      "date": "2026-02-01",
      "inputTokens": 100,
      "outputTokens": 50,
      "cacheCreationTokens": 10,
      "cacheReadTokens": 5,
      "totalTokens": 165,
      "totalCost": 1.25,
      "modelsUsed": ["claude-sonnet-4", "claude-sonnet-4", "claude-opus-4"],
      "modelBreakdowns": [
        {"modelName": "claude-sonnet-4", "inputTokens": 60, "outputTokens": 30, "cacheCreationTokens": 10, "cacheReadTokens": 5, "cost": 0.75},
        {"modelName": "claude-opus-4", "inputTokens": 40, "outputTokens": 20, "cacheCreationTokens": 0, "cacheReadTokens": 0, "cost": 0.5}
      ]
    }
  ],
  "totals": {
    "inputTokens": 100,
    "outputTokens": 50,
    "cacheCreationTokens": 10,
    "cacheReadTokens": 5,
    "totalTokens": 165,
    "totalCost": 1.25
  }
}`

func TestParseUsageRecordValid(t *testing.T) {
	rec, err := ParseUsageRecord([]byte(validExport))
	require.NoError(t, err)
	require.Len(t, rec.Daily, 1)

	day := rec.Daily[0]
	require.Equal(t, "2026-02-01", day.Date)
	require.Equal(t, int64(165), day.TotalTokens)
	require.InDelta(t, 1.25, day.TotalCost, 1e-9)
	require.Equal(t, []string{"claude-sonnet-4", "claude-opus-4"}, day.ModelsUsed)
	require.Len(t, day.ModelBreakdowns, 2)
	require.Equal(t, int64(105), day.ModelBreakdowns[0].TotalTokens())
	require.Equal(t, int64(165), rec.Totals.TotalTokens)
}

func TestParseUsageRecordEmptyDaily(t *testing.T) {
	rec, err := ParseUsageRecord([]byte(`{"daily": [], "totals": {"inputTokens":0,"outputTokens":0,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":0,"totalCost":0}}`))
	require.NoError(t, err)
	require.NotNil(t, rec.Daily)
	require.Empty(t, rec.Daily)
}

func TestParseUsageRecordFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		path    string
		message string
	}{
		{
			name:    "cost as string",
			mutate:  func(s string) string { return strings.Replace(s, `"totalCost": 1.25,`, `"totalCost": "1.25",`, 1) },
			path:    "daily.0.totalCost",
			message: "daily.0.totalCost: expected number",
		},
		{
			name:   "missing daily",
			mutate: func(s string) string { return strings.Replace(s, `"daily"`, `"days"`, 1) },
			path:   "daily",
		},
		{
			name:   "bad date",
			mutate: func(s string) string { return strings.Replace(s, `"2026-02-01"`, `"02/01/2026"`, 1) },
			path:   "daily.0.date",
		},
		{
			name:   "fractional tokens",
			mutate: func(s string) string { return strings.Replace(s, `"inputTokens": 100,`, `"inputTokens": 100.5,`, 1) },
			path:   "daily.0.inputTokens",
		},
		{
			name:    "tokens beyond integer range",
			mutate:  func(s string) string { return strings.Replace(s, `"inputTokens": 100,`, `"inputTokens": 1e30,`, 1) },
			path:    "daily.0.inputTokens",
			message: "daily.0.inputTokens: expected integer in range",
		},
		{
			name:   "negative tokens beyond integer range",
			mutate: func(s string) string { return strings.Replace(s, `"inputTokens": 100,`, `"inputTokens": -1e19,`, 1) },
			path:   "daily.0.inputTokens",
		},
		{
			name:   "model name not a string",
			mutate: func(s string) string { return strings.Replace(s, `"modelName": "claude-opus-4"`, `"modelName": 4`, 1) },
			path:   "daily.0.modelBreakdowns.1.modelName",
		},
		{
			name:   "models used entry",
			mutate: func(s string) string { return strings.Replace(s, `"claude-opus-4"]`, `null]`, 1) },
			path:   "daily.0.modelsUsed.2",
		},
		{
			name: "missing totals",
			mutate: func(s string) string {
				return s[:strings.Index(s, `,
  "totals"`)] + "\n}"
			},
			path: "totals",
		},
		{
			name:   "totals cost missing",
			mutate: func(s string) string { return strings.Replace(s, `"totalTokens": 165,
    "totalCost": 1.25`, `"totalTokens": 165`, 1) },
			path: "totals.totalCost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUsageRecord([]byte(tt.mutate(validExport)))
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
			require.Equal(t, tt.path, verr.Path)
			if tt.message != "" {
				require.Equal(t, tt.message, err.Error())
			}
		})
	}
}

func TestParseUsageRecordRejectsNonObjects(t *testing.T) {
	for _, input := range []string{`[]`, `"x"`, `{"daily": {}}`, `{"daily": [1]}`, `not json`} {
		if _, err := ParseUsageRecord([]byte(input)); err == nil {
			t.Fatalf("expected %q to be rejected", input)
		}
	}
}

func TestValidationErrorWithPrefix(t *testing.T) {
	err := (&ValidationError{Path: "daily.0.date", Reason: "required"}).WithPrefix("members.1.data")
	require.Equal(t, "members.1.data.daily.0.date: required", err.Error())
}

func TestPeriodStart(t *testing.T) {
	tests := map[string]string{
		"2026-02-28 ~ 2026-03-04": "20260228",
		"20260301 ~ 20260302":     "20260301",
		"":                        "",
	}
	for in, want := range tests {
		if got := PeriodStart(in); got != want {
			t.Fatalf("PeriodStart(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReportContributions(t *testing.T) {
	merged := UsageRecord{Daily: []DailyEntry{{Date: "2026-02-01", TotalCost: 3}}}
	r := Report{ReporterName: "alice", TeamName: "core", RawData: RawData{MergedData: merged}}
	contribs := r.Contributions()
	require.Len(t, contribs, 1)
	require.Equal(t, "alice", contribs[0].Owner)
	require.Equal(t, "core", contribs[0].Team)

	r.RawData.TeamData = []MemberData{{Name: "bob", Data: merged}, {Name: "", Data: merged}}
	contribs = r.Contributions()
	require.Len(t, contribs, 2)
	require.Equal(t, "bob", contribs[0].Owner)
	require.Equal(t, "alice", contribs[1].Owner)
}
