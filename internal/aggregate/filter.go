package aggregate

import (
	"fmt"
	"strings"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

// MonthFilter selects reports whose period starts in Year/Month. Team and
// Member are optional exact matches.
type MonthFilter struct {
	Year   int
	Month  int
	Team   string
	Member string
}

// Prefix is the YYYYMM prefix a normalized period start must carry.
func (f MonthFilter) Prefix() string {
	return fmt.Sprintf("%04d%02d", f.Year, f.Month)
}

// FilterReports keeps the reports that belong to the filter's month. A
// report spanning several months belongs only to the month its period
// starts in.
func FilterReports(reports []models.Report, f MonthFilter) []models.Report {
	prefix := f.Prefix()
	team := strings.TrimSpace(f.Team)
	member := strings.TrimSpace(f.Member)

	out := make([]models.Report, 0, len(reports))
	for _, r := range reports {
		if !strings.HasPrefix(models.PeriodStart(r.Period), prefix) {
			continue
		}
		if team != "" && r.TeamName != team {
			continue
		}
		if member != "" && r.ReporterName != member {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Contributions flattens reports into their member contributions.
func Contributions(reports []models.Report) []models.Contribution {
	var out []models.Contribution
	for _, r := range reports {
		out = append(out, r.Contributions()...)
	}
	return out
}
