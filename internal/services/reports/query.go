package reports

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"

	"github.com/ncecere/usage_reports/backend/internal/aggregate"
	"github.com/ncecere/usage_reports/backend/internal/db"
	"github.com/ncecere/usage_reports/backend/internal/export"
	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/timeutil"
)

type ListResult struct {
	Reports []models.ReportListItem `json:"reports"`
	Total   int64                   `json:"total"`
	Page    int                     `json:"page"`
	Limit   int                     `json:"limit"`
}

// List returns one page of reports, newest first, without raw data.
func (s *Service) List(ctx context.Context, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if limit > 0 && page-1 > math.MaxInt32/limit {
		return ListResult{}, &models.ValidationError{Path: "page", Reason: "out of range"}
	}

	total, err := s.queries.CountReports(ctx)
	if err != nil {
		return ListResult{}, fmt.Errorf("count reports: %w", err)
	}
	rows, err := s.queries.ListReports(ctx, db.ListReportsParams{
		Limit:  int32(limit),
		Offset: int32((page - 1) * limit),
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list reports: %w", err)
	}

	items := make([]models.ReportListItem, 0, len(rows))
	for _, row := range rows {
		item, err := toListItem(row)
		if err != nil {
			return ListResult{}, err
		}
		items = append(items, item)
	}
	return ListResult{Reports: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Report, error) {
	pgID, err := parseID(id)
	if err != nil {
		return models.Report{}, err
	}
	row, err := s.queries.GetReport(ctx, pgID)
	if err != nil {
		return models.Report{}, notFound(err)
	}
	return toReport(row)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	pgID, err := parseID(id)
	if err != nil {
		return err
	}
	n, err := s.queries.DeleteReport(ctx, pgID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	s.log(ctx).Info("report deleted", "report_id", uuidString(pgID))
	return nil
}

// Stats aggregates the selected reports. Unknown ids are dropped.
func (s *Service) Stats(ctx context.Context, ids []string) (aggregate.View, error) {
	reports, err := s.loadReports(ctx, ids)
	if err != nil {
		return aggregate.View{}, err
	}
	start := time.Now()
	view := aggregate.AggregateReports(reports)
	s.metrics.RecordAggregation("stats", time.Since(start))
	return view, nil
}

// loadReports fetches reports by id in request order. Duplicate, malformed
// and missing ids are skipped.
func (s *Service) loadReports(ctx context.Context, ids []string) ([]models.Report, error) {
	if len(ids) == 0 {
		return nil, &models.ValidationError{Path: "reportIds", Reason: "at least one report id required"}
	}
	parsed := lo.Uniq(lo.FilterMap(ids, func(raw string, _ int) (uuid.UUID, bool) {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		return id, err == nil
	}))
	if len(parsed) == 0 {
		return nil, nil
	}

	rows, err := s.queries.GetReportsByIDs(ctx, lo.Map(parsed, func(id uuid.UUID, _ int) pgtype.UUID {
		return pgtype.UUID{Bytes: id, Valid: true}
	}))
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	found, err := toReports(rows)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(found, func(r models.Report) string { return r.ID })

	out := make([]models.Report, 0, len(found))
	for _, id := range parsed {
		if r, ok := byID[id.String()]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type DashboardQuery struct {
	Year   string
	Month  string
	Team   string
	Member string
}

type DashboardSummary struct {
	Year               int     `json:"year"`
	Month              int     `json:"month"`
	Label              string  `json:"label"`
	TotalReports       int     `json:"totalReports"`
	TotalMembers       int     `json:"totalMembers"`
	TotalCost          float64 `json:"totalCost"`
	TotalTokens        int64   `json:"totalTokens"`
	AvgCostPerMember   float64 `json:"avgCostPerMember"`
	AvgTokensPerMember float64 `json:"avgTokensPerMember"`
}

type Dashboard struct {
	Teams    []string              `json:"teams"`
	Summary  DashboardSummary      `json:"summary"`
	Daily    []models.DailyEntry   `json:"dailyData"`
	Models   []aggregate.ModelRow  `json:"modelData"`
	Members  []aggregate.MemberRow `json:"memberData"`
	TeamRows []aggregate.TeamRow   `json:"teamData"`
}

// Dashboard aggregates the reports whose period starts in the requested
// month (the current month in the configured zone by default).
func (s *Service) Dashboard(ctx context.Context, q DashboardQuery) (Dashboard, error) {
	month, err := timeutil.ParseMonth(q.Year, q.Month, s.now(), s.location())
	if err != nil {
		return Dashboard{}, &models.ValidationError{Path: "month", Reason: err.Error()}
	}

	rows, err := s.queries.ListReportsByPeriodPrefix(ctx, month.Prefix())
	if err != nil {
		return Dashboard{}, fmt.Errorf("list reports for %s: %w", month.Label(), err)
	}
	all, err := toReports(rows)
	if err != nil {
		return Dashboard{}, err
	}
	teams, err := s.queries.ListTeamNames(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list teams: %w", err)
	}

	start := time.Now()
	selected := aggregate.FilterReports(all, aggregate.MonthFilter{
		Year:   month.Year(),
		Month:  month.Number(),
		Team:   q.Team,
		Member: q.Member,
	})
	view := aggregate.AggregateReports(selected)
	s.metrics.RecordAggregation("dashboard", time.Since(start))

	return Dashboard{
		Teams: nonNil(teams),
		Summary: DashboardSummary{
			Year:               month.Year(),
			Month:              month.Number(),
			Label:              month.Label(),
			TotalReports:       len(selected),
			TotalMembers:       view.TeamStats.TotalMembers,
			TotalCost:          view.TeamStats.TotalCost,
			TotalTokens:        view.TeamStats.TotalTokens,
			AvgCostPerMember:   view.TeamStats.AvgCostPerMember,
			AvgTokensPerMember: view.TeamStats.AvgTokensPerMember,
		},
		Daily:    nonNil(view.Daily),
		Models:   nonNil(view.Models),
		Members:  nonNil(view.Members),
		TeamRows: nonNil(view.Teams),
	}, nil
}

// Export is an encoded workbook ready for download or upload.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export shapes and encodes the selected reports as an xlsx workbook.
func (s *Service) Export(ctx context.Context, ids []string, rawMode string) (Export, error) {
	mode, err := export.ParseMode(rawMode)
	if err != nil {
		return Export{}, &models.ValidationError{Path: "mode", Reason: err.Error()}
	}
	reports, err := s.loadReports(ctx, ids)
	if err != nil {
		return Export{}, err
	}
	if len(reports) == 0 {
		return Export{}, fmt.Errorf("no reports to export: %w", models.ErrNotFound)
	}

	start := time.Now()
	data, err := export.Encode(export.Shape(reports, mode))
	s.metrics.RecordAggregation("export", time.Since(start))
	if err != nil {
		return Export{}, fmt.Errorf("encode workbook: %w", err)
	}
	return Export{
		Filename:    export.Filename(s.now().In(s.location())),
		ContentType: export.ContentType,
		Data:        data,
	}, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
