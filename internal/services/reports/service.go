// Package reports orchestrates saving, listing and aggregating usage
// reports on top of the query layer, the aggregator and the notifiers.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ncecere/usage_reports/backend/internal/config"
	"github.com/ncecere/usage_reports/backend/internal/database"
	"github.com/ncecere/usage_reports/backend/internal/db"
	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/notify"
	"github.com/ncecere/usage_reports/backend/internal/requestctx"
)

const (
	defaultRetentionCap = 500
	defaultPageSize     = 100
	defaultMaxPageSize  = 500
)

// Queries is the subset of db.Queries the service reads and writes.
type Queries interface {
	UpsertReport(context.Context, db.UpsertReportParams) (db.Report, error)
	EvictReportsOverCap(context.Context, db.EvictReportsOverCapParams) (int64, error)
	CountReports(context.Context) (int64, error)
	ListReports(context.Context, db.ListReportsParams) ([]db.ReportSummaryRow, error)
	GetReport(context.Context, pgtype.UUID) (db.Report, error)
	GetReportsByIDs(context.Context, []pgtype.UUID) ([]db.Report, error)
	ListReportsByPeriodPrefix(context.Context, string) ([]db.Report, error)
	DeleteReport(context.Context, pgtype.UUID) (int64, error)
	ListTeamNames(context.Context) ([]string, error)
}

// TxRunner runs fn against queries bound to one transaction.
type TxRunner func(ctx context.Context, fn func(Queries) error) error

// PgxTx binds a TxRunner to a pool through database.InTx.
func PgxTx(pool database.TxBeginner) TxRunner {
	return func(ctx context.Context, fn func(Queries) error) error {
		return database.InTx(ctx, pool, func(tx pgx.Tx) error {
			return fn(db.New(tx))
		})
	}
}

// Recorder receives domain metrics. *observability.Provider satisfies it.
type Recorder interface {
	RecordReportSaved(kind string, cost float64, tokens int64)
	RecordNotification(channel string, ok bool)
	RecordAggregation(operation string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordReportSaved(string, float64, int64) {}
func (nopRecorder) RecordNotification(string, bool)          {}
func (nopRecorder) RecordAggregation(string, time.Duration)  {}

type Service struct {
	queries   Queries
	inTx      TxRunner
	cfg       config.ReportsConfig
	announcer notify.Announcer
	sender    notify.Sender
	metrics   Recorder
	logger    *slog.Logger
	baseURL   string
	now       func() time.Time
	newID     func() uuid.UUID
}

type Option func(*Service)

// WithAnnouncer broadcasts every saved report (webhooks, announce channel).
func WithAnnouncer(a notify.Announcer) Option {
	return func(s *Service) { s.announcer = a }
}

// WithSender enables per-request Slack delivery.
func WithSender(sender notify.Sender) Option {
	return func(s *Service) { s.sender = sender }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublicBaseURL sets the origin used in shared report links.
func WithPublicBaseURL(url string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(strings.TrimSpace(url), "/") }
}

func NewService(queries Queries, inTx TxRunner, cfg config.ReportsConfig, opts ...Option) *Service {
	if cfg.RetentionCap <= 0 {
		cfg.RetentionCap = defaultRetentionCap
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}
	if inTx == nil {
		// Without a transaction runner every call shares the plain queries.
		inTx = func(ctx context.Context, fn func(Queries) error) error { return fn(queries) }
	}
	s := &Service{
		queries: queries,
		inTx:    inTx,
		cfg:     cfg,
		metrics: nopRecorder{},
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) location() *time.Location {
	return s.cfg.Location()
}

func parseID(raw string) (pgtype.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return pgtype.UUID{}, models.ErrNotFound
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func toReport(row db.Report) (models.Report, error) {
	out := models.Report{
		ID:           uuidString(row.ID),
		ReporterName: row.ReporterName.String,
		TeamName:     row.TeamName.String,
		Period:       row.Period,
		CreatedAt:    row.CreatedAt.Time,
	}
	if len(row.RawData) > 0 {
		if err := json.Unmarshal(row.RawData, &out.RawData); err != nil {
			return models.Report{}, fmt.Errorf("decode raw data of report %s: %w", out.ID, err)
		}
	}
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &out.Summary); err != nil {
			return models.Report{}, fmt.Errorf("decode summary of report %s: %w", out.ID, err)
		}
	}
	return out, nil
}

func toReports(rows []db.Report) ([]models.Report, error) {
	out := make([]models.Report, 0, len(rows))
	for _, row := range rows {
		r, err := toReport(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func toListItem(row db.ReportSummaryRow) (models.ReportListItem, error) {
	item := models.ReportListItem{
		ID:           uuidString(row.ID),
		ReporterName: row.ReporterName.String,
		TeamName:     row.TeamName.String,
		Period:       row.Period,
		CreatedAt:    row.CreatedAt.Time,
	}
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &item.Summary); err != nil {
			return models.ReportListItem{}, fmt.Errorf("decode summary of report %s: %w", item.ID, err)
		}
	}
	return item, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func optionalText(v string) pgtype.Text {
	v = strings.TrimSpace(v)
	return pgtype.Text{String: v, Valid: v != ""}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return requestctx.Logger(ctx, s.logger)
}
