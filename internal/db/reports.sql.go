package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const upsertReport = `
INSERT INTO reports (id, reporter_name, team_name, period, period_start, raw_data, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    reporter_name = EXCLUDED.reporter_name,
    team_name = EXCLUDED.team_name,
    period = EXCLUDED.period,
    period_start = EXCLUDED.period_start,
    raw_data = EXCLUDED.raw_data,
    summary = EXCLUDED.summary
RETURNING id, reporter_name, team_name, period, period_start, raw_data, summary, created_at
`

type UpsertReportParams struct {
	ID           pgtype.UUID
	ReporterName pgtype.Text
	TeamName     pgtype.Text
	Period       string
	PeriodStart  string
	RawData      []byte
	Summary      []byte
}

func (q *Queries) UpsertReport(ctx context.Context, arg UpsertReportParams) (Report, error) {
	row := q.db.QueryRow(ctx, upsertReport,
		arg.ID,
		arg.ReporterName,
		arg.TeamName,
		arg.Period,
		arg.PeriodStart,
		arg.RawData,
		arg.Summary,
	)
	var i Report
	err := scanReport(row, &i)
	return i, err
}

const evictReportsOverCap = `
DELETE FROM reports
WHERE id IN (
    SELECT id FROM reports
    WHERE id <> $1
    ORDER BY created_at DESC, id DESC
    OFFSET $2
)
`

type EvictReportsOverCapParams struct {
	KeepID pgtype.UUID
	Keep   int32
}

// EvictReportsOverCap deletes the oldest reports other than KeepID so at
// most Keep of them remain.
func (q *Queries) EvictReportsOverCap(ctx context.Context, arg EvictReportsOverCapParams) (int64, error) {
	tag, err := q.db.Exec(ctx, evictReportsOverCap, arg.KeepID, arg.Keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countReports = `SELECT COUNT(*) FROM reports`

func (q *Queries) CountReports(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countReports).Scan(&count)
	return count, err
}

const listReports = `
SELECT id, reporter_name, team_name, period, summary, created_at
FROM reports
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2
`

type ListReportsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListReports(ctx context.Context, arg ListReportsParams) ([]ReportSummaryRow, error) {
	rows, err := q.db.Query(ctx, listReports, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReportSummaryRow
	for rows.Next() {
		var i ReportSummaryRow
		if err := rows.Scan(
			&i.ID,
			&i.ReporterName,
			&i.TeamName,
			&i.Period,
			&i.Summary,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getReport = `
SELECT id, reporter_name, team_name, period, period_start, raw_data, summary, created_at
FROM reports
WHERE id = $1
`

func (q *Queries) GetReport(ctx context.Context, id pgtype.UUID) (Report, error) {
	row := q.db.QueryRow(ctx, getReport, id)
	var i Report
	err := scanReport(row, &i)
	return i, err
}

const getReportsByIDs = `
SELECT id, reporter_name, team_name, period, period_start, raw_data, summary, created_at
FROM reports
WHERE id = ANY($1::uuid[])
`

func (q *Queries) GetReportsByIDs(ctx context.Context, ids []pgtype.UUID) ([]Report, error) {
	return q.queryReports(ctx, getReportsByIDs, ids)
}

const listReportsByPeriodPrefix = `
SELECT id, reporter_name, team_name, period, period_start, raw_data, summary, created_at
FROM reports
WHERE period_start LIKE $1 || '%'
ORDER BY created_at DESC, id DESC
`

func (q *Queries) ListReportsByPeriodPrefix(ctx context.Context, prefix string) ([]Report, error) {
	return q.queryReports(ctx, listReportsByPeriodPrefix, prefix)
}

const deleteReport = `DELETE FROM reports WHERE id = $1`

func (q *Queries) DeleteReport(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteReport, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listTeamNames = `
SELECT DISTINCT team_name
FROM reports
WHERE team_name IS NOT NULL AND team_name <> ''
ORDER BY team_name
`

func (q *Queries) ListTeamNames(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, listTeamNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Queries) queryReports(ctx context.Context, query string, args ...interface{}) ([]Report, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Report
	for rows.Next() {
		var i Report
		if err := scanReport(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row scanner, i *Report) error {
	return row.Scan(
		&i.ID,
		&i.ReporterName,
		&i.TeamName,
		&i.Period,
		&i.PeriodStart,
		&i.RawData,
		&i.Summary,
		&i.CreatedAt,
	)
}
