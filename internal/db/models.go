package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Report struct {
	ID           pgtype.UUID
	ReporterName pgtype.Text
	TeamName     pgtype.Text
	Period       string
	PeriodStart  string
	RawData      []byte
	Summary      []byte
	CreatedAt    pgtype.Timestamptz
}

type ReportSummaryRow struct {
	ID           pgtype.UUID
	ReporterName pgtype.Text
	TeamName     pgtype.Text
	Period       string
	Summary      []byte
	CreatedAt    pgtype.Timestamptz
}

type TempFile struct {
	ID             pgtype.UUID
	Filename       string
	ContentType    string
	Bytes          int64
	StorageKey     string
	StorageBackend string
	Encrypted      bool
	Checksum       string
	CreatedAt      pgtype.Timestamptz
	ExpiresAt      pgtype.Timestamptz
}
