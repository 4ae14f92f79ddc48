// Package exportfiles keeps generated workbooks downloadable for a short
// time. Files expire after the configured TTL and at most MaxFiles are
// retained; both limits are re-checked on every read.
package exportfiles

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ncecere/usage_reports/backend/internal/config"
	"github.com/ncecere/usage_reports/backend/internal/db"
	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/storage/blob"
)

var ErrTooLarge = errors.New("export file too large")

type fileQueries interface {
	CreateTempFile(context.Context, db.CreateTempFileParams) (db.TempFile, error)
	GetLiveTempFile(context.Context, db.GetLiveTempFileParams) (db.TempFile, error)
	DeleteTempFile(context.Context, pgtype.UUID) error
	ListExpiredTempFiles(context.Context, db.ListExpiredTempFilesParams) ([]db.TempFile, error)
	ListTempFilesBeyondCap(context.Context, int32) ([]db.TempFile, error)
	DeleteExpiredTempFiles(context.Context, pgtype.Timestamptz) (int64, error)
}

// Service coordinates temp file metadata and blob storage.
type Service struct {
	queries fileQueries
	store   blob.Store
	cfg     config.ExportsConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(queries fileQueries, store blob.Store, cfg config.ExportsConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	return &Service{queries: queries, store: store, cfg: cfg, logger: logger, now: time.Now}
}

type CreateParams struct {
	Filename    string
	ContentType string
	Data        []byte
}

type FileRecord struct {
	ID             uuid.UUID `json:"id"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"contentType"`
	Bytes          int64     `json:"size"`
	Checksum       string    `json:"checksum"`
	Encrypted      bool      `json:"-"`
	StorageKey     string    `json:"-"`
	StorageBackend string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Create stores a workbook and trims the oldest files beyond the cap.
func (s *Service) Create(ctx context.Context, params CreateParams) (FileRecord, error) {
	if strings.TrimSpace(params.Filename) == "" {
		return FileRecord{}, fmt.Errorf("filename required")
	}
	if limit := int64(s.cfg.MaxSizeMB) * 1024 * 1024; limit > 0 && int64(len(params.Data)) > limit {
		return FileRecord{}, fmt.Errorf("%w: exceeds %d MB", ErrTooLarge, s.cfg.MaxSizeMB)
	}

	id := uuid.New()
	key := "exports/" + id.String()
	hash := sha256.New()
	info, err := s.store.Put(ctx, key, io.TeeReader(bytes.NewReader(params.Data), hash), blob.PutOptions{
		ContentType: params.ContentType,
		Metadata:    map[string]string{"filename": params.Filename},
	})
	if err != nil {
		return FileRecord{}, fmt.Errorf("store export: %w", err)
	}

	row, err := s.queries.CreateTempFile(ctx, db.CreateTempFileParams{
		ID:             toPgUUID(id),
		Filename:       params.Filename,
		ContentType:    params.ContentType,
		Bytes:          int64(len(params.Data)),
		StorageKey:     key,
		StorageBackend: s.cfg.Storage,
		Encrypted:      info.Encrypted,
		Checksum:       hex.EncodeToString(hash.Sum(nil)),
		ExpiresAt:      toPgTime(s.now().Add(s.cfg.TTL)),
	})
	if err != nil {
		_ = s.store.Delete(ctx, key)
		return FileRecord{}, err
	}

	if err := s.enforceCap(ctx); err != nil {
		s.logger.Warn("export file cap enforcement failed", "error", err)
	}
	return toFileRecord(row)
}

func (s *Service) enforceCap(ctx context.Context) error {
	extra, err := s.queries.ListTempFilesBeyondCap(ctx, int32(s.cfg.MaxFiles))
	if err != nil {
		return err
	}
	return s.remove(ctx, extra)
}

// checkCap trims files beyond MaxFiles and reports models.ErrNotFound when
// id is one of them.
func (s *Service) checkCap(ctx context.Context, id uuid.UUID) error {
	extra, err := s.queries.ListTempFilesBeyondCap(ctx, int32(s.cfg.MaxFiles))
	if err != nil {
		return fmt.Errorf("list files beyond cap: %w", err)
	}
	if len(extra) == 0 {
		return nil
	}
	if err := s.remove(ctx, extra); err != nil {
		s.logger.Warn("export file cap enforcement failed", "error", err)
	}
	target := toPgUUID(id)
	for _, rec := range extra {
		if rec.ID == target {
			return models.ErrNotFound
		}
	}
	return nil
}

// Info returns metadata for a live file; missing, expired or over-cap files
// yield models.ErrNotFound.
func (s *Service) Info(ctx context.Context, id string) (FileRecord, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return FileRecord{}, models.ErrNotFound
	}
	if err := s.checkCap(ctx, parsed); err != nil {
		return FileRecord{}, err
	}
	now := s.now()
	row, err := s.queries.GetLiveTempFile(ctx, db.GetLiveTempFileParams{ID: toPgUUID(parsed), Now: toPgTime(now)})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FileRecord{}, models.ErrNotFound
		}
		return FileRecord{}, err
	}
	rec, err := toFileRecord(row)
	if err != nil {
		return FileRecord{}, err
	}
	if !now.Before(rec.ExpiresAt) {
		return FileRecord{}, fmt.Errorf("%w: %w", models.ErrNotFound, models.ErrExpired)
	}
	return rec, nil
}

// Open returns the file contents for download.
func (s *Service) Open(ctx context.Context, id string) (io.ReadCloser, FileRecord, error) {
	rec, err := s.Info(ctx, id)
	if err != nil {
		return nil, FileRecord{}, err
	}
	reader, _, err := s.store.Get(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, FileRecord{}, models.ErrNotFound
		}
		return nil, FileRecord{}, err
	}
	return reader, rec, nil
}

// SweepExpired removes up to batchSize expired files and reports how many
// were deleted.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	batchSize := int32(s.cfg.SweepBatchSize)
	if batchSize <= 0 {
		batchSize = 100
	}
	now := toPgTime(s.now())
	expired, err := s.queries.ListExpiredTempFiles(ctx, db.ListExpiredTempFilesParams{
		Before: now,
		Limit:  batchSize,
	})
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if int32(len(expired)) < batchSize {
		// Every expired row is in hand; clear blobs and rows in one pass.
		for _, rec := range expired {
			s.deleteBlob(ctx, rec)
		}
		return s.queries.DeleteExpiredTempFiles(ctx, now)
	}
	if err := s.remove(ctx, expired); err != nil {
		return 0, err
	}
	return int64(len(expired)), nil
}

func (s *Service) remove(ctx context.Context, rows []db.TempFile) error {
	var errs []error
	for _, rec := range rows {
		s.deleteBlob(ctx, rec)
		if err := s.queries.DeleteTempFile(ctx, rec.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) deleteBlob(ctx context.Context, rec db.TempFile) {
	if err := s.store.Delete(ctx, rec.StorageKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.logger.Warn("delete export blob failed", "key", rec.StorageKey, "error", err)
	}
}

func toFileRecord(row db.TempFile) (FileRecord, error) {
	if !row.ID.Valid {
		return FileRecord{}, fmt.Errorf("uuid is null")
	}
	return FileRecord{
		ID:             row.ID.Bytes,
		Filename:       row.Filename,
		ContentType:    row.ContentType,
		Bytes:          row.Bytes,
		Checksum:       row.Checksum,
		Encrypted:      row.Encrypted,
		StorageKey:     row.StorageKey,
		StorageBackend: row.StorageBackend,
		CreatedAt:      row.CreatedAt.Time,
		ExpiresAt:      row.ExpiresAt.Time,
	}, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
