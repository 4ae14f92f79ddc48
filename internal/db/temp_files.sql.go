package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const tempFileColumns = `id, filename, content_type, bytes, storage_key, storage_backend, encrypted, checksum, created_at, expires_at`

const createTempFile = `
INSERT INTO temp_files (id, filename, content_type, bytes, storage_key, storage_backend, encrypted, checksum, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    filename = EXCLUDED.filename,
    content_type = EXCLUDED.content_type,
    bytes = EXCLUDED.bytes,
    storage_key = EXCLUDED.storage_key,
    storage_backend = EXCLUDED.storage_backend,
    encrypted = EXCLUDED.encrypted,
    checksum = EXCLUDED.checksum,
    created_at = NOW(),
    expires_at = EXCLUDED.expires_at
RETURNING ` + tempFileColumns

type CreateTempFileParams struct {
	ID             pgtype.UUID
	Filename       string
	ContentType    string
	Bytes          int64
	StorageKey     string
	StorageBackend string
	Encrypted      bool
	Checksum       string
	ExpiresAt      pgtype.Timestamptz
}

func (q *Queries) CreateTempFile(ctx context.Context, arg CreateTempFileParams) (TempFile, error) {
	row := q.db.QueryRow(ctx, createTempFile,
		arg.ID,
		arg.Filename,
		arg.ContentType,
		arg.Bytes,
		arg.StorageKey,
		arg.StorageBackend,
		arg.Encrypted,
		arg.Checksum,
		arg.ExpiresAt,
	)
	var i TempFile
	err := scanTempFile(row, &i)
	return i, err
}

const getLiveTempFile = `SELECT ` + tempFileColumns + ` FROM temp_files WHERE id = $1 AND expires_at > $2`

type GetLiveTempFileParams struct {
	ID  pgtype.UUID
	Now pgtype.Timestamptz
}

// GetLiveTempFile only returns files that have not expired at Now.
func (q *Queries) GetLiveTempFile(ctx context.Context, arg GetLiveTempFileParams) (TempFile, error) {
	row := q.db.QueryRow(ctx, getLiveTempFile, arg.ID, arg.Now)
	var i TempFile
	err := scanTempFile(row, &i)
	return i, err
}

const deleteTempFile = `DELETE FROM temp_files WHERE id = $1`

func (q *Queries) DeleteTempFile(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteTempFile, id)
	return err
}

const listExpiredTempFiles = `
SELECT ` + tempFileColumns + `
FROM temp_files
WHERE expires_at <= $1
ORDER BY expires_at
LIMIT $2
`

type ListExpiredTempFilesParams struct {
	Before pgtype.Timestamptz
	Limit  int32
}

func (q *Queries) ListExpiredTempFiles(ctx context.Context, arg ListExpiredTempFilesParams) ([]TempFile, error) {
	return q.queryTempFiles(ctx, listExpiredTempFiles, arg.Before, arg.Limit)
}

const listTempFilesBeyondCap = `
SELECT ` + tempFileColumns + `
FROM temp_files
ORDER BY created_at DESC, id DESC
OFFSET $1
`

// ListTempFilesBeyondCap returns every file except the newest Keep.
func (q *Queries) ListTempFilesBeyondCap(ctx context.Context, keep int32) ([]TempFile, error) {
	return q.queryTempFiles(ctx, listTempFilesBeyondCap, keep)
}

const deleteExpiredTempFiles = `DELETE FROM temp_files WHERE expires_at <= $1`

func (q *Queries) DeleteExpiredTempFiles(ctx context.Context, before pgtype.Timestamptz) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteExpiredTempFiles, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) queryTempFiles(ctx context.Context, query string, args ...interface{}) ([]TempFile, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TempFile
	for rows.Next() {
		var i TempFile
		if err := scanTempFile(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanTempFile(row scanner, i *TempFile) error {
	return row.Scan(
		&i.ID,
		&i.Filename,
		&i.ContentType,
		&i.Bytes,
		&i.StorageKey,
		&i.StorageBackend,
		&i.Encrypted,
		&i.Checksum,
		&i.CreatedAt,
		&i.ExpiresAt,
	)
}
