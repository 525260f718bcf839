package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wakala/reserving/internal/domain"
)

type IngestionRepo struct {
	db *sql.DB
}

func NewIngestionRepo(db *sql.DB) *IngestionRepo {
	return &IngestionRepo{db: db}
}

// FindByHash returns the ingested file with the given content hash, or nil
// when the file has not been seen before.
func (r *IngestionRepo) FindByHash(ctx context.Context, hash string) (*domain.IngestedFile, error) {
	var f domain.IngestedFile
	var ingestedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT file_hash, file_name, format, run_id, record_count, ingested_at
		 FROM ingested_files WHERE file_hash = ?`, hash,
	).Scan(&f.FileHash, &f.FileName, &f.Format, &f.RunID, &f.RecordCount, &ingestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file: %w", err)
	}
	f.IngestedAt, _ = time.Parse(time.RFC3339Nano, ingestedAt)
	return &f, nil
}

func (r *IngestionRepo) Insert(ctx context.Context, f domain.IngestedFile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ingested_files (file_hash, file_name, format, run_id, record_count, ingested_at)
		VALUES (?,?,?,?,?,?)`,
		f.FileHash, f.FileName, f.Format, f.RunID, f.RecordCount, f.IngestedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert ingested file: %w", err)
	}
	return nil
}
