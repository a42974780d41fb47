package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/plugaai/trth_downloader/internal/storage"
)

// DownloadWriteRepository implements storage.DownloadWriteRepository
// and stores download records in SQLite.
type DownloadWriteRepository struct {
	db *sql.DB
}

func NewDownloadWriteRepository(db *sql.DB) *DownloadWriteRepository {
	return &DownloadWriteRepository{db: db}
}

func (r *DownloadWriteRepository) TrackDownload(ctx context.Context, rec storage.DownloadRecord) error {
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now().UTC()
	}

	if rec.Status == "" {
		rec.Status = storage.StatusDownloaded
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO downloads (file_name, request_id, part_type, local_name, size, downloaded_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			request_id = excluded.request_id,
			part_type = excluded.part_type,
			local_name = excluded.local_name,
			size = excluded.size,
			downloaded_at = excluded.downloaded_at,
			status = excluded.status`,
		rec.FileName, rec.RequestID, rec.PartType, rec.LocalName, int64(rec.Size), rec.DownloadedAt, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to track download: %w", err)
	}

	return nil
}

// UpdateDownloadStatus returns storage.ErrNotFound when fileName was never recorded.
func (r *DownloadWriteRepository) UpdateDownloadStatus(ctx context.Context, fileName, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE downloads SET status = ? WHERE file_name = ?`, status, fileName)
	if err != nil {
		return fmt.Errorf("failed to update download status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update download status: %w", err)
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// RecordCancellation is idempotent.
func (r *DownloadWriteRepository) RecordCancellation(ctx context.Context, requestID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cancellations (request_id, cancelled_at) VALUES (?, ?) ON CONFLICT(request_id) DO NOTHING`,
		requestID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record cancellation: %w", err)
	}

	return nil
}

