package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/plugaai/trth_downloader/internal/storage"
)

type DownloadReadRepository struct {
	db *sql.DB
}

func NewDownloadReadRepository(dbConn *sql.DB) *DownloadReadRepository {
	return &DownloadReadRepository{db: dbConn}
}

const selectDownloads = `SELECT file_name, request_id, part_type, local_name, size, downloaded_at, status FROM downloads`

func (r *DownloadReadRepository) GetDownloads(ctx context.Context) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectDownloads+` ORDER BY downloaded_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var downloads []storage.DownloadRecord

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		downloads = append(downloads, *record)
	}

	return downloads, rows.Err()
}

// GetDownload returns storage.ErrNotFound when fileName was never recorded.
func (r *DownloadReadRepository) GetDownload(ctx context.Context, fileName string) (*storage.DownloadRecord, error) {
	row := r.db.QueryRowContext(ctx, selectDownloads+` WHERE file_name = ?`, fileName)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}

	return record, err
}

func (r *DownloadReadRepository) IsCancelled(ctx context.Context, requestID string) (bool, error) {
	var n int

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cancellations WHERE request_id = ?`, requestID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query cancellations: %w", err)
	}

	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*storage.DownloadRecord, error) {
	var record storage.DownloadRecord

	var size int64

	err := s.Scan(
		&record.FileName,
		&record.RequestID,
		&record.PartType,
		&record.LocalName,
		&size,
		&record.DownloadedAt,
		&record.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan download record: %w", err)
	}

	record.Size = uint64(size)

	return &record, nil
}
