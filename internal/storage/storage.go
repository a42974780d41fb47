package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

const (
	StatusDownloaded = "downloaded"
	StatusExpired    = "expired"
)

// DownloadRecord is the ledger entry of a file written to disk.
type DownloadRecord struct {
	FileName     string
	RequestID    string
	PartType     string
	LocalName    string
	Size         uint64
	DownloadedAt time.Time
	Status       string
}

type DownloadReadRepository interface {
	GetDownloads(ctx context.Context) ([]DownloadRecord, error)
	GetDownload(ctx context.Context, fileName string) (*DownloadRecord, error)
	IsCancelled(ctx context.Context, requestID string) (bool, error)
}

type DownloadWriteRepository interface {
	// TrackDownload inserts or replaces the record for rec.FileName.
	TrackDownload(ctx context.Context, rec DownloadRecord) error
	UpdateDownloadStatus(ctx context.Context, fileName, status string) error
	RecordCancellation(ctx context.Context, requestID string) error
}

type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
}
