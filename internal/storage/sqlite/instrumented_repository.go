package sqlite

import (
	"context"

	"github.com/plugaai/trth_downloader/internal/storage"
	"github.com/plugaai/trth_downloader/internal/telemetry"
)

// InstrumentedDownloadRepository wraps a DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      storage.DownloadRepository
	telemetry *telemetry.Telemetry
}

var _ storage.DownloadRepository = (*InstrumentedDownloadRepository)(nil)

func NewInstrumentedDownloadRepository(repo storage.DownloadRepository, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      repo,
		telemetry: tel,
	}
}

func (r *InstrumentedDownloadRepository) GetDownloads(ctx context.Context) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_downloads", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetDownloads(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) GetDownload(ctx context.Context, fileName string) (*storage.DownloadRecord, error) {
	var result *storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_download", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetDownload(ctx, fileName)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) IsCancelled(ctx context.Context, requestID string) (bool, error) {
	var result bool

	err := r.telemetry.InstrumentDBOperation(ctx, "is_cancelled", func(ctx context.Context) error {
		var err error

		result, err = r.repo.IsCancelled(ctx, requestID)

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) TrackDownload(ctx context.Context, rec storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_download", func(ctx context.Context) error {
		return r.repo.TrackDownload(ctx, rec)
	})
}

func (r *InstrumentedDownloadRepository) UpdateDownloadStatus(ctx context.Context, fileName, status string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_download_status", func(ctx context.Context) error {
		return r.repo.UpdateDownloadStatus(ctx, fileName, status)
	})
}

func (r *InstrumentedDownloadRepository) RecordCancellation(ctx context.Context, requestID string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_cancellation", func(ctx context.Context) error {
		return r.repo.RecordCancellation(ctx, requestID)
	})
}
