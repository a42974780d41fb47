package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/plugaai/trth_downloader/internal/logctx"
	"github.com/plugaai/trth_downloader/internal/storage"
)

// DeleteExpiredFiles removes downloaded files older than keepDuration from
// dir and marks their records expired. It returns the number of files removed.
func DeleteExpiredFiles(ctx context.Context, repo storage.DownloadRepository, dir string, keepDuration time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	records, err := repo.GetDownloads(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get downloads: %w", err)
	}

	removed := 0

	for _, rec := range records {
		if rec.Status != storage.StatusDownloaded || now.Sub(rec.DownloadedAt) <= keepDuration {
			continue
		}

		filePath := filepath.Join(dir, rec.LocalName)

		if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.ErrorContext(ctx, "failed to delete expired file", "file_path", filePath, "err", err)

			return removed, fmt.Errorf("failed to delete expired file: %w", err)
		}

		if err := repo.UpdateDownloadStatus(ctx, rec.FileName, storage.StatusExpired); err != nil {
			return removed, fmt.Errorf("failed to mark download expired: %w", err)
		}

		removed++

		logger.InfoContext(ctx, "deleted expired file", "file_path", filePath, "downloaded_at", rec.DownloadedAt)
	}

	return removed, nil
}
