package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plugaai/trth_downloader/internal/storage"
	"github.com/plugaai/trth_downloader/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteExpiredFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := sqlite.InitDB(ctx, filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)

	defer db.Close()

	repo := sqlite.NewDownloadRepository(db)

	old := storage.DownloadRecord{
		FileName:     "x-N000000001-part000.csv",
		RequestID:    "N000000001",
		PartType:     "part000",
		LocalName:    "N000000001-part000.csv",
		Size:         3,
		DownloadedAt: time.Now().Add(-48 * time.Hour).UTC(),
	}
	fresh := storage.DownloadRecord{
		FileName:     "x-N000000002.csv",
		RequestID:    "N000000002",
		PartType:     "part000",
		LocalName:    "N000000002-part000.csv",
		Size:         3,
		DownloadedAt: time.Now().UTC(),
	}
	gone := storage.DownloadRecord{
		FileName:     "x-N000000003.csv",
		RequestID:    "N000000003",
		PartType:     "part000",
		LocalName:    "N000000003-part000.csv",
		Size:         3,
		DownloadedAt: time.Now().Add(-72 * time.Hour).UTC(),
	}

	for _, rec := range []storage.DownloadRecord{old, fresh, gone} {
		require.NoError(t, repo.TrackDownload(ctx, rec))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, old.LocalName), []byte("abc"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fresh.LocalName), []byte("abc"), 0o600))

	removed, err := DeleteExpiredFiles(ctx, repo, dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, filepath.Join(dir, old.LocalName))
	assert.FileExists(t, filepath.Join(dir, fresh.LocalName))

	rec, err := repo.GetDownload(ctx, old.FileName)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusExpired, rec.Status)

	rec, err = repo.GetDownload(ctx, fresh.FileName)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusDownloaded, rec.Status)

	// expired records are not processed twice
	removed, err = DeleteExpiredFiles(ctx, repo, dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
