package sqlite

import (
	"database/sql"

	"github.com/plugaai/trth_downloader/internal/storage"
)

// DownloadRepository is the SQLite download ledger.
type DownloadRepository struct {
	*DownloadReadRepository
	*DownloadWriteRepository
}

var _ storage.DownloadRepository = (*DownloadRepository)(nil)

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{
		DownloadReadRepository:  NewDownloadReadRepository(dbConn),
		DownloadWriteRepository: NewDownloadWriteRepository(dbConn),
	}
}
