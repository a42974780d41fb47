package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/plugaai/trth_downloader/internal/logctx"
	"github.com/plugaai/trth_downloader/internal/progress"
	"github.com/plugaai/trth_downloader/internal/storage"
	"github.com/plugaai/trth_downloader/internal/telemetry"
	"github.com/plugaai/trth_downloader/internal/trth"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	dirPerm   = 0755
	chunkSize = 256 * 1024

	DefaultMaxParallel = 10
)

// CompletionHook is told about every file that reached Complete.
type CompletionHook interface {
	OnFileComplete(ctx context.Context, file *trth.RemoteFile) error
}

// History is the ledger of files downloaded by earlier runs.
type History interface {
	GetDownload(ctx context.Context, fileName string) (*storage.DownloadRecord, error)
	TrackDownload(ctx context.Context, rec storage.DownloadRecord) error
}

// Options configures the downloader.
type Options struct {
	// TargetDir receives one file per RemoteFile, named trth.LocalName.
	TargetDir string

	// MaxParallel bounds the number of files downloading at once.
	MaxParallel int

	// DryRun only logs the selection.
	DryRun bool

	// RetryAttempts is the number of tries to open a stream; 0 or 1
	// disables retrying. Bytes already read are never retried.
	RetryAttempts uint

	// Backoff is the delay before the first retry, multiplied by
	// BackoffMultiplier for each following one.
	Backoff           time.Duration
	BackoffMultiplier float64
}

type Downloader struct {
	client trth.ResultClient
	store  *progress.Store
	opts   Options

	hook      CompletionHook
	history   History
	telemetry *telemetry.Telemetry
}

type Option func(*Downloader)

func WithCompletionHook(h CompletionHook) Option {
	return func(d *Downloader) { d.hook = h }
}

func WithHistory(h History) Option {
	return func(d *Downloader) { d.history = h }
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(d *Downloader) { d.telemetry = t }
}

func New(client trth.ResultClient, store *progress.Store, opts Options, options ...Option) *Downloader {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = DefaultMaxParallel
	}

	if opts.BackoffMultiplier <= 0 {
		opts.BackoffMultiplier = 2
	}

	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	d := &Downloader{
		client: client,
		store:  store,
		opts:   opts,
	}

	for _, o := range options {
		o(d)
	}

	return d
}

// Download runs one task per file, at most MaxParallel at a time, admitted
// in the order given. A failing file never stops its siblings. When ctx is
// cancelled, no further file is admitted and the remaining ones are
// reported as skipped.
func (d *Downloader) Download(ctx context.Context, files []*trth.RemoteFile) *BatchResult {
	logger := logctx.LoggerFromContext(ctx)
	result := &BatchResult{}

	if d.opts.DryRun {
		for _, f := range files {
			logger.InfoContext(ctx, "would download file",
				"file_name", f.Name,
				"request_id", f.RequestID,
				"target", filepath.Join(d.opts.TargetDir, trth.LocalName(f)),
				"file_size", humanize.Bytes(f.Size),
			)

			result.Previewed = append(result.Previewed, f.Name)
		}

		return result
	}

	logger.InfoContext(ctx, "starting downloads", "file_count", len(files), "max_parallel", d.opts.MaxParallel)

	var (
		mu  sync.Mutex
		wg  errgroup.Group
		sem = semaphore.NewWeighted(int64(d.opts.MaxParallel))
	)

	for i, f := range files {
		if d.alreadyDownloaded(ctx, f) {
			mu.Lock()
			result.Existing = append(result.Existing, f.Name)
			mu.Unlock()

			continue
		}

		if err := acquire(ctx, sem); err != nil {
			logger.WarnContext(ctx, "stopping admission of downloads", "err", err, "not_started", len(files)-i)

			mu.Lock()
			for _, rest := range files[i:] {
				result.Skipped = append(result.Skipped, rest.Name)
			}
			mu.Unlock()

			break
		}

		wg.Go(func() error {
			defer sem.Release(1)

			err := d.downloadFile(ctx, f)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.Failed = append(result.Failed, FileError{Name: f.Name, Err: err})
			} else {
				result.Completed = append(result.Completed, f.Name)
			}

			return nil
		})
	}

	_ = wg.Wait()

	logger.InfoContext(ctx, "downloads finished",
		"complete", len(result.Completed),
		"failed", len(result.Failed),
		"existing", len(result.Existing),
		"skipped", len(result.Skipped),
	)

	return result
}

// acquire waits for a slot. An already cancelled ctx never gets one.
func acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return sem.Acquire(ctx, 1)
}

// alreadyDownloaded seeds f as Complete when the ledger has it and the local
// copy is still whole.
func (d *Downloader) alreadyDownloaded(ctx context.Context, f *trth.RemoteFile) bool {
	if d.history == nil {
		return false
	}

	logger := logctx.LoggerFromContext(ctx).With("file_name", f.Name)

	rec, err := d.history.GetDownload(ctx, f.Name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.WarnContext(ctx, "failed to look up download history", "err", err)
		}

		return false
	}

	if rec.Status != storage.StatusDownloaded {
		return false
	}

	info, err := os.Stat(filepath.Join(d.opts.TargetDir, trth.LocalName(f)))
	if err != nil || uint64(info.Size()) != f.Size {
		return false
	}

	if err := d.store.Transition(f.Name, progress.Complete); err != nil {
		logger.WarnContext(ctx, "failed to seed downloaded file", "err", err)

		return false
	}

	logger.DebugContext(ctx, "file already downloaded", "downloaded_at", rec.DownloadedAt)

	return true
}

func ensureTargetDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return &trth.FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}

	return nil
}
