package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/plugaai/trth_downloader/internal/logctx"
	"github.com/plugaai/trth_downloader/internal/progress"
	"github.com/plugaai/trth_downloader/internal/storage"
	"github.com/plugaai/trth_downloader/internal/trth"
)

// downloadFile runs the whole lifecycle of one file. The returned error has
// already been stored on the file's progress entry and logged.
func (d *Downloader) downloadFile(ctx context.Context, f *trth.RemoteFile) error {
	logger := logctx.LoggerFromContext(ctx).With("file_name", f.Name, "request_id", f.RequestID)
	ctx = logctx.WithLogger(ctx, logger)

	if err := d.store.Transition(f.Name, progress.Downloading); err != nil {
		logger.ErrorContext(ctx, "failed to start download", "err", err)

		return err
	}

	target := filepath.Join(d.opts.TargetDir, trth.LocalName(f))

	err := d.telemetry.InstrumentDownload(ctx, f.PartType, func(ctx context.Context) error {
		return d.fetch(ctx, f, target)
	})
	if err != nil {
		if ferr := d.store.Fail(f.Name, err); ferr != nil {
			logger.WarnContext(ctx, "failed to record download failure", "err", ferr)
		}

		logger.ErrorContext(ctx, "failed to download file", "err", err)

		return err
	}

	if err := d.store.Transition(f.Name, progress.Complete); err != nil {
		logger.ErrorContext(ctx, "failed to complete download", "err", err)

		return err
	}

	logger.InfoContext(ctx, "downloaded and saved file", "target", target, "file_size", humanize.Bytes(f.Size))

	d.track(ctx, f)

	if d.hook != nil {
		if err := d.hook.OnFileComplete(ctx, f); err != nil {
			logger.DebugContext(ctx, "completion hook failed", "err", err)
		}
	}

	return nil
}

// fetch streams f to target in fixed-size chunks, adding every written chunk
// to the progress entry.
func (d *Downloader) fetch(ctx context.Context, f *trth.RemoteFile, target string) (err error) {
	logger := logctx.LoggerFromContext(ctx)

	body, err := d.open(ctx, f.Name)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := ensureTargetDir(filepath.Dir(target)); err != nil {
		return err
	}

	out, err := os.Create(target)
	if err != nil {
		return &trth.FilesystemError{Op: "create", Path: target, Err: err}
	}

	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &trth.FilesystemError{Op: "close", Path: target, Err: cerr}
		}
	}()

	logger.InfoContext(ctx, "downloading file", "target", target, "file_size", humanize.Bytes(f.Size))

	var written uint64

	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("download interrupted: %w", err)
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return &trth.FilesystemError{Op: "write", Path: target, Err: werr}
			}

			written += uint64(n)

			if err := d.store.Add(f.Name, uint64(n)); err != nil {
				return fmt.Errorf("failed to update progress: %w", err)
			}

			d.telemetry.RecordBytes(int64(n))
		}

		if errors.Is(rerr, io.EOF) {
			break
		}

		if rerr != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("download interrupted: %w", ctx.Err())
			}

			return &trth.NetworkError{Operation: "download", Message: "stream interrupted", Err: rerr}
		}
	}

	if written != f.Size {
		logger.WarnContext(ctx, "downloaded size differs from listing",
			"written", written,
			"listed", f.Size,
		)
	}

	return nil
}

// open opens the download stream, retrying with exponential backoff on
// transient failures when retries are enabled.
func (d *Downloader) open(ctx context.Context, name string) (io.ReadCloser, error) {
	if d.opts.RetryAttempts <= 1 {
		return d.client.OpenFile(ctx, name)
	}

	logger := logctx.LoggerFromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.Backoff
	b.Multiplier = d.opts.BackoffMultiplier
	b.RandomizationFactor = 0

	operation := func() (io.ReadCloser, error) {
		rc, err := d.client.OpenFile(ctx, name)
		if err == nil {
			return rc, nil
		}

		var netErr *trth.NetworkError
		if errors.As(err, &netErr) && !netErr.Retryable() {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}

	notify := func(err error, next time.Duration) {
		logger.WarnContext(ctx, "failed to open download stream, retrying", "err", err, "retry_in", next)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.opts.RetryAttempts),
		backoff.WithNotify(notify),
	)
}

// track records a completed file in the ledger. Ledger failures do not fail
// the download.
func (d *Downloader) track(ctx context.Context, f *trth.RemoteFile) {
	if d.history == nil {
		return
	}

	err := d.history.TrackDownload(ctx, storage.DownloadRecord{
		FileName:  f.Name,
		RequestID: f.RequestID,
		PartType:  f.PartType,
		LocalName: trth.LocalName(f),
		Size:      f.Size,
		Status:    storage.StatusDownloaded,
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record download", "err", err)
	}
}
