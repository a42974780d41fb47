package progress

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/plugaai/trth_downloader/internal/logctx"
)

const DefaultReportInterval = 5 * time.Second

// Reporter periodically logs the state of a Store. It never mutates it.
type Reporter struct {
	store    *Store
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewReporter(store *Store, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}

	return &Reporter{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the reporting loop. It ends when ctx is cancelled or Stop
// is called.
func (r *Reporter) Start(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	logger.Debug("starting progress reporter", "interval", r.interval)

	ticker := time.NewTicker(r.interval)

	go func() {
		defer close(r.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.Report(ctx)
			}
		}
	}()
}

// Stop ends the loop, waits for it and logs a final summary line. Stop must
// only be called after Start.
func (r *Reporter) Stop(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done

	c := r.store.Counts()

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "download summary",
		"complete", c.Complete,
		"failed", c.Failed,
		"downloading", c.Downloading,
		"pending", c.Pending,
	)
}

// Report logs one line per downloading file and the number of complete files.
func (r *Reporter) Report(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	complete := 0

	for _, e := range r.store.Snapshot() {
		switch e.Progress.State {
		case Complete:
			complete++
		case Downloading:
			logger.InfoContext(ctx, "download progress",
				"file_name", e.File.Name,
				"downloaded", humanize.Bytes(e.Progress.Downloaded),
				"total", humanize.Bytes(e.Progress.Total),
				"percent", humanize.FtoaWithDigits(e.Progress.Fraction()*100, 2),
			)
		}
	}

	logger.InfoContext(ctx, "files complete", "count", complete)
}
