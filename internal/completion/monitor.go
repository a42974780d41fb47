package completion

import (
	"context"
	"fmt"
	"sync"

	"github.com/plugaai/trth_downloader/internal/logctx"
	"github.com/plugaai/trth_downloader/internal/notifier"
	"github.com/plugaai/trth_downloader/internal/progress"
	"github.com/plugaai/trth_downloader/internal/telemetry"
	"github.com/plugaai/trth_downloader/internal/trth"
)

// Ledger remembers which requests were cancelled in earlier runs.
type Ledger interface {
	IsCancelled(ctx context.Context, requestID string) (bool, error)
	RecordCancellation(ctx context.Context, requestID string) error
}

// Monitor cancels an upstream request once every listed part of it is
// complete and one of the parts is the report.
type Monitor struct {
	store     *progress.Store
	canceller trth.RequestCanceller
	enabled   bool

	ledger    Ledger
	notifier  notifier.Notifier
	telemetry *telemetry.Telemetry

	mu        sync.Mutex
	signalled map[string]struct{}
	cancelled []string
}

type Option func(*Monitor)

func WithLedger(l Ledger) Option {
	return func(m *Monitor) { m.ledger = l }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(m *Monitor) { m.telemetry = t }
}

// New returns a Monitor. A disabled Monitor never calls canceller.
func New(store *progress.Store, canceller trth.RequestCanceller, enabled bool, opts ...Option) *Monitor {
	m := &Monitor{
		store:     store,
		canceller: canceller,
		enabled:   enabled,
		signalled: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Cancellable reports whether every member of group is complete and at
// least one of them is a report part.
func Cancellable(group []progress.Entry) bool {
	if len(group) == 0 {
		return false
	}

	hasReport := false

	for _, e := range group {
		if e.Progress.State != progress.Complete {
			return false
		}

		if e.File.IsReport() {
			hasReport = true
		}
	}

	return hasReport
}

// OnFileComplete evaluates the request group of file and cancels it upstream
// at most once per request id. A failed cancellation is returned as a
// *trth.CancellationError and is not retried.
func (m *Monitor) OnFileComplete(ctx context.Context, file *trth.RemoteFile) error {
	if !m.enabled {
		return nil
	}

	requestID := file.RequestID
	logger := logctx.LoggerFromContext(ctx).With("request_id", requestID)

	if !Cancellable(m.store.Group(requestID)) {
		return nil
	}

	if !m.claim(requestID) {
		return nil
	}

	if m.ledger != nil {
		done, err := m.ledger.IsCancelled(ctx, requestID)
		if err != nil {
			logger.WarnContext(ctx, "failed to check cancellation history", "err", err)
		}

		if done {
			logger.InfoContext(ctx, "request already cancelled in a previous run")

			return nil
		}
	}

	err := m.telemetry.InstrumentCancellation(ctx, func(ctx context.Context) error {
		return m.canceller.CancelRequest(ctx, requestID)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to cancel request", "err", err)

		return &trth.CancellationError{RequestID: requestID, Err: err}
	}

	m.mu.Lock()
	m.cancelled = append(m.cancelled, requestID)
	m.mu.Unlock()

	logger.InfoContext(ctx, "cancelled request")

	if m.ledger != nil {
		if err := m.ledger.RecordCancellation(ctx, requestID); err != nil {
			logger.WarnContext(ctx, "failed to record cancellation", "err", err)
		}
	}

	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, fmt.Sprintf("TRTH request %s downloaded and cancelled", requestID)); err != nil {
			logger.WarnContext(ctx, "failed to send notification", "err", err)
		}
	}

	return nil
}

// Cancelled returns the request ids cancelled so far, in order.
func (m *Monitor) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.cancelled...)
}

// claim marks requestID as signalled and reports whether the caller won it.
func (m *Monitor) claim(requestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.signalled[requestID]; ok {
		return false
	}

	m.signalled[requestID] = struct{}{}

	return true
}
