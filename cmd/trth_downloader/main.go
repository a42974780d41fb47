package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/plugaai/trth_downloader/internal/cleanup"
	"github.com/plugaai/trth_downloader/internal/completion"
	"github.com/plugaai/trth_downloader/internal/config"
	"github.com/plugaai/trth_downloader/internal/downloader"
	"github.com/plugaai/trth_downloader/internal/http/rest"
	"github.com/plugaai/trth_downloader/internal/logctx"
	"github.com/plugaai/trth_downloader/internal/notifier"
	"github.com/plugaai/trth_downloader/internal/progress"
	"github.com/plugaai/trth_downloader/internal/storage"
	"github.com/plugaai/trth_downloader/internal/storage/sqlite"
	"github.com/plugaai/trth_downloader/internal/telemetry"
	"github.com/plugaai/trth_downloader/internal/trth"
	"github.com/spf13/cobra"
)

const serviceName = "trth_downloader"

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Download TRTH HTTP-pull extraction results",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logctx.NewLogger(os.Stdout, cfg.SlogLevel())
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("trth downloader starting...", "log_level", cfg.LogLevel, "version", version)

			if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
				logger.Error("fatal error", "err", err)

				return err
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML file holding the TRTH credentials")
	flags.IntVar(&cfg.MaxParallel, "max-parallel", cfg.MaxParallel, "maximum number of files downloading at once")
	flags.StringVar(&cfg.Pattern, "pattern", cfg.Pattern, "regular expression selecting the listed files to download")
	flags.BoolVar(&cfg.Cancel, "cancel", cfg.Cancel, "cancel an upstream request once all of its parts are downloaded")
	flags.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "only print the files that would be downloaded")
	flags.StringVar(&cfg.TargetDir, "target-dir", cfg.TargetDir, "directory receiving the downloaded files")
	flags.DurationVar(&cfg.ReportInterval, "report-interval", cfg.ReportInterval, "interval between progress reports")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	if cfg.ConfigFile != "" {
		if err := cfg.LoadCredentials(cfg.ConfigFile); err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	selector, err := cfg.Selector()
	if err != nil {
		return err
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start TRTH Clients
	creds := trth.Credentials{Username: cfg.Username, Password: cfg.Password}
	httpClient := trth.NewHTTPClient()

	client := trth.NewInstrumentedClient(
		trth.NewClient(cfg.ListURL, cfg.DownloadURL, cfg.ResultsDir, creds, httpClient),
		tel,
	)
	api := trth.NewInstrumentedCanceller(trth.NewAPIClient(cfg.APIURL, creds, httpClient), tel)

	// =========================================================================
	// Start Database
	var repo storage.DownloadRepository

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(ctx, cfg.DBPath)
		if err != nil {
			logger.Error("DB error", "err", err)

			return err
		}
		defer database.Close()

		repo = sqlite.NewInstrumentedDownloadRepository(sqlite.NewDownloadRepository(database), tel)

		setupCleanup(ctx, repo, cfg)
	}

	// =========================================================================
	// List Results
	files, err := trth.NewCatalog(client).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	store := progress.NewStore(files)
	selected := selectFiles(files, selector)

	logger.Info("selected files from listing",
		"listed", len(files),
		"selected", len(selected),
		"pattern", cfg.Pattern,
		"target_dir", cfg.TargetDir,
	)

	// =========================================================================
	// Start Notification
	var notif notifier.Notifier = notifier.Nop{}
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	// =========================================================================
	// Start Completion Monitor and Downloader
	monitorOpts := []completion.Option{completion.WithNotifier(notif), completion.WithTelemetry(tel)}
	downloaderOpts := []downloader.Option{downloader.WithTelemetry(tel)}

	if repo != nil {
		monitorOpts = append(monitorOpts, completion.WithLedger(repo))
		downloaderOpts = append(downloaderOpts, downloader.WithHistory(repo))
	}

	monitor := completion.New(store, api, cfg.Cancel, monitorOpts...)
	downloaderOpts = append(downloaderOpts, downloader.WithCompletionHook(monitor))

	d := downloader.New(client, store, downloader.Options{
		TargetDir:         cfg.TargetDir,
		MaxParallel:       cfg.MaxParallel,
		DryRun:            cfg.DryRun,
		RetryAttempts:     cfg.RetryAttempts,
		Backoff:           cfg.RetryBackoff,
		BackoffMultiplier: cfg.RetryMultiplier,
	}, downloaderOpts...)

	// =========================================================================
	// Start API Service
	if cfg.Web.BindAddress != "" {
		server := setupServer(ctx, store, tel, cfg)

		go func() {
			logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", "err", err)
			}
		}()

		defer shutdownServer(ctx, server, cfg.Web.ShutdownTimeout)
	}

	// =========================================================================
	// Run Batch
	var reporter *progress.Reporter
	if !cfg.DryRun {
		reporter = progress.NewReporter(store, cfg.ReportInterval)
		reporter.Start(ctx)
	}

	result := d.Download(ctx, selected)

	if reporter != nil {
		reporter.Stop(ctx)
	}

	result.Cancelled = monitor.Cancelled()

	summarize(ctx, result, notif)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}

	return nil
}

func selectFiles(files []*trth.RemoteFile, selector *regexp.Regexp) []*trth.RemoteFile {
	selected := make([]*trth.RemoteFile, 0, len(files))

	for _, f := range files {
		if selector.MatchString(f.Name) {
			selected = append(selected, f)
		}
	}

	return selected
}

func summarize(ctx context.Context, result *downloader.BatchResult, notif notifier.Notifier) {
	logger := logctx.LoggerFromContext(ctx)

	if len(result.Previewed) > 0 {
		logger.Info("dry run finished", "would_download", len(result.Previewed))

		return
	}

	for _, fe := range result.Failed {
		logger.Error("file download failed", "file_name", fe.Name, "err", fe.Err)
	}

	logger.Info("batch finished",
		"complete", len(result.Completed),
		"failed", len(result.Failed),
		"existing", len(result.Existing),
		"skipped", len(result.Skipped),
		"cancelled_requests", len(result.Cancelled),
	)

	status := "✅"
	if result.HasFailures() {
		status = "❌"
	}

	msg := fmt.Sprintf("%s TRTH batch finished: %d complete, %d failed, %d requests cancelled",
		status, len(result.Completed), len(result.Failed), len(result.Cancelled))

	// ctx may already be cancelled here.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := notif.Notify(notifyCtx, msg); err != nil {
		logger.Error("failed to send notification", "err", err)
	}
}

func setupCleanup(ctx context.Context, repo storage.DownloadRepository, cfg *config.Config) {
	if cfg.KeepDownloadedFor <= 0 {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	removed, err := cleanup.DeleteExpiredFiles(ctx, repo, cfg.TargetDir, cfg.KeepDownloadedFor)
	if err != nil {
		logger.Error("failed to delete expired tracked files", "err", err)

		return
	}

	logger.Info("expired files removed", "count", removed, "retention", cfg.KeepDownloadedFor.String())
}

// setupServer prepares the handlers to create the status http server.
func setupServer(ctx context.Context, store *progress.Store, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := rest.NewStatusHandler(store, tel, cfg.Web.Username, cfg.Web.Password)

	r := chi.NewRouter()
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func shutdownServer(ctx context.Context, server *http.Server, timeout time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	// Give outstanding requests a deadline for completion.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err := server.Close(); err != nil {
			logger.Error("could not stop server gracefully", "err", err)
		}
	}
}
