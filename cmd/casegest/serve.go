package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/casegest/internal/analysis"
	"github.com/dgallion1/casegest/internal/api"
	"github.com/dgallion1/casegest/internal/blobstore"
	"github.com/dgallion1/casegest/internal/chunker"
	"github.com/dgallion1/casegest/internal/config"
	"github.com/dgallion1/casegest/internal/crossref"
	"github.com/dgallion1/casegest/internal/extract"
	"github.com/dgallion1/casegest/internal/metrics"
	"github.com/dgallion1/casegest/internal/pathstore"
	"github.com/dgallion1/casegest/internal/pipeline"
	"github.com/dgallion1/casegest/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Serve exposes document upload, asynchronous analysis jobs, stored
results, cross-reference search and a server-sent event stream of document
changes. Requires CASEGEST_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, a.logger(cfg, os.Stdout))
		},
	}
	cmd.Flags().String("port", "8090", "HTTP listen port")
	cmd.Flags().String("db", "data/casegest.db", "SQLite database path")
	cmd.Flags().Int("workers", 4, "analysis worker count")
	_ = a.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = a.v.BindPFlag("db_path", cmd.Flags().Lookup("db"))
	_ = a.v.BindPFlag("worker_count", cmd.Flags().Lookup("workers"))
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	notifier, err := openNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer notifier.Close()

	st, err := store.OpenSQLite(cfg.DBPath, notifier, log)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := openBlobs(ctx, cfg, log)
	if err != nil {
		return err
	}

	extractor := extract.NewPatternExtractor()
	finder := crossref.NewFinder(extractor, log, cfg.CrossRefConcurrency)
	proc := analysis.NewProcessor(analysis.Options{
		Chunker:   chunker.New(chunker.Config{ChunkSize: cfg.DefaultChunkSize, ChunkOverlap: cfg.DefaultChunkOverlap}),
		Extractor: extractor,
		Finder:    finder,
		Stats:     extract.NewStageStats(cfg.StatsWindow),
		Metrics:   m,
		Log:       log,
	})

	// Initialize pathstore export.
	var exporter *pathstore.Exporter
	var workerExporter pipeline.Exporter
	if cfg.PathstoreEnabled() {
		ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey, cfg.PathstoreTimeout)
		defer ps.Close()
		exporter = pathstore.NewExporter(ps, cfg.MaxConcurrentStore)
		workerExporter = exporter
		log.Info("pathstore export enabled", "url", cfg.PathstoreURL)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, pipeline.NewWorker(st, proc, workerExporter, m, log), m, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Store:        st,
		Notifier:     notifier,
		Blobs:        blobs,
		Orchestrator: orch,
		Processor:    proc,
		Finder:       finder,
		Exporter:     exporter,
		Metrics:      m,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting casegest", "port", cfg.Port, "version", version)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		orch.Stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown.
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	orch.Stop()
	return nil
}

func openNotifier(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Notifier, error) {
	if cfg.RedisAddr == "" {
		return store.NewBroker(64), nil
	}
	n, err := store.NewRedisNotifier(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel, log)
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	log.Info("change notifications via redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	return n, nil
}

func openBlobs(ctx context.Context, cfg config.Config, log *slog.Logger) (blobstore.Blobs, error) {
	switch cfg.BlobBackend {
	case "minio":
		return blobstore.NewMinIOStore(ctx, blobstore.MinIOConfig{
			Endpoint:        cfg.MinIOEndpoint,
			AccessKeyID:     cfg.MinIOAccessKey,
			SecretAccessKey: cfg.MinIOSecretKey,
			UseSSL:          cfg.MinIOUseSSL,
			Bucket:          cfg.MinIOBucket,
		}, log)
	default:
		return blobstore.NewLocalStore(cfg.BlobDir)
	}
}
