package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docuscan/docuscan/internal/blob"
	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/extract"
	"github.com/docuscan/docuscan/internal/llm/openai"
	"github.com/docuscan/docuscan/internal/pipeline"
	"github.com/docuscan/docuscan/internal/postproc"
	"github.com/docuscan/docuscan/internal/queue"
	"github.com/docuscan/docuscan/internal/schemas"
	"github.com/docuscan/docuscan/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job store: postgres DSN -> pgx pool, anything else -> sqlite file.
	var store queue.JobStore
	if strings.HasPrefix(cfg.Database.DSN, "postgres://") || strings.HasPrefix(cfg.Database.DSN, "postgresql://") {
		pg, err := queue.OpenPG(ctx, queue.PGConfig{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("open job store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Ping(ctx); err != nil {
			logger.Error("job store health failed", "error", err)
			os.Exit(1)
		}
		store = pg
	} else {
		sq, err := queue.OpenSQLite(cfg.Database.DSN)
		if err != nil {
			logger.Error("open job store", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sq.Close() }()
		store = sq
	}

	// Blob store: FTP when configured, local directory otherwise.
	var blobStore blob.Store
	if cfg.Blob.FTPAddr != "" {
		blobStore = blob.NewFTPStore(blob.FTPConfig{
			Addr:     cfg.Blob.FTPAddr,
			User:     cfg.Blob.FTPUser,
			Password: cfg.Blob.FTPPassword,
			BasePath: cfg.Blob.FTPBasePath,
			Timeout:  cfg.Blob.FTPTimeout,
		}, logger)
	} else {
		local, err := blob.NewLocalStore(cfg.Blob.LocalDir)
		if err != nil {
			logger.Error("open blob store", "error", err)
			os.Exit(1)
		}
		blobStore = local
	}

	registry := postproc.Defaults()
	provider := schemas.NewFileProvider(cfg.Schemas.Dir, registry, logger)

	completer := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	extractor := extract.NewPDFExtractor(extract.Config{}, logger)
	pipe := pipeline.New(extractor, completer, logger)
	executor := queue.NewPipelineExecutor(blobStore, pipe, registry, logger)

	pool := queue.NewPool(store, executor, logger,
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithLeaseTTL(cfg.Queue.LeaseTTL),
		queue.WithReapInterval(cfg.Queue.ReapInterval),
		queue.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)
	pool.Start()

	svc := queue.NewService(store, provider, pool, cfg.Queue.MaxAttempts, logger)
	handler := server.NewHandler(svc, blobStore, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	pool.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
