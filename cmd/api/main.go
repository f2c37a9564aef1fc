package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"diocese/api/internal/app"
	"diocese/api/internal/config"
	"diocese/api/internal/email"
	"diocese/api/internal/export"
	"diocese/api/internal/history"
	"diocese/api/internal/logging"
	"diocese/api/internal/scheduler"
	"diocese/api/internal/search"
	"diocese/api/internal/session"
	"diocese/api/internal/store"
	"diocese/api/internal/templates"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		return err
	}

	dataStore := store.NewPostgresStore(db)
	opts := app.Options{
		History:   history.New(cfg.HistoryDir),
		Email:     email.NewService(email.Config{Host: cfg.SMTPHost, Port: cfg.SMTPPort, Username: cfg.SMTPUsername, Password: cfg.SMTPPassword, From: cfg.SMTPFrom, FromName: cfg.SMTPFromName}),
		Templates: templates.MustCatalog(),
		Logger:    logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for refresh tokens")
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		opts.Tokens = redisStore
	} else {
		logger.Info("using postgres for refresh tokens")
	}

	pgfts := search.NewPgFTS(db)
	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	var index search.Index
	if meili != nil {
		index = meili
	}
	searchService := search.NewService(index, pgfts, pgfts, logger)
	defer searchService.Wait()
	opts.Search = searchService

	var archive export.Archive
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioArchive, err := export.NewMinioArchive(ctx, export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn("export archive disabled", zap.Error(err))
		} else {
			archive = minioArchive
		}
	}
	opts.Export = export.NewService(dataStore, export.Options{
		Revisions: opts.History,
		Archive:   archive,
		Logger:    logger,
	})

	service := app.New(cfg, dataStore, opts)
	defer service.CloseAllDrafts()

	jobs := scheduler.New(logger)
	for _, job := range []scheduler.Job{
		{
			Name:     "prune-tokens",
			Schedule: "@every 1h",
			Run: func(ctx context.Context) error {
				pruned, err := dataStore.PruneExpiredTokens(ctx)
				if err == nil && pruned > 0 {
					logger.Info("expired tokens pruned", zap.Int64("count", pruned))
				}
				return err
			},
		},
		{
			Name:     "prune-drafts",
			Schedule: "@every 1m",
			Run: func(context.Context) error {
				if closed := service.PruneDrafts(); closed > 0 {
					logger.Info("expired drafts closed", zap.Int("count", closed))
				}
				return nil
			},
		},
		{
			Name:     "reindex",
			Schedule: cfg.ReindexSchedule,
			Run: func(ctx context.Context) error {
				_, err := searchService.Reindex(ctx)
				if errors.Is(err, search.ErrIndexUnavailable) {
					return nil
				}
				return err
			},
		},
	} {
		if err := jobs.Add(job); err != nil {
			return err
		}
	}
	jobs.Start()
	defer jobs.Stop()

	if meili != nil {
		go func() {
			if err := jobs.RunNow(context.Background(), "reindex"); err != nil {
				logger.Warn("initial reindex failed", zap.Error(err))
			}
		}()
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("diocese api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
