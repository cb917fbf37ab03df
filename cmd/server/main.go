package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/config"
	"github.com/slicefund/pizza-claims/internal/currency"
	"github.com/slicefund/pizza-claims/internal/ens"
	httpserver "github.com/slicefund/pizza-claims/internal/interfaces/http"
	"github.com/slicefund/pizza-claims/internal/mirror"
	"github.com/slicefund/pizza-claims/internal/repository"
	"github.com/slicefund/pizza-claims/internal/service"
	"github.com/slicefund/pizza-claims/internal/storage"
	"github.com/slicefund/pizza-claims/internal/vision"
	"github.com/slicefund/pizza-claims/internal/worker"
	"github.com/slicefund/pizza-claims/pkg/database"
	"github.com/slicefund/pizza-claims/pkg/utils"
)

func main() {
	// Local development convenience; ignored when no .env exists
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting pizza claims service", zap.Int("port", cfg.Server.Port))

	for _, dir := range []string{filepath.Dir(cfg.Database.Path), filepath.Dir(cfg.Mirror.WorkbookPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create data directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, storage.Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		BaseEndpoint:    cfg.Storage.BaseEndpoint,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		PresignTTL:      cfg.Storage.PresignTTL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	submissionRepo := repository.NewSubmissionRepository(db.DB, logger)
	normalizer := currency.NewNormalizer(cfg.Currency.LookupTimeout, logger)
	resolver := ens.NewResolver(cfg.ENS.Endpoint, cfg.ENS.Timeout, logger)
	extractor := vision.NewExtractor(vision.Config{
		APIKey:              cfg.OpenAI.APIKey,
		Model:               cfg.OpenAI.Model,
		MaxTokens:           cfg.OpenAI.MaxTokens,
		Timeout:             cfg.OpenAI.Timeout,
		ConfidenceThreshold: cfg.OpenAI.ConfidenceThreshold,
	}, store, logger)

	workbook := mirror.NewWorkbook(cfg.Mirror.WorkbookPath, logger)
	mirrorWorker := worker.NewMirrorWorker(workbook, cfg.Mirror.QueueSize, logger)

	workers := worker.NewManager(logger)
	workers.Register(mirrorWorker)
	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer workers.StopAll()

	submissionService := service.NewSubmissionService(submissionRepo, normalizer, resolver, mirrorWorker, logger)
	paymentService := service.NewPaymentService(submissionRepo, mirrorWorker, logger)

	handlers := httpserver.NewHandlers(submissionService, paymentService, store, extractor, normalizer, logger)
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
