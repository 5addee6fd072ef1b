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

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/config"
	"github.com/SAP-F-2025/quiz-service/internal/handlers"
	"github.com/SAP-F-2025/quiz-service/internal/questions"
	"github.com/SAP-F-2025/quiz-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/SAP-F-2025/quiz-service/pkg"
	"github.com/gin-gonic/gin"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger := utils.NewLogger(os.Stdout, cfg.IsProduction())
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	slogger := utils.ToSlogLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, slogger)
	if err != nil {
		logger.LogError(err, "Failed to open progress store", "backend", cfg.StoreBackend)
		return 1
	}
	defer closeStore()

	telemetry, err := cfg.Events.CreateTelemetry(slogger)
	if err != nil {
		logger.LogError(err, "Failed to create telemetry sink", "publisher", cfg.Events.Publisher)
		return 1
	}
	defer telemetry.Close()

	// Programs submitted over HTTP are never compiled.
	quizValidator, err := validator.NewQuizValidator(validator.Options{Lightweight: true, Logger: slogger})
	if err != nil {
		logger.LogError(err, "Failed to create quiz validator")
		return 1
	}

	sessions := services.NewSessionManager(services.ManagerDeps{
		Registry:  questions.NewRegistry(nil),
		Store:     store,
		Telemetry: telemetry,
		Logger:    slogger,
	})
	defer sessions.Close()

	router := gin.New()
	router.Use(utils.LoggerMiddleware(logger), utils.ContextLogger(logger))
	handlers.NewHandlerManager(handlers.HandlerDeps{
		Sessions:  sessions,
		Exporter:  services.NewExportService(slogger),
		Telemetry: telemetry,
		Validator: quizValidator,
		Logger:    logger,
	}).SetupRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting quiz service", "port", cfg.Port, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down quiz service")
	case err := <-errCh:
		logger.LogError(err, "Server error")
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(err, "Failed to shut down server")
	}
	return code
}

// openStore selects where learner progress is kept.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := pkg.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisStore(client, cfg.ProgressTTL, logger), func() { client.Close() }, nil
	case config.StorePostgres:
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return repositories.NewProgressStore(postgres.NewProgressPostgreSQL(db)), closeDB, nil
	case config.StoreMemory, "":
		return cache.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
