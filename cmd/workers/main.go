package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
	"carbon-scribe/marketplace/marketplace-backend/internal/logger"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports/scheduler"
)

const jobTimeout = 5 * time.Minute

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.String("run", "", "run one job by name and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logging, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.Open(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlxDB, err := database.OpenSQLX(cfg.Database, db)
	if err != nil {
		zapLogger.Fatal("Failed to open read model connection", zap.Error(err))
	}
	defer sqlxDB.Close()

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTRefreshSecret,
		cfg.Security.AccessTokenTTL, cfg.Security.RefreshTokenTTL)
	authService := auth.NewService(auth.NewRepository(db), tokens, cfg.Security.BcryptCost, zapLogger)
	reportService := reports.NewService(reports.NewPostgresRepository(sqlxDB), nil, zapLogger)

	manager := scheduler.NewManager(zapLogger, jobTimeout)
	if err := registerJobs(manager, cfg.Workers, authService, reportService, zapLogger); err != nil {
		zapLogger.Fatal("Failed to register jobs", zap.Error(err))
	}

	if *once != "" {
		if err := manager.RunNow(context.Background(), *once); err != nil {
			zapLogger.Fatal("Job failed", zap.String("job", *once), zap.Error(err))
		}
		return
	}

	if err := manager.Start(); err != nil {
		zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down workers...")
	manager.Stop()
}
