package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
	"carbon-scribe/marketplace/marketplace-backend/internal/logger"
	"carbon-scribe/marketplace/marketplace-backend/internal/schema"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
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
	if err := database.Migrate(db, schema.Migrations()...); err != nil {
		zapLogger.Fatal("Migration failed", zap.Error(err))
	}
	zapLogger.Info("Migrations applied", zap.Int("packages", len(schema.Migrations())))
}
