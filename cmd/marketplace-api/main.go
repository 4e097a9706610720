package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
	"carbon-scribe/marketplace/marketplace-backend/internal/logger"
	"carbon-scribe/marketplace/marketplace-backend/internal/schema"
	"carbon-scribe/marketplace/marketplace-backend/pkg/storage"
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
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	sqlxDB, err := database.OpenSQLX(cfg.Database, db)
	if err != nil {
		zapLogger.Fatal("Failed to open read model connection", zap.Error(err))
	}
	defer sqlxDB.Close()

	ext, err := loadExternals(context.Background(), cfg)
	if err != nil {
		zapLogger.Fatal("Failed to configure AWS clients", zap.Error(err))
	}

	application := newApp(cfg, db, sqlxDB, ext, zapLogger)
	application.start(cfg.Notifications)

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      application.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Server started", zap.String("addr", srv.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	application.close()

	zapLogger.Info("Server exiting")
}

// loadExternals builds the S3, SNS and SES clients the config asks for.
func loadExternals(ctx context.Context, cfg *config.Config) (externals, error) {
	var ext externals
	needsAWS := cfg.Storage.Provider == "s3" ||
		cfg.Notifications.SNSTopicARN != "" ||
		cfg.Notifications.SESFromAddress != ""
	if !needsAWS {
		return ext, nil
	}

	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Storage.Region, cfg.Storage.AccessKey, cfg.Storage.SecretKey)
	if err != nil {
		return ext, err
	}

	if cfg.Storage.Provider == "s3" {
		ext.objects = storage.NewS3Client(awsCfg, storage.S3Options{
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
	}

	notifyCfg := awsCfg.Copy()
	if cfg.Notifications.Region != "" {
		notifyCfg.Region = cfg.Notifications.Region
	}
	if cfg.Notifications.SNSTopicARN != "" {
		ext.sns = sns.NewFromConfig(notifyCfg)
	}
	if cfg.Notifications.SESFromAddress != "" {
		ext.ses = sesv2.NewFromConfig(notifyCfg)
	}
	return ext, nil
}
