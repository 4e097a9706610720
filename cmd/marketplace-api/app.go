package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/documents"
	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
	"carbon-scribe/marketplace/marketplace-backend/internal/monitoring"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications/websocket"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports"
	"carbon-scribe/marketplace/marketplace-backend/internal/settings"
	"carbon-scribe/marketplace/marketplace-backend/pkg/storage"
)

// externals are the clients that need credentials or network access to
// build. Nil SNS/SES clients disable those sinks.
type externals struct {
	objects storage.S3Client
	sns     notifications.SNSAPI
	ses     notifications.SESAPI
}

type app struct {
	router        *gin.Engine
	notifications *notifications.Service
	live          *websocket.Manager
}

func newApp(cfg *config.Config, db *gorm.DB, sqlxDB *sqlx.DB, ext externals, logger *zap.Logger) *app {
	metrics := monitoring.NewMetrics()

	// Identity
	authRepo := auth.NewRepository(db)
	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTRefreshSecret,
		cfg.Security.AccessTokenTTL, cfg.Security.RefreshTokenTTL)
	authService := auth.NewService(authRepo, tokens, cfg.Security.BcryptCost, logger)
	settingsService := settings.NewService(authService, settings.NewRepository(db))

	// Event fan-out
	summaryCache := reports.NewSummaryCache(time.Minute)
	sinks := []notifications.Sink{summaryCache}
	var live *websocket.Manager
	if cfg.Notifications.WebSocket {
		live = websocket.NewManager(cfg.Server.AllowedOrigins, logger)
		sinks = append(sinks, live)
	}
	if ext.sns != nil && cfg.Notifications.SNSTopicARN != "" {
		sinks = append(sinks, notifications.NewSNSSink(ext.sns, cfg.Notifications.SNSTopicARN))
	}
	if ext.ses != nil && cfg.Notifications.SESFromAddress != "" {
		sinks = append(sinks, notifications.NewEmailSink(ext.ses, cfg.Notifications.SESFromAddress, authService, settingsService))
	}
	notificationService := notifications.NewService(notifications.NewRepository(db), logger, sinks...)
	notificationService.SetObserver(metrics.ObserveDelivery)

	// Registry and marketplace
	projectRepo := projects.NewRepository(db)
	engine := marketplace.NewEngine(marketplace.NewRepository(db), projectRepo, notificationService, logger,
		marketplace.WithObserver(metrics.ObserveTransition))
	projectService := projects.NewService(projectRepo, notificationService, logger, engine, documents.Cleaner{})

	objects := ext.objects
	if objects == nil {
		objects = storage.NewMemoryClient()
	}
	documentService := documents.NewService(
		documents.NewRepository(sqlxDB),
		documents.NewStorageProvider(objects, cfg.Storage.Bucket),
		projectService,
		cfg.Storage.MaxFileSize,
		logger,
	)
	reportService := reports.NewService(reports.NewPostgresRepository(sqlxDB), summaryCache, logger)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), metrics.Middleware(), cors(cfg.Server.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	})
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	requireAuth := auth.RequireAuth(authService)
	protected := api.Group("", requireAuth)

	auth.NewHandler(authService, logger).RegisterRoutes(api, requireAuth)
	settings.NewHandler(settingsService, logger).RegisterRoutes(protected)
	projects.NewHandler(projectService, logger).RegisterRoutes(protected)
	marketplace.NewHandler(engine, logger).RegisterRoutes(api, protected)
	documents.NewHandler(documentService, logger).RegisterRoutes(protected)
	reports.NewHandler(reportService, logger).RegisterRoutes(protected)
	notifications.NewHandler(notificationService, logger).RegisterRoutes(protected)
	if live != nil {
		websocket.NewHandler(live, authService, logger).RegisterRoutes(router)
	}

	return &app{router: router, notifications: notificationService, live: live}
}

// start begins asynchronous event delivery.
func (a *app) start(cfg config.NotificationsConfig) {
	a.notifications.Start(cfg.Workers, cfg.QueueSize)
}

// close drains queued events and disconnects live-feed clients.
func (a *app) close() {
	a.notifications.Close()
	if a.live != nil {
		a.live.Close()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func cors(allowed []string) gin.HandlerFunc {
	origin := strings.Join(allowed, ", ")
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
