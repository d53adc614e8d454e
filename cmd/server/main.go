// cmd/server/main.go - notification delivery service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edu-notify/internal/config"
	"edu-notify/internal/database"
	"edu-notify/internal/handlers"
	"edu-notify/internal/logger"
	"edu-notify/internal/middleware"
	"edu-notify/internal/services"
	"edu-notify/internal/store"
	"edu-notify/internal/websocket"
	"edu-notify/pkg/auth"
	"edu-notify/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	appVersion = "1.0.0"
	buildTime  = "unknown"
	gitCommit  = "unknown"
)

func main() {
	cfg := config.Load()

	log := logger.New(logger.Config{
		ServiceName: "edu-notify",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		FilePath:    cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	printStartupInfo(cfg, log)

	// MongoDB is needed by the mongo store and the mongo directory.
	var db *database.MongoDB
	if cfg.StoreDriver == "mongo" || cfg.DirectoryDriver == "mongo" {
		log.Info("🔌 Connecting to MongoDB...")
		var err error
		db, err = database.NewMongoDB(cfg, log)
		if err != nil {
			log.WithError(err).Fatal("❌ Failed to connect to MongoDB")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.CreateIndexes(ctx); err != nil {
			log.WithError(err).Warn("⚠️  Failed to create some indexes")
		}
		cancel()

		// The mongo store owns the client when it is selected.
		if cfg.StoreDriver != "mongo" {
			defer db.Close()
		}
	}

	notificationStore, err := newStore(cfg, db)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to open notification store")
	}
	defer func() {
		if err := notificationStore.Close(); err != nil {
			log.WithError(err).Warn("⚠️  Error closing notification store")
		}
	}()

	directory, err := newDirectory(cfg, db)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to set up audience directory")
	}

	validator.Init()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, time.Duration(cfg.JWTExpiration)*time.Hour)

	registry := websocket.NewRegistry()
	metrics := services.NewMetrics()
	broadcaster := services.NewBroadcaster(
		services.NewAudienceResolver(directory),
		notificationStore,
		registry,
		metrics,
		cfg.FanoutWorkers,
		log,
	)

	var sendLimiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		sendLimiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitDuration)
		defer sendLimiter.Stop()
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Store:          notificationStore,
		Broadcaster:    broadcaster,
		Registry:       registry,
		JWTManager:     jwtManager,
		SendLimiter:    sendLimiter,
		AllowedOrigins: cfg.AllowedOrigins,
		WSSendBuffer:   cfg.WSSendBuffer,
		Version:        appVersion,
		Log:            log,
	})

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	go services.LogMetricsPeriodically(metricsCtx, metrics, log, 5*time.Minute)

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		log.Infof("🚀 Notification service v%s starting...", appVersion)
		log.Infof("🌐 Server running on http://%s:%s", cfg.Host, cfg.Port)
		log.Infof("📡 WebSocket endpoint: ws://%s:%s/ws", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("❌ Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	log.WithField("connections", registry.ConnectionsCount()).Info("closing live sessions")
	registry.CloseAll()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("⚠️  Server forced to shutdown")
	} else {
		log.Info("✅ Server gracefully stopped")
	}

	stopMetrics()
	log.Info("👋 Notification service exited")
}

func newStore(cfg *config.Config, db *database.MongoDB) (store.NotificationStore, error) {
	switch cfg.StoreDriver {
	case "mongo":
		return store.NewMongoStore(db), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func newDirectory(cfg *config.Config, db *database.MongoDB) (services.Directory, error) {
	switch cfg.DirectoryDriver {
	case "mongo":
		return services.NewMongoDirectory(db), nil
	case "http":
		dir := services.NewHTTPDirectory(cfg.DirectoryURL, cfg.DirectoryTimeout)
		if cfg.DirectoryToken != "" {
			dir.WithServiceToken(cfg.DirectoryToken)
		}
		return dir, nil
	}
	return nil, fmt.Errorf("unknown DIRECTORY_DRIVER %q", cfg.DirectoryDriver)
}

func printStartupInfo(cfg *config.Config, log logrus.FieldLogger) {
	log.Info("================================================================================")
	log.Info("🔔 Notification delivery service")
	log.Infof("📌 Version: %s | Build: %s | Commit: %s", appVersion, buildTime, gitCommit)
	log.Infof("🌍 Environment: %s", cfg.Environment)
	log.Info("🔧 Configuration:")
	log.Infof("   • Host: %s", cfg.Host)
	log.Infof("   • Port: %s", cfg.Port)
	log.Infof("   • Store: %s", cfg.StoreDriver)
	log.Infof("   • Directory: %s", cfg.DirectoryDriver)
	log.Infof("   • CORS Origins: %v", cfg.AllowedOrigins)
	log.Infof("   • Fan-out workers: %d", cfg.FanoutWorkers)
	if cfg.RateLimitEnabled {
		log.Infof("   • Send rate limit: %d requests per %s", cfg.RateLimitRequests, cfg.RateLimitDuration)
	}
	log.Info("================================================================================")
}
