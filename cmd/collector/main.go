package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/internal/classification"
	"github.com/queuetimes/parkpulse/internal/collector"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/cache"
	"github.com/queuetimes/parkpulse/pkg/common"
	"github.com/queuetimes/parkpulse/pkg/config"
	"github.com/queuetimes/parkpulse/pkg/database"
	"github.com/queuetimes/parkpulse/pkg/logger"
	redisclient "github.com/queuetimes/parkpulse/pkg/redis"
)

func main() {
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8081")
	}

	cfg, err := config.Load("collector")
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting collector service",
		zap.String("service", "parkpulse-collector"),
		zap.String("environment", cfg.Server.Environment),
		zap.Int("interval_minutes", cfg.Collector.SnapshotIntervalMinutes),
	)

	if err := database.RunMigrations(&cfg.Database, "migrations"); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classStore := classification.NewStore(classification.NewRepository(db), cache.NewManager(redisClient))
	if err := classStore.Rebuild(ctx); err != nil {
		logger.Fatal("Failed to load ride classifications", zap.Error(err))
	}

	snapRepo := snapshots.NewRepository(db)
	client := collector.NewClient(cfg.Upstream)
	service := collector.NewService(snapRepo, client, classStore, cfg, parkcal.SystemClock{})
	worker := collector.NewWorker(service, cfg.Collector.SnapshotInterval())

	// Classifications change rarely; a periodic refresh picks up new rides
	// without a restart.
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := classStore.RefreshIfStale(ctx); err != nil {
					logger.Warn("classification refresh failed", zap.Error(err))
				}
			}
		}
	}()

	// Health and metrics sidecar endpoint.
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		common.SuccessResponse(c, gin.H{"status": "ok", "service": "parkpulse-collector"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start health server", zap.Error(err))
		}
	}()

	go worker.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down collector...")
	worker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server forced to shutdown", zap.Error(err))
	}
	logger.Info("Collector stopped")
}
