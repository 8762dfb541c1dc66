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

	"github.com/queuetimes/parkpulse/internal/aggregation"
	"github.com/queuetimes/parkpulse/internal/anomaly"
	"github.com/queuetimes/parkpulse/internal/classification"
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
		os.Setenv("PORT", "8082")
	}

	cfg, err := config.Load("aggregator")
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting aggregator service",
		zap.String("service", "parkpulse-aggregator"),
		zap.String("environment", cfg.Server.Environment),
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
	aggRepo := aggregation.NewRepository(db)
	jobs := aggregation.NewLogRepository(db)

	// A runner that crashed mid-job leaves its marker behind; release stale
	// ones so this instance can claim the next window.
	if released, err := jobs.ReleaseStale(ctx, 2*time.Hour); err != nil {
		logger.Warn("failed to release stale job markers", zap.Error(err))
	} else if released > 0 {
		logger.Info("released stale job markers", zap.Int64("count", released))
	}

	service := aggregation.NewService(snapRepo, aggRepo, jobs, classStore, cfg, parkcal.SystemClock{})
	worker := aggregation.NewWorker(service)

	detector := anomaly.NewDetector(snapRepo, aggRepo, anomaly.NewRepository(db))
	go runDetectorDaily(ctx, detector)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		common.SuccessResponse(c, gin.H{"status": "ok", "service": "parkpulse-aggregator"})
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

	logger.Info("Shutting down aggregator...")
	worker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server forced to shutdown", zap.Error(err))
	}
	logger.Info("Aggregator stopped")
}

// runDetectorDaily scans yesterday's aggregates once per day, a few hours
// past midnight UTC so every park's daily job has had a chance to land.
func runDetectorDaily(ctx context.Context, detector *anomaly.Detector) {
	var lastScanned time.Time

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Hour() < 14 {
				continue
			}
			yesterday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
			if yesterday.Equal(lastScanned) {
				continue
			}
			if _, err := detector.Run(ctx, yesterday); err != nil {
				logger.Error("anomaly scan failed", zap.Error(err))
				continue
			}
			lastScanned = yesterday
		}
	}
}
