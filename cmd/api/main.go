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
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/rankings"
	"github.com/queuetimes/parkpulse/pkg/cache"
	"github.com/queuetimes/parkpulse/pkg/common"
	"github.com/queuetimes/parkpulse/pkg/config"
	"github.com/queuetimes/parkpulse/pkg/database"
	"github.com/queuetimes/parkpulse/pkg/logger"
	"github.com/queuetimes/parkpulse/pkg/middleware"
	"github.com/queuetimes/parkpulse/pkg/ratelimit"
	redisclient "github.com/queuetimes/parkpulse/pkg/redis"
)

func main() {
	cfg, err := config.Load("api")
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting API service",
		zap.String("service", "parkpulse-api"),
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

	cacheManager := cache.NewManager(redisClient)

	repo := rankings.NewRepository(db, cfg.Shame.SimilarOperators, cfg.Collector.SnapshotIntervalMinutes)
	jobs := aggregation.NewLogRepository(db)
	service := rankings.NewService(repo, cacheManager, jobs, cfg, parkcal.SystemClock{})
	handler := rankings.NewHandler(service)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(cfg.Server.ServiceName))
	router.Use(middleware.Metrics(cfg.Server.ServiceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.RequestTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)
		router.Use(middleware.RateLimit(limiter, cfg.RateLimit))
	}

	router.GET("/healthz", func(c *gin.Context) {
		common.SuccessResponse(c, gin.H{"status": "ok", "service": "parkpulse-api"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			common.ErrorResponse(c, http.StatusServiceUnavailable, "database not ready")
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			common.ErrorResponse(c, http.StatusServiceUnavailable, "redis not ready")
			return
		}
		common.SuccessResponse(c, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("API service listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}
