package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/internal/aggregation"
	"github.com/queuetimes/parkpulse/internal/classification"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/cache"
	"github.com/queuetimes/parkpulse/pkg/config"
	"github.com/queuetimes/parkpulse/pkg/database"
	"github.com/queuetimes/parkpulse/pkg/logger"
	redisclient "github.com/queuetimes/parkpulse/pkg/redis"
)

func main() {
	var (
		startFlag   string
		endFlag     string
		versionFlag string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild hourly and daily aggregates from raw snapshots over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(startFlag, endFlag, versionFlag, dryRun)
		},
	}
	cmd.Flags().StringVar(&startFlag, "start-date", "", "first local date to recompute (YYYY-MM-DD, required)")
	cmd.Flags().StringVar(&endFlag, "end-date", "", "last local date to recompute (YYYY-MM-DD, default start-date)")
	cmd.Flags().StringVar(&versionFlag, "metrics-version", "", "metrics version to stamp on recomputed rows (default configured version)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and log without writing")
	_ = cmd.MarkFlagRequired("start-date")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(startFlag, endFlag, versionFlag string, dryRun bool) error {
	start, err := time.Parse("2006-01-02", startFlag)
	if err != nil {
		return fmt.Errorf("invalid --start-date %q: %w", startFlag, err)
	}
	end := start
	if endFlag != "" {
		end, err = time.Parse("2006-01-02", endFlag)
		if err != nil {
			return fmt.Errorf("invalid --end-date %q: %w", endFlag, err)
		}
	}

	cfg, err := config.Load("recompute")
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

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

	ctx := context.Background()
	classStore := classification.NewStore(classification.NewRepository(db), cache.NewManager(redisClient))
	if err := classStore.Rebuild(ctx); err != nil {
		logger.Fatal("Failed to load ride classifications", zap.Error(err))
	}

	service := aggregation.NewService(
		snapshots.NewRepository(db),
		aggregation.NewRepository(db),
		aggregation.NewLogRepository(db),
		classStore,
		cfg,
		parkcal.SystemClock{},
	)

	return service.Recompute(ctx, aggregation.RecomputeOptions{
		StartDate:      start,
		EndDate:        end,
		MetricsVersion: versionFlag,
		DryRun:         dryRun,
	})
}
