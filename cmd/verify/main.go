package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/internal/aggregation"
	"github.com/queuetimes/parkpulse/internal/audit"
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
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute one day's aggregates from raw snapshots and report discrepancies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(dateFlag)
		},
	}
	cmd.Flags().StringVar(&dateFlag, "date", "", "local calendar date to verify (YYYY-MM-DD, default yesterday UTC)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(dateFlag string) error {
	cfg, err := config.Load("verify")
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	date := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	if dateFlag != "" {
		date, err = time.Parse("2006-01-02", dateFlag)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateFlag, err)
		}
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

	ctx := context.Background()
	classStore := classification.NewStore(classification.NewRepository(db), cache.NewManager(redisClient))
	if err := classStore.Rebuild(ctx); err != nil {
		logger.Fatal("Failed to load ride classifications", zap.Error(err))
	}

	verifier := audit.NewVerifier(
		snapshots.NewRepository(db),
		aggregation.NewRepository(db),
		classStore,
		cfg,
		parkcal.SystemClock{},
	)

	report, err := verifier.VerifyDay(ctx, date)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if report.Severity == audit.SeverityCritical {
		return fmt.Errorf("verification found critical discrepancies for %s", date.Format("2006-01-02"))
	}
	return nil
}
