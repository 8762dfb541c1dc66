package aggregation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/pkg/logger"
)

// Worker schedules the aggregation jobs: hourly shortly after each hour
// boundary, daily and rollups on a slower cadence, retention pruning after
// each hourly pass. Missed windows are caught up on the next tick because
// every job is idempotent.
type Worker struct {
	service *Service
	done    chan struct{}

	lastHourly  time.Time
	lastDaily   time.Time
	lastWeekly  time.Time
	lastMonthly time.Time
}

// NewWorker creates an aggregation worker.
func NewWorker(service *Service) *Worker {
	return &Worker{
		service: service,
		done:    make(chan struct{}),
	}
}

// Start runs the scheduling loop until the context is cancelled or Stop is
// called.
func (w *Worker) Start(ctx context.Context) {
	logger.Info("aggregation worker starting")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("aggregation worker stopping: context cancelled")
			return
		case <-w.done:
			logger.Info("aggregation worker stopping")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop signals the worker to exit.
func (w *Worker) Stop() {
	close(w.done)
}

func (w *Worker) tick(ctx context.Context) {
	now := w.service.clock.Now()

	// Hourly: fire once per hour, a few minutes past the boundary so the
	// last collection cycle of the hour has landed.
	prevHour := now.Truncate(time.Hour).Add(-time.Hour)
	delay := time.Duration(w.service.aggCfg.HourlyDelayMin) * time.Minute
	if now.Sub(prevHour.Add(time.Hour)) >= delay && prevHour.After(w.lastHourly) {
		if w.run(ctx, "hourly", func() error { return w.service.RunHourly(ctx, prevHour) }) {
			w.lastHourly = prevHour
			w.run(ctx, "prune", func() error { return w.service.PruneSnapshots(ctx) })
		}
	}

	// Daily: once per hour; the job itself resolves each park's local
	// "yesterday" and upserts, so frequent runs only refresh rows.
	if now.Sub(w.lastDaily) >= time.Hour {
		if w.run(ctx, "daily", func() error { return w.service.RunDaily(ctx) }) {
			w.lastDaily = now
		}
	}

	// Weekly and monthly: once per day.
	if now.Sub(w.lastWeekly) >= 24*time.Hour {
		if w.run(ctx, "weekly", func() error { return w.service.RunWeekly(ctx) }) {
			w.lastWeekly = now
		}
	}
	if now.Sub(w.lastMonthly) >= 24*time.Hour {
		if w.run(ctx, "monthly", func() error { return w.service.RunMonthly(ctx) }) {
			w.lastMonthly = now
		}
	}
}

func (w *Worker) run(ctx context.Context, name string, job func() error) bool {
	start := time.Now()
	err := job()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err == nil {
		jobRunsTotal.WithLabelValues(name, "success").Inc()
		return true
	}
	if errors.Is(err, ErrJobAlreadyRunning) {
		jobRunsTotal.WithLabelValues(name, "skipped").Inc()
		logger.Info("skipping job: another runner holds the marker", zap.String("job", name))
		return false
	}
	jobRunsTotal.WithLabelValues(name, "failed").Inc()
	logger.Error("aggregation job failed", zap.String("job", name), zap.Error(err))
	return false
}
