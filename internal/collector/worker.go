package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/pkg/logger"
)

// Worker drives the collector on the configured cadence.
type Worker struct {
	service  *Service
	interval time.Duration
	done     chan struct{}
}

// NewWorker creates a collection worker.
func NewWorker(service *Service, interval time.Duration) *Worker {
	return &Worker{
		service:  service,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs collection cycles until the context is cancelled or Stop is
// called. The first cycle fires immediately.
func (w *Worker) Start(ctx context.Context) {
	logger.Info("collector worker starting", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.run(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("collector worker stopping: context cancelled")
			return
		case <-w.done:
			logger.Info("collector worker stopping")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

// Stop signals the worker to exit after the current cycle.
func (w *Worker) Stop() {
	close(w.done)
}

func (w *Worker) run(ctx context.Context) {
	if err := w.service.RunCycle(ctx); err != nil {
		logger.Error("collection cycle failed", zap.Error(err))
	}
}
