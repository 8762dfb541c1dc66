package aggregation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/pkg/logger"
)

// PruneSnapshots deletes raw snapshots older than the retention window, but
// only when a successful hourly run covers everything being deleted. Without
// that guard a crashed aggregator would silently lose history.
func (s *Service) PruneSnapshots(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-time.Duration(s.aggCfg.RetentionHours) * time.Hour)

	covered, err := s.jobs.SuccessCovers(ctx, JobHourly, cutoff)
	if err != nil {
		return err
	}
	if !covered {
		logger.Warn("skipping snapshot prune: hourly aggregation has not covered the cutoff",
			zap.Time("cutoff", cutoff),
		)
		return nil
	}

	deleted, err := s.snaps.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info("pruned raw snapshots",
			zap.Time("cutoff", cutoff),
			zap.Int64("rows", deleted),
		)
	}
	return nil
}
