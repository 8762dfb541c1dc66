package classification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/queuetimes/parkpulse/pkg/cache"
	"github.com/queuetimes/parkpulse/pkg/logger"
	"go.uber.org/zap"
)

const (
	cacheKey = "classification:all"
	cacheTTL = 15 * time.Minute
)

// ClassificationRepository defines the persistence operations required by the store.
type ClassificationRepository interface {
	ListAll(ctx context.Context) ([]*Classification, error)
	CurrentSchemaVersion(ctx context.Context) (int, error)
}

// Store is a read-mostly lookup of ride tier, weight and category. The
// in-process map is rebuilt on start and whenever the classifier bumps its
// schema version; the Redis layer shortens rebuilds across processes.
type Store struct {
	repo  ClassificationRepository
	cache *cache.Manager

	mu            sync.RWMutex
	byRide        map[int]*Classification
	schemaVersion int
}

// NewStore creates a classification store. The cache manager may be nil; the
// store then reads straight from the repository.
func NewStore(repo ClassificationRepository, cacheManager *cache.Manager) *Store {
	return &Store{
		repo:   repo,
		cache:  cacheManager,
		byRide: make(map[int]*Classification),
	}
}

// Rebuild reloads the in-process map from cache or database.
func (s *Store) Rebuild(ctx context.Context) error {
	var classifications []*Classification

	loaded := false
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &classifications); err == nil {
			loaded = true
		}
	}

	if !loaded {
		var err error
		classifications, err = s.repo.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load classifications: %w", err)
		}

		if s.cache != nil {
			if err := s.cache.Set(ctx, cacheKey, classifications, cacheTTL); err != nil {
				logger.Warn("failed to cache classifications", zap.Error(err))
			}
		}
	}

	version := 0
	byRide := make(map[int]*Classification, len(classifications))
	for _, c := range classifications {
		byRide[c.RideID] = c
		if c.SchemaVersion > version {
			version = c.SchemaVersion
		}
	}

	s.mu.Lock()
	s.byRide = byRide
	s.schemaVersion = version
	s.mu.Unlock()

	logger.Info("classification store rebuilt",
		zap.Int("rides", len(byRide)),
		zap.Int("schema_version", version),
	)

	return nil
}

// RefreshIfStale rebuilds the map when the classifier has published a new
// schema version. Invalidation is wholesale: any version change discards the
// entire map.
func (s *Store) RefreshIfStale(ctx context.Context) error {
	current, err := s.repo.CurrentSchemaVersion(ctx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	loaded := s.schemaVersion
	s.mu.RUnlock()

	if current == loaded {
		return nil
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			logger.Warn("failed to invalidate classification cache", zap.Error(err))
		}
	}

	return s.Rebuild(ctx)
}

// Lookup returns the classification for a ride, or nil when the classifier
// has not decided. Callers get defaults through Weight/EffectiveCategory.
func (s *Store) Lookup(rideID int) *Classification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byRide[rideID]
}

// WeightFor returns the tier weight for a ride, defaulting when unclassified.
func (s *Store) WeightFor(rideID int) int {
	return s.Lookup(rideID).Weight()
}

// CategoryFor returns the category for a ride, defaulting when unclassified.
func (s *Store) CategoryFor(rideID int) string {
	return s.Lookup(rideID).EffectiveCategory()
}
