package tariff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/platform/cache"
	"github.com/carehub/carehub/internal/platform/metrics"
)

// Cache is the byte store behind CachedRowRepository; cache.Redis and
// cache.Memory both satisfy it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

const cachePrefix = "tariff:rows:"

func rowsCacheKey(year int, categoryID uuid.UUID, place Place) string {
	return fmt.Sprintf("%s%d:%s:%s", cachePrefix, year, categoryID, place)
}

// CachedRowRepository is a read-through cache over a RowRepository. Writes go
// straight to the database and drop every cached tier list. Cache failures
// degrade to database reads and are logged, never returned.
type CachedRowRepository struct {
	RowRepository
	cache   Cache
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewCachedRowRepository(inner RowRepository, c Cache, ttl time.Duration, logger zerolog.Logger, m *metrics.Metrics) *CachedRowRepository {
	return &CachedRowRepository{RowRepository: inner, cache: c, ttl: ttl, logger: logger, metrics: m}
}

func (r *CachedRowRepository) RowsFor(ctx context.Context, year int, categoryID uuid.UUID, place Place) ([]*Row, error) {
	key := rowsCacheKey(year, categoryID, place)

	data, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rows []*Row
		if err := json.Unmarshal(data, &rows); err == nil {
			r.hit()
			return rows, nil
		}
		r.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable tariff cache entry")
	case !errors.Is(err, cache.ErrMiss):
		r.logger.Warn().Err(err).Str("key", key).Msg("tariff cache read failed")
	}
	r.miss()

	rows, err := r.RowRepository.RowsFor(ctx, year, categoryID, place)
	if err != nil {
		return nil, err
	}
	// Empty results are not cached so a later import is picked up at once.
	if len(rows) == 0 {
		return rows, nil
	}
	if data, err := json.Marshal(rows); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("tariff cache write failed")
		}
	}
	return rows, nil
}

func (r *CachedRowRepository) Upsert(ctx context.Context, row *Row) error {
	if err := r.RowRepository.Upsert(ctx, row); err != nil {
		return err
	}
	r.Invalidate(ctx)
	return nil
}

func (r *CachedRowRepository) DeleteYear(ctx context.Context, year int, place Place) (int, error) {
	n, err := r.RowRepository.DeleteYear(ctx, year, place)
	if err != nil {
		return n, err
	}
	r.Invalidate(ctx)
	return n, nil
}

// Invalidate drops all cached tier lists.
func (r *CachedRowRepository) Invalidate(ctx context.Context) {
	if _, err := r.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		r.logger.Error().Err(err).Msg("tariff cache invalidation failed")
	}
}

func (r *CachedRowRepository) hit() {
	if r.metrics != nil {
		r.metrics.TariffCacheHits.Inc()
	}
}

func (r *CachedRowRepository) miss() {
	if r.metrics != nil {
		r.metrics.TariffCacheMisses.Inc()
	}
}
