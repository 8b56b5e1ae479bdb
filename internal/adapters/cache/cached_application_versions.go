package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

// CachedApplicationVersions is a read-through decorator over the application version store.
// Unknown keys are not cached. Cache failures fall back to the store.
type CachedApplicationVersions struct {
	next  ports.ApplicationVersionRepository
	cache ports.ApplicationVersionCache
	ttl   time.Duration
}

func NewCachedApplicationVersions(next ports.ApplicationVersionRepository, cache ports.ApplicationVersionCache, ttl time.Duration) *CachedApplicationVersions {
	return &CachedApplicationVersions{next: next, cache: cache, ttl: ttl}
}

func (c *CachedApplicationVersions) FindByKey(ctx context.Context, applicationKey string) (domain.ApplicationVersion, bool, error) {
	if c.ttl > 0 {
		cached, ok, err := c.cache.Get(ctx, applicationKey)
		if err != nil {
			cacheLogger().WarnContext(ctx, "application version cache read failed",
				"operation", "cache_get_application_version",
				"outcome", "failure",
				"error", err,
			)
		} else if ok {
			return cached, true, nil
		}
	}

	version, found, err := c.next.FindByKey(ctx, applicationKey)
	if err != nil || !found || c.ttl <= 0 {
		return version, found, err
	}
	if err := c.cache.Put(ctx, version, c.ttl); err != nil {
		cacheLogger().WarnContext(ctx, "application version cache write failed",
			"operation", "cache_put_application_version",
			"outcome", "failure",
			"error", err,
		)
	}
	return version, true, nil
}

func cacheLogger() *slog.Logger {
	return slog.Default().With(
		"service", "M04-Activation-Signature-Service",
		"module", "cache",
		"layer", "adapter",
	)
}
