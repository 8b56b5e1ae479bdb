package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

const applicationVersionKeyPrefix = "m04:app_version:"

// RedisApplicationVersionCache keeps application versions in Redis hashes.
type RedisApplicationVersionCache struct {
	client *redis.Client
}

func NewRedisApplicationVersionCache(client *redis.Client) *RedisApplicationVersionCache {
	return &RedisApplicationVersionCache{client: client}
}

func (c *RedisApplicationVersionCache) Get(ctx context.Context, applicationKey string) (domain.ApplicationVersion, bool, error) {
	data, err := c.client.HGetAll(ctx, applicationVersionKeyPrefix+applicationKey).Result()
	if err != nil {
		return domain.ApplicationVersion{}, false, err
	}
	if len(data) == 0 {
		return domain.ApplicationVersion{}, false, nil
	}
	appID, err := strconv.ParseInt(data["application_id"], 10, 64)
	if err != nil {
		// A damaged entry is treated as a miss and overwritten on the next Put.
		return domain.ApplicationVersion{}, false, nil
	}
	return domain.ApplicationVersion{
		ApplicationID:     appID,
		ApplicationKey:    applicationKey,
		ApplicationSecret: data["application_secret"],
		Name:              data["name"],
		Supported:         data["supported"] == "1",
	}, true, nil
}

func (c *RedisApplicationVersionCache) Put(ctx context.Context, version domain.ApplicationVersion, ttl time.Duration) error {
	key := applicationVersionKeyPrefix + version.ApplicationKey
	supported := "0"
	if version.Supported {
		supported = "1"
	}
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"application_id", version.ApplicationID,
			"application_secret", version.ApplicationSecret,
			"name", version.Name,
			"supported", supported,
		)
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}
