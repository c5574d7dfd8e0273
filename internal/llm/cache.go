package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const modelListKey = "dialogeval:judge:models"

// RedisModelListCache keeps the remote model catalog in Redis with an
// explicit TTL, so repeated run starts within the window skip the remote
// list call.
type RedisModelListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewRedisModelListCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *RedisModelListCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisModelListCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisModelListCache) Get(ctx context.Context) ([]string, bool) {
	data, err := c.client.Get(ctx, modelListKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("model cache read failed")
		}
		return nil, false
	}

	var models []string
	if err := json.Unmarshal(data, &models); err != nil {
		c.logger.Warn().Err(err).Msg("model cache entry corrupt, dropping")
		_ = c.client.Del(ctx, modelListKey).Err()
		return nil, false
	}

	return models, true
}

func (c *RedisModelListCache) Set(ctx context.Context, models []string) {
	data, err := json.Marshal(models)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, modelListKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("model cache write failed")
	}
}

func (c *RedisModelListCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, modelListKey).Err()
}
