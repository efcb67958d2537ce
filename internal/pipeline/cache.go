package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edugraph/edugraph-api/internal/models"
)

// Cache stores action results keyed by action configuration and input so
// expensive container runs are not repeated for unchanged answers.
type Cache interface {
	Get(ctx context.Context, key string) (ActionResult, bool)
	Set(ctx context.Context, key string, result ActionResult)
}

// RedisCache implements Cache on Redis with a bounded TTL. Cache failures are
// logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache constructs the cache. A zero TTL defaults to one hour.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "action_cache").Logger(),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (ActionResult, bool) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("action cache read failed")
		}
		return ActionResult{}, false
	}

	var result ActionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Warn().Err(err).Msg("action cache entry corrupt")
		return ActionResult{}, false
	}
	return result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result ActionResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn().Err(err).Msg("action cache encode failed")
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("action cache write failed")
	}
}

// cacheKey derives a stable key from the action's identity, configuration and
// the inputs that influence its result.
func cacheKey(action models.Action, rc RunContext) string {
	hasher := sha256.New()
	fmt.Fprintf(hasher, "%d|%s|", action.ID, action.Type)
	hasher.Write([]byte(action.Config))
	hasher.Write([]byte(strings.Join(rc.Answer, "\x1f")))
	if rc.Data != nil {
		if raw, err := json.Marshal(rc.Data); err == nil {
			hasher.Write(raw)
		}
	}
	return "action_result:" + hex.EncodeToString(hasher.Sum(nil))
}
