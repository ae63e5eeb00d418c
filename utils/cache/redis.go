// Package cache provides the three cache layers used on the redirect hot
// path: a Redis wrapper (L2), a bounded in-process LRU (L1), and the
// multi-layer composition over both plus the primary store (L3).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/config"
)

// DefaultOpTimeout bounds every cache round-trip on the hot path.
const DefaultOpTimeout = 500 * time.Millisecond

// Key builders. All Redis keys used by the service are minted here.

func URLCacheKey(shortCode string) string {
	return fmt.Sprintf("url:short:%s", shortCode)
}

func SummaryCacheKey(shortCode, date string) string {
	return fmt.Sprintf("analytics:summary:%s:%s", shortCode, date)
}

func GlobalSummaryCacheKey(date string) string {
	return fmt.Sprintf("analytics:global:%s", date)
}

func RateLimitKey(principal string) string {
	return fmt.Sprintf("ratelimit:%s", principal)
}

// Redis wraps the go-redis client with the JSON helpers the services use.
type Redis struct {
	client redis.UniversalClient
	log    *logrus.Entry
}

// NewRedis connects with the configured retry strategy. Cluster mode is
// selected automatically when clusterNodes is set.
func NewRedis(cfg *config.Config, log *logrus.Logger) (*Redis, error) {
	retryDelay := time.Duration(cfg.Cache.RetryDelayMs) * time.Millisecond

	var client redis.UniversalClient
	if len(cfg.Cache.ClusterNodes) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           cfg.Cache.ClusterNodes,
			Password:        cfg.Cache.Password,
			MaxRetries:      cfg.Cache.MaxRetries,
			MinRetryBackoff: retryDelay,
			MaxRetryBackoff: retryDelay * 8,
			ReadTimeout:     DefaultOpTimeout,
			WriteTimeout:    DefaultOpTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:            cfg.RedisAddr(),
			Password:        cfg.Cache.Password,
			DB:              cfg.Cache.DB,
			MaxRetries:      cfg.Cache.MaxRetries,
			MinRetryBackoff: retryDelay,
			MaxRetryBackoff: retryDelay * 8,
			ReadTimeout:     DefaultOpTimeout,
			WriteTimeout:    DefaultOpTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.WithFields(logrus.Fields{"component": "cache", "addr": cfg.RedisAddr()}).Info("connected to Redis")
	return &Redis{client: client, log: log.WithField("component", "cache")}, nil
}

// NewRedisFromClient wraps an existing client (tests use miniredis here).
func NewRedisFromClient(client redis.UniversalClient, log *logrus.Logger) *Redis {
	return &Redis{client: client, log: log.WithField("component", "cache")}
}

func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

// GetJSON returns found=false on a clean miss; errors are real failures.
func (r *Redis) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Hash-field operations back the token-bucket limiter state.

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

// HSetWithExpiry persists hash fields and the key expiry in one round-trip.
func (r *Redis) HSetWithExpiry(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Pipeline exposes a raw pipeline for batch operations (cache warm-up).
func (r *Redis) Pipeline() redis.Pipeliner {
	return r.client.Pipeline()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
