package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gexpipe/config"
	"gexpipe/logger"
)

const expiryKeyPrefix = "instrument:expiries:"

var (
	redisInstance *RedisCache
	redisOnce     sync.Once
)

// RedisCache caches upstream lookups that are expensive to repeat, such as
// per-instrument expiry lists.
type RedisCache struct {
	client *redis.Client
	log    *logger.Logger
}

// GetRedisCache creates or returns the existing Redis cache instance
func GetRedisCache() (*RedisCache, error) {
	var initErr error
	redisOnce.Do(func() {
		cfg := &config.GetConfig().Redis

		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Host + ":" + cfg.Port,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.MaxConnections,
			MinIdleConns: cfg.MinConnections,
			DialTimeout:  cfg.GetConnectTimeout(),
			ReadTimeout:  cfg.GetConnectTimeout(),
			WriteTimeout: cfg.GetConnectTimeout(),
		})

		if err := client.Ping(context.Background()).Err(); err != nil {
			initErr = fmt.Errorf("failed to connect to Redis: %w", err)
			return
		}

		redisInstance = &RedisCache{
			client: client,
			log:    logger.L(),
		}

		redisInstance.log.Info("Redis cache initialized", map[string]interface{}{
			"host": cfg.Host,
			"port": cfg.Port,
		})
	})

	if initErr != nil {
		return nil, initErr
	}
	if redisInstance == nil {
		return nil, fmt.Errorf("redis cache initialization failed previously")
	}
	return redisInstance, nil
}

// StoreExpiryList caches an instrument's expiry list with a TTL
func (rc *RedisCache) StoreExpiryList(ctx context.Context, instrument string, expiries []string, ttl time.Duration) error {
	data, err := json.Marshal(expiries)
	if err != nil {
		return fmt.Errorf("failed to marshal expiry list: %w", err)
	}

	if err := rc.client.Set(ctx, expiryKeyPrefix+instrument, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store expiry list: %w", err)
	}
	return nil
}

// GetExpiryList returns the cached expiry list for an instrument, if present
func (rc *RedisCache) GetExpiryList(ctx context.Context, instrument string) ([]string, bool) {
	data, err := rc.client.Get(ctx, expiryKeyPrefix+instrument).Bytes()
	if err != nil {
		return nil, false
	}

	var expiries []string
	if err := json.Unmarshal(data, &expiries); err != nil {
		rc.log.Error("Failed to unmarshal cached expiry list", map[string]interface{}{
			"instrument": instrument,
			"error":      err.Error(),
		})
		return nil, false
	}
	return expiries, true
}

// Close closes the Redis client
func (rc *RedisCache) Close() {
	if rc.client != nil {
		rc.client.Close()
	}
}
