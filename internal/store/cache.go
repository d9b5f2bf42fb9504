package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

// RedisClient is the subset of the go-redis client used by the descriptor cache
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// DescriptorCache is a read-through cache of active descriptors. The
// credential payload stays encrypted in the cache. Cache errors never fail
// the caller.
type DescriptorCache struct {
	redis RedisClient
	ttl   time.Duration
}

func NewDescriptorCache(client RedisClient, ttl time.Duration) *DescriptorCache {
	return &DescriptorCache{redis: client, ttl: ttl}
}

// NewRedisClient builds the go-redis client for the descriptor cache
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func descriptorKey(storeID string) string {
	return fmt.Sprintf("store_db:%s", storeID)
}

func (c *DescriptorCache) Get(ctx context.Context, storeID string) (*model.StoreDatabase, bool) {
	cached, err := c.redis.Get(ctx, descriptorKey(storeID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("store_id", storeID).Msg("Descriptor cache read failed")
		}
		return nil, false
	}

	d := &model.StoreDatabase{}
	if err := json.Unmarshal([]byte(cached), d); err != nil {
		log.Warn().Err(err).Str("store_id", storeID).Msg("Discarding undecodable cached descriptor")
		c.Invalidate(ctx, storeID)
		return nil, false
	}
	return d, true
}

func (c *DescriptorCache) Set(ctx context.Context, d *model.StoreDatabase) {
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := c.redis.SetEx(ctx, descriptorKey(d.StoreID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("store_id", d.StoreID).Msg("Descriptor cache write failed")
	}
}

func (c *DescriptorCache) Invalidate(ctx context.Context, storeID string) {
	if err := c.redis.Del(ctx, descriptorKey(storeID)).Err(); err != nil {
		log.Warn().Err(err).Str("store_id", storeID).Msg("Descriptor cache invalidation failed")
	}
}

func (c *DescriptorCache) Close() error {
	return c.redis.Close()
}
