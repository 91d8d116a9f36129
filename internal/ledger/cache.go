package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// LevelCache is a read-through Redis cache for individual stock levels. Every
// applied adjustment invalidates the touched keys, so a hit is at most TTL
// behind a write that happened on another instance.
type LevelCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLevelCache constructs LevelCache.
func NewLevelCache(client *redis.Client, ttl time.Duration) *LevelCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LevelCache{client: client, ttl: ttl}
}

func levelKey(itemID, storeID string) string {
	return "stock:" + itemID + ":" + storeID
}

// Get returns the cached level and whether it was present.
func (c *LevelCache) Get(ctx context.Context, itemID, storeID string) (StockLevel, bool, error) {
	raw, err := c.client.Get(ctx, levelKey(itemID, storeID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return StockLevel{}, false, nil
		}
		return StockLevel{}, false, err
	}
	var level StockLevel
	if err := json.Unmarshal(raw, &level); err != nil {
		return StockLevel{}, false, err
	}
	return level, true, nil
}

// Set stores one level under its key.
func (c *LevelCache) Set(ctx context.Context, level StockLevel) error {
	raw, err := json.Marshal(level)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, levelKey(level.ItemID, level.StoreID), raw, c.ttl).Err()
}

// Invalidate drops one level from the cache.
func (c *LevelCache) Invalidate(ctx context.Context, itemID, storeID string) error {
	return c.client.Del(ctx, levelKey(itemID, storeID)).Err()
}
