package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through Redis cache for account lookups. Misses are
// collapsed through singleflight so a burst of postings referencing the same
// account produces one database load.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("accounts:id:%d", id)
}

// Fetch returns the cached account or populates it via the loader.
func (c *Cache) Fetch(ctx context.Context, id int64, loader func(context.Context) (Account, error)) (Account, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := cacheKey(id)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var account Account
		if err := json.Unmarshal(raw, &account); err == nil {
			return account, nil
		}
		// Corrupt payload; fall through to reload.
	} else if err != redis.Nil {
		return loader(ctx)
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		account, err := loader(ctx)
		if err != nil {
			return Account{}, err
		}
		if encoded, err := json.Marshal(account); err == nil {
			_ = c.client.Set(ctx, key, encoded, c.ttl).Err()
		}
		return account, nil
	})
	if err != nil {
		return Account{}, err
	}
	return value.(Account), nil
}

// Invalidate drops the cached entry after a write.
func (c *Cache) Invalidate(ctx context.Context, id int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, cacheKey(id)).Err()
}
