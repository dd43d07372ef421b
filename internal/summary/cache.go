package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps recently built views in Redis for a short window. A nil cache
// (or nil client) degrades to building on every call.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(folioID int64) string {
	return fmt.Sprintf("summary:folio:%d", folioID)
}

// Fetch loads a cached view or populates it using the loader.
func (c *Cache) Fetch(ctx context.Context, key string, dest *View, loader func(context.Context) (*View, error)) error {
	if loader == nil {
		return errors.New("summary: cache loader required")
	}
	if c == nil || c.client == nil {
		view, err := loader(ctx)
		if err != nil {
			return err
		}
		*dest = *view
		return nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	view, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	*dest = *view
	return nil
}

// Invalidate drops the cached view for a folio.
func (c *Cache) Invalidate(ctx context.Context, folioID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(folioID)).Err()
}
