package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/nemscan/backend/repository"
)

type groupNameCache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewGroupNameCache creates a Redis-backed cache for product group names.
func NewGroupNameCache(client *redislib.Client, ttl time.Duration) repository.GroupNameCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &groupNameCache{
		client: client,
		prefix: "product_group:",
		ttl:    ttl,
	}
}

func (c *groupNameCache) Get(ctx context.Context, groupID string) (string, bool, error) {
	name, err := c.client.Get(ctx, c.key(groupID)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return name, true, nil
}

func (c *groupNameCache) Set(ctx context.Context, groupID, name string) error {
	return c.client.Set(ctx, c.key(groupID), name, c.ttl).Err()
}

func (c *groupNameCache) key(id string) string {
	return fmt.Sprintf("%s%s", c.prefix, id)
}
