package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// AcquireLock sets key to owner unless it already exists. The lock expires
// after ttl even if it is never released.
func (c *Cache) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "lock:"+key, owner, ttl)
	return res.Val(), res.Err()
}

// releaseScript deletes the lock only while owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *Cache) ReleaseLock(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, c.client, []string{"lock:" + key}, owner).Err()
}
