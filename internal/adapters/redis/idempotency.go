package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const responsePrefix = "gate:idemp:resp:"

// CachedResponse is a finished HTTP response kept for Idempotency-Key replay.
type CachedResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Result      []byte    `json:"result"`
	StoredAt    time.Time `json:"stored_at"`
}

type ResponseCache struct {
	client *redis.Client
	now    func() time.Time
}

func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client, now: time.Now}
}

// Load returns nil without error when nothing is cached under key.
func (c *ResponseCache) Load(ctx context.Context, key string) (*CachedResponse, error) {
	val, err := c.client.Get(ctx, responsePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load cached response %s", key)
	}
	var resp CachedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode cached response %s", key)
	}
	return &resp, nil
}

func (c *ResponseCache) Save(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	if resp.StoredAt.IsZero() {
		resp.StoredAt = c.now().UTC()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "encode cached response")
	}
	return errors.Wrapf(c.client.Set(ctx, responsePrefix+key, data, ttl).Err(), "save cached response %s", key)
}
