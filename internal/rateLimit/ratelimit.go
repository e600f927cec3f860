package rateLimit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/event-pass-gate/internal/adapters/redis"
)

// windowScript counts a hit and starts the window on the first one. It
// returns the count and the milliseconds left in the window.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow counts one request for key in a fixed window of period.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (Decision, error) {
	res, err := windowScript.Run(ctx, rl.redis.Client(), []string{"rl:" + key}, period.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, errors.Wrapf(err, "rate limit %s", key)
	}
	if len(res) != 2 {
		return Decision{}, errors.Newf("rate limit %s: unexpected reply %v", key, res)
	}

	count, ttl := res[0], res[1]
	d := Decision{Allowed: count <= int64(rate)}
	if d.Allowed {
		d.Remaining = rate - int(count)
	}
	if ttl > 0 {
		d.ResetIn = time.Duration(ttl) * time.Millisecond
	}
	return d, nil
}
