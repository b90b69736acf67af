package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// allowScript checks every key against its limit and increments all of them
// only if none is exhausted. ARGV holds limit,ttl_ms pairs in KEYS order.
var allowScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
  local current = tonumber(redis.call('GET', key) or '0')
  if current >= tonumber(ARGV[i*2-1]) then
    return 0
  end
end
for i, key in ipairs(KEYS) do
  local n = redis.call('INCR', key)
  if n == 1 then
    redis.call('PEXPIRE', key, ARGV[i*2])
  end
end
return 1
`)

// Redis is a Limiter backed by Redis counters with expiry.
type Redis struct {
	client redis.Scripter
	prefix string
}

// NewRedis wraps a go-redis client. Keys are stored as prefix+rule key.
func NewRedis(client redis.Scripter, prefix string) *Redis {
	if prefix == "" {
		prefix = "rl:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Allow(ctx context.Context, rules ...Rule) (bool, error) {
	if len(rules) == 0 {
		return true, nil
	}

	keys := make([]string, len(rules))
	args := make([]any, 0, len(rules)*2)
	for i, rule := range rules {
		keys[i] = r.prefix + rule.Key
		args = append(args, strconv.Itoa(rule.Limit), strconv.FormatInt(rule.Window.Milliseconds(), 10))
	}

	res, err := allowScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return res == 1, nil
}
