package trial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares counters between replicas. Windowed counters carry a TTL
// anchored at first use.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Count(ctx context.Context, action Action, subject string) (int, error) {
	n, err := s.client.Get(ctx, counterKey(action, subject)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

// incrScript increments the counter and, for windowed counters, sets the TTL
// when the key has none. Both happen in one atomic step.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
local ttl = tonumber(ARGV[1])
if ttl > 0 and redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
end
return n
`)

func (s *RedisStore) Incr(ctx context.Context, action Action, subject string, window time.Duration) (int, error) {
	n, err := incrScript.Run(ctx, s.client, []string{counterKey(action, subject)}, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}
