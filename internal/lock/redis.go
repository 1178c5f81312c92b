package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete
// release, so every process sharing the Redis instance shares the locks.
type RedisLocker struct {
	client  redis.Cmdable
	prefix  string
	backoff backoff
}

func NewRedisLocker(client redis.Cmdable, prefix string) *RedisLocker {
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "bookshare"
	}
	return &RedisLocker{
		client:  client,
		prefix:  normalized + ":lock:",
		backoff: defaultBackoff(),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, wait, hold time.Duration) (*Lock, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if hold <= 0 {
		return nil, errors.New("lock hold must be positive")
	}

	redisKey := l.prefix + key
	token := uuid.NewString()
	err := l.backoff.poll(ctx, wait, func(ctx context.Context) (bool, error) {
		ok, err := l.client.SetNX(ctx, redisKey, token, hold).Result()
		if err != nil {
			return false, fmt.Errorf("lock setnx: %w", err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	return newLock(key, token, func(ctx context.Context) error {
		_, err := releaseLockScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("lock release: %w", err)
		}
		return nil
	}), nil
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
