package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RecurringSweepLockKey guards a single recurring-expense sweep across workers.
const RecurringSweepLockKey = "ledger:recurring:sweep:lock"

// ErrLockHeld indicates another holder owns the lock.
var ErrLockHeld = errors.New("lock already held")

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker provides best-effort mutual exclusion on top of SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker constructs the locker.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// WithLock runs fn while holding key. It returns ErrLockHeld without running fn when
// the key is already taken.
func (l *RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return errors.New("redis locker not initialised")
	}
	if key == "" {
		return errors.New("lock key required")
	}
	if ttl <= 0 {
		return errors.New("lock ttl must be positive")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: acquire lock %s: %w", ErrUnavailable, key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() {
		// Released on a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}()
	return fn(ctx)
}
