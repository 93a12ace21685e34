package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const defaultExpiry = 10 * time.Minute

type RedisLocker struct {
	mutex *redsync.Mutex
}

func NewRedisLocker(client redis.UniversalClient, name string, expiry time.Duration) *RedisLocker {
	if name == "" {
		name = "mailbatch"
	}
	if expiry <= 0 {
		expiry = defaultExpiry
	}

	rs := redsync.New(goredis.NewPool(client))

	return &RedisLocker{
		mutex: rs.NewMutex("job-lock:"+name, redsync.WithExpiry(expiry), redsync.WithTries(1)),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context) (bool, error) {
	err := l.mutex.TryLockContext(ctx)
	if err == nil {
		return true, nil
	}

	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return false, nil
	}
	return false, fmt.Errorf("failed to acquire redis lock: %w", err)
}

func (l *RedisLocker) Unlock(ctx context.Context) error {
	if _, err := l.mutex.UnlockContext(ctx); err != nil {
		return fmt.Errorf("failed to release redis lock: %w", err)
	}
	return nil
}
