// Package lock guards a job run so two processes sharing a store never
// interleave.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Locker interface {
	// TryLock returns false without error when someone else holds the lock.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

type Config struct {
	Driver string
	Path   string
	Name   string
	Expiry time.Duration
}

// New returns the locker for the configured driver. client is only used by
// the redis driver.
func New(cfg Config, client redis.UniversalClient) (Locker, error) {
	switch cfg.Driver {
	case "", "none":
		return NopLocker{}, nil
	case "flock":
		if cfg.Path == "" {
			return nil, fmt.Errorf("flock lock requires a path")
		}
		return NewFSLocker(cfg.Path), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis lock requires a redis connection")
		}
		return NewRedisLocker(client, cfg.Name, cfg.Expiry), nil
	default:
		return nil, fmt.Errorf("unknown lock driver: %s", cfg.Driver)
	}
}

type NopLocker struct{}

func (NopLocker) TryLock(context.Context) (bool, error) {
	return true, nil
}

func (NopLocker) Unlock(context.Context) error {
	return nil
}
