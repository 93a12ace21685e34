// Package quota answers how many more emails may be sent right now.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"mailbatch/internal/kv"
)

type Gate interface {
	Remaining(ctx context.Context) (int, error)
}

// Recorder is implemented by gates that count sends themselves.
type Recorder interface {
	Record(ctx context.Context, n int) error
}

const keyPrefix = "quota:"

// Ledger keeps a per-day send counter in the kv store and enforces a fixed
// daily limit. Days roll over in the configured location.
type Ledger struct {
	mu       sync.Mutex
	store    kv.Store
	limit    int
	location *time.Location
	now      func() time.Time
}

func NewLedger(store kv.Store, dailyLimit int, location *time.Location) *Ledger {
	if location == nil {
		location = time.UTC
	}
	return &Ledger{
		store:    store,
		limit:    dailyLimit,
		location: location,
		now:      time.Now,
	}
}

func (l *Ledger) Remaining(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	used, err := l.used(ctx)
	if err != nil {
		return 0, err
	}

	if used >= l.limit {
		return 0, nil
	}
	return l.limit - used, nil
}

func (l *Ledger) Record(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	used, err := l.used(ctx)
	if err != nil {
		return err
	}

	if err := l.store.Set(ctx, l.key(), strconv.Itoa(used+n)); err != nil {
		return fmt.Errorf("failed to record sends: %w", err)
	}
	return nil
}

func (l *Ledger) used(ctx context.Context) (int, error) {
	raw, err := l.store.Get(ctx, l.key())
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota ledger: %w", err)
	}

	used, err := strconv.Atoi(raw)
	if err != nil || used < 0 {
		return 0, nil
	}
	return used, nil
}

func (l *Ledger) key() string {
	return keyPrefix + l.now().In(l.location).Format(time.DateOnly)
}

// Unlimited never blocks a send.
type Unlimited struct{}

func (Unlimited) Remaining(context.Context) (int, error) {
	return int(^uint32(0) >> 1), nil
}

type Config struct {
	Driver     string
	DailyLimit int
	Timezone   string
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
