package lock

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
)

type FSLocker struct {
	lock *flock.Flock
}

func NewFSLocker(filePath string) *FSLocker {
	return &FSLocker{
		lock: flock.New(filePath),
	}
}

func (l *FSLocker) TryLock(_ context.Context) (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("error locking file: %w", err)
	}
	return locked, nil
}

func (l *FSLocker) Unlock(_ context.Context) error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("error unlocking file: %w", err)
	}
	return nil
}
