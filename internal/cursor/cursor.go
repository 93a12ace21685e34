// Package cursor persists the resume position of the batch walk.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"mailbatch/internal/kv"
)

const (
	Key = "currentIndex"
	// Default is the first data row, right after the header.
	Default = 1
)

type Store struct {
	kv kv.Store
}

func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// Get reports the stored cursor and whether one is present. A stored value
// that is not a positive integer is treated as absent.
func (s *Store) Get(ctx context.Context) (int, bool, error) {
	raw, err := s.kv.Get(ctx, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cursor: %w", err)
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, false, nil
	}
	return value, true, nil
}

// GetOrDefault returns the stored cursor, or Default when none is stored.
func (s *Store) GetOrDefault(ctx context.Context) (int, error) {
	value, ok, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return Default, nil
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, value int) error {
	if value < 1 {
		return fmt.Errorf("invalid cursor value %d", value)
	}
	if err := s.kv.Set(ctx, Key, strconv.Itoa(value)); err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, Key); err != nil {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}
	return nil
}
