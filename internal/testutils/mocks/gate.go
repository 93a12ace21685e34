package mocks

import (
	"context"
	"sync"
)

// GateMock is a quota gate that also records sends against its remaining count.
type GateMock struct {
	mu             sync.Mutex
	remaining      int
	remainingError error
	recorded       int
}

type GateMockOptions func(*GateMock)

func Remaining(n int) GateMockOptions {
	return func(m *GateMock) {
		m.remaining = n
	}
}

func RemainingError(err error) GateMockOptions {
	return func(m *GateMock) {
		m.remainingError = err
	}
}

func NewGateMock(opts ...GateMockOptions) *GateMock {
	m := &GateMock{remaining: 1_000_000}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *GateMock) Remaining(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining, m.remainingError
}

func (m *GateMock) Record(ctx context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.recorded += n
	m.remaining -= n
	if m.remaining < 0 {
		m.remaining = 0
	}
	return nil
}

func (m *GateMock) SetRemaining(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = n
}

func (m *GateMock) Recorded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorded
}
