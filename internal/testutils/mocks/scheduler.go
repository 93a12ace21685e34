package mocks

import (
	"context"
	"sync"
)

type SchedulerMock struct {
	mu              sync.Mutex
	scheduled       map[string]bool
	unscheduleError error
	ensureCalls     int
	unscheduleCalls int
}

type SchedulerMockOptions func(*SchedulerMock)

func Scheduled(handlers ...string) SchedulerMockOptions {
	return func(m *SchedulerMock) {
		for _, h := range handlers {
			m.scheduled[h] = true
		}
	}
}

func UnscheduleError(err error) SchedulerMockOptions {
	return func(m *SchedulerMock) {
		m.unscheduleError = err
	}
}

func NewSchedulerMock(opts ...SchedulerMockOptions) *SchedulerMock {
	m := &SchedulerMock{scheduled: map[string]bool{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SchedulerMock) EnsureScheduled(_ context.Context, handler string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	m.scheduled[handler] = true
	return nil
}

func (m *SchedulerMock) Unschedule(_ context.Context, handler string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unscheduleCalls++
	if m.unscheduleError != nil {
		return m.unscheduleError
	}
	delete(m.scheduled, handler)
	return nil
}

func (m *SchedulerMock) IsScheduled(handler string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled[handler]
}

func (m *SchedulerMock) UnscheduleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unscheduleCalls
}
