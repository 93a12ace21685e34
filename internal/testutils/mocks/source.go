package mocks

import (
	"context"
	"fmt"
	"sync"

	"mailbatch/internal/recipient"
)

// SourceMock is an in-memory recipient sheet. Row 0 is the header.
type SourceMock struct {
	mu            sync.Mutex
	rows          []recipient.Row
	rowsError     error
	markSentError error
	markSentFails map[int]bool
	markSentCalls int
}

type SourceMockOptions func(*SourceMock)

func RowsError(err error) SourceMockOptions {
	return func(m *SourceMock) {
		m.rowsError = err
	}
}

func MarkSentError(err error) SourceMockOptions {
	return func(m *SourceMock) {
		m.markSentError = err
	}
}

// MarkSentFailsCall makes only the given (1-based) calls fail with the
// MarkSent error.
func MarkSentFailsCall(calls ...int) SourceMockOptions {
	return func(m *SourceMock) {
		for _, c := range calls {
			m.markSentFails[c] = true
		}
	}
}

// Rows appends data rows given as address/status pairs.
func Rows(entries ...[2]string) SourceMockOptions {
	return func(m *SourceMock) {
		for _, e := range entries {
			m.rows = append(m.rows, recipient.Row{Index: len(m.rows), Address: e[0], Status: e[1]})
		}
	}
}

func NewSourceMock(opts ...SourceMockOptions) *SourceMock {
	m := &SourceMock{
		rows:          []recipient.Row{{Index: 0, Address: "Email", Status: "Status"}},
		markSentFails: map[int]bool{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SourceMock) Rows(_ context.Context) ([]recipient.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rowsError != nil {
		return nil, m.rowsError
	}
	out := make([]recipient.Row, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *SourceMock) MarkSent(ctx context.Context, rows []recipient.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markSentCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.markSentError != nil && (len(m.markSentFails) == 0 || m.markSentFails[m.markSentCalls]) {
		return m.markSentError
	}
	for _, row := range rows {
		if row.Index <= 0 || row.Index >= len(m.rows) {
			return fmt.Errorf("row %d is out of range", row.Index)
		}
		m.rows[row.Index].Status = recipient.SentStatus
	}
	return nil
}

func (m *SourceMock) Status(index int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[index].Status
}

func (m *SourceMock) MarkSentCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markSentCalls
}
