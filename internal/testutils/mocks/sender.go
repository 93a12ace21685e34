package mocks

import (
	"context"
	"sync"

	"mailbatch/internal/email"
)

type SenderMock struct {
	mu        sync.Mutex
	sendError error
	failCalls map[int]bool
	calls     int
	sent      []email.Message
}

type SenderMockOptions func(*SenderMock)

func SendError(err error) SenderMockOptions {
	return func(m *SenderMock) {
		m.sendError = err
	}
}

// SendFailsCall makes only the given (1-based) calls fail with the send error.
func SendFailsCall(calls ...int) SenderMockOptions {
	return func(m *SenderMock) {
		for _, c := range calls {
			m.failCalls[c] = true
		}
	}
}

func NewSenderMock(opts ...SenderMockOptions) *SenderMock {
	m := &SenderMock{failCalls: map[int]bool{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SenderMock) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.sendError != nil && (len(m.failCalls) == 0 || m.failCalls[m.calls]) {
		return m.sendError
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *SenderMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *SenderMock) Sent() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]email.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Delivered lists every Bcc address of the successful sends, in order.
func (m *SenderMock) Delivered() []string {
	var out []string
	for _, msg := range m.Sent() {
		out = append(out, msg.Bcc...)
	}
	return out
}
