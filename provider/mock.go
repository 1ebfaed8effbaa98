package provider

import (
	"context"
	"strings"
	"sync"
)

// Mock is an offline Client. Func, when set, scripts the reply; otherwise
// the last user turn is echoed back. Calls are recorded for inspection.
type Mock struct {
	Func func(ctx context.Context, messages []Message, opts Options) (string, error)

	mu    sync.Mutex
	calls [][]Message
}

func (m *Mock) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	m.mu.Unlock()

	if m.Func != nil {
		return m.Func(ctx, messages, opts)
	}
	return strings.TrimSpace(LastUser(messages)), nil
}

// Calls returns a copy of every message list received so far.
func (m *Mock) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

// LastUser returns the last user turn of a message list.
func LastUser(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
