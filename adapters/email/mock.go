package email

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/quotamon/ports"
)

// MockNotifier is a mock notifier for testing.
// It stores sent notifications in memory instead of delivering them.
type MockNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification

	// Optional: fail if set
	ShouldFail bool
	FailError  error
}

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Send stores the notification in memory.
func (m *MockNotifier) Send(ctx context.Context, msg ports.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		if m.FailError != nil {
			return m.FailError
		}
		return fmt.Errorf("mock notifier send failure")
	}

	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns all stored notifications.
func (m *MockNotifier) Sent() []ports.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]ports.Notification, len(m.sent))
	copy(result, m.sent)
	return result
}

// Last returns the most recently stored notification.
func (m *MockNotifier) Last() (ports.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return ports.Notification{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// Count returns the number of notifications sent.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Clear removes all stored notifications.
func (m *MockNotifier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// SetShouldFail configures the mock to fail on all send attempts.
func (m *MockNotifier) SetShouldFail(fail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
	m.FailError = err
}

// Ensure interface compliance.
var _ ports.Notifier = (*MockNotifier)(nil)
