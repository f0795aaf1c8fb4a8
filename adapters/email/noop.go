package email

import (
	"context"

	"github.com/artpar/quotamon/ports"
)

// NoopNotifier is a no-op notifier for when alerting is disabled.
type NoopNotifier struct{}

// NewNoopNotifier creates a new no-op notifier.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

// Send does nothing.
func (n *NoopNotifier) Send(ctx context.Context, msg ports.Notification) error {
	return nil
}

var _ ports.Notifier = (*NoopNotifier)(nil)
