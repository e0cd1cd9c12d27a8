package notifier

import (
	"context"

	"nexus-voice/internal/domain/entity"
)

// NoOpNotifier discards alerts. It is used for channels without a webhook.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier instance.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyAlert does nothing and returns nil.
func (n *NoOpNotifier) NotifyAlert(context.Context, *entity.Alert) error {
	return nil
}
