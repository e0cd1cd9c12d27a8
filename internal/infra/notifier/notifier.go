// Package notifier posts capability health alerts to chat webhooks.
// Slack and Discord are supported. A no-op notifier stands in when no
// webhook is configured.
package notifier

import (
	"context"

	"nexus-voice/internal/domain/entity"
)

// Notifier sends a single alert.
// Implementations rate limit, retry transient failures and respect ctx.
type Notifier interface {
	// NotifyAlert delivers alert. A non-nil error means every attempt failed.
	NotifyAlert(ctx context.Context, alert *entity.Alert) error
}
