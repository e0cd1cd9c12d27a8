package notify

import "errors"

var (
	// ErrChannelDisabled is returned by Send on a channel without a webhook.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidAlert is returned for a nil alert or one that fails validation.
	ErrInvalidAlert = errors.New("invalid alert")

	// ErrServiceClosed is returned by Dispatch after Shutdown.
	ErrServiceClosed = errors.New("notification service is shut down")
)
