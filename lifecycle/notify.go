package lifecycle

import (
	"context"
	"log/slog"
)

// Notify performs a best-effort notification. Failures, such as a member
// refusing direct messages, are logged at debug level and dropped. It
// reports whether the notification went out.
func Notify(ctx context.Context, logger *slog.Logger, what string, send func(context.Context) error) bool {
	if err := send(ctx); err != nil {
		logger.Debug("notification dropped", slog.String("notification", what), slog.Any("err", err))
		return false
	}
	return true
}
