package app

import (
	"context"
	"log/slog"
)

// Notifier dispatches fire-and-forget notifications (match results,
// achievement unlocks). Failures are logged and never fail a session.
type Notifier interface {
	Notify(ctx context.Context, playerID, event string, payload any) error
}

// LogNotifier is the default dispatcher; it just records the notification.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, playerID, event string, payload any) error {
	n.logger.Debug("notify", "player", playerID, "event", event, "payload", payload)
	return nil
}
