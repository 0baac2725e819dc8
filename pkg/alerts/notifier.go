package alerts

import (
	"context"
	"log/slog"
)

// LogNotifier writes alert events to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, ev Event) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "alert event",
		"event", ev.Type,
		"alert", ev.Alert.ID,
		"model", ev.Alert.ModelID,
		"severity", ev.Alert.Severity,
		"from", ev.From,
		"status", ev.Alert.Status,
	)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}
