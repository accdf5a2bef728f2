package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes events to a logger instead of sending them. It is the
// default transport for development.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subject, _ := Render(e)
	logger.InfoContext(ctx, "notification", "kind", e.Kind, "to", e.To, "subject", subject)
	return nil
}
