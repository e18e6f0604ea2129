// Package notify provides notification sink adapters. The production sink
// is the host browser's notification surface; the daemon ships a structured
// log sink.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notification sink.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify emits the notification as a structured log event.
func (n *LogNotifier) Notify(ctx context.Context, notification core.Notification) {
	n.logger.Info("Notification",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
		zap.String("severity", notification.Severity),
		zap.Strings("actions", notification.Actions))
}
