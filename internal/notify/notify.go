// Package notify delivers user events to the notification service.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier delivers one event to one user.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]any) error
}

// Log writes events to the structured log.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, userID, event string, payload map[string]any) error {
	l.logger.InfoContext(ctx, "notification", "user_id", userID, "event", event, "payload", payload)
	return nil
}

// Multi fans an event out to every notifier. Each failure is logged; the
// joined error is returned.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti creates a fan-out notifier.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, userID, event string, payload map[string]any) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, userID, event, payload); err != nil {
			m.logger.WarnContext(ctx, "notification delivery failed", "user_id", userID, "event", event, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
