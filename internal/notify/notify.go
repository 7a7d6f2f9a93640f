// Package notify delivers job progress events to interested surfaces.
// Delivery is best-effort: a notifier must never block or fail job
// execution.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is one progress notification.
type Event struct {
	JobID     uuid.UUID
	DatasetID *uuid.UUID
	Status    string
	Progress  int
	Message   string
	At        time.Time
}

// Notifier receives progress events.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier writes events to the structured log. It is the default
// sink when no push channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a slog-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) {
	attrs := []any{
		"job_id", ev.JobID.String(),
		"status", ev.Status,
		"progress", ev.Progress,
		"message", ev.Message,
	}
	if ev.DatasetID != nil {
		attrs = append(attrs, "dataset_id", ev.DatasetID.String())
	}
	n.logger.InfoContext(ctx, "job progress", attrs...)
}

// Noop discards all events.
type Noop struct{}

func (Noop) Notify(ctx context.Context, ev Event) {}
