package dispatcher

import (
	"context"

	"github.com/garyjia/timesheet-approval/internal/domain/event"
)

// Handler processes a committed timesheet event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// AuditLogHandler writes every event it receives to the logger
func AuditLogHandler(logger Logger) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		logger.Info("Timesheet event",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"timesheet_id", evt.TimesheetID,
			"owner_id", evt.OwnerID,
			"actor_id", evt.ActorID,
			"from_status", evt.FromStatus,
			"to_status", evt.ToStatus,
			"correlation_id", evt.CorrelationID,
		)
		return nil
	}
}
