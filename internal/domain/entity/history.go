package entity

import (
	"time"

	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// Action types recorded in history besides workflow triggers
const (
	ActionCreate         = "create"
	ActionReplaceEntries = "replace_entries"
	ActionDelete         = "delete"
)

// HistoryRecord is the audit trail of a timesheet.
// One record is written per successful mutation, in the same write.
type HistoryRecord struct {
	ID             int64          `json:"id"`
	TimesheetID    string         `json:"timesheet_id"`
	ActorID        string         `json:"actor_id"`
	ActorRole      Role           `json:"actor_role"`
	Action         string         `json:"action"`
	PreviousStatus workflow.State `json:"previous_status,omitempty"`
	NewStatus      workflow.State `json:"new_status"`
	Reason         string         `json:"reason,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
