package event

import "github.com/garyjia/timesheet-approval/internal/domain/workflow"

// Type identifies the type of domain event
type Type string

const (
	TypeTimesheetCreated         Type = "timesheet.created"
	TypeTimesheetEntriesReplaced Type = "timesheet.entries_replaced"
	TypeTimesheetSubmitted       Type = "timesheet.submitted"
	TypeTimesheetApproved        Type = "timesheet.approved"
	TypeTimesheetForwarded       Type = "timesheet.forwarded"
	TypeTimesheetRejected        Type = "timesheet.rejected"
	TypeTimesheetFrozen          Type = "timesheet.frozen"
	TypeTimesheetBilled          Type = "timesheet.billed"
	TypeTimesheetDeleted         Type = "timesheet.deleted"
)

// AllTypes lists every event type, in lifecycle order
var AllTypes = []Type{
	TypeTimesheetCreated,
	TypeTimesheetEntriesReplaced,
	TypeTimesheetSubmitted,
	TypeTimesheetApproved,
	TypeTimesheetForwarded,
	TypeTimesheetRejected,
	TypeTimesheetFrozen,
	TypeTimesheetBilled,
	TypeTimesheetDeleted,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ForStatus returns the event announcing that a timesheet entered status
func ForStatus(status workflow.State) (Type, bool) {
	switch status {
	case workflow.StateSubmitted:
		return TypeTimesheetSubmitted, true
	case workflow.StateManagerApproved:
		return TypeTimesheetApproved, true
	case workflow.StateManagementPending:
		return TypeTimesheetForwarded, true
	case workflow.StateManagerRejected, workflow.StateManagementRejected:
		return TypeTimesheetRejected, true
	case workflow.StateFrozen:
		return TypeTimesheetFrozen, true
	case workflow.StateBilled:
		return TypeTimesheetBilled, true
	default:
		return "", false
	}
}
