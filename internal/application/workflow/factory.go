package workflow

import (
	"context"
	"strings"

	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/permission"
	domainwf "github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// Request is what the timesheet guards inspect when a trigger fires
type Request struct {
	Actor       entity.Actor
	Permissions permission.Permissions
	Reason      string
	SnapshotID  string
	TotalHours  float64

	// automatic is set only for the internal forward step
	automatic bool
}

// Guard is a guard over timesheet requests
type Guard = domainwf.GuardFunc[*Request]

// BuildTimesheetStateMachine creates a state machine configured with the
// timesheet approval table
func BuildTimesheetStateMachine(initialState domainwf.State) domainwf.StateMachine[*Request] {
	b := domainwf.NewBuilder[*Request]()

	submit := []Guard{permitted(domainwf.TriggerSubmit), hasHours}

	b.Configure(domainwf.StateDraft).
		PermitIf(domainwf.TriggerSubmit, domainwf.StateSubmitted, submit...)

	b.Configure(domainwf.StateSubmitted).
		PermitIf(domainwf.TriggerApprove, domainwf.StateManagerApproved, permitted(domainwf.TriggerApprove)).
		PermitIf(domainwf.TriggerReject, domainwf.StateManagerRejected, hasReason, permitted(domainwf.TriggerReject))

	b.Configure(domainwf.StateManagerApproved).
		PermitIf(domainwf.TriggerFinalize, domainwf.StateFrozen, permitted(domainwf.TriggerFinalize)).
		PermitIf(domainwf.TriggerApprove, domainwf.StateManagementPending, permitted(domainwf.TriggerApprove)).
		PermitIf(domainwf.TriggerForward, domainwf.StateManagementPending, isAutomatic)

	b.Configure(domainwf.StateManagementPending).
		PermitIf(domainwf.TriggerApprove, domainwf.StateFrozen, permitted(domainwf.TriggerApprove)).
		PermitIf(domainwf.TriggerReject, domainwf.StateManagementRejected, hasReason, permitted(domainwf.TriggerReject))

	b.Configure(domainwf.StateManagerRejected).
		PermitIf(domainwf.TriggerSubmit, domainwf.StateSubmitted, submit...)

	b.Configure(domainwf.StateManagementRejected).
		PermitIf(domainwf.TriggerSubmit, domainwf.StateSubmitted, submit...)

	b.Configure(domainwf.StateFrozen).
		PermitIf(domainwf.TriggerMarkBilled, domainwf.StateBilled, permitted(domainwf.TriggerMarkBilled), hasSnapshot)

	// billed is terminal

	return b.Build(initialState)
}

// permitted refuses actors whose resolved permissions lack the trigger.
// The status in the error is filled in by the caller.
func permitted(trigger domainwf.Trigger) Guard {
	return func(ctx context.Context, req *Request) error {
		if req.Permissions.Allows(trigger) {
			return nil
		}
		return &apperr.PermissionError{
			ActorID: req.Actor.ID,
			Role:    req.Actor.Role.String(),
			Action:  trigger.String(),
		}
	}
}

func hasHours(ctx context.Context, req *Request) error {
	if req.TotalHours > 0 {
		return nil
	}
	return apperr.Validation("total_hours", "cannot submit a timesheet with no hours logged")
}

func hasReason(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Reason) != "" {
		return nil
	}
	return apperr.Validation("reason", "a rejection needs a reason")
}

func hasSnapshot(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.SnapshotID) != "" {
		return nil
	}
	return apperr.Validation("billing_snapshot_id", "marking a timesheet billed needs a snapshot id")
}

func isAutomatic(ctx context.Context, req *Request) error {
	if req.automatic {
		return nil
	}
	return &apperr.PermissionError{
		ActorID: req.Actor.ID,
		Role:    req.Actor.Role.String(),
		Action:  domainwf.TriggerForward.String(),
	}
}
