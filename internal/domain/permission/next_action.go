package permission

import (
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// Audience groups viewers that see the same next-action hint
type Audience string

const (
	AudienceOwner    Audience = "owner"
	AudienceReviewer Audience = "reviewer"
	AudienceBilling  Audience = "billing"
	AudienceObserver Audience = "observer"
)

// NoAction is shown for statuses outside the lifecycle
const NoAction = "No action available"

var nextActions = map[workflow.State]map[Audience]string{
	workflow.StateDraft: {
		AudienceOwner:    "Add time entries and submit for approval",
		AudienceReviewer: "Waiting for the owner to submit",
		AudienceBilling:  "Not yet approved for billing",
		AudienceObserver: "Draft in progress",
	},
	workflow.StateSubmitted: {
		AudienceOwner:    "Waiting for manager review",
		AudienceReviewer: "Review the entries, then approve or reject",
		AudienceBilling:  "Awaiting approval",
		AudienceObserver: "Submitted for manager review",
	},
	workflow.StateManagerApproved: {
		AudienceOwner:    "Approved by manager, awaiting final sign-off",
		AudienceReviewer: "Finalize, or leave for management review",
		AudienceBilling:  "Awaiting final sign-off",
		AudienceObserver: "Approved by manager",
	},
	workflow.StateManagementPending: {
		AudienceOwner:    "Waiting for management review",
		AudienceReviewer: "Management review: approve to freeze or reject",
		AudienceBilling:  "Awaiting management review",
		AudienceObserver: "Pending management review",
	},
	workflow.StateManagerRejected: {
		AudienceOwner:    "Rejected by manager: revise entries and resubmit",
		AudienceReviewer: "Returned to the owner for revision",
		AudienceBilling:  "Rejected, not billable",
		AudienceObserver: "Rejected by manager",
	},
	workflow.StateManagementRejected: {
		AudienceOwner:    "Rejected by management: revise entries and resubmit",
		AudienceReviewer: "Returned to the owner for revision",
		AudienceBilling:  "Rejected, not billable",
		AudienceObserver: "Rejected by management",
	},
	workflow.StateFrozen: {
		AudienceOwner:    "Approved and frozen, no further changes",
		AudienceReviewer: "Frozen, awaiting billing",
		AudienceBilling:  "Ready to bill: mark as billed",
		AudienceObserver: "Frozen",
	},
	workflow.StateBilled: {
		AudienceOwner:    "Billed",
		AudienceReviewer: "Billed",
		AudienceBilling:  "Billed, nothing left to do",
		AudienceObserver: "Billed",
	},
}

func nextAction(status workflow.State, audience Audience) string {
	if msg, ok := nextActions[status][audience]; ok {
		return msg
	}
	return NoAction
}

func audienceFor(in Input, p Permissions) Audience {
	switch {
	case in.Relation == RelationOwner:
		return AudienceOwner
	case in.ActorRole == entity.RoleBilling:
		return AudienceBilling
	case p.CanApprove || p.CanReject || p.CanFinalize:
		return AudienceReviewer
	case in.Relation == RelationOwnerManager:
		return AudienceReviewer
	case HasGlobalApproval(in.ActorRole) && reviews(in.ActorRole, in.OwnerRole):
		return AudienceReviewer
	default:
		return AudienceObserver
	}
}
