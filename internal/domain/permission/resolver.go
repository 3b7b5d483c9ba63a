// Package permission resolves what an actor may do with a timesheet in its
// current status. Resolution is a pure function of its input: a declarative
// role x status table, a project-scoped override for project managers, and
// the owner edit rules. Results are never cached or persisted.
package permission

import (
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// Relation is how the actor stands to the timesheet owner
type Relation string

const (
	RelationOwner        Relation = "owner"
	RelationOwnerManager Relation = "owner_manager"
	RelationOther        Relation = "other"
)

// ProjectScope carries the project ids a timesheet references and the
// project ids the actor manages. Both are looked up per call.
type ProjectScope struct {
	ReferencedProjects []string
	ManagedProjects    []string
}

// ManagesAll reports whether the actor manages every referenced project.
// A timesheet that references no project is never covered.
func (s *ProjectScope) ManagesAll() bool {
	if s == nil || len(s.ReferencedProjects) == 0 {
		return false
	}
	managed := make(map[string]bool, len(s.ManagedProjects))
	for _, id := range s.ManagedProjects {
		managed[id] = true
	}
	for _, id := range s.ReferencedProjects {
		if !managed[id] {
			return false
		}
	}
	return true
}

// Input is everything Resolve looks at
type Input struct {
	Status    workflow.State
	ActorRole entity.Role
	OwnerRole entity.Role
	Relation  Relation
	Scope     *ProjectScope
}

// Permissions is the affordance set for one actor on one timesheet
type Permissions struct {
	CanEdit       bool   `json:"can_edit"`
	CanSubmit     bool   `json:"can_submit"`
	CanApprove    bool   `json:"can_approve"`
	CanReject     bool   `json:"can_reject"`
	CanFinalize   bool   `json:"can_finalize"`
	CanMarkBilled bool   `json:"can_mark_billed"`
	NextAction    string `json:"next_action"`
}

// Allows maps a workflow trigger onto the matching permission flag.
// Forwarding is never granted to an actor; it only happens automatically.
func (p Permissions) Allows(trigger workflow.Trigger) bool {
	switch trigger {
	case workflow.TriggerSubmit:
		return p.CanSubmit
	case workflow.TriggerApprove:
		return p.CanApprove
	case workflow.TriggerReject:
		return p.CanReject
	case workflow.TriggerFinalize:
		return p.CanFinalize
	case workflow.TriggerMarkBilled:
		return p.CanMarkBilled
	default:
		return false
	}
}

type grant struct {
	approve    bool
	reject     bool
	finalize   bool
	markBilled bool
}

// roleTable is the global role x status matrix. Roles and statuses not
// listed grant nothing beyond the owner edit rules.
var roleTable = map[entity.Role]map[workflow.State]grant{
	entity.RoleManager: {
		workflow.StateSubmitted:       {approve: true, reject: true},
		workflow.StateManagerApproved: {finalize: true},
	},
	entity.RoleManagement: {
		workflow.StateSubmitted:         {approve: true, reject: true},
		workflow.StateManagerApproved:   {approve: true, finalize: true},
		workflow.StateManagementPending: {approve: true, reject: true},
	},
	entity.RoleBilling: {
		workflow.StateFrozen: {markBilled: true},
	},
}

// reviewableOwners lists whose timesheets an approving role may decide on
var reviewableOwners = map[entity.Role]map[entity.Role]bool{
	entity.RoleManager: {
		entity.RoleEmployee: true,
		entity.RoleLead:     true,
	},
	entity.RoleManagement: {
		entity.RoleEmployee:   true,
		entity.RoleLead:       true,
		entity.RoleManager:    true,
		entity.RoleManagement: true,
		entity.RoleBilling:    true,
	},
}

// HasGlobalApproval reports whether the role approves through the role table
func HasGlobalApproval(role entity.Role) bool {
	for _, g := range roleTable[role] {
		if g.approve || g.reject || g.finalize {
			return true
		}
	}
	return false
}

func reviews(actor, owner entity.Role) bool {
	return reviewableOwners[actor][owner]
}

// Resolve computes the permission set for in
func Resolve(in Input) Permissions {
	var p Permissions

	if in.Relation != RelationOwner {
		g := roleTable[in.ActorRole][in.Status]
		if reviews(in.ActorRole, in.OwnerRole) {
			p.CanApprove = g.approve
			p.CanReject = g.reject
			p.CanFinalize = g.finalize
		}
		p.CanMarkBilled = g.markBilled

		// project managers without global approval act as manager in submitted
		if !HasGlobalApproval(in.ActorRole) &&
			in.Status == workflow.StateSubmitted &&
			reviews(entity.RoleManager, in.OwnerRole) &&
			in.Scope.ManagesAll() {
			p.CanApprove = true
			p.CanReject = true
		}
	}

	if in.Status.IsEditable() {
		switch {
		case in.Relation == RelationOwner:
			p.CanEdit, p.CanSubmit = true, true
		case in.Relation == RelationOwnerManager && in.Status.IsRejected():
			p.CanEdit, p.CanSubmit = true, true
		}
	}

	if in.Status.IsLocked() {
		p.CanEdit, p.CanSubmit = false, false
		p.CanApprove, p.CanReject, p.CanFinalize = false, false, false
	}

	p.NextAction = nextAction(in.Status, audienceFor(in, p))
	return p
}

// StatusFlow answers what a role could do in a status without a concrete
// timesheet. Roles with approval or billing authority are treated as the
// reviewer of an employee's timesheet; everyone else as the owner.
func StatusFlow(status workflow.State, role entity.Role) Permissions {
	if HasGlobalApproval(role) || role == entity.RoleBilling {
		return Resolve(Input{
			Status:    status,
			ActorRole: role,
			OwnerRole: entity.RoleEmployee,
			Relation:  RelationOther,
		})
	}
	return Resolve(Input{
		Status:    status,
		ActorRole: role,
		OwnerRole: role,
		Relation:  RelationOwner,
	})
}
