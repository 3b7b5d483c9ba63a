package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/permission"
	domainwf "github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// ReviewMode selects what happens after a manager approval
type ReviewMode string

const (
	// ReviewModeExplicit stops in manager_approved until a finalize or a management approve
	ReviewModeExplicit ReviewMode = "explicit"
	// ReviewModeAutoForward moves manager approvals straight on to management_pending
	ReviewModeAutoForward ReviewMode = "auto_forward"
)

// IsValid returns true for known modes
func (m ReviewMode) IsValid() bool {
	return m == ReviewModeExplicit || m == ReviewModeAutoForward
}

// Command is one requested lifecycle step
type Command struct {
	Trigger     domainwf.Trigger
	Actor       entity.Actor
	Permissions permission.Permissions
	Reason      string
	SnapshotID  string
	// TotalHours is the sum over the current entries, used by submit
	TotalHours float64
}

// Step is one transition taken while applying a command
type Step struct {
	Trigger domainwf.Trigger
	From    domainwf.State
	To      domainwf.State
}

// Outcome is the computed result of a command. Nothing has been written yet.
type Outcome struct {
	Timesheet *entity.Timesheet
	Steps     []Step
	History   []entity.HistoryRecord
}

// Final returns the status the timesheet ends in
func (o *Outcome) Final() domainwf.State {
	return o.Timesheet.Status
}

// ApprovalStateMachine computes the next status and side effects for a
// timesheet. It never touches storage.
type ApprovalStateMachine struct {
	mode ReviewMode
	now  func() time.Time
}

// Option configures the approval state machine
type Option func(*ApprovalStateMachine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *ApprovalStateMachine) {
		m.now = now
	}
}

// NewApprovalStateMachine creates a machine for the given review mode.
// An unknown mode falls back to explicit.
func NewApprovalStateMachine(mode ReviewMode, opts ...Option) *ApprovalStateMachine {
	if !mode.IsValid() {
		mode = ReviewModeExplicit
	}
	m := &ApprovalStateMachine{
		mode: mode,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the configured review mode
func (m *ApprovalStateMachine) Mode() ReviewMode {
	return m.mode
}

// Apply fires cmd against a copy of ts and returns the resulting timesheet,
// the steps taken and one history record per step. The input is not modified.
func (m *ApprovalStateMachine) Apply(ctx context.Context, ts *entity.Timesheet, cmd Command) (*Outcome, error) {
	if cmd.Trigger == domainwf.TriggerReject && strings.TrimSpace(cmd.Reason) == "" {
		return nil, apperr.Validation("reason", "a rejection needs a reason")
	}
	if cmd.Trigger == domainwf.TriggerForward {
		return nil, &apperr.TransitionError{Status: ts.Status.String(), Action: cmd.Trigger.String()}
	}

	now := m.now()
	next := ts.Clone()
	out := &Outcome{Timesheet: next}

	req := &Request{
		Actor:       cmd.Actor,
		Permissions: cmd.Permissions,
		Reason:      cmd.Reason,
		SnapshotID:  cmd.SnapshotID,
		TotalHours:  cmd.TotalHours,
	}

	if err := m.step(ctx, out, cmd.Trigger, req, now); err != nil {
		return nil, err
	}

	if m.mode == ReviewModeAutoForward && next.Status == domainwf.StateManagerApproved {
		req.automatic = true
		if err := m.step(ctx, out, domainwf.TriggerForward, req, now); err != nil {
			return nil, fmt.Errorf("auto forward: %w", err)
		}
	}

	next.Version++
	next.UpdatedAt = now
	return out, nil
}

func (m *ApprovalStateMachine) step(ctx context.Context, out *Outcome, trigger domainwf.Trigger, req *Request, now time.Time) error {
	ts := out.Timesheet
	from := ts.Status

	sm := BuildTimesheetStateMachine(from)
	if err := sm.Fire(ctx, trigger, req); err != nil {
		var perr *apperr.PermissionError
		if errors.As(err, &perr) && perr.Status == "" {
			perr.Status = from.String()
		}
		return err
	}
	to := sm.State()

	applySideEffects(ts, trigger, from, to, req, now)
	ts.Status = to

	record := entity.HistoryRecord{
		TimesheetID:    ts.ID,
		ActorID:        req.Actor.ID,
		ActorRole:      req.Actor.Role,
		Action:         trigger.String(),
		PreviousStatus: from,
		NewStatus:      to,
		Timestamp:      now,
	}
	if trigger == domainwf.TriggerReject {
		record.Reason = strings.TrimSpace(req.Reason)
	}

	out.Steps = append(out.Steps, Step{Trigger: trigger, From: from, To: to})
	out.History = append(out.History, record)
	return nil
}

func applySideEffects(ts *entity.Timesheet, trigger domainwf.Trigger, from, to domainwf.State, req *Request, now time.Time) {
	at := now
	actor := req.Actor.ID

	switch trigger {
	case domainwf.TriggerSubmit:
		ts.SubmittedAt = &at
		ts.TotalHours = req.TotalHours
		// only the stage that rejected loses its reason; the other stage's fields stay as history
		switch from {
		case domainwf.StateManagerRejected:
			ts.ManagerRejectionReason = ""
		case domainwf.StateManagementRejected:
			ts.ManagementRejectionReason = ""
		}

	case domainwf.TriggerApprove:
		switch from {
		case domainwf.StateSubmitted:
			ts.ManagerApprovedBy = actor
			ts.ManagerApprovedAt = &at
		case domainwf.StateManagerApproved:
			ts.ForwardedBy = actor
			ts.ForwardedAt = &at
		case domainwf.StateManagementPending:
			ts.ManagementApprovedBy = actor
			ts.ManagementApprovedAt = &at
			ts.IsVerified = true
		}

	case domainwf.TriggerForward:
		ts.ForwardedBy = actor
		ts.ForwardedAt = &at

	case domainwf.TriggerReject:
		reason := strings.TrimSpace(req.Reason)
		switch to {
		case domainwf.StateManagerRejected:
			ts.ManagerRejectedBy = actor
			ts.ManagerRejectedAt = &at
			ts.ManagerRejectionReason = reason
		case domainwf.StateManagementRejected:
			ts.ManagementRejectedBy = actor
			ts.ManagementRejectedAt = &at
			ts.ManagementRejectionReason = reason
		}

	case domainwf.TriggerMarkBilled:
		ts.BillingSnapshotID = strings.TrimSpace(req.SnapshotID)
		ts.BilledAt = &at
	}

	if to == domainwf.StateFrozen {
		ts.IsFrozen = true
		ts.FrozenAt = &at
	}
}
