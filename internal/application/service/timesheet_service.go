package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/timesheet-approval/internal/application/dispatcher"
	"github.com/garyjia/timesheet-approval/internal/application/port"
	appwf "github.com/garyjia/timesheet-approval/internal/application/workflow"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/event"
	"github.com/garyjia/timesheet-approval/internal/domain/permission"
	"github.com/garyjia/timesheet-approval/internal/domain/validation"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DecisionAction is what a reviewer decides
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

// Decision is a reviewer's approve or reject. Finalize turns a manager-stage
// approve into a freeze.
type Decision struct {
	Action   DecisionAction `json:"action"`
	Reason   string         `json:"reason,omitempty"`
	Finalize bool           `json:"finalize,omitempty"`
}

// View is a timesheet as seen by one actor right now
type View struct {
	Timesheet   *entity.Timesheet      `json:"timesheet"`
	Entries     []entity.TimeEntry     `json:"entries"`
	Permissions permission.Permissions `json:"permissions"`
	Warnings    []validation.Warning   `json:"warnings"`
}

// TimesheetService runs the timesheet lifecycle. Every call takes the acting
// identity explicitly.
type TimesheetService interface {
	Create(ctx context.Context, actor entity.Actor, ownerID string, weekStart time.Time) (*View, error)
	ReplaceEntries(ctx context.Context, actor entity.Actor, id string, entries []entity.TimeEntry) (*View, error)
	Submit(ctx context.Context, actor entity.Actor, id string) (*View, error)
	Decide(ctx context.Context, actor entity.Actor, id string, decision Decision) (*View, error)
	MarkBilled(ctx context.Context, actor entity.Actor, id, snapshotID string) (*View, error)
	Delete(ctx context.Context, actor entity.Actor, id string) error

	GetView(ctx context.Context, actor entity.Actor, id string) (*View, error)
	StatusFlow(status workflow.State, role entity.Role) permission.Permissions
	ListForOwner(ctx context.Context, actor entity.Actor, ownerID string) ([]*entity.Timesheet, error)
	ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.Timesheet, error)
	History(ctx context.Context, actor entity.Actor, id string) ([]entity.HistoryRecord, error)
	PurgeDeletedEntries(ctx context.Context, actor entity.Actor, id string) (int64, error)
}

// DefaultMaxConflictRetries is how often a lost write is recomputed before ErrConflict surfaces
const DefaultMaxConflictRetries = 3

// Option configures the timesheet service
type Option func(*timesheetServiceImpl)

// WithLocker serializes writers per timesheet id
func WithLocker(locker port.Locker) Option {
	return func(s *timesheetServiceImpl) {
		s.locker = locker
	}
}

// WithMaxConflictRetries sets the retry budget for optimistic conflicts
func WithMaxConflictRetries(n int) Option {
	return func(s *timesheetServiceImpl) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithWeekStart sets the weekday every timesheet week must start on
func WithWeekStart(day time.Weekday) Option {
	return func(s *timesheetServiceImpl) {
		s.weekStart = day
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *timesheetServiceImpl) {
		s.now = now
	}
}

type timesheetServiceImpl struct {
	store      port.TimesheetStore
	identity   port.IdentityLookup
	projects   port.ProjectAuthorityLookup
	txManager  port.TransactionManager
	validator  *validation.Engine
	machine    *appwf.ApprovalStateMachine
	dispatcher dispatcher.Dispatcher
	locker     port.Locker
	logger     Logger

	maxRetries int
	weekStart  time.Weekday
	now        func() time.Time
}

// NewTimesheetService creates a new TimesheetService. The dispatcher may be nil.
func NewTimesheetService(
	store port.TimesheetStore,
	identity port.IdentityLookup,
	projects port.ProjectAuthorityLookup,
	txManager port.TransactionManager,
	validator *validation.Engine,
	machine *appwf.ApprovalStateMachine,
	eventDispatcher dispatcher.Dispatcher,
	logger Logger,
	opts ...Option,
) TimesheetService {
	s := &timesheetServiceImpl{
		store:      store,
		identity:   identity,
		projects:   projects,
		txManager:  txManager,
		validator:  validator,
		machine:    machine,
		dispatcher: eventDispatcher,
		logger:     logger,
		maxRetries: DefaultMaxConflictRetries,
		weekStart:  time.Monday,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// snapshot is the state one attempt works from
type snapshot struct {
	ts      *entity.Timesheet
	entries []entity.TimeEntry
	perms   permission.Permissions
}

// change is what one attempt wants written and announced
type change struct {
	cs       port.ChangeSet
	events   []*event.Event
	entries  []entity.TimeEntry
	warnings []validation.Warning
}

// Create opens a draft for the owner's week
func (s *timesheetServiceImpl) Create(ctx context.Context, actor entity.Actor, ownerID string, weekStart time.Time) (*View, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.Validation("owner_id", "owner is required")
	}
	start := entity.TruncateDate(weekStart)
	if weekStart.IsZero() {
		return nil, apperr.Validation("week_start", "week start is required")
	}
	if start.Weekday() != s.weekStart {
		return nil, apperr.Validation("week_start", "week must start on a %s, %s is a %s",
			s.weekStart, start.Format(entity.DateLayout), start.Weekday())
	}

	ownerRole, err := s.identity.RoleOf(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("owner %s: %w", ownerID, err)
	}
	if err := s.checkCreator(ctx, actor, ownerID); err != nil {
		return nil, err
	}

	if _, err := s.store.FindActive(ctx, ownerID, start); err == nil {
		return nil, fmt.Errorf("%w: owner %s already has a timesheet for week %s",
			apperr.ErrDuplicateTimesheet, ownerID, start.Format(entity.DateLayout))
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("find active timesheet: %w", err)
	}

	now := s.now()
	ts := &entity.Timesheet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		WeekStart: start,
		WeekEnd:   entity.WeekEndFor(start),
		Status:    workflow.StateDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	record := entity.HistoryRecord{
		TimesheetID: ts.ID,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Action:      entity.ActionCreate,
		NewStatus:   workflow.StateDraft,
		Timestamp:   now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.store.CreateTimesheet(txCtx, ts, record)
	})
	if err != nil {
		s.logger.Error("Failed to create timesheet", "error", err, "owner_id", ownerID, "week_start", start.Format(entity.DateLayout))
		return nil, err
	}

	s.logger.Info("Timesheet created", "timesheet_id", ts.ID, "owner_id", ownerID, "week_start", start.Format(entity.DateLayout))
	s.publish(ctx, event.NewEvent(event.TypeTimesheetCreated, ts.ID, ownerID, actor.ID, "", workflow.StateDraft))

	perms := s.permissionsFor(actor, ts, ownerRole, s.relation(ctx, actor, ts.OwnerID), nil)
	return &View{Timesheet: ts, Entries: []entity.TimeEntry{}, Permissions: perms, Warnings: []validation.Warning{}}, nil
}

func (s *timesheetServiceImpl) checkCreator(ctx context.Context, actor entity.Actor, ownerID string) error {
	if actor.ID == ownerID || actor.Role == entity.RoleManagement {
		return nil
	}
	if s.relation(ctx, actor, ownerID) == permission.RelationOwnerManager {
		return nil
	}
	return &apperr.PermissionError{ActorID: actor.ID, Role: actor.Role.String(), Action: entity.ActionCreate, Status: "none"}
}

// ReplaceEntries swaps the entry set of an editable timesheet
func (s *timesheetServiceImpl) ReplaceEntries(ctx context.Context, actor entity.Actor, id string, entries []entity.TimeEntry) (*View, error) {
	return s.mutate(ctx, actor, id, entity.ActionReplaceEntries, func(snap *snapshot) (*change, error) {
		ts := snap.ts
		if !snap.perms.CanEdit {
			return nil, &apperr.PermissionError{ActorID: actor.ID, Role: actor.Role.String(), Action: entity.ActionReplaceEntries, Status: ts.Status.String()}
		}

		now := s.now()
		next := make([]entity.TimeEntry, len(entries))
		for i, e := range entries {
			e.ID = uuid.NewString()
			e.TimesheetID = ts.ID
			if e.HasDate() {
				e.Date = entity.TruncateDate(e.Date)
			}
			e.DeletedAt = nil
			e.CreatedAt = now
			next[i] = e
		}

		if err := s.validator.CheckEntries(ts, next); err != nil {
			return nil, err
		}

		updated := ts.Clone()
		updated.TotalHours = entity.SumHours(next)
		updated.Version++
		updated.UpdatedAt = now

		evt := event.NewEvent(event.TypeTimesheetEntriesReplaced, ts.ID, ts.OwnerID, actor.ID, ts.Status, ts.Status).
			WithPayload("entry_count", len(next)).
			WithPayload("total_hours", updated.TotalHours)

		return &change{
			cs: port.ChangeSet{
				Timesheet:       updated,
				ExpectedVersion: ts.Version,
				Entries:         &port.EntryReplacement{Insert: next, DeletedAt: now},
				History: []entity.HistoryRecord{{
					TimesheetID:    ts.ID,
					ActorID:        actor.ID,
					ActorRole:      actor.Role,
					Action:         entity.ActionReplaceEntries,
					PreviousStatus: ts.Status,
					NewStatus:      ts.Status,
					Timestamp:      now,
				}},
			},
			events:   []*event.Event{evt},
			entries:  next,
			warnings: s.validator.Validate(next),
		}, nil
	})
}

// Submit sends a draft or rejected timesheet for review
func (s *timesheetServiceImpl) Submit(ctx context.Context, actor entity.Actor, id string) (*View, error) {
	return s.transition(ctx, actor, id, appwf.Command{Trigger: workflow.TriggerSubmit, Actor: actor})
}

// Decide applies a reviewer's approve or reject
func (s *timesheetServiceImpl) Decide(ctx context.Context, actor entity.Actor, id string, decision Decision) (*View, error) {
	cmd := appwf.Command{Actor: actor, Reason: decision.Reason}

	switch decision.Action {
	case DecisionReject:
		if strings.TrimSpace(decision.Reason) == "" {
			return nil, apperr.Validation("reason", "a rejection needs a reason")
		}
		cmd.Trigger = workflow.TriggerReject
	case DecisionApprove:
		cmd.Trigger = workflow.TriggerApprove
		if decision.Finalize {
			cmd.Trigger = workflow.TriggerFinalize
		}
	default:
		return nil, apperr.Validation("action", "unknown decision %q", decision.Action)
	}

	return s.transition(ctx, actor, id, cmd)
}

// MarkBilled records the billing snapshot of a frozen timesheet
func (s *timesheetServiceImpl) MarkBilled(ctx context.Context, actor entity.Actor, id, snapshotID string) (*View, error) {
	return s.transition(ctx, actor, id, appwf.Command{Trigger: workflow.TriggerMarkBilled, Actor: actor, SnapshotID: snapshotID})
}

func (s *timesheetServiceImpl) transition(ctx context.Context, actor entity.Actor, id string, cmd appwf.Command) (*View, error) {
	return s.mutate(ctx, actor, id, cmd.Trigger.String(), func(snap *snapshot) (*change, error) {
		cmd.Permissions = snap.perms
		cmd.TotalHours = entity.SumHours(snap.entries)

		out, err := s.machine.Apply(ctx, snap.ts, cmd)
		if err != nil {
			return nil, err
		}

		var events []*event.Event
		correlation := uuid.NewString()
		for _, step := range out.Steps {
			typ, ok := event.ForStatus(step.To)
			if !ok {
				continue
			}
			evt := event.NewEventWithCorrelation(typ, snap.ts.ID, snap.ts.OwnerID, actor.ID, step.From, step.To, correlation)
			switch step.Trigger {
			case workflow.TriggerReject:
				evt = evt.WithPayload("reason", strings.TrimSpace(cmd.Reason))
			case workflow.TriggerMarkBilled:
				evt = evt.WithPayload("billing_snapshot_id", out.Timesheet.BillingSnapshotID)
			}
			events = append(events, evt.WithPayload("total_hours", out.Timesheet.TotalHours))
		}

		return &change{
			cs: port.ChangeSet{
				Timesheet:       out.Timesheet,
				ExpectedVersion: snap.ts.Version,
				History:         out.History,
			},
			events:  events,
			entries: snap.entries,
		}, nil
	})
}

// Delete soft-deletes a draft together with its entries
func (s *timesheetServiceImpl) Delete(ctx context.Context, actor entity.Actor, id string) error {
	_, err := s.mutate(ctx, actor, id, entity.ActionDelete, func(snap *snapshot) (*change, error) {
		ts := snap.ts
		if !snap.perms.CanEdit {
			return nil, &apperr.PermissionError{ActorID: actor.ID, Role: actor.Role.String(), Action: entity.ActionDelete, Status: ts.Status.String()}
		}
		if ts.Status != workflow.StateDraft {
			return nil, &apperr.TransitionError{Status: ts.Status.String(), Action: entity.ActionDelete}
		}

		now := s.now()
		updated := ts.Clone()
		updated.DeletedAt = &now
		updated.Version++
		updated.UpdatedAt = now

		return &change{
			cs: port.ChangeSet{
				Timesheet:       updated,
				ExpectedVersion: ts.Version,
				Entries:         &port.EntryReplacement{DeletedAt: now},
				History: []entity.HistoryRecord{{
					TimesheetID:    ts.ID,
					ActorID:        actor.ID,
					ActorRole:      actor.Role,
					Action:         entity.ActionDelete,
					PreviousStatus: ts.Status,
					NewStatus:      ts.Status,
					Timestamp:      now,
				}},
			},
			events: []*event.Event{event.NewEvent(event.TypeTimesheetDeleted, ts.ID, ts.OwnerID, actor.ID, ts.Status, ts.Status)},
		}, nil
	})
	return err
}

// mutate runs load, compute and write for one timesheet, re-reading and
// recomputing when the optimistic write loses to a concurrent writer
func (s *timesheetServiceImpl) mutate(ctx context.Context, actor entity.Actor, id, action string, compute func(*snapshot) (*change, error)) (*View, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, "timesheet:"+id)
		if err != nil {
			return nil, fmt.Errorf("lock timesheet %s: %w", id, err)
		}
		defer unlock()
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("timesheet %s: %w", id, err)
		}
		snap, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}

		ch, err := compute(snap)
		if err != nil {
			s.logger.Info("Timesheet change refused",
				"timesheet_id", id, "action", action, "actor_id", actor.ID, "status", snap.ts.Status, "error", err)
			return nil, err
		}

		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.store.AtomicReplace(txCtx, ch.cs)
		})
		if errors.Is(err, apperr.ErrConflict) {
			lastErr = err
			s.logger.Info("Concurrent modification, retrying",
				"timesheet_id", id, "action", action, "attempt", attempt+1, "expected_version", ch.cs.ExpectedVersion)
			continue
		}
		if err != nil {
			s.logger.Error("Failed to write timesheet", "timesheet_id", id, "action", action, "error", err)
			return nil, fmt.Errorf("write timesheet %s: %w", id, err)
		}

		updated := ch.cs.Timesheet
		s.logger.Info("Timesheet updated",
			"timesheet_id", id, "action", action, "actor_id", actor.ID,
			"from_status", snap.ts.Status, "to_status", updated.Status, "version", updated.Version)
		for _, evt := range ch.events {
			s.publish(ctx, evt)
		}

		entries := ch.entries
		if entries == nil {
			entries = []entity.TimeEntry{}
		}
		warnings := ch.warnings
		if warnings == nil {
			warnings = []validation.Warning{}
		}
		return &View{
			Timesheet:   updated,
			Entries:     entries,
			Permissions: s.resolveFor(ctx, actor, updated, entries),
			Warnings:    warnings,
		}, nil
	}

	s.logger.Error("Giving up after concurrent modifications", "timesheet_id", id, "action", action, "attempts", s.maxRetries+1)
	return nil, fmt.Errorf("timesheet %s: %w", id, lastErr)
}

func (s *timesheetServiceImpl) load(ctx context.Context, actor entity.Actor, id string) (*snapshot, error) {
	ts, err := s.store.LoadTimesheet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load timesheet %s: %w", id, err)
	}
	entries, err := s.store.LoadEntries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load entries for %s: %w", id, err)
	}
	perms, err := s.resolve(ctx, actor, ts, entries)
	if err != nil {
		return nil, err
	}
	return &snapshot{ts: ts, entries: entries, perms: perms}, nil
}

// resolve computes the actor's permissions from fresh directory data
func (s *timesheetServiceImpl) resolve(ctx context.Context, actor entity.Actor, ts *entity.Timesheet, entries []entity.TimeEntry) (permission.Permissions, error) {
	ownerRole, err := s.identity.RoleOf(ctx, ts.OwnerID)
	if err != nil {
		return permission.Permissions{}, fmt.Errorf("role of owner %s: %w", ts.OwnerID, err)
	}

	var scope *permission.ProjectScope
	if ts.Status == workflow.StateSubmitted && actor.ID != ts.OwnerID && !permission.HasGlobalApproval(actor.Role) {
		managed, err := s.projects.ManagedProjectIDs(ctx, actor.ID)
		if err != nil {
			return permission.Permissions{}, fmt.Errorf("managed projects of %s: %w", actor.ID, err)
		}
		scope = &permission.ProjectScope{
			ReferencedProjects: entity.ProjectIDs(entries),
			ManagedProjects:    managed,
		}
	}

	return s.permissionsFor(actor, ts, ownerRole, s.relation(ctx, actor, ts.OwnerID), scope), nil
}

// resolveFor is resolve for read paths; lookup failures yield no permissions
func (s *timesheetServiceImpl) resolveFor(ctx context.Context, actor entity.Actor, ts *entity.Timesheet, entries []entity.TimeEntry) permission.Permissions {
	perms, err := s.resolve(ctx, actor, ts, entries)
	if err != nil {
		s.logger.Error("Failed to resolve permissions", "timesheet_id", ts.ID, "actor_id", actor.ID, "error", err)
		return permission.Permissions{NextAction: permission.NoAction}
	}
	return perms
}

func (s *timesheetServiceImpl) permissionsFor(actor entity.Actor, ts *entity.Timesheet, ownerRole entity.Role, rel permission.Relation, scope *permission.ProjectScope) permission.Permissions {
	return permission.Resolve(permission.Input{
		Status:    ts.Status,
		ActorRole: actor.Role,
		OwnerRole: ownerRole,
		Relation:  rel,
		Scope:     scope,
	})
}

func (s *timesheetServiceImpl) relation(ctx context.Context, actor entity.Actor, ownerID string) permission.Relation {
	if actor.ID == ownerID {
		return permission.RelationOwner
	}
	managerID, err := s.identity.ManagerOf(ctx, ownerID)
	if err == nil && managerID != "" && managerID == actor.ID {
		return permission.RelationOwnerManager
	}
	return permission.RelationOther
}

// publish hands committed events to the dispatcher without tying them to the caller's deadline
func (s *timesheetServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(context.WithoutCancel(ctx), evt)
}

// GetView returns the timesheet with entries, advisory warnings and freshly resolved permissions
func (s *timesheetServiceImpl) GetView(ctx context.Context, actor entity.Actor, id string) (*View, error) {
	snap, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &View{
		Timesheet:   snap.ts,
		Entries:     snap.entries,
		Permissions: snap.perms,
		Warnings:    s.validator.Validate(snap.entries),
	}, nil
}

// StatusFlow answers what a role could do in a status
func (s *timesheetServiceImpl) StatusFlow(status workflow.State, role entity.Role) permission.Permissions {
	return permission.StatusFlow(status, role)
}

// ListForOwner lists the owner's active timesheets, newest week first
func (s *timesheetServiceImpl) ListForOwner(ctx context.Context, actor entity.Actor, ownerID string) ([]*entity.Timesheet, error) {
	list, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("Failed to list timesheets", "error", err, "owner_id", ownerID, "actor_id", actor.ID)
		return nil, err
	}
	return list, nil
}

// ListByStatus feeds background workers
func (s *timesheetServiceImpl) ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.Timesheet, error) {
	if !status.IsValid() {
		return nil, apperr.Validation("status", "unknown status %q", status)
	}
	return s.store.ListByStatus(ctx, status, limit)
}

// History returns the audit trail of a timesheet, oldest first
func (s *timesheetServiceImpl) History(ctx context.Context, actor entity.Actor, id string) ([]entity.HistoryRecord, error) {
	if _, err := s.store.LoadTimesheet(ctx, id); err != nil {
		return nil, fmt.Errorf("load timesheet %s: %w", id, err)
	}
	return s.store.History(ctx, id)
}

// PurgeDeletedEntries permanently removes soft-deleted entries; management only
func (s *timesheetServiceImpl) PurgeDeletedEntries(ctx context.Context, actor entity.Actor, id string) (int64, error) {
	ts, err := s.store.LoadTimesheet(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load timesheet %s: %w", id, err)
	}
	if actor.Role != entity.RoleManagement {
		return 0, &apperr.PermissionError{ActorID: actor.ID, Role: actor.Role.String(), Action: "purge", Status: ts.Status.String()}
	}

	var purged int64
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		n, err := s.store.PurgeDeletedEntries(txCtx, id)
		purged = n
		return err
	})
	if err != nil {
		s.logger.Error("Failed to purge entries", "timesheet_id", id, "error", err)
		return 0, err
	}

	s.logger.Info("Purged deleted entries", "timesheet_id", id, "count", purged, "actor_id", actor.ID)
	return purged, nil
}
