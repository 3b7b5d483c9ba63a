package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/timesheet-approval/pkg/database"
)

var (
	monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	noon   = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "timesheets.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Migrate())
	return sqlite.NewDB(db.DB, logger)
}

func newTimesheet(id, owner string, weekStart time.Time) *entity.Timesheet {
	return &entity.Timesheet{
		ID:        id,
		OwnerID:   owner,
		WeekStart: weekStart,
		WeekEnd:   entity.WeekEndFor(weekStart),
		Status:    workflow.StateDraft,
		Version:   1,
		CreatedAt: noon,
		UpdatedAt: noon,
	}
}

func createRecord(ts *entity.Timesheet) entity.HistoryRecord {
	return entity.HistoryRecord{
		TimesheetID: ts.ID,
		ActorID:     ts.OwnerID,
		ActorRole:   entity.RoleEmployee,
		Action:      entity.ActionCreate,
		NewStatus:   workflow.StateDraft,
		Timestamp:   noon,
	}
}

func projectEntry(id string, day int, hours float64, project, task string) entity.TimeEntry {
	return entity.TimeEntry{
		ID:        id,
		Date:      monday.AddDate(0, 0, day),
		Hours:     hours,
		Billable:  true,
		EntryType: entity.EntryTypeProjectTask,
		ProjectID: project,
		TaskID:    task,
		CreatedAt: noon,
	}
}

func TestTimesheetRepository_CreateAndLoad(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	ts := newTimesheet("ts-1", "emp-1", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, ts, createRecord(ts)))

	got, err := repo.LoadTimesheet(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", got.OwnerID)
	assert.True(t, got.WeekStart.Equal(monday))
	assert.Equal(t, "2024-01-07", got.WeekEnd.Format(entity.DateLayout))
	assert.Equal(t, workflow.StateDraft, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CreatedAt.Equal(noon))
	assert.Nil(t, got.SubmittedAt)

	found, err := repo.FindActive(ctx, "emp-1", monday)
	require.NoError(t, err)
	assert.Equal(t, "ts-1", found.ID)

	_, err = repo.FindActive(ctx, "emp-1", monday.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.LoadTimesheet(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	entries, err := repo.LoadEntries(ctx, "ts-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	history, err := repo.History(ctx, "ts-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionCreate, history[0].Action)
	assert.Equal(t, workflow.State(""), history[0].PreviousStatus)
}

func TestTimesheetRepository_DuplicateActiveWeek(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	first := newTimesheet("ts-1", "emp-1", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, first, createRecord(first)))

	second := newTimesheet("ts-2", "emp-1", monday)
	err := repo.CreateTimesheet(ctx, second, createRecord(second))
	assert.ErrorIs(t, err, apperr.ErrDuplicateTimesheet)

	// the failed insert must not leave a history row behind
	history, err := repo.History(ctx, "ts-2")
	require.NoError(t, err)
	assert.Empty(t, history)

	other := newTimesheet("ts-3", "emp-2", monday)
	assert.NoError(t, repo.CreateTimesheet(ctx, other, createRecord(other)))
}

func TestTimesheetRepository_AtomicReplace(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	ts := newTimesheet("ts-1", "emp-1", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, ts, createRecord(ts)))

	first := []entity.TimeEntry{
		projectEntry("e1", 1, 8, "p1", "t1"),
		projectEntry("e2", 0, 4, "p1", "t2"),
	}
	updated := ts.Clone()
	updated.TotalHours = 12
	updated.Version = 2
	require.NoError(t, repo.AtomicReplace(ctx, port.ChangeSet{
		Timesheet:       updated,
		ExpectedVersion: 1,
		Entries:         &port.EntryReplacement{Insert: first, DeletedAt: noon},
		History: []entity.HistoryRecord{{
			TimesheetID: ts.ID, ActorID: "emp-1", ActorRole: entity.RoleEmployee,
			Action: entity.ActionReplaceEntries, PreviousStatus: workflow.StateDraft, NewStatus: workflow.StateDraft, Timestamp: noon,
		}},
	}))

	entries, err := repo.LoadEntries(ctx, "ts-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID, "ordered by date")
	assert.Equal(t, "p1", entries[0].ProjectID)
	assert.True(t, entries[0].Billable)

	custom := entity.TimeEntry{
		ID: "e3", Date: monday, Hours: 2, EntryType: entity.EntryTypeCustomTask,
		CustomTaskDescription: "training", CreatedAt: noon,
	}
	updated = updated.Clone()
	updated.TotalHours = 2
	updated.Version = 3
	require.NoError(t, repo.AtomicReplace(ctx, port.ChangeSet{
		Timesheet:       updated,
		ExpectedVersion: 2,
		Entries:         &port.EntryReplacement{Insert: []entity.TimeEntry{custom}, DeletedAt: noon.Add(time.Hour)},
	}))

	entries, err = repo.LoadEntries(ctx, "ts-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "training", entries[0].CustomTaskDescription)
	assert.Empty(t, entries[0].ProjectID)

	got, err := repo.LoadTimesheet(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.TotalHours)
	assert.Equal(t, int64(3), got.Version)

	purged, err := repo.PurgeDeletedEntries(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	entries, err = repo.LoadEntries(ctx, "ts-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTimesheetRepository_VersionConflict(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	ts := newTimesheet("ts-1", "emp-1", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, ts, createRecord(ts)))

	stale := ts.Clone()
	stale.Status = workflow.StateSubmitted
	stale.Version = 2
	cs := port.ChangeSet{
		Timesheet:       stale,
		ExpectedVersion: 1,
		Entries:         &port.EntryReplacement{Insert: []entity.TimeEntry{projectEntry("e1", 0, 8, "p1", "t1")}, DeletedAt: noon},
		History: []entity.HistoryRecord{{
			TimesheetID: ts.ID, ActorID: "emp-1", ActorRole: entity.RoleEmployee,
			Action: "submit", PreviousStatus: workflow.StateDraft, NewStatus: workflow.StateSubmitted, Timestamp: noon,
		}},
	}
	require.NoError(t, repo.AtomicReplace(ctx, cs))

	// same expected version again: the row has moved on
	cs.Entries.Insert = []entity.TimeEntry{projectEntry("e2", 0, 8, "p1", "t1")}
	err := repo.AtomicReplace(ctx, cs)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	entries, err := repo.LoadEntries(ctx, "ts-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ID, "conflicting write must not touch entries")

	history, err := repo.History(ctx, "ts-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	missing := newTimesheet("nope", "emp-1", monday)
	err = repo.AtomicReplace(ctx, port.ChangeSet{Timesheet: missing, ExpectedVersion: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTimesheetRepository_ConcurrentWritersOneWins(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	ts := newTimesheet("ts-1", "emp-1", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, ts, createRecord(ts)))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := ts.Clone()
			next.Version = 2
			next.TotalHours = float64(i + 1)
			results[i] = repo.AtomicReplace(ctx, port.ChangeSet{Timesheet: next, ExpectedVersion: 1})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestTimesheetRepository_SoftDeleteHidesTimesheet(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	ts := newTimesheet("ts-1", "emp-1", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, ts, createRecord(ts)))

	deleted := ts.Clone()
	deletedAt := noon.Add(time.Hour)
	deleted.DeletedAt = &deletedAt
	deleted.Version = 2
	require.NoError(t, repo.AtomicReplace(ctx, port.ChangeSet{
		Timesheet:       deleted,
		ExpectedVersion: 1,
		Entries:         &port.EntryReplacement{DeletedAt: deletedAt},
	}))

	_, err := repo.LoadTimesheet(ctx, "ts-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.FindActive(ctx, "emp-1", monday)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	again := newTimesheet("ts-2", "emp-1", monday)
	assert.NoError(t, repo.CreateTimesheet(ctx, again, createRecord(again)))
}

func TestTimesheetRepository_RoundTripsLifecycleFields(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	ts := newTimesheet("ts-1", "emp-1", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, ts, createRecord(ts)))

	at := noon.Add(2 * time.Hour)
	next := ts.Clone()
	next.Status = workflow.StateBilled
	next.TotalHours = 40
	next.IsVerified = true
	next.IsFrozen = true
	next.SubmittedAt = &at
	next.ManagerApprovedBy = "mgr-1"
	next.ManagerApprovedAt = &at
	next.ManagerRejectionReason = "fix monday"
	next.ForwardedBy = "mgr-1"
	next.ForwardedAt = &at
	next.ManagementApprovedBy = "exec-1"
	next.ManagementApprovedAt = &at
	next.FrozenAt = &at
	next.BillingSnapshotID = "snap-1"
	next.BilledAt = &at
	next.Version = 2
	next.UpdatedAt = at
	require.NoError(t, repo.AtomicReplace(ctx, port.ChangeSet{Timesheet: next, ExpectedVersion: 1}))

	got, err := repo.LoadTimesheet(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateBilled, got.Status)
	assert.True(t, got.IsVerified)
	assert.True(t, got.IsFrozen)
	require.NotNil(t, got.SubmittedAt)
	assert.True(t, got.SubmittedAt.Equal(at))
	assert.Equal(t, "mgr-1", got.ManagerApprovedBy)
	assert.Equal(t, "fix monday", got.ManagerRejectionReason)
	assert.Equal(t, "mgr-1", got.ForwardedBy)
	assert.Equal(t, "exec-1", got.ManagementApprovedBy)
	assert.Empty(t, got.ManagementRejectedBy)
	assert.Nil(t, got.ManagementRejectedAt)
	assert.Equal(t, "snap-1", got.BillingSnapshotID)
	require.NotNil(t, got.BilledAt)
	assert.True(t, got.BilledAt.Equal(at))
	assert.True(t, got.UpdatedAt.Equal(at))
}

func TestTimesheetRepository_Listing(t *testing.T) {
	repo := NewTimesheetRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		ts := newTimesheet(id, "emp-1", monday.AddDate(0, 0, 7*i))
		require.NoError(t, repo.CreateTimesheet(ctx, ts, createRecord(ts)))
	}
	other := newTimesheet("d", "emp-2", monday)
	require.NoError(t, repo.CreateTimesheet(ctx, other, createRecord(other)))

	owned, err := repo.ListByOwner(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, owned, 3)
	assert.Equal(t, "c", owned[0].ID, "newest week first")

	drafts, err := repo.ListByStatus(ctx, workflow.StateDraft, 0)
	require.NoError(t, err)
	assert.Len(t, drafts, 4)

	limited, err := repo.ListByStatus(ctx, workflow.StateDraft, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	frozen, err := repo.ListByStatus(ctx, workflow.StateFrozen, 10)
	require.NoError(t, err)
	assert.Empty(t, frozen)
}

func TestDirectoryRepository(t *testing.T) {
	repo := NewDirectoryRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, &entity.User{ID: "exec-1", Name: "Eve", Role: entity.RoleManagement}))
	require.NoError(t, repo.UpsertUser(ctx, &entity.User{ID: "mgr-1", Name: "Max", Role: entity.RoleManager, ManagerID: "exec-1"}))
	require.NoError(t, repo.UpsertUser(ctx, &entity.User{ID: "lead-1", Name: "Lee", Role: entity.RoleEmployee, ManagerID: "mgr-1"}))

	// promote
	require.NoError(t, repo.UpsertUser(ctx, &entity.User{ID: "lead-1", Name: "Lee", Role: entity.RoleLead, ManagerID: "mgr-1"}))

	role, err := repo.RoleOf(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleLead, role)

	managerID, err := repo.ManagerOf(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", managerID)

	managerID, err = repo.ManagerOf(ctx, "exec-1")
	require.NoError(t, err)
	assert.Empty(t, managerID)

	_, err = repo.RoleOf(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	user, err := repo.GetUser(ctx, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, "Max", user.Name)
	assert.Equal(t, "exec-1", user.ManagerID)

	require.NoError(t, repo.SetProjectRole(ctx, "p2", "lead-1", entity.ProjectRoleManager))
	require.NoError(t, repo.SetProjectRole(ctx, "p1", "lead-1", entity.ProjectRoleManager))
	require.NoError(t, repo.SetProjectRole(ctx, "p3", "lead-1", "member"))

	projects, err := repo.ManagedProjectIDs(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, projects)

	require.NoError(t, repo.RemoveProjectRole(ctx, "p1", "lead-1"))
	projects, err = repo.ManagedProjectIDs(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, projects)

	assert.ErrorIs(t, repo.RemoveProjectRole(ctx, "p1", "lead-1"), apperr.ErrNotFound)
}
