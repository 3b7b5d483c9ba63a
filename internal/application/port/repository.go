package port

import (
	"context"
	"time"

	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// TimesheetStore persists timesheets, their entries and history.
// Soft-deleted timesheets are invisible to every read and yield apperr.ErrNotFound.
type TimesheetStore interface {
	LoadTimesheet(ctx context.Context, id string) (*entity.Timesheet, error)

	// LoadEntries returns the non-deleted entries ordered by date then insertion
	LoadEntries(ctx context.Context, timesheetID string) ([]entity.TimeEntry, error)

	// FindActive returns the non-deleted timesheet for the owner and week, or apperr.ErrNotFound
	FindActive(ctx context.Context, ownerID string, weekStart time.Time) (*entity.Timesheet, error)

	// CreateTimesheet inserts a new timesheet and its creation record.
	// Returns apperr.ErrDuplicateTimesheet when an active one exists for the week.
	CreateTimesheet(ctx context.Context, ts *entity.Timesheet, record entity.HistoryRecord) error

	// AtomicReplace applies a change set in one write, or returns apperr.ErrConflict
	// when the stored version no longer matches ExpectedVersion
	AtomicReplace(ctx context.Context, cs ChangeSet) error

	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Timesheet, error)
	ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.Timesheet, error)
	History(ctx context.Context, timesheetID string) ([]entity.HistoryRecord, error)

	// PurgeDeletedEntries hard-deletes soft-deleted entries and returns how many went
	PurgeDeletedEntries(ctx context.Context, timesheetID string) (int64, error)
}

// ChangeSet is everything one lifecycle step writes
type ChangeSet struct {
	// Timesheet is the new row; its Version must be ExpectedVersion+1
	Timesheet       *entity.Timesheet
	ExpectedVersion int64

	// Entries is nil when the step leaves entries untouched
	Entries *EntryReplacement

	History []entity.HistoryRecord
}

// EntryReplacement soft-deletes every live entry and inserts Insert in its place
type EntryReplacement struct {
	Insert    []entity.TimeEntry
	DeletedAt time.Time
}

// IdentityLookup resolves a user's global role and direct manager
type IdentityLookup interface {
	RoleOf(ctx context.Context, userID string) (entity.Role, error)

	// ManagerOf returns "" when the user has no manager
	ManagerOf(ctx context.Context, userID string) (string, error)
}

// ProjectAuthorityLookup lists the projects a user holds manager authority on
type ProjectAuthorityLookup interface {
	ManagedProjectIDs(ctx context.Context, userID string) ([]string, error)
}

// Directory maintains users and project roles
type Directory interface {
	IdentityLookup
	ProjectAuthorityLookup

	GetUser(ctx context.Context, id string) (*entity.User, error)
	UpsertUser(ctx context.Context, user *entity.User) error
	SetProjectRole(ctx context.Context, projectID, userID, role string) error
	RemoveProjectRole(ctx context.Context, projectID, userID string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
