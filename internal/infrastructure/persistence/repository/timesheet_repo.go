package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/persistence/sqlite"
)

// TimesheetRepository implements port.TimesheetStore on sqlite.
// Writes are guarded by the version column.
type TimesheetRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTimesheetRepository creates a new timesheet repository
func NewTimesheetRepository(db *sqlite.DB, logger *zap.Logger) *TimesheetRepository {
	return &TimesheetRepository{
		db:     db,
		logger: logger,
	}
}

const timesheetColumns = `
	id, owner_id, week_start, week_end, status, total_hours, is_verified, is_frozen,
	submitted_at,
	manager_approved_by, manager_approved_at, manager_rejected_by, manager_rejected_at, manager_rejection_reason,
	forwarded_by, forwarded_at,
	management_approved_by, management_approved_at, management_rejected_by, management_rejected_at, management_rejection_reason,
	frozen_at, billing_snapshot_id, billed_at, deleted_at,
	version, created_at, updated_at`

const entryColumns = `
	id, timesheet_id, date, hours, billable, entry_type, project_id, task_id,
	custom_task_description, description, deleted_at, created_at`

// LoadTimesheet retrieves a live timesheet by ID
func (r *TimesheetRepository) LoadTimesheet(ctx context.Context, id string) (*entity.Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets WHERE id = ? AND deleted_at IS NULL`

	ts, err := scanTimesheet(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("timesheet %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to load timesheet", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to load timesheet: %w", err)
	}
	return ts, nil
}

// LoadEntries returns the live entries of a timesheet ordered by date then insertion
func (r *TimesheetRepository) LoadEntries(ctx context.Context, timesheetID string) ([]entity.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
		WHERE timesheet_id = ? AND deleted_at IS NULL
		ORDER BY date ASC, rowid ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, timesheetID)
	if err != nil {
		r.logger.Error("Failed to load entries", zap.String("timesheet_id", timesheetID), zap.Error(err))
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()

	entries := []entity.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// FindActive returns the live timesheet for an owner and week
func (r *TimesheetRepository) FindActive(ctx context.Context, ownerID string, weekStart time.Time) (*entity.Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets
		WHERE owner_id = ? AND week_start = ? AND deleted_at IS NULL`

	ts, err := scanTimesheet(r.db.Executor(ctx).QueryRowContext(ctx, query, ownerID, weekStart.Format(entity.DateLayout)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active timesheet: %w", err)
	}
	return ts, nil
}

// CreateTimesheet inserts a timesheet with its creation record
func (r *TimesheetRepository) CreateTimesheet(ctx context.Context, ts *entity.Timesheet, record entity.HistoryRecord) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `INSERT INTO timesheets (` + timesheetColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		args := append([]interface{}{ts.ID, ts.OwnerID, ts.WeekStart.Format(entity.DateLayout), ts.WeekEnd.Format(entity.DateLayout)},
			timesheetState(ts)...)
		args = append(args, ts.CreatedAt, ts.UpdatedAt)

		if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
			if sqlite.IsUniqueViolation(err) {
				return fmt.Errorf("%w: owner %s already has a timesheet for week %s",
					apperr.ErrDuplicateTimesheet, ts.OwnerID, ts.WeekStart.Format(entity.DateLayout))
			}
			r.logger.Error("Failed to create timesheet", zap.String("id", ts.ID), zap.Error(err))
			return fmt.Errorf("failed to create timesheet: %w", err)
		}

		return r.appendHistory(ctx, []entity.HistoryRecord{record})
	})
}

// AtomicReplace writes the timesheet row, its entry replacement and history
// in one transaction. The row update only matches the expected version.
func (r *TimesheetRepository) AtomicReplace(ctx context.Context, cs port.ChangeSet) error {
	ts := cs.Timesheet
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Executor(ctx)

		query := `UPDATE timesheets SET
			status = ?, total_hours = ?, is_verified = ?, is_frozen = ?,
			submitted_at = ?,
			manager_approved_by = ?, manager_approved_at = ?, manager_rejected_by = ?, manager_rejected_at = ?, manager_rejection_reason = ?,
			forwarded_by = ?, forwarded_at = ?,
			management_approved_by = ?, management_approved_at = ?, management_rejected_by = ?, management_rejected_at = ?, management_rejection_reason = ?,
			frozen_at = ?, billing_snapshot_id = ?, billed_at = ?, deleted_at = ?,
			version = ?, updated_at = ?
			WHERE id = ? AND version = ? AND deleted_at IS NULL`

		args := append(timesheetState(ts), ts.UpdatedAt, ts.ID, cs.ExpectedVersion)
		result, err := exec.ExecContext(ctx, query, args...)
		if sqlite.IsBusy(err) {
			return fmt.Errorf("timesheet %s locked by another writer: %w", ts.ID, apperr.ErrConflict)
		}
		if err != nil {
			r.logger.Error("Failed to update timesheet", zap.String("id", ts.ID), zap.Error(err))
			return fmt.Errorf("failed to update timesheet: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return r.missOrConflict(ctx, ts.ID, cs.ExpectedVersion)
		}

		if cs.Entries != nil {
			if err := r.replaceEntries(ctx, ts.ID, cs.Entries); err != nil {
				return err
			}
		}

		return r.appendHistory(ctx, cs.History)
	})
}

func (r *TimesheetRepository) missOrConflict(ctx context.Context, id string, expected int64) error {
	var current int64
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT version FROM timesheets WHERE id = ? AND deleted_at IS NULL`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("timesheet %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	r.logger.Debug("Version mismatch", zap.String("id", id), zap.Int64("expected", expected), zap.Int64("current", current))
	return fmt.Errorf("timesheet %s at version %d, expected %d: %w", id, current, expected, apperr.ErrConflict)
}

func (r *TimesheetRepository) replaceEntries(ctx context.Context, timesheetID string, rep *port.EntryReplacement) error {
	exec := r.db.Executor(ctx)

	if _, err := exec.ExecContext(ctx,
		`UPDATE time_entries SET deleted_at = ? WHERE timesheet_id = ? AND deleted_at IS NULL`,
		rep.DeletedAt, timesheetID); err != nil {
		return fmt.Errorf("failed to retire entries: %w", err)
	}

	query := `INSERT INTO time_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, e := range rep.Insert {
		_, err := exec.ExecContext(ctx, query,
			e.ID, timesheetID, e.DateKey(), e.Hours, e.Billable, string(e.EntryType),
			nullString(e.ProjectID), nullString(e.TaskID),
			nullString(e.CustomTaskDescription), nullString(e.Description),
			nullTime(e.DeletedAt), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}
	return nil
}

func (r *TimesheetRepository) appendHistory(ctx context.Context, records []entity.HistoryRecord) error {
	query := `INSERT INTO timesheet_history (
			timesheet_id, actor_id, actor_role, action, previous_status, new_status, reason, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for _, h := range records {
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			h.TimesheetID, h.ActorID, string(h.ActorRole), h.Action,
			nullString(string(h.PreviousStatus)), string(h.NewStatus), nullString(h.Reason), h.Timestamp,
		)
		if err != nil {
			r.logger.Error("Failed to record history", zap.String("timesheet_id", h.TimesheetID), zap.Error(err))
			return fmt.Errorf("failed to record history: %w", err)
		}
	}
	return nil
}

// ListByOwner returns the owner's live timesheets, newest week first
func (r *TimesheetRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets
		WHERE owner_id = ? AND deleted_at IS NULL
		ORDER BY week_start DESC`
	return r.list(ctx, query, ownerID)
}

// ListByStatus returns live timesheets in a status, least recently updated first.
// A limit of zero or less means no limit.
func (r *TimesheetRepository) ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.Timesheet, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + timesheetColumns + ` FROM timesheets
		WHERE status = ? AND deleted_at IS NULL
		ORDER BY updated_at ASC, id ASC
		LIMIT ?`
	return r.list(ctx, query, string(status), limit)
}

func (r *TimesheetRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Timesheet, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list timesheets", zap.Error(err))
		return nil, fmt.Errorf("failed to list timesheets: %w", err)
	}
	defer rows.Close()

	var out []*entity.Timesheet
	for rows.Next() {
		ts, err := scanTimesheet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timesheet: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// History returns the audit trail, oldest first
func (r *TimesheetRepository) History(ctx context.Context, timesheetID string) ([]entity.HistoryRecord, error) {
	query := `SELECT id, timesheet_id, actor_id, actor_role, action, previous_status, new_status, reason, timestamp
		FROM timesheet_history
		WHERE timesheet_id = ?
		ORDER BY id ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, timesheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []entity.HistoryRecord
	for rows.Next() {
		var h entity.HistoryRecord
		var role, newStatus string
		var previous, reason sql.NullString
		if err := rows.Scan(&h.ID, &h.TimesheetID, &h.ActorID, &role, &h.Action, &previous, &newStatus, &reason, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.ActorRole = entity.Role(role)
		h.PreviousStatus = workflow.State(previous.String)
		h.NewStatus = workflow.State(newStatus)
		h.Reason = reason.String
		records = append(records, h)
	}
	return records, rows.Err()
}

// PurgeDeletedEntries hard-deletes the soft-deleted entries of a timesheet
func (r *TimesheetRepository) PurgeDeletedEntries(ctx context.Context, timesheetID string) (int64, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`DELETE FROM time_entries WHERE timesheet_id = ? AND deleted_at IS NOT NULL`, timesheetID)
	if err != nil {
		r.logger.Error("Failed to purge entries", zap.String("timesheet_id", timesheetID), zap.Error(err))
		return 0, fmt.Errorf("failed to purge entries: %w", err)
	}
	return result.RowsAffected()
}

// timesheetState lists the mutable columns from status through version
func timesheetState(ts *entity.Timesheet) []interface{} {
	return []interface{}{
		string(ts.Status), ts.TotalHours, ts.IsVerified, ts.IsFrozen,
		nullTime(ts.SubmittedAt),
		nullString(ts.ManagerApprovedBy), nullTime(ts.ManagerApprovedAt),
		nullString(ts.ManagerRejectedBy), nullTime(ts.ManagerRejectedAt), nullString(ts.ManagerRejectionReason),
		nullString(ts.ForwardedBy), nullTime(ts.ForwardedAt),
		nullString(ts.ManagementApprovedBy), nullTime(ts.ManagementApprovedAt),
		nullString(ts.ManagementRejectedBy), nullTime(ts.ManagementRejectedAt), nullString(ts.ManagementRejectionReason),
		nullTime(ts.FrozenAt), nullString(ts.BillingSnapshotID), nullTime(ts.BilledAt), nullTime(ts.DeletedAt),
		ts.Version,
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTimesheet(row scanner) (*entity.Timesheet, error) {
	var ts entity.Timesheet
	var weekStart, weekEnd, status string
	var submittedAt, managerApprovedAt, managerRejectedAt, forwardedAt sql.NullTime
	var managementApprovedAt, managementRejectedAt, frozenAt, billedAt, deletedAt sql.NullTime
	var managerApprovedBy, managerRejectedBy, managerReason, forwardedBy sql.NullString
	var managementApprovedBy, managementRejectedBy, managementReason, snapshotID sql.NullString

	err := row.Scan(
		&ts.ID, &ts.OwnerID, &weekStart, &weekEnd, &status, &ts.TotalHours, &ts.IsVerified, &ts.IsFrozen,
		&submittedAt,
		&managerApprovedBy, &managerApprovedAt, &managerRejectedBy, &managerRejectedAt, &managerReason,
		&forwardedBy, &forwardedAt,
		&managementApprovedBy, &managementApprovedAt, &managementRejectedBy, &managementRejectedAt, &managementReason,
		&frozenAt, &snapshotID, &billedAt, &deletedAt,
		&ts.Version, &ts.CreatedAt, &ts.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ts.WeekStart, err = entity.ParseDate(weekStart); err != nil {
		return nil, fmt.Errorf("bad week_start %q: %w", weekStart, err)
	}
	if ts.WeekEnd, err = entity.ParseDate(weekEnd); err != nil {
		return nil, fmt.Errorf("bad week_end %q: %w", weekEnd, err)
	}
	ts.Status = workflow.State(status)

	ts.SubmittedAt = timePtr(submittedAt)
	ts.ManagerApprovedBy = managerApprovedBy.String
	ts.ManagerApprovedAt = timePtr(managerApprovedAt)
	ts.ManagerRejectedBy = managerRejectedBy.String
	ts.ManagerRejectedAt = timePtr(managerRejectedAt)
	ts.ManagerRejectionReason = managerReason.String
	ts.ForwardedBy = forwardedBy.String
	ts.ForwardedAt = timePtr(forwardedAt)
	ts.ManagementApprovedBy = managementApprovedBy.String
	ts.ManagementApprovedAt = timePtr(managementApprovedAt)
	ts.ManagementRejectedBy = managementRejectedBy.String
	ts.ManagementRejectedAt = timePtr(managementRejectedAt)
	ts.ManagementRejectionReason = managementReason.String
	ts.FrozenAt = timePtr(frozenAt)
	ts.BillingSnapshotID = snapshotID.String
	ts.BilledAt = timePtr(billedAt)
	ts.DeletedAt = timePtr(deletedAt)

	return &ts, nil
}

func scanEntry(row scanner) (*entity.TimeEntry, error) {
	var e entity.TimeEntry
	var date, entryType string
	var projectID, taskID, customTask, description sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.TimesheetID, &date, &e.Hours, &e.Billable, &entryType, &projectID, &taskID,
		&customTask, &description, &deletedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.Date, err = entity.ParseDate(date); err != nil {
		return nil, fmt.Errorf("bad entry date %q: %w", date, err)
	}
	e.EntryType = entity.EntryType(entryType)
	e.ProjectID = projectID.String
	e.TaskID = taskID.String
	e.CustomTaskDescription = customTask.String
	e.Description = description.String
	e.DeletedAt = timePtr(deletedAt)
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// Verify interface compliance
var _ port.TimesheetStore = (*TimesheetRepository)(nil)
