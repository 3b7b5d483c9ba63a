package service

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// BillingRun summarises one pass over frozen timesheets
type BillingRun struct {
	Billed  int `json:"billed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// BillingService turns frozen timesheets into billed ones: it renders a
// snapshot, stores it, then marks the timesheet billed as the billing actor
type BillingService interface {
	BillTimesheet(ctx context.Context, id string) (*View, error)
	BillFrozen(ctx context.Context, limit int) (BillingRun, error)
}

type billingServiceImpl struct {
	timesheets TimesheetService
	writer     port.SnapshotWriter
	storage    port.FileStorage
	dir        string
	logger     Logger
}

// NewBillingService creates a new BillingService. Snapshots are stored under dir.
func NewBillingService(
	timesheets TimesheetService,
	writer port.SnapshotWriter,
	storage port.FileStorage,
	dir string,
	logger Logger,
) BillingService {
	return &billingServiceImpl{
		timesheets: timesheets,
		writer:     writer,
		storage:    storage,
		dir:        dir,
		logger:     logger,
	}
}

// SnapshotPath is where the snapshot of a timesheet is stored
func SnapshotPath(dir string, ts *entity.Timesheet, snapshotID, ext string) string {
	name := fmt.Sprintf("%s_%s%s", ts.WeekStart.Format(entity.DateLayout), snapshotID, ext)
	return path.Join(dir, ts.OwnerID, name)
}

// BillTimesheet bills one frozen timesheet
func (s *billingServiceImpl) BillTimesheet(ctx context.Context, id string) (*View, error) {
	actor := entity.BillingActor()

	view, err := s.timesheets.GetView(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	ts := view.Timesheet
	if ts.Status != workflow.StateFrozen {
		return nil, &apperr.TransitionError{Status: ts.Status.String(), Action: workflow.TriggerMarkBilled.String()}
	}

	content, err := s.writer.Render(ctx, ts, view.Entries)
	if err != nil {
		return nil, fmt.Errorf("render snapshot for %s: %w", id, err)
	}

	snapshotID := uuid.NewString()
	p := SnapshotPath(s.dir, ts, snapshotID, s.writer.Extension())
	if err := s.storage.Save(ctx, p, content); err != nil {
		return nil, fmt.Errorf("store snapshot for %s: %w", id, err)
	}

	billed, err := s.timesheets.MarkBilled(ctx, actor, id, snapshotID)
	if err != nil {
		if delErr := s.storage.Delete(ctx, p); delErr != nil {
			s.logger.Error("Failed to remove orphaned snapshot", "path", p, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("Timesheet billed",
		"timesheet_id", id, "owner_id", ts.OwnerID, "snapshot_id", snapshotID, "path", p, "total_hours", ts.TotalHours)
	return billed, nil
}

// BillFrozen bills up to limit frozen timesheets. Timesheets another writer
// got to first are skipped, not failed.
func (s *billingServiceImpl) BillFrozen(ctx context.Context, limit int) (BillingRun, error) {
	var run BillingRun

	frozen, err := s.timesheets.ListByStatus(ctx, workflow.StateFrozen, limit)
	if err != nil {
		return run, fmt.Errorf("list frozen timesheets: %w", err)
	}

	for _, ts := range frozen {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		_, err := s.BillTimesheet(ctx, ts.ID)
		switch {
		case err == nil:
			run.Billed++
		case errors.Is(err, apperr.ErrInvalidTransition), errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrNotFound):
			run.Skipped++
			s.logger.Info("Skipping timesheet", "timesheet_id", ts.ID, "reason", err)
		default:
			run.Failed++
			s.logger.Error("Failed to bill timesheet", "timesheet_id", ts.ID, "error", err)
		}
	}

	return run, nil
}
