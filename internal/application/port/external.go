package port

import (
	"context"

	"github.com/garyjia/timesheet-approval/internal/domain/entity"
)

// Locker serializes writers on one key. The returned unlock must be called
// exactly once; it is safe to call after the context is done.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// SnapshotWriter renders the billing snapshot of a frozen timesheet
type SnapshotWriter interface {
	Render(ctx context.Context, ts *entity.Timesheet, entries []entity.TimeEntry) ([]byte, error)

	// Extension is the file extension of rendered snapshots, including the dot
	Extension() string
}
