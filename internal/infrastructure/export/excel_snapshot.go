// Package export renders billing snapshots of frozen timesheets.
package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
)

const (
	summarySheet = "Timesheet"
	dailySheet   = "Daily"

	// first row of the entry table on the summary sheet
	entryHeaderRow = 10
)

var entryHeaders = []string{"Date", "Type", "Project", "Task", "Description", "Hours", "Billable"}

// ExcelSnapshotWriter renders a timesheet as an xlsx workbook
type ExcelSnapshotWriter struct {
	companyName string
	logger      *zap.Logger
}

// NewExcelSnapshotWriter creates a new snapshot writer
func NewExcelSnapshotWriter(companyName string, logger *zap.Logger) *ExcelSnapshotWriter {
	return &ExcelSnapshotWriter{
		companyName: companyName,
		logger:      logger,
	}
}

// Extension is the file extension of rendered snapshots
func (w *ExcelSnapshotWriter) Extension() string {
	return ".xlsx"
}

// Render builds the workbook: a summary sheet with every entry and a
// per-day totals sheet
func (w *ExcelSnapshotWriter) Render(ctx context.Context, ts *entity.Timesheet, entries []entity.TimeEntry) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if _, err := f.NewSheet(dailySheet); err != nil {
		return nil, fmt.Errorf("failed to create daily sheet: %w", err)
	}

	w.fillHeader(f, ts)

	sorted := append([]entity.TimeEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	if err := w.fillEntries(f, sorted); err != nil {
		return nil, err
	}
	if err := w.fillDaily(f, sorted); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.Debug("Rendered billing snapshot",
		zap.String("timesheet_id", ts.ID),
		zap.Int("entries", len(entries)),
		zap.Int("size", buf.Len()))
	return buf.Bytes(), nil
}

func (w *ExcelSnapshotWriter) fillHeader(f *excelize.File, ts *entity.Timesheet) {
	rows := [][2]interface{}{
		{"Company", w.companyName},
		{"Timesheet", ts.ID},
		{"Owner", ts.OwnerID},
		{"Week", fmt.Sprintf("%s to %s", ts.WeekStart.Format(entity.DateLayout), ts.WeekEnd.Format(entity.DateLayout))},
		{"Status", ts.Status.String()},
		{"Total hours", ts.TotalHours},
		{"Manager approval", approval(ts.ManagerApprovedBy, ts.ManagerApprovedAt)},
		{"Management approval", approval(ts.ManagementApprovedBy, ts.ManagementApprovedAt)},
	}
	if ts.FrozenAt != nil {
		rows = append(rows, [2]interface{}{"Frozen at", ts.FrozenAt.Format("2006-01-02 15:04:05")})
	}

	for i, row := range rows {
		w.setCell(f, summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		w.setCell(f, summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}
}

func (w *ExcelSnapshotWriter) fillEntries(f *excelize.File, entries []entity.TimeEntry) error {
	if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", entryHeaderRow), &entryHeaders); err != nil {
		return fmt.Errorf("failed to write entry header: %w", err)
	}

	var billable, total float64
	row := entryHeaderRow + 1
	for _, e := range entries {
		description := e.Description
		if e.EntryType == entity.EntryTypeCustomTask {
			description = e.CustomTaskDescription
		}
		values := []interface{}{
			e.DateKey(), string(e.EntryType), e.ProjectID, e.TaskID, description, e.Hours, yesNo(e.Billable),
		}
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("failed to write entry row %d: %w", row, err)
		}
		total += entity.CountableHours(e.Hours)
		if e.Billable {
			billable += entity.CountableHours(e.Hours)
		}
		row++
	}

	w.setCell(f, summarySheet, fmt.Sprintf("E%d", row), "Total")
	w.setCell(f, summarySheet, fmt.Sprintf("F%d", row), total)
	w.setCell(f, summarySheet, fmt.Sprintf("E%d", row+1), "Billable")
	w.setCell(f, summarySheet, fmt.Sprintf("F%d", row+1), billable)
	return nil
}

func (w *ExcelSnapshotWriter) fillDaily(f *excelize.File, entries []entity.TimeEntry) error {
	header := []interface{}{"Date", "Hours", "Billable hours"}
	if err := f.SetSheetRow(dailySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write daily header: %w", err)
	}

	type day struct {
		hours, billable float64
	}
	var order []string
	days := make(map[string]*day)
	for _, e := range entries {
		key := e.DateKey()
		d, ok := days[key]
		if !ok {
			d = &day{}
			days[key] = d
			order = append(order, key)
		}
		d.hours += entity.CountableHours(e.Hours)
		if e.Billable {
			d.billable += entity.CountableHours(e.Hours)
		}
	}

	for i, key := range order {
		values := []interface{}{key, days[key].hours, days[key].billable}
		if err := f.SetSheetRow(dailySheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return fmt.Errorf("failed to write daily row: %w", err)
		}
	}
	return nil
}

func (w *ExcelSnapshotWriter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func approval(by string, at *time.Time) string {
	switch {
	case by == "":
		return "-"
	case at == nil:
		return by
	default:
		return fmt.Sprintf("%s on %s", by, at.Format(entity.DateLayout))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var _ port.SnapshotWriter = (*ExcelSnapshotWriter)(nil)
