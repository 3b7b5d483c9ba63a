// Package validation vets time entries against daily and weekly hour caps
// and duplicate rules. Validate is advisory and never fails; CheckEntries is
// the hard gate applied before entries are written.
package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
)

// Kind identifies the rule a warning came from
type Kind string

const (
	KindLowHours          Kind = "low hours"
	KindExcessHours       Kind = "excess hours"
	KindExcessWeeklyHours Kind = "excess weekly hours"
	KindDuplicate         Kind = "duplicate entry"
)

// Warning is an advisory finding; it never blocks a write on its own
type Warning struct {
	Kind  Kind    `json:"kind"`
	Date  string  `json:"date,omitempty"`
	Key   string  `json:"key,omitempty"`
	Hours float64 `json:"hours,omitempty"`
	Limit float64 `json:"limit,omitempty"`
	// EntryIndex is the position of the flagged entry for duplicate warnings, -1 otherwise
	EntryIndex int    `json:"entry_index"`
	Message    string `json:"message"`
}

// Limits holds the hour caps
type Limits struct {
	DailyMin  float64
	DailyMax  float64
	WeeklyMax float64
	// EnforceDailyMax turns a day pushed over DailyMax into a write failure
	EnforceDailyMax bool
}

// DefaultLimits returns the standard 8/10/56 caps with hard enforcement on
func DefaultLimits() Limits {
	return Limits{
		DailyMin:        8,
		DailyMax:        10,
		WeeklyMax:       56,
		EnforceDailyMax: true,
	}
}

// Engine applies a fixed set of limits
type Engine struct {
	limits Limits
}

// NewEngine creates an engine with the given limits
func NewEngine(limits Limits) *Engine {
	return &Engine{limits: limits}
}

// Limits returns the engine's caps
func (e *Engine) Limits() Limits {
	return e.limits
}

var defaultEngine = NewEngine(DefaultLimits())

// Validate runs the advisory rules with the default limits
func Validate(entries []entity.TimeEntry) []Warning {
	return defaultEngine.Validate(entries)
}

// Validate checks entries and returns warnings ordered as: per-day warnings
// chronologically, then the weekly warning, then duplicates in entry order.
// Entries without a date are skipped by every rule.
func (e *Engine) Validate(entries []entity.TimeEntry) []Warning {
	warnings := make([]Warning, 0)

	daily := make(map[string]float64)
	var weekly float64
	for _, entry := range entries {
		if !entry.HasDate() {
			continue
		}
		h := entity.CountableHours(entry.Hours)
		daily[entry.DateKey()] += h
		weekly += h
	}

	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, d := range dates {
		total := daily[d]
		switch {
		case total < e.limits.DailyMin:
			warnings = append(warnings, Warning{
				Kind:       KindLowHours,
				Date:       d,
				Hours:      total,
				Limit:      e.limits.DailyMin,
				EntryIndex: -1,
				Message: fmt.Sprintf("%s: %s has %s hours (minimum %s)",
					KindLowHours, d, apperr.FormatHours(total), apperr.FormatHours(e.limits.DailyMin)),
			})
		case total > e.limits.DailyMax:
			warnings = append(warnings, Warning{
				Kind:       KindExcessHours,
				Date:       d,
				Hours:      total,
				Limit:      e.limits.DailyMax,
				EntryIndex: -1,
				Message: fmt.Sprintf("%s: %s has %s hours (maximum %s)",
					KindExcessHours, d, apperr.FormatHours(total), apperr.FormatHours(e.limits.DailyMax)),
			})
		}
	}

	if weekly > e.limits.WeeklyMax {
		warnings = append(warnings, Warning{
			Kind:       KindExcessWeeklyHours,
			Hours:      weekly,
			Limit:      e.limits.WeeklyMax,
			EntryIndex: -1,
			Message: fmt.Sprintf("%s: %s hours (maximum %s)",
				KindExcessWeeklyHours, apperr.FormatHours(weekly), apperr.FormatHours(e.limits.WeeklyMax)),
		})
	}

	seen := make(map[string]bool)
	for i, entry := range entries {
		if !entry.HasDate() {
			continue
		}
		key := entry.DuplicateKey()
		if !seen[key] {
			seen[key] = true
			continue
		}
		warnings = append(warnings, Warning{
			Kind:       KindDuplicate,
			Date:       entry.DateKey(),
			Key:        key,
			EntryIndex: i,
			Message:    fmt.Sprintf("%s: %s", KindDuplicate, key),
		})
	}

	return warnings
}

// CheckEntries is the hard gate for a replacement batch. It returns a
// *apperr.ValidationError for the first malformed entry, duplicate
// project/task/date, or (when enforced) an entry that pushes its day over
// the daily maximum.
func (e *Engine) CheckEntries(ts *entity.Timesheet, entries []entity.TimeEntry) error {
	daily := make(map[string]float64)
	seen := make(map[string]int)

	for i, entry := range entries {
		if err := e.checkEntry(ts, i, entry); err != nil {
			return err
		}

		date := entry.DateKey()
		if entry.EntryType == entity.EntryTypeProjectTask {
			key := entry.DuplicateKey()
			if first, dup := seen[key]; dup {
				return &apperr.ValidationError{
					Field: fmt.Sprintf("entries[%d]", i),
					Date:  date,
					Message: fmt.Sprintf("duplicate entry for project %s task %s on %s (same as entries[%d])",
						entry.ProjectID, entry.TaskID, date, first),
				}
			}
			seen[key] = i
		}

		current := daily[date]
		if e.limits.EnforceDailyMax && current+entry.Hours > e.limits.DailyMax {
			return apperr.DailyLimit(date, current, entry.Hours, e.limits.DailyMax)
		}
		daily[date] = current + entry.Hours
	}

	return nil
}

func (e *Engine) checkEntry(ts *entity.Timesheet, i int, entry entity.TimeEntry) error {
	field := func(name string) string { return fmt.Sprintf("entries[%d].%s", i, name) }

	if !entry.HasDate() {
		return apperr.Validation(field("date"), "entry %d has no date", i)
	}
	date := entry.DateKey()
	if ts != nil && !ts.ContainsDate(entry.Date) {
		return &apperr.ValidationError{
			Field: field("date"),
			Date:  date,
			Message: fmt.Sprintf("%s is outside the timesheet week %s to %s",
				date, ts.WeekStart.Format(entity.DateLayout), ts.WeekEnd.Format(entity.DateLayout)),
		}
	}

	h := entry.Hours
	switch {
	case math.IsNaN(h) || math.IsInf(h, 0):
		return &apperr.ValidationError{Field: field("hours"), Date: date, Message: fmt.Sprintf("hours on %s are not a number", date)}
	case h == 0:
		return &apperr.ValidationError{Field: field("hours"), Date: date, Message: fmt.Sprintf("zero-hour entry on %s", date)}
	case h < 0:
		return &apperr.ValidationError{Field: field("hours"), Date: date,
			Message: fmt.Sprintf("negative hours on %s: %s", date, apperr.FormatHours(h))}
	case math.Mod(h*4, 1) != 0:
		return &apperr.ValidationError{Field: field("hours"), Date: date,
			Message: fmt.Sprintf("hours on %s must be in quarter-hour steps, got %s", date, apperr.FormatHours(h))}
	}

	switch entry.EntryType {
	case entity.EntryTypeProjectTask:
		if entry.ProjectID == "" || entry.TaskID == "" {
			return &apperr.ValidationError{Field: field("project_id"), Date: date,
				Message: fmt.Sprintf("project task entry on %s needs both project_id and task_id", date)}
		}
		if entry.CustomTaskDescription != "" {
			return &apperr.ValidationError{Field: field("custom_task_description"), Date: date,
				Message: fmt.Sprintf("project task entry on %s cannot carry a custom task description", date)}
		}
	case entity.EntryTypeCustomTask:
		if strings.TrimSpace(entry.CustomTaskDescription) == "" {
			return &apperr.ValidationError{Field: field("custom_task_description"), Date: date,
				Message: fmt.Sprintf("custom task on %s needs a description", date)}
		}
		if entry.ProjectID != "" || entry.TaskID != "" {
			return &apperr.ValidationError{Field: field("project_id"), Date: date,
				Message: fmt.Sprintf("custom task on %s cannot reference a project or task", date)}
		}
	default:
		return apperr.Validation(field("entry_type"), "unknown entry type %q on %s", entry.EntryType, date)
	}

	return nil
}
