package entity

import (
	"math"
	"time"
)

// EntryType discriminates project work from free-form custom tasks
type EntryType string

const (
	EntryTypeProjectTask EntryType = "project_task"
	EntryTypeCustomTask  EntryType = "custom_task"
)

// NotApplicable stands in for a missing project or task id in duplicate keys
const NotApplicable = "N/A"

// TimeEntry is a single (date, project/task or custom task, hours) record
type TimeEntry struct {
	ID                    string     `json:"id"`
	TimesheetID           string     `json:"timesheet_id"`
	Date                  time.Time  `json:"date"`
	Hours                 float64    `json:"hours"`
	Billable              bool       `json:"billable"`
	EntryType             EntryType  `json:"entry_type"`
	ProjectID             string     `json:"project_id,omitempty"`
	TaskID                string     `json:"task_id,omitempty"`
	CustomTaskDescription string     `json:"custom_task_description,omitempty"`
	Description           string     `json:"description,omitempty"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// HasDate reports whether the entry carries a date
func (e TimeEntry) HasDate() bool {
	return !e.Date.IsZero()
}

// DateKey returns the entry date as YYYY-MM-DD, or "" when missing
func (e TimeEntry) DateKey() string {
	if !e.HasDate() {
		return ""
	}
	return e.Date.Format(DateLayout)
}

// DuplicateKey returns "project/task/date" with N/A for missing ids
func (e TimeEntry) DuplicateKey() string {
	project := e.ProjectID
	if project == "" {
		project = NotApplicable
	}
	task := e.TaskID
	if task == "" {
		task = NotApplicable
	}
	return project + "/" + task + "/" + e.DateKey()
}

// SumHours totals the hours of non-deleted entries
func SumHours(entries []TimeEntry) float64 {
	var total float64
	for _, e := range entries {
		if e.DeletedAt != nil {
			continue
		}
		total += CountableHours(e.Hours)
	}
	return total
}

// CountableHours maps negative, NaN and infinite hours to zero
func CountableHours(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
		return 0
	}
	return h
}

// ProjectIDs returns the distinct project ids referenced by project_task entries, in first-seen order
func ProjectIDs(entries []TimeEntry) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.EntryType != EntryTypeProjectTask || e.ProjectID == "" || seen[e.ProjectID] {
			continue
		}
		seen[e.ProjectID] = true
		ids = append(ids, e.ProjectID)
	}
	return ids
}
