package entity

import (
	"time"

	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// DateLayout is the calendar date format used for week starts, entry dates and keys
const DateLayout = "2006-01-02"

// Timesheet is the weekly approval unit owning a set of time entries
type Timesheet struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	WeekStart  time.Time      `json:"week_start"`
	WeekEnd    time.Time      `json:"week_end"`
	Status     workflow.State `json:"status"`
	TotalHours float64        `json:"total_hours"`
	IsVerified bool           `json:"is_verified"`
	IsFrozen   bool           `json:"is_frozen"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`

	// Manager stage
	ManagerApprovedBy      string     `json:"manager_approved_by,omitempty"`
	ManagerApprovedAt      *time.Time `json:"manager_approved_at,omitempty"`
	ManagerRejectedBy      string     `json:"manager_rejected_by,omitempty"`
	ManagerRejectedAt      *time.Time `json:"manager_rejected_at,omitempty"`
	ManagerRejectionReason string     `json:"manager_rejection_reason,omitempty"`

	// Forwarding to management
	ForwardedBy string     `json:"forwarded_by,omitempty"`
	ForwardedAt *time.Time `json:"forwarded_at,omitempty"`

	// Management stage
	ManagementApprovedBy      string     `json:"management_approved_by,omitempty"`
	ManagementApprovedAt      *time.Time `json:"management_approved_at,omitempty"`
	ManagementRejectedBy      string     `json:"management_rejected_by,omitempty"`
	ManagementRejectedAt      *time.Time `json:"management_rejected_at,omitempty"`
	ManagementRejectionReason string     `json:"management_rejection_reason,omitempty"`

	FrozenAt          *time.Time `json:"frozen_at,omitempty"`
	BillingSnapshotID string     `json:"billing_snapshot_id,omitempty"`
	BilledAt          *time.Time `json:"billed_at,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that can be mutated without touching the original
func (t *Timesheet) Clone() *Timesheet {
	if t == nil {
		return nil
	}
	c := *t
	c.SubmittedAt = cloneTime(t.SubmittedAt)
	c.ManagerApprovedAt = cloneTime(t.ManagerApprovedAt)
	c.ManagerRejectedAt = cloneTime(t.ManagerRejectedAt)
	c.ForwardedAt = cloneTime(t.ForwardedAt)
	c.ManagementApprovedAt = cloneTime(t.ManagementApprovedAt)
	c.ManagementRejectedAt = cloneTime(t.ManagementRejectedAt)
	c.FrozenAt = cloneTime(t.FrozenAt)
	c.BilledAt = cloneTime(t.BilledAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	return &c
}

// IsDeleted reports whether the timesheet is soft-deleted
func (t *Timesheet) IsDeleted() bool {
	return t.DeletedAt != nil
}

// ContainsDate reports whether d falls within the timesheet week
func (t *Timesheet) ContainsDate(d time.Time) bool {
	day := TruncateDate(d)
	return !day.Before(t.WeekStart) && !day.After(t.WeekEnd)
}

// WeekEndFor returns the last day of the week starting at start
func WeekEndFor(start time.Time) time.Time {
	return TruncateDate(start).AddDate(0, 0, 6)
}

// TruncateDate drops the clock part and normalises to UTC midnight
func TruncateDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
