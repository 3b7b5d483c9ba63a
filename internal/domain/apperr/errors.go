// Package apperr defines the error taxonomy shared by the timesheet core.
// Callers match kinds with errors.Is and pull details with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is a user-correctable input problem
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied means the actor lacks authority in the current status
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidTransition means the action is not defined for the current status
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConflict means a concurrent writer won; re-read and retry
	ErrConflict = errors.New("concurrent modification")

	// ErrDuplicateTimesheet means an active timesheet already exists for the owner and week
	ErrDuplicateTimesheet = errors.New("duplicate timesheet")

	// ErrNotFound is returned when a timesheet or user does not exist
	ErrNotFound = errors.New("not found")
)

// ValidationError carries the offending field, date and totals of a failed check.
type ValidationError struct {
	Field   string
	Date    string
	Limit   float64
	Current float64
	Adding  float64
	Total   float64
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
}

// Is reports ValidationError as ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation builds a ValidationError for a single field.
func Validation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// DailyLimit builds the hard-limit failure for a day pushed over the maximum.
func DailyLimit(date string, current, adding, limit float64) *ValidationError {
	total := current + adding
	return &ValidationError{
		Field:   "hours",
		Date:    date,
		Limit:   limit,
		Current: current,
		Adding:  adding,
		Total:   total,
		Message: fmt.Sprintf("daily hour limit exceeded on %s (current: %s, adding: %s, total: %s > maximum %s)",
			date, FormatHours(current), FormatHours(adding), FormatHours(total), FormatHours(limit)),
	}
}

// PermissionError names the actor and the action they were refused.
type PermissionError struct {
	ActorID string
	Role    string
	Action  string
	Status  string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: %s (%s) may not %s a timesheet in status %s",
		ErrPermissionDenied, e.ActorID, e.Role, e.Action, e.Status)
}

// Is reports PermissionError as ErrPermissionDenied
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// TransitionError names the current status and the requested action.
type TransitionError struct {
	Status string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: action %s is not allowed from status %s", ErrInvalidTransition, e.Action, e.Status)
}

// Is reports TransitionError as ErrInvalidTransition
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// FormatHours renders hours without trailing zeros: 8, 7.5, 7.25.
func FormatHours(h float64) string {
	s := fmt.Sprintf("%.2f", h)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
