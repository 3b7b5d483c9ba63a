package workflow

import "github.com/garyjia/timesheet-approval/internal/domain/apperr"

// ErrInvalidTransition is returned when a trigger is not configured for the current state
var ErrInvalidTransition = apperr.ErrInvalidTransition
