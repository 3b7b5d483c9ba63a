package workflow

// State represents a timesheet status in the approval lifecycle.
// The string values are the wire contract and must stay stable.
type State string

const (
	StateDraft              State = "draft"
	StateSubmitted          State = "submitted"
	StateManagerApproved    State = "manager_approved"
	StateManagementPending  State = "management_pending"
	StateManagerRejected    State = "manager_rejected"
	StateManagementRejected State = "management_rejected"
	StateFrozen             State = "frozen"
	StateBilled             State = "billed"
)

// AllStates lists every status in lifecycle order
var AllStates = []State{
	StateDraft,
	StateSubmitted,
	StateManagerApproved,
	StateManagementPending,
	StateManagerRejected,
	StateManagementRejected,
	StateFrozen,
	StateBilled,
}

var validStates = map[State]bool{
	StateDraft:              true,
	StateSubmitted:          true,
	StateManagerApproved:    true,
	StateManagementPending:  true,
	StateManagerRejected:    true,
	StateManagementRejected: true,
	StateFrozen:             true,
	StateBilled:             true,
}

var editableStates = map[State]bool{
	StateDraft:              true,
	StateManagerRejected:    true,
	StateManagementRejected: true,
}

// IsTerminal returns true if no transition leaves the state
func (s State) IsTerminal() bool {
	return s == StateBilled
}

// IsLocked returns true for frozen and billed timesheets, which are immutable
func (s State) IsLocked() bool {
	return s == StateFrozen || s == StateBilled
}

// IsEditable returns true if the owner may still change entries
func (s State) IsEditable() bool {
	return editableStates[s]
}

// IsRejected returns true for either rejection stage
func (s State) IsRejected() bool {
	return s == StateManagerRejected || s == StateManagementRejected
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known timesheet status
func (s State) IsValid() bool {
	return validStates[s]
}
