package workflow

// Trigger represents an action that can cause a status transition
type Trigger string

const (
	TriggerSubmit     Trigger = "submit"
	TriggerApprove    Trigger = "approve"
	TriggerFinalize   Trigger = "finalize"
	TriggerReject     Trigger = "reject"
	TriggerForward    Trigger = "forward"
	TriggerMarkBilled Trigger = "mark_billed"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
