package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// Event is a committed change to a timesheet. Events are published after the
// write that produced them succeeds, never before.
type Event struct {
	ID          string                 `json:"id"`
	Type        Type                   `json:"type"`
	TimesheetID string                 `json:"timesheet_id"`
	OwnerID     string                 `json:"owner_id"`
	ActorID     string                 `json:"actor_id"`
	FromStatus  workflow.State         `json:"from_status,omitempty"`
	ToStatus    workflow.State         `json:"to_status"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	// CorrelationID ties together the events of one service call
	CorrelationID string `json:"correlation_id"`
}

// NewEvent creates an event with a fresh id and correlation id
func NewEvent(eventType Type, timesheetID, ownerID, actorID string, from, to workflow.State) *Event {
	return NewEventWithCorrelation(eventType, timesheetID, ownerID, actorID, from, to, uuid.NewString())
}

// NewEventWithCorrelation creates an event that belongs to an existing chain
func NewEventWithCorrelation(eventType Type, timesheetID, ownerID, actorID string, from, to workflow.State, correlationID string) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		TimesheetID:   timesheetID,
		OwnerID:       ownerID,
		ActorID:       actorID,
		FromStatus:    from,
		ToStatus:      to,
		Payload:       map[string]interface{}{},
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set; the receiver is unchanged
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	c := *e
	c.Payload = payload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// GetPayloadFloat retrieves a numeric value from the payload as float64
func (e *Event) GetPayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
