package workflow

import (
	"context"
	"sort"
)

// StateMachine tracks the current state of one timesheet and validates transitions.
// R is the request type guards inspect when a trigger is fired.
type StateMachine[R any] interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is configured for the current state.
	// Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Fire evaluates the guards for trigger and moves to the first target whose guards pass
	Fire(ctx context.Context, trigger Trigger, req R) error

	// PermittedTriggers returns the triggers configured for the current state, sorted
	PermittedTriggers() []Trigger
}

// stateMachine implements StateMachine
type stateMachine[R any] struct {
	currentState   State
	configurations map[State]*StateConfig[R]
}

// State returns the current state
func (m *stateMachine[R]) State() State {
	return m.currentState
}

// CanFire returns true if the trigger is configured in the current state
func (m *stateMachine[R]) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return false
	}
	return len(config.transitions[trigger]) > 0
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed.
// An unconfigured trigger yields ErrInvalidTransition; when every candidate
// transition is refused, the first guard error is returned unchanged.
func (m *stateMachine[R]) Fire(ctx context.Context, trigger Trigger, req R) error {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return invalidTransition(m.currentState, trigger)
	}

	transitions := config.transitions[trigger]
	if len(transitions) == 0 {
		return invalidTransition(m.currentState, trigger)
	}

	var firstErr error
	for _, t := range transitions {
		err := t.evaluate(ctx, req)
		if err == nil {
			m.currentState = t.toState
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// PermittedTriggers returns all triggers that can be fired in the current state
func (m *stateMachine[R]) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	return triggers
}
