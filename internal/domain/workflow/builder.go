package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
)

// GuardFunc decides whether a transition may happen for a request.
// A nil error lets the transition through; a non-nil error explains the refusal.
type GuardFunc[R any] func(ctx context.Context, req R) error

// transition represents a state transition with optional guards
type transition[R any] struct {
	toState State
	guards  []GuardFunc[R]
}

func (t transition[R]) evaluate(ctx context.Context, req R) error {
	for _, guard := range t.guards {
		if guard == nil {
			continue
		}
		if err := guard(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// StateConfig configures transitions out of one state
type StateConfig[R any] struct {
	fromState   State
	transitions map[Trigger][]transition[R]
}

// Builder builds configured state machines
type Builder[R any] struct {
	configurations map[State]*StateConfig[R]
}

// NewBuilder creates a new state machine builder
func NewBuilder[R any]() *Builder[R] {
	return &Builder[R]{
		configurations: make(map[State]*StateConfig[R]),
	}
}

// Configure returns the configuration for the given state
func (b *Builder[R]) Configure(state State) *StateConfig[R] {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &StateConfig[R]{
			fromState:   state,
			transitions: make(map[Trigger][]transition[R]),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state
func (b *Builder[R]) Build(initialState State) StateMachine[R] {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	// Machines never share transition slices with the builder
	configsCopy := make(map[State]*StateConfig[R], len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition[R], len(config.transitions))
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition[R]{}, transitions...)
		}
		configsCopy[state] = &StateConfig[R]{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine[R]{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to transition to the target state
func (c *StateConfig[R]) Permit(trigger Trigger, toState State) *StateConfig[R] {
	return c.PermitIf(trigger, toState)
}

// PermitIf allows a trigger to transition to the target state if every guard passes.
// Guards run in the order given.
func (c *StateConfig[R]) PermitIf(trigger Trigger, toState State, guards ...GuardFunc[R]) *StateConfig[R] {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition[R]{
		toState: toState,
		guards:  guards,
	})

	return c
}

func invalidTransition(state State, trigger Trigger) error {
	return &apperr.TransitionError{Status: state.String(), Action: trigger.String()}
}
