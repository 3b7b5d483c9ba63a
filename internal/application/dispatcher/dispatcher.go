package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/timesheet-approval/internal/domain/event"
)

// ErrClosed is returned when dispatching on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes timesheet events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler with a name for debugging
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers one named handler for every event type
	SubscribeAll(name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs handlers in registration order and stops at the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs each handler in its own goroutine and returns immediately
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close stops accepting events and waits for async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger
	closed   bool

	wg sync.WaitGroup
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler under a generated name
func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	name := fmt.Sprintf("%s-handler-%d", eventType, len(d.handlers[eventType]))
	d.addLocked(eventType, name, handler)
	d.mu.Unlock()

	d.logRegistered(eventType, name)
}

// SubscribeNamed registers a handler with a specific name
func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.addLocked(eventType, name, handler)
	d.mu.Unlock()

	d.logRegistered(eventType, name)
}

// SubscribeAll registers handler for every known event type
func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	for _, t := range event.AllTypes {
		d.SubscribeNamed(t, name, handler)
	}
}

func (d *eventDispatcher) addLocked(eventType event.Type, name string, handler Handler) {
	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
}

func (d *eventDispatcher) logRegistered(eventType event.Type, name string) {
	if d.logger != nil {
		d.logger.Info("Handler registered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

// Unsubscribe removes every handler registered under name for the event type
func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	handlers := d.handlers[eventType]
	kept := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers[eventType] = kept
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Handler unregistered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

// snapshot returns a copy of the handlers for t, or ErrClosed
func (d *eventDispatcher) snapshot(t event.Type) ([]HandlerInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}
	return append([]HandlerInfo(nil), d.handlers[t]...), nil
}

// Dispatch sends the event to all handlers synchronously
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	handlers, err := d.snapshot(evt.Type)
	if err != nil {
		return err
	}

	if d.logger != nil {
		d.logger.Info("Dispatching event",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"timesheet_id", evt.TimesheetID,
			"handler_count", len(handlers),
		)
	}

	for _, info := range handlers {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"error", err,
				)
			}
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}

	return nil
}

// DispatchAsync sends the event to handlers without waiting for them
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	// wg.Add happens under the read lock so Close cannot slip in between
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		if d.logger != nil {
			d.logger.Error("Cannot dispatch async event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return
	}
	handlers := append([]HandlerInfo(nil), d.handlers[evt.Type]...)
	d.wg.Add(len(handlers))
	d.mu.RUnlock()

	if d.logger != nil {
		d.logger.Info("Dispatching event asynchronously",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"timesheet_id", evt.TimesheetID,
			"handler_count", len(handlers),
		)
	}

	for _, info := range handlers {
		go func(h HandlerInfo) {
			defer d.wg.Done()

			if err := d.safeExecute(ctx, evt, h); err != nil && d.logger != nil {
				d.logger.Error("Async handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", h.Name,
					"error", err,
				)
			}
		}(info)
	}
}

// ListHandlers returns handler metadata without the handler functions
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))
	for i, h := range handlers {
		result[i] = HandlerInfo{
			Name:        h.Name,
			EventType:   h.EventType,
			Description: h.Description,
		}
	}

	return result
}

// Close shuts down the dispatcher and waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for async handlers")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, evt)
}
