package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/webhooks"
)

type HandlerFunc func(ctx context.Context, event *webhooks.Event) error

type Outcome int

const (
	OutcomeHandled Outcome = iota
	OutcomeUnhandled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeUnhandled:
		return "unhandled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyEventType    = errors.New("event type is required")
	ErrNilHandler        = errors.New("handler is nil")
	ErrAlreadyRegistered = errors.New("handler already registered")
)

// Dispatcher routes events to the handler registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(eventType string, handler HandlerFunc) error {
	if eventType == "" {
		return ErrEmptyEventType
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, eventType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, eventType)
	}
	d.handlers[eventType] = handler
	return nil
}

// Types returns the registered event types, sorted.
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch runs the handler for event.Type. Unknown types and handler
// failures, panics included, are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event *webhooks.Event) (outcome Outcome) {
	d.mu.RLock()
	handler, ok := d.handlers[event.Type]
	d.mu.RUnlock()

	if !ok {
		log.Info().Str("event_id", event.ID).Str("event_type", event.Type).Msg("unhandled event type")
		return OutcomeUnhandled
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Interface("panic", r).
				Msg("event handler panicked")
			outcome = OutcomeFailed
		}
	}()

	if err := handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("event handler failed")
		return OutcomeFailed
	}
	return OutcomeHandled
}
