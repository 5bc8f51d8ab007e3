package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/webhooks"
	"payrecon/internal/platform/models"
)

// ErrEventNotRecorded is returned by Replay for an event id missing from the audit log.
var ErrEventNotRecorded = errors.New("event not recorded")

// EventLookup reads recorded events back out of the audit log.
type EventLookup interface {
	GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
}

// Replayer re-dispatches recorded events. The stored payload was verified when
// it arrived, so it is not verified or recorded again.
type Replayer struct {
	events     EventLookup
	dispatcher *Dispatcher
}

func NewReplayer(events EventLookup, dispatcher *Dispatcher) *Replayer {
	return &Replayer{events: events, dispatcher: dispatcher}
}

func (r *Replayer) Replay(ctx context.Context, eventID string) (Outcome, error) {
	stored, err := r.events.GetByEventID(ctx, eventID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load event %s: %w", eventID, err)
	}
	if stored == nil {
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrEventNotRecorded, eventID)
	}

	event, err := webhooks.ParseEvent(stored.Payload)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("parse event %s: %w", eventID, err)
	}

	log.Info().Str("event_id", event.ID).Str("event_type", event.Type).Msg("replaying recorded event")
	return r.dispatcher.Dispatch(ctx, event), nil
}
