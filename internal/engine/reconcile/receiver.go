package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/webhooks"
	"payrecon/internal/platform/models"
	"payrecon/internal/platform/repositories"
)

// EventStore is the audit log of verified events.
type EventStore interface {
	Record(ctx context.Context, event *models.WebhookEvent) error
}

type Verifier interface {
	Verify(rawBody []byte, signatureHeader string) (*webhooks.Event, error)
}

type Receipt struct {
	EventID   string
	EventType string
	Duplicate bool
	Outcome   Outcome
}

// Receiver runs one delivery through verify, record and dispatch.
type Receiver struct {
	verifier   Verifier
	events     EventStore
	dispatcher *Dispatcher
	stats      Stats
}

func NewReceiver(verifier Verifier, events EventStore, dispatcher *Dispatcher) *Receiver {
	return &Receiver{verifier: verifier, events: events, dispatcher: dispatcher}
}

// Receive returns an error only when the delivery must not be acknowledged:
// a signature failure (wraps webhooks.ErrSignature), an unparseable body
// (wraps webhooks.ErrMalformedPayload), or an audit write failure. Handler
// outcomes are reported in the Receipt.
func (r *Receiver) Receive(ctx context.Context, body []byte, signatureHeader string) (*Receipt, error) {
	event, err := r.verifier.Verify(body, signatureHeader)
	if err != nil {
		if errors.Is(err, webhooks.ErrSignature) {
			r.stats.rejected.Add(1)
			log.Warn().Err(err).Msg("invalid webhook signature")
		} else {
			r.stats.malformed.Add(1)
			log.Error().Err(err).Int("body_bytes", len(body)).Msg("malformed webhook payload")
		}
		return nil, err
	}
	r.stats.received.Add(1)

	receipt := &Receipt{EventID: event.ID, EventType: event.Type}

	record := &models.WebhookEvent{EventID: event.ID, Type: event.Type, Payload: event.Raw}
	if err := r.events.Record(ctx, record); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEvent) {
			r.stats.duplicates.Add(1)
			log.Info().Str("event_id", event.ID).Str("event_type", event.Type).Msg("event already processed, skipping")
			receipt.Duplicate = true
			return receipt, nil
		}
		log.Error().Err(err).Str("event_id", event.ID).Str("event_type", event.Type).Msg("failed to record webhook event")
		return nil, fmt.Errorf("record event %s: %w", event.ID, err)
	}

	receipt.Outcome = r.dispatcher.Dispatch(ctx, event)
	r.stats.recordOutcome(receipt.Outcome)
	return receipt, nil
}

func (r *Receiver) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

// EventTypes lists the event types with a registered handler.
func (r *Receiver) EventTypes() []string {
	return r.dispatcher.Types()
}
