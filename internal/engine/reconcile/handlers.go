package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/webhooks"
	"payrecon/internal/platform/models"
)

// ErrMalformedObject means data.object lacks the fields a handler needs.
var ErrMalformedObject = errors.New("malformed data object")

// Handlers holds one handler per provider event family.
type Handlers struct {
	ledger *Ledger
}

func NewHandlers(ledger *Ledger) *Handlers {
	return &Handlers{ledger: ledger}
}

// RegisterDefaults installs every event type the reconciler understands.
func RegisterDefaults(d *Dispatcher, h *Handlers) error {
	table := map[string]HandlerFunc{
		webhooks.EventPaymentIntentSucceeded: h.PaymentIntentSucceeded,
		webhooks.EventPaymentIntentFailed:    h.PaymentIntentFailed,
		webhooks.EventPaymentIntentCanceled:  h.PaymentIntentCanceled,
		webhooks.EventChargeSucceeded:        h.ChargeSucceeded,
		webhooks.EventChargeRefunded:         h.ChargeRefunded,
		webhooks.EventChargeFailed:           h.ChargeFailed,
		webhooks.EventChargeDisputeCreated:   h.DisputeCreated,
		webhooks.EventChargeDisputeClosed:    h.DisputeClosed,
		webhooks.EventPayoutPaid:             h.PayoutPaid,
		webhooks.EventPayoutFailed:           h.PayoutFailed,
		webhooks.EventPayoutCanceled:         h.PayoutCanceled,
	}
	for eventType, fn := range table {
		if err := d.Register(eventType, fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) PaymentIntentSucceeded(ctx context.Context, event *webhooks.Event) error {
	var intent webhooks.PaymentIntentObject
	if err := decodeWithStatus(event, &intent, &intent.ID, &intent.Status); err != nil {
		return err
	}

	log.Info().Str("event_id", event.ID).Str("transaction_id", intent.ID).Str("status", intent.Status).Msg("processing payment intent succeeded")

	tx, err := h.lookup(ctx, intent.ID)
	if err != nil || tx == nil {
		return err
	}
	checkAmount(tx, intent.Amount)

	res, err := h.ledger.MarkDeposited(ctx, intent.ID)
	if err != nil {
		return err
	}
	logResult(res, intent.ID, models.StatusDeposited)
	return nil
}

func (h *Handlers) PaymentIntentFailed(ctx context.Context, event *webhooks.Event) error {
	var intent webhooks.PaymentIntentObject
	if err := decodeWithStatus(event, &intent, &intent.ID, &intent.Status); err != nil {
		return err
	}

	tx, err := h.lookup(ctx, intent.ID)
	if err != nil || tx == nil {
		return err
	}

	reason := FailureComment(intent.LastPaymentError)
	log.Error().Str("event_id", event.ID).Str("transaction_id", intent.ID).Str("reason", reason).Msg("payment intent failed")

	res, err := h.ledger.MarkFailed(ctx, intent.ID, reason)
	if err != nil {
		return err
	}
	logResult(res, intent.ID, models.StatusFailed)
	return nil
}

// PaymentIntentCanceled leaves the ledger untouched; whether a canceled intent
// should fail the transaction is still undecided.
func (h *Handlers) PaymentIntentCanceled(ctx context.Context, event *webhooks.Event) error {
	var intent webhooks.PaymentIntentObject
	if err := decodeWithID(event, &intent, &intent.ID); err != nil {
		return err
	}
	log.Info().Str("event_id", event.ID).Str("transaction_id", intent.ID).Msg("payment intent canceled")
	return nil
}

func (h *Handlers) ChargeSucceeded(ctx context.Context, event *webhooks.Event) error {
	var charge webhooks.ChargeObject
	if err := decodeWithID(event, &charge, &charge.ID); err != nil {
		return err
	}
	log.Info().
		Str("event_id", event.ID).
		Str("charge_id", charge.ID).
		Str("payment_intent", charge.PaymentIntent).
		Str("amount", MinorToDecimal(charge.Amount).StringFixed(2)).
		Msg("charge succeeded")
	return nil
}

func (h *Handlers) ChargeRefunded(ctx context.Context, event *webhooks.Event) error {
	var charge webhooks.ChargeObject
	if err := decodeWithID(event, &charge, &charge.ID); err != nil {
		return err
	}
	log.Info().
		Str("event_id", event.ID).
		Str("charge_id", charge.ID).
		Str("amount_refunded", MinorToDecimal(charge.AmountRefunded).StringFixed(2)).
		Msg("charge refunded")
	return nil
}

func (h *Handlers) ChargeFailed(ctx context.Context, event *webhooks.Event) error {
	var charge webhooks.ChargeObject
	if err := decodeWithID(event, &charge, &charge.ID); err != nil {
		return err
	}
	reason := charge.FailureMessage
	if reason == "" {
		reason = CommentNoReason
	}
	log.Error().Str("event_id", event.ID).Str("charge_id", charge.ID).Str("reason", reason).Msg("charge failed")
	return nil
}

func (h *Handlers) DisputeCreated(ctx context.Context, event *webhooks.Event) error {
	var dispute webhooks.DisputeObject
	if err := decodeWithID(event, &dispute, &dispute.ID); err != nil {
		return err
	}
	log.Warn().
		Str("event_id", event.ID).
		Str("dispute_id", dispute.ID).
		Str("charge_id", dispute.Charge).
		Str("reason", dispute.Reason).
		Msg("charge dispute created")
	return nil
}

func (h *Handlers) DisputeClosed(ctx context.Context, event *webhooks.Event) error {
	var dispute webhooks.DisputeObject
	if err := decodeWithID(event, &dispute, &dispute.ID); err != nil {
		return err
	}
	log.Info().
		Str("event_id", event.ID).
		Str("dispute_id", dispute.ID).
		Str("charge_id", dispute.Charge).
		Str("status", dispute.Status).
		Msg("charge dispute closed")
	return nil
}

func (h *Handlers) PayoutPaid(ctx context.Context, event *webhooks.Event) error {
	var payout webhooks.PayoutObject
	if err := decodeWithStatus(event, &payout, &payout.ID, &payout.Status); err != nil {
		return err
	}

	log.Info().Str("event_id", event.ID).Str("transaction_id", payout.ID).Str("status", payout.Status).Msg("processing payout paid")

	tx, err := h.lookup(ctx, payout.ID)
	if err != nil || tx == nil {
		return err
	}
	checkAmount(tx, payout.Amount)

	res, err := h.ledger.MarkPayoutStatus(ctx, payout.ID, payout.Status)
	if err != nil {
		return err
	}
	logResult(res, payout.ID, payout.Status)
	return nil
}

// PayoutFailed is log only, like PaymentIntentCanceled.
func (h *Handlers) PayoutFailed(ctx context.Context, event *webhooks.Event) error {
	var payout webhooks.PayoutObject
	if err := decodeWithID(event, &payout, &payout.ID); err != nil {
		return err
	}
	code := payout.FailureCode
	if code == "" {
		code = "No code provided"
	}
	log.Error().Str("event_id", event.ID).Str("transaction_id", payout.ID).Str("reason", code).Msg("payout failed")
	return nil
}

func (h *Handlers) PayoutCanceled(ctx context.Context, event *webhooks.Event) error {
	var payout webhooks.PayoutObject
	if err := decodeWithID(event, &payout, &payout.ID); err != nil {
		return err
	}
	log.Info().Str("event_id", event.ID).Str("transaction_id", payout.ID).Msg("payout canceled")
	return nil
}

// lookup returns nil, nil and logs a warning when no ledger row matches.
func (h *Handlers) lookup(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := h.ledger.Lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", id, err)
	}
	if tx == nil {
		log.Warn().Str("transaction_id", id).Msg("no transaction found")
	}
	return tx, nil
}

func decodeWithID(event *webhooks.Event, v interface{}, id *string) error {
	if err := event.DecodeObject(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedObject, err)
	}
	if *id == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedObject)
	}
	return nil
}

func decodeWithStatus(event *webhooks.Event, v interface{}, id, status *string) error {
	if err := decodeWithID(event, v, id); err != nil {
		return err
	}
	if *status == "" {
		return fmt.Errorf("%w: missing status", ErrMalformedObject)
	}
	return nil
}

// checkAmount warns when the provider amount disagrees with the ledger.
// The transition is applied either way.
func checkAmount(tx *models.Transaction, minor int64) {
	if minor == 0 {
		return
	}
	if got := MinorToDecimal(minor); !got.Equal(tx.Amount) {
		log.Warn().
			Str("transaction_id", tx.TransactionID).
			Str("ledger_amount", tx.Amount.StringFixed(2)).
			Str("event_amount", got.StringFixed(2)).
			Msg("amount mismatch between event and ledger")
	}
}

func logResult(res Result, id, status string) {
	switch res {
	case Applied:
		log.Info().Str("transaction_id", id).Str("status", status).Msg("transaction updated")
	case NotFound:
		log.Warn().Str("transaction_id", id).Msg("transaction disappeared before update")
	}
}
