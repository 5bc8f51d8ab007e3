package handlers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/reconcile"
	"payrecon/internal/engine/webhooks"
	"payrecon/internal/pkg/errors"
)

const SignatureHeader = "Stripe-Signature"

type Receiver interface {
	Receive(ctx context.Context, body []byte, signatureHeader string) (*reconcile.Receipt, error)
}

// WebhookHandler is the provider-facing endpoint. A 200 acknowledges the
// delivery; anything else makes the provider retry.
type WebhookHandler struct {
	receiver     Receiver
	maxBodyBytes int64
}

func NewWebhookHandler(receiver Receiver, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookHandler{receiver: receiver, maxBodyBytes: maxBodyBytes}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		log.Error().Err(err).Msg("failed to read webhook body")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to read request body", nil)
		return
	}

	receipt, err := h.receiver.Receive(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case stderrors.Is(err, webhooks.ErrSignature):
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidSignature, "Invalid signature", nil)
		case stderrors.Is(err, webhooks.ErrMalformedPayload):
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeMalformedPayload, "Malformed event payload", nil)
		default:
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to record event", nil)
		}
		return
	}

	log.Debug().
		Str("event_id", receipt.EventID).
		Str("event_type", receipt.EventType).
		Bool("duplicate", receipt.Duplicate).
		Str("outcome", receipt.Outcome.String()).
		Msg("webhook acknowledged")

	errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
