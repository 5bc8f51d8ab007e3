package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "payrecon/internal/api/context"
	"payrecon/internal/api/middleware"
	"payrecon/internal/pkg/errors"
	"payrecon/internal/platform/audit"
	"payrecon/internal/platform/models"
)

type EventReader interface {
	GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	List(ctx context.Context, eventType string, limit int) ([]*models.WebhookEvent, error)
}

// EventHandler exposes the webhook audit log to admins.
type EventHandler struct {
	events EventReader
	audit  AccessLogger
}

func NewEventHandler(events EventReader, auditLog AccessLogger) *EventHandler {
	return &EventHandler{events: events, audit: auditLog}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	events, err := h.events.List(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list webhook events")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list webhook events", nil)
		return
	}
	if events == nil {
		events = []*models.WebhookEvent{}
	}
	h.record(r, audit.ActionList, "", map[string]interface{}{"type": r.URL.Query().Get("type"), "count": len(events)})

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": events})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("event_id")

	event, err := h.events.GetByEventID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("event_id", id).Msg("failed to load webhook event")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load webhook event", nil)
		return
	}
	if event == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Webhook event not found", nil)
		return
	}
	h.record(r, audit.ActionRead, event.EventID, map[string]interface{}{"type": event.Type})

	errors.WriteJSON(w, http.StatusOK, event)
}

func (h *EventHandler) record(r *http.Request, action, resourceID string, metadata map[string]interface{}) {
	entry := &audit.AuditLog{
		Action:       action,
		ResourceType: audit.ResourceWebhookEvent,
		ResourceID:   resourceID,
		Metadata:     metadata,
	}
	if claims := middleware.ClaimsFrom(r.Context()); claims != nil {
		entry.UserID = claims.UserID
		entry.Role = claims.Role
	}
	h.audit.Log(r.Context(), audit.FromRequest(r, entry))
}
