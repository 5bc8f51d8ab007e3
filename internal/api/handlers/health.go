package handlers

import (
	"context"
	"net/http"
	"time"

	"payrecon/internal/pkg/errors"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db         Pinger
	eventTypes func() []string
}

func NewHealthHandler(db Pinger, eventTypes func() []string) *HealthHandler {
	return &HealthHandler{db: db, eventTypes: eventTypes}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		checks["database"] = "healthy"
	}

	response := struct {
		Status     string            `json:"status"`
		Timestamp  int64             `json:"timestamp"`
		Checks     map[string]string `json:"checks"`
		EventTypes []string          `json:"event_types"`
	}{
		Status:     status,
		Timestamp:  time.Now().Unix(),
		Checks:     checks,
		EventTypes: h.eventTypes(),
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	errors.WriteJSON(w, statusCode, response)
}
