package handlers

import (
	"fmt"
	"net/http"

	"payrecon/internal/engine/reconcile"
)

type MetricsHandler struct {
	stats func() reconcile.StatsSnapshot
}

func NewMetricsHandler(stats func() reconcile.StatsSnapshot) *MetricsHandler {
	return &MetricsHandler{stats: stats}
}

// Export writes the receiver counters in the Prometheus text format.
func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	s := h.stats()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP payrecon_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE payrecon_up gauge\n")
	fmt.Fprintf(w, "payrecon_up 1\n")

	fmt.Fprintf(w, "# HELP payrecon_webhooks_total Webhook deliveries by result.\n")
	fmt.Fprintf(w, "# TYPE payrecon_webhooks_total counter\n")
	for _, c := range []struct {
		result string
		value  int64
	}{
		{"received", s.Received},
		{"duplicate", s.Duplicates},
		{"rejected", s.Rejected},
		{"malformed", s.Malformed},
	} {
		fmt.Fprintf(w, "payrecon_webhooks_total{result=%q} %d\n", c.result, c.value)
	}

	fmt.Fprintf(w, "# HELP payrecon_dispatch_total Dispatched events by outcome.\n")
	fmt.Fprintf(w, "# TYPE payrecon_dispatch_total counter\n")
	for _, c := range []struct {
		outcome string
		value   int64
	}{
		{reconcile.OutcomeHandled.String(), s.Handled},
		{reconcile.OutcomeUnhandled.String(), s.Unhandled},
		{reconcile.OutcomeFailed.String(), s.Failed},
	} {
		fmt.Fprintf(w, "payrecon_dispatch_total{outcome=%q} %d\n", c.outcome, c.value)
	}
}
