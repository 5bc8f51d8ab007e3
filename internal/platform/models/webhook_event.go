package models

import "encoding/json"

// WebhookEvent is the audit record of a verified provider event. Rows are
// append-only and unique per EventID.
type WebhookEvent struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt int64           `json:"received_at"`
}
