package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"payrecon/internal/platform/models"
)

// ErrDuplicateEvent is returned by Record when the provider event id is already stored.
var ErrDuplicateEvent = errors.New("webhook event already recorded")

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Record(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == "" {
		event.ID = "whe_" + uuid.New().String()
	}
	if event.ReceivedAt == 0 {
		event.ReceivedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO webhook_events (id, event_id, type, payload, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, event.ID, event.EventID, event.Type, string(event.Payload), event.ReceivedAt)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// GetByEventID returns nil, nil when the event was never recorded.
func (r *EventRepository) GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, event_id, type, payload, received_at FROM webhook_events WHERE event_id = ?`, eventID)

	e, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// List returns the most recent events first. An empty eventType lists every type.
func (r *EventRepository) List(ctx context.Context, eventType string, limit int) ([]*models.WebhookEvent, error) {
	query := `SELECT id, event_id, type, payload, received_at FROM webhook_events`
	var args []interface{}
	if eventType != "" {
		query += ` WHERE type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY received_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	var payload string

	if err := row.Scan(&e.ID, &e.EventID, &e.Type, &payload, &e.ReceivedAt); err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	return &e, nil
}
