package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionRead = "read"
	ActionList = "list"
)

const (
	ResourceTransaction  = "transaction"
	ResourceWebhookEvent = "webhook_event"
)

type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       int64                  `json:"user_id"`
	Role         string                 `json:"role"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

// Logger records privileged reads of ledger and webhook data.
type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// FromRequest fills the caller's network details from r.
func FromRequest(r *http.Request, entry *AuditLog) *AuditLog {
	entry.IPAddress = r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		entry.IPAddress = host
	}
	entry.UserAgent = r.UserAgent()
	return entry
}

// Record stores entry, assigning its ID and timestamp.
func (l *Logger) Record(ctx context.Context, entry *AuditLog) error {
	entry.ID = "audit_" + uuid.New().String()
	entry.CreatedAt = time.Now().Unix()

	var metaJSON []byte
	if len(entry.Metadata) > 0 {
		var err error
		if metaJSON, err = json.Marshal(entry.Metadata); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_logs (id, user_id, role, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
		nullBytes(metaJSON), entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

// Log is Record for request paths: failures are logged, never returned.
func (l *Logger) Log(ctx context.Context, entry *AuditLog) {
	if err := l.Record(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Int64("user_id", entry.UserID).
			Str("action", entry.Action).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Msg("failed to write audit log")
	}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
