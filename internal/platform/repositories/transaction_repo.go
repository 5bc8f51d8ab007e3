package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"payrecon/internal/platform/models"
)

const transactionColumns = `trans_id, user_id, payment_method_id, transaction_type, amount, status, created_at, updated_at, comments`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Save inserts the row or overwrites every mutable column of an existing one.
func (r *TransactionRepository) Save(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	now := time.Now().Unix()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	t.Amount = t.Amount.Round(2)

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trans_id) DO UPDATE SET
			user_id = excluded.user_id,
			payment_method_id = excluded.payment_method_id,
			transaction_type = excluded.transaction_type,
			amount = excluded.amount,
			status = excluded.status,
			updated_at = excluded.updated_at,
			comments = excluded.comments
	`
	_, err := r.db.ExecContext(ctx, query,
		t.TransactionID, t.UserID, nullString(t.PaymentMethodID), t.Type, t.Amount.StringFixed(2),
		t.Status, t.CreatedAt, t.UpdatedAt, nullString(t.Comments))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID returns nil, nil when no row matches.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE trans_id = ?`, id)

	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListStale returns rows still in status whose last update is older than before.
// Rows never checked come first, then the least recently checked, so rows that
// stay in status after a check rotate to the back.
func (r *TransactionRepository) ListStale(ctx context.Context, status string, before int64, limit int) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = ? AND updated_at < ?
		ORDER BY COALESCE(last_checked_at, 0) ASC, updated_at ASC, trans_id ASC
		LIMIT ?
	`, status, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// MarkChecked records when the row was last compared against the provider.
// It leaves updated_at alone.
func (r *TransactionRepository) MarkChecked(ctx context.Context, id string, at int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET last_checked_at = ? WHERE trans_id = ?`, at, id)
	return err
}

// Transition sets status and comments only while the row is in one of from.
// It reports whether a row was changed; an empty from matches any status.
func (r *TransactionRepository) Transition(ctx context.Context, id string, from []string, status, comments string) (bool, error) {
	query := `UPDATE transactions SET status = ?, comments = ?, updated_at = ? WHERE trans_id = ?`
	args := []interface{}{status, nullString(comments), time.Now().Unix(), id}

	if len(from) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(from)-1) + `)`
		for _, s := range from {
			args = append(args, s)
		}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var paymentMethodID, comments sql.NullString

	err := row.Scan(&t.TransactionID, &t.UserID, &paymentMethodID, &t.Type, &t.Amount, &t.Status, &t.CreatedAt, &t.UpdatedAt, &comments)
	if err != nil {
		return nil, err
	}

	if paymentMethodID.Valid {
		t.PaymentMethodID = paymentMethodID.String
	}
	if comments.Valid {
		t.Comments = comments.String
	}
	return &t, nil
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
