package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/webhooks"
	"payrecon/internal/platform/models"
)

// TransactionStore is the ledger persistence the reconciler needs.
type TransactionStore interface {
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	Transition(ctx context.Context, id string, from []string, status, comments string) (bool, error)
}

type Result int

const (
	Applied Result = iota
	NotFound
	AlreadyTerminal
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case NotFound:
		return "not_found"
	case AlreadyTerminal:
		return "already_terminal"
	default:
		return "unknown"
	}
}

const (
	CommentDepositCompleted = "Deposit Completed"
	CommentPayoutCompleted  = "Payout Completed"
	CommentNoReason         = "No reason provided"
)

// Ledger applies terminal transitions to transactions. Every write is a
// conditional update out of a pre-terminal status, so redelivered or racing
// events never overwrite a terminal row.
type Ledger struct {
	store TransactionStore
}

func NewLedger(store TransactionStore) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Lookup(ctx context.Context, id string) (*models.Transaction, error) {
	return l.store.GetByID(ctx, id)
}

func (l *Ledger) MarkDeposited(ctx context.Context, id string) (Result, error) {
	return l.transition(ctx, id, models.StatusDeposited, CommentDepositCompleted)
}

func (l *Ledger) MarkFailed(ctx context.Context, id, reason string) (Result, error) {
	return l.transition(ctx, id, models.StatusFailed, reason)
}

// MarkPayoutStatus stores the provider's payout status verbatim.
func (l *Ledger) MarkPayoutStatus(ctx context.Context, id, status string) (Result, error) {
	return l.transition(ctx, id, status, CommentPayoutCompleted)
}

func (l *Ledger) transition(ctx context.Context, id, status, comments string) (Result, error) {
	changed, err := l.store.Transition(ctx, id, models.PreTerminalStatuses, status, comments)
	if err != nil {
		return NotFound, fmt.Errorf("update transaction %s: %w", id, err)
	}
	if changed {
		return Applied, nil
	}

	// Nothing matched: either the row is gone or it already left pending.
	current, err := l.store.GetByID(ctx, id)
	if err != nil {
		return NotFound, fmt.Errorf("load transaction %s: %w", id, err)
	}
	if current == nil {
		return NotFound, nil
	}

	log.Info().
		Str("transaction_id", id).
		Str("current_status", current.Status).
		Str("requested_status", status).
		Msg("transaction already terminal, skipping")
	return AlreadyTerminal, nil
}

// FailureComment renders a payment error as "code:network_decline_code:message".
// Without a message CommentNoReason is used. The issuer decline code stands in
// when no network decline code was sent.
func FailureComment(e *webhooks.PaymentError) string {
	if e == nil || e.Message == "" {
		return CommentNoReason
	}
	decline := e.NetworkDeclineCode
	if decline == "" {
		decline = e.DeclineCode
	}
	return e.Code + ":" + decline + ":" + e.Message
}
