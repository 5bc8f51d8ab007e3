package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit  = "deposit"
	TransactionTypeWithdraw = "withdraw"
)

const (
	StatusPending   = "pending"
	StatusDeposited = "deposited"
	StatusFailed    = "failed"
)

// PreTerminalStatuses are the statuses a reconciliation may still move a row out of.
var PreTerminalStatuses = []string{StatusPending}

type Transaction struct {
	TransactionID   string          `json:"transaction_id"`
	UserID          int64           `json:"user_id"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"` // NULL in DB when empty
	Type            string          `json:"type"`                        // deposit, withdraw
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
	Comments        string          `json:"comments,omitempty"`
}

func (t *Transaction) IsTerminal() bool {
	for _, s := range PreTerminalStatuses {
		if t.Status == s {
			return false
		}
	}
	return true
}

type transactionJSON Transaction

// MarshalJSON writes the amount with exactly two fractional digits.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		transactionJSON
		Amount string `json:"amount"`
	}{transactionJSON(t), t.Amount.StringFixed(2)})
}
