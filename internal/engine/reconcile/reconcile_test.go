package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"payrecon/internal/engine/webhooks"
	"payrecon/internal/platform/models"
	"payrecon/internal/platform/repositories"
	"payrecon/migrations"
)

const testSecret = "whsec_reconcile_test"

type fixture struct {
	db       *sql.DB
	txRepo   *repositories.TransactionRepository
	events   *repositories.EventRepository
	receiver *Receiver
	now      time.Time
}

func setupFixture(t *testing.T) *fixture {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := migrations.Apply(db); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	now := time.Unix(1700000000, 0)
	txRepo := repositories.NewTransactionRepository(db)
	events := repositories.NewEventRepository(db)

	dispatcher := NewDispatcher()
	if err := RegisterDefaults(dispatcher, NewHandlers(NewLedger(txRepo))); err != nil {
		t.Fatalf("RegisterDefaults() error = %v", err)
	}

	verifier := webhooks.NewVerifier(testSecret, 5*time.Minute).WithClock(func() time.Time { return now })

	return &fixture{
		db:       db,
		txRepo:   txRepo,
		events:   events,
		receiver: NewReceiver(verifier, events, dispatcher),
		now:      now,
	}
}

func (f *fixture) seed(t *testing.T, id, txType, amount string) {
	t.Helper()
	_, err := f.txRepo.Save(context.Background(), &models.Transaction{
		TransactionID: id,
		UserID:        1,
		Type:          txType,
		Amount:        decimal.RequireFromString(amount),
		Status:        models.StatusPending,
	})
	if err != nil {
		t.Fatalf("Failed to seed transaction %s: %v", id, err)
	}
}

func (f *fixture) deliver(t *testing.T, eventID, eventType string, object interface{}) (*Receipt, error) {
	t.Helper()
	body := eventBody(t, eventID, eventType, object)
	return f.receiver.Receive(context.Background(), body, webhooks.SignatureHeader(testSecret, f.now, body))
}

func (f *fixture) get(t *testing.T, id string) *models.Transaction {
	t.Helper()
	tx, err := f.txRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return tx
}

func (f *fixture) auditCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM webhook_events`).Scan(&n); err != nil {
		t.Fatalf("Failed to count audit rows: %v", err)
	}
	return n
}

func eventBody(t *testing.T, eventID, eventType string, object interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":       eventID,
		"type":     eventType,
		"created":  1700000000,
		"livemode": false,
		"data":     map[string]interface{}{"object": object},
	})
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	return body
}

func TestMinorToDecimal(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{25000, "250.00"},
		{1, "0.01"},
		{0, "0.00"},
		{123456789, "1234567.89"},
	}

	for _, tt := range tests {
		if got := MinorToDecimal(tt.minor).StringFixed(2); got != tt.want {
			t.Errorf("MinorToDecimal(%d) = %s, want %s", tt.minor, got, tt.want)
		}
	}
}

func TestFailureComment(t *testing.T) {
	tests := []struct {
		name string
		err  *webhooks.PaymentError
		want string
	}{
		{"Full Error", &webhooks.PaymentError{Code: "R01", NetworkDeclineCode: "insufficient_funds", Message: "Insufficient funds"}, "R01:insufficient_funds:Insufficient funds"},
		{"No Error", nil, "No reason provided"},
		{"No Message", &webhooks.PaymentError{Code: "R01"}, "No reason provided"},
		{"No Decline Codes", &webhooks.PaymentError{Code: "card_declined", Message: "Declined"}, "card_declined::Declined"},
		{"No Code At All", &webhooks.PaymentError{Message: "Declined"}, "::Declined"},
		{"Issuer Decline Code", &webhooks.PaymentError{Code: "card_declined", DeclineCode: "do_not_honor", Message: "Declined"}, "card_declined:do_not_honor:Declined"},
		{"Network Code Wins", &webhooks.PaymentError{Code: "card_declined", NetworkDeclineCode: "51", DeclineCode: "do_not_honor", Message: "Declined"}, "card_declined:51:Declined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureComment(tt.err); got != tt.want {
				t.Errorf("FailureComment() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatcher_Register(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, e *webhooks.Event) error { return nil }

	if err := d.Register("", noop); !errors.Is(err, ErrEmptyEventType) {
		t.Errorf("Expected ErrEmptyEventType, got %v", err)
	}
	if err := d.Register("payout.paid", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Expected ErrNilHandler, got %v", err)
	}
	if err := d.Register("payout.paid", noop); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := d.Register("payout.paid", noop); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Expected ErrAlreadyRegistered, got %v", err)
	}
	d.Register("charge.failed", noop)

	types := d.Types()
	if len(types) != 2 || types[0] != "charge.failed" || types[1] != "payout.paid" {
		t.Errorf("Expected sorted types, got %v", types)
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	d := NewDispatcher()
	d.Register("ok", func(ctx context.Context, e *webhooks.Event) error { return nil })
	d.Register("err", func(ctx context.Context, e *webhooks.Event) error { return errors.New("boom") })
	d.Register("panic", func(ctx context.Context, e *webhooks.Event) error { panic("boom") })

	tests := []struct {
		eventType string
		want      Outcome
	}{
		{"ok", OutcomeHandled},
		{"err", OutcomeFailed},
		{"panic", OutcomeFailed},
		{"customer.created", OutcomeUnhandled},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got := d.Dispatch(context.Background(), &webhooks.Event{ID: "evt_1", Type: tt.eventType})
			if got != tt.want {
				t.Errorf("Dispatch(%s) = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestRegisterDefaults(t *testing.T) {
	d := NewDispatcher()
	if err := RegisterDefaults(d, NewHandlers(nil)); err != nil {
		t.Fatalf("RegisterDefaults() error = %v", err)
	}
	if got := len(d.Types()); got != 11 {
		t.Errorf("Expected 11 registered event types, got %d", got)
	}
	if err := RegisterDefaults(d, NewHandlers(nil)); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Expected second registration to fail, got %v", err)
	}
}

func TestPaymentIntentSucceeded(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_abc", models.TransactionTypeDeposit, "250.00")

	receipt, err := f.deliver(t, "evt_1", webhooks.EventPaymentIntentSucceeded, map[string]interface{}{
		"id": "pi_abc", "status": "succeeded", "amount": 25000,
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if receipt.Outcome != OutcomeHandled {
		t.Errorf("Expected handled outcome, got %v", receipt.Outcome)
	}

	tx := f.get(t, "pi_abc")
	if tx.Status != models.StatusDeposited {
		t.Errorf("Expected status deposited, got %s", tx.Status)
	}
	if tx.Comments == "" {
		t.Error("Expected non-empty comments")
	}
}

func TestPaymentIntentFailed(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_fail", models.TransactionTypeDeposit, "10.00")
	f.seed(t, "pi_noreason", models.TransactionTypeDeposit, "10.00")
	f.seed(t, "pi_nocodes", models.TransactionTypeDeposit, "10.00")

	f.deliver(t, "evt_1", webhooks.EventPaymentIntentFailed, map[string]interface{}{
		"id": "pi_fail", "status": "requires_payment_method",
		"last_payment_error": map[string]interface{}{
			"code": "R01", "network_decline_code": "insufficient_funds", "message": "Insufficient funds",
		},
	})
	f.deliver(t, "evt_2", webhooks.EventPaymentIntentFailed, map[string]interface{}{
		"id": "pi_noreason", "status": "requires_payment_method",
	})
	f.deliver(t, "evt_3", webhooks.EventPaymentIntentFailed, map[string]interface{}{
		"id": "pi_nocodes", "status": "requires_payment_method",
		"last_payment_error": map[string]interface{}{"code": "card_declined", "message": "Declined"},
	})

	failed := f.get(t, "pi_fail")
	if failed.Status != models.StatusFailed {
		t.Errorf("Expected status failed, got %s", failed.Status)
	}
	if failed.Comments != "R01:insufficient_funds:Insufficient funds" {
		t.Errorf("Unexpected comments: %q", failed.Comments)
	}

	if got := f.get(t, "pi_noreason").Comments; got != "No reason provided" {
		t.Errorf("Expected default reason, got %q", got)
	}

	nocodes := f.get(t, "pi_nocodes")
	if nocodes.Status != models.StatusFailed || nocodes.Comments != "card_declined::Declined" {
		t.Errorf("Expected failed with empty decline code, got %s %q", nocodes.Status, nocodes.Comments)
	}
}

func TestPayoutPaid(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "po_123", models.TransactionTypeWithdraw, "99.50")

	f.deliver(t, "evt_1", webhooks.EventPayoutPaid, map[string]interface{}{
		"id": "po_123", "status": "paid", "amount": 9950,
	})

	tx := f.get(t, "po_123")
	if tx.Status != "paid" {
		t.Errorf("Expected status paid, got %s", tx.Status)
	}
	if tx.Comments != "Payout Completed" {
		t.Errorf("Expected payout comment, got %q", tx.Comments)
	}
}

func TestLogOnlyEventsLeaveLedgerPending(t *testing.T) {
	tests := []struct {
		eventType string
		object    map[string]interface{}
	}{
		{webhooks.EventPaymentIntentCanceled, map[string]interface{}{"id": "pi_1", "status": "canceled"}},
		{webhooks.EventPayoutFailed, map[string]interface{}{"id": "po_1", "status": "failed", "failure_code": "account_closed"}},
		{webhooks.EventPayoutCanceled, map[string]interface{}{"id": "po_1", "status": "canceled"}},
		{webhooks.EventChargeSucceeded, map[string]interface{}{"id": "ch_1", "payment_intent": "pi_1", "amount": 100}},
		{webhooks.EventChargeRefunded, map[string]interface{}{"id": "ch_1", "amount_refunded": 100}},
		{webhooks.EventChargeFailed, map[string]interface{}{"id": "ch_1", "failure_message": "declined"}},
		{webhooks.EventChargeDisputeCreated, map[string]interface{}{"id": "dp_1", "charge": "ch_1", "reason": "fraudulent"}},
		{webhooks.EventChargeDisputeClosed, map[string]interface{}{"id": "dp_1", "charge": "ch_1", "status": "won"}},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			f := setupFixture(t)
			f.seed(t, "pi_1", models.TransactionTypeDeposit, "1.00")
			f.seed(t, "po_1", models.TransactionTypeWithdraw, "1.00")

			receipt, err := f.deliver(t, "evt_1", tt.eventType, tt.object)
			if err != nil {
				t.Fatalf("Receive() error = %v", err)
			}
			if receipt.Outcome != OutcomeHandled {
				t.Errorf("Expected handled outcome, got %v", receipt.Outcome)
			}
			for _, id := range []string{"pi_1", "po_1"} {
				if got := f.get(t, id).Status; got != models.StatusPending {
					t.Errorf("Expected %s to stay pending, got %s", id, got)
				}
			}
		})
	}
}

func TestUnknownEventTypes(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_abc", models.TransactionTypeDeposit, "250.00")

	for i, eventType := range []string{"customer.created", "invoice.paid", "payment_intent.processing"} {
		receipt, err := f.deliver(t, fmt.Sprintf("evt_%d", i), eventType, map[string]interface{}{"id": "pi_abc", "status": "succeeded"})
		if err != nil {
			t.Fatalf("Receive(%s) error = %v", eventType, err)
		}
		if receipt.Outcome != OutcomeUnhandled {
			t.Errorf("Expected unhandled outcome for %s, got %v", eventType, receipt.Outcome)
		}
	}

	if got := f.get(t, "pi_abc").Status; got != models.StatusPending {
		t.Errorf("Expected ledger untouched, got status %s", got)
	}
	if got := f.auditCount(t); got != 3 {
		t.Errorf("Expected unknown events to be audited, got %d rows", got)
	}
}

func TestMissingLedgerRow(t *testing.T) {
	f := setupFixture(t)

	receipt, err := f.deliver(t, "evt_1", webhooks.EventPayoutPaid, map[string]interface{}{"id": "po_missing", "status": "paid"})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if receipt.Outcome != OutcomeHandled {
		t.Errorf("Expected missing row to be a handled no-op, got %v", receipt.Outcome)
	}
	if f.get(t, "po_missing") != nil {
		t.Error("Expected no row to be created")
	}
}

func TestMalformedObjectIsSwallowed(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_abc", models.TransactionTypeDeposit, "250.00")

	receipt, err := f.deliver(t, "evt_1", webhooks.EventPaymentIntentSucceeded, map[string]interface{}{"id": "pi_abc"})
	if err != nil {
		t.Fatalf("Expected delivery to be acknowledged, got %v", err)
	}
	if receipt.Outcome != OutcomeFailed {
		t.Errorf("Expected failed outcome for object without status, got %v", receipt.Outcome)
	}
	if got := f.get(t, "pi_abc").Status; got != models.StatusPending {
		t.Errorf("Expected ledger untouched, got %s", got)
	}
	if got := f.auditCount(t); got != 1 {
		t.Errorf("Expected event to be audited despite handler failure, got %d", got)
	}
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_abc", models.TransactionTypeDeposit, "250.00")

	object := map[string]interface{}{"id": "pi_abc", "status": "succeeded"}
	first, err := f.deliver(t, "evt_1", webhooks.EventPaymentIntentSucceeded, object)
	if err != nil || first.Duplicate {
		t.Fatalf("Unexpected first delivery result: %+v, %v", first, err)
	}
	updatedAt := f.get(t, "pi_abc").UpdatedAt

	second, err := f.deliver(t, "evt_1", webhooks.EventPaymentIntentSucceeded, object)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !second.Duplicate {
		t.Error("Expected redelivery to be flagged duplicate")
	}
	if got := f.auditCount(t); got != 1 {
		t.Errorf("Expected one audit row, got %d", got)
	}
	if got := f.get(t, "pi_abc").UpdatedAt; got != updatedAt {
		t.Errorf("Expected row untouched by redelivery, updated_at %d -> %d", updatedAt, got)
	}

	stats := f.receiver.Stats()
	if stats.Received != 2 || stats.Duplicates != 1 || stats.Handled != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestTerminalTransitionNotReapplied(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_abc", models.TransactionTypeDeposit, "250.00")

	f.deliver(t, "evt_1", webhooks.EventPaymentIntentSucceeded, map[string]interface{}{"id": "pi_abc", "status": "succeeded"})
	// A distinct event id for the same intent, e.g. a late failure notice.
	f.deliver(t, "evt_2", webhooks.EventPaymentIntentFailed, map[string]interface{}{
		"id": "pi_abc", "status": "requires_payment_method",
		"last_payment_error": map[string]interface{}{"code": "R01", "message": "late"},
	})

	tx := f.get(t, "pi_abc")
	if tx.Status != models.StatusDeposited || tx.Comments != CommentDepositCompleted {
		t.Errorf("Expected terminal row to be kept, got %+v", tx)
	}
}

func TestEndToEnd_DepositSucceeded(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_abc", models.TransactionTypeDeposit, "250.00")

	receipt, err := f.deliver(t, "evt_e2e", webhooks.EventPaymentIntentSucceeded, map[string]interface{}{
		"id": "pi_abc", "status": "succeeded", "amount": 25000,
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if receipt.EventID != "evt_e2e" {
		t.Errorf("Expected receipt for evt_e2e, got %s", receipt.EventID)
	}

	record, err := f.events.GetByEventID(context.Background(), "evt_e2e")
	if err != nil || record == nil {
		t.Fatalf("Expected audit record, got %v, %v", record, err)
	}
	if got := f.auditCount(t); got != 1 {
		t.Errorf("Expected exactly one audit record, got %d", got)
	}
	if got := f.get(t, "pi_abc").Status; got != models.StatusDeposited {
		t.Errorf("Expected status deposited, got %s", got)
	}
}

func TestEndToEnd_InvalidSignature(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_abc", models.TransactionTypeDeposit, "250.00")

	body := eventBody(t, "evt_bad", webhooks.EventPaymentIntentSucceeded, map[string]interface{}{"id": "pi_abc", "status": "succeeded"})
	_, err := f.receiver.Receive(context.Background(), body, webhooks.SignatureHeader("whsec_wrong", f.now, body))
	if !errors.Is(err, webhooks.ErrSignature) {
		t.Fatalf("Expected signature error, got %v", err)
	}

	if got := f.auditCount(t); got != 0 {
		t.Errorf("Expected no audit record, got %d", got)
	}
	tx := f.get(t, "pi_abc")
	if tx.Status != models.StatusPending || tx.Comments != "" {
		t.Errorf("Expected ledger untouched, got %+v", tx)
	}
	if f.receiver.Stats().Rejected != 1 {
		t.Errorf("Expected rejected counter to be 1, got %+v", f.receiver.Stats())
	}
}

type failingEventStore struct{}

func (failingEventStore) Record(ctx context.Context, event *models.WebhookEvent) error {
	return errors.New("disk full")
}

func TestReceiver_AuditFailureIsNotAcknowledged(t *testing.T) {
	now := time.Unix(1700000000, 0)
	dispatched := false

	d := NewDispatcher()
	d.Register(webhooks.EventPayoutPaid, func(ctx context.Context, e *webhooks.Event) error {
		dispatched = true
		return nil
	})
	verifier := webhooks.NewVerifier(testSecret, time.Minute).WithClock(func() time.Time { return now })
	r := NewReceiver(verifier, failingEventStore{}, d)

	body := eventBody(t, "evt_1", webhooks.EventPayoutPaid, map[string]interface{}{"id": "po_1", "status": "paid"})
	_, err := r.Receive(context.Background(), body, webhooks.SignatureHeader(testSecret, now, body))
	if err == nil {
		t.Fatal("Expected error when audit write fails")
	}
	if errors.Is(err, webhooks.ErrSignature) {
		t.Errorf("Audit failure must not look like a signature failure: %v", err)
	}
	if dispatched {
		t.Error("Expected no dispatch without an audit record")
	}
}

type flakyStore struct {
	TransactionStore
	failures int
}

func (s *flakyStore) Transition(ctx context.Context, id string, from []string, status, comments string) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("database is locked")
	}
	return s.TransactionStore.Transition(ctx, id, from, status, comments)
}

func TestReplayer_RecoversFailedHandler(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "pi_retry", models.TransactionTypeDeposit, "250.00")

	store := &flakyStore{TransactionStore: f.txRepo, failures: 1}
	d := NewDispatcher()
	if err := RegisterDefaults(d, NewHandlers(NewLedger(store))); err != nil {
		t.Fatalf("RegisterDefaults() error = %v", err)
	}
	verifier := webhooks.NewVerifier(testSecret, 5*time.Minute).WithClock(func() time.Time { return f.now })
	receiver := NewReceiver(verifier, f.events, d)

	body := eventBody(t, "evt_retry", webhooks.EventPaymentIntentSucceeded, map[string]interface{}{
		"id": "pi_retry", "status": "succeeded", "amount": 25000,
	})
	header := webhooks.SignatureHeader(testSecret, f.now, body)

	receipt, err := receiver.Receive(context.Background(), body, header)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if receipt.Outcome != OutcomeFailed {
		t.Fatalf("Expected failed outcome, got %v", receipt.Outcome)
	}

	receipt, err = receiver.Receive(context.Background(), body, header)
	if err != nil || !receipt.Duplicate {
		t.Fatalf("Expected redelivery to be skipped as duplicate, got %+v, %v", receipt, err)
	}
	if got := f.get(t, "pi_retry").Status; got != models.StatusPending {
		t.Fatalf("Expected row still pending before replay, got %s", got)
	}

	outcome, err := NewReplayer(f.events, d).Replay(context.Background(), "evt_retry")
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if outcome != OutcomeHandled {
		t.Errorf("Expected handled outcome, got %v", outcome)
	}

	tx := f.get(t, "pi_retry")
	if tx.Status != models.StatusDeposited || tx.Comments != CommentDepositCompleted {
		t.Errorf("Expected deposited after replay, got %s %q", tx.Status, tx.Comments)
	}
	if f.auditCount(t) != 1 {
		t.Errorf("Replay must not write a second audit row, got %d", f.auditCount(t))
	}
}

func TestReplayer_Replay(t *testing.T) {
	f := setupFixture(t)
	f.seed(t, "po_done", models.TransactionTypeWithdraw, "99.50")
	f.deliver(t, "evt_paid", webhooks.EventPayoutPaid, map[string]interface{}{"id": "po_done", "status": "paid"})

	d := NewDispatcher()
	if err := RegisterDefaults(d, NewHandlers(NewLedger(f.txRepo))); err != nil {
		t.Fatalf("RegisterDefaults() error = %v", err)
	}
	r := NewReplayer(f.events, d)

	t.Run("Unknown Event", func(t *testing.T) {
		if _, err := r.Replay(context.Background(), "evt_missing"); !errors.Is(err, ErrEventNotRecorded) {
			t.Errorf("Expected ErrEventNotRecorded, got %v", err)
		}
	})

	t.Run("Already Terminal", func(t *testing.T) {
		outcome, err := r.Replay(context.Background(), "evt_paid")
		if err != nil {
			t.Fatalf("Replay() error = %v", err)
		}
		if outcome != OutcomeHandled {
			t.Errorf("Expected handled outcome, got %v", outcome)
		}
		if tx := f.get(t, "po_done"); tx.Status != "paid" || tx.Comments != CommentPayoutCompleted {
			t.Errorf("Expected paid row untouched, got %s %q", tx.Status, tx.Comments)
		}
	})
}
