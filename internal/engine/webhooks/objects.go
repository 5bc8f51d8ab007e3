package webhooks

// Event types the reconciler understands.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventPaymentIntentCanceled  = "payment_intent.canceled"
	EventChargeSucceeded        = "charge.succeeded"
	EventChargeRefunded         = "charge.refunded"
	EventChargeFailed           = "charge.failed"
	EventChargeDisputeCreated   = "charge.dispute.created"
	EventChargeDisputeClosed    = "charge.dispute.closed"
	EventPayoutPaid             = "payout.paid"
	EventPayoutFailed           = "payout.failed"
	EventPayoutCanceled         = "payout.canceled"
)

type PaymentError struct {
	Code               string `json:"code"`
	NetworkDeclineCode string `json:"network_decline_code"`
	DeclineCode        string `json:"decline_code"`
	Message            string `json:"message"`
}

type PaymentIntentObject struct {
	ID               string        `json:"id"`
	Status           string        `json:"status"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	LastPaymentError *PaymentError `json:"last_payment_error"`
}

type ChargeObject struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	PaymentIntent  string `json:"payment_intent"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
}

type DisputeObject struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type PayoutObject struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
}
