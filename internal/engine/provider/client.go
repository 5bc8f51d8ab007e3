// Package provider wraps the Stripe API client. A Client is built once from
// the configured key and passed to whatever needs to call the provider.
package provider

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"payrecon/internal/engine/webhooks"
)

type PaymentIntentState struct {
	ID               string
	Status           string
	Amount           int64
	LastPaymentError *webhooks.PaymentError
}

type PayoutState struct {
	ID          string
	Status      string
	Amount      int64
	FailureCode string
}

type Client struct {
	api *client.API
}

type Option func(*stripe.BackendConfig)

// WithURL points the client at another API host, e.g. a local stub.
func WithURL(url string) Option {
	return func(cfg *stripe.BackendConfig) {
		cfg.URL = stripe.String(url)
	}
}

func New(apiKey string, opts ...Option) *Client {
	cfg := &stripe.BackendConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var backends *stripe.Backends
	if len(opts) > 0 {
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
		}
	}

	api := &client.API{}
	api.Init(apiKey, backends)
	return &Client{api: api}
}

func (c *Client) PaymentIntent(ctx context.Context, id string) (*PaymentIntentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("fetch payment intent %s: %w", id, err)
	}
	return paymentIntentState(pi), nil
}

func (c *Client) Payout(ctx context.Context, id string) (*PayoutState, error) {
	params := &stripe.PayoutParams{}
	params.Context = ctx

	po, err := c.api.Payouts.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("fetch payout %s: %w", id, err)
	}
	return payoutState(po), nil
}

func paymentIntentState(pi *stripe.PaymentIntent) *PaymentIntentState {
	state := &PaymentIntentState{
		ID:     pi.ID,
		Status: string(pi.Status),
		Amount: pi.Amount,
	}
	if e := pi.LastPaymentError; e != nil {
		state.LastPaymentError = &webhooks.PaymentError{
			Code:        string(e.Code),
			DeclineCode: string(e.DeclineCode),
			Message:     e.Msg,
		}
	}
	return state
}

func payoutState(po *stripe.Payout) *PayoutState {
	return &PayoutState{
		ID:          po.ID,
		Status:      string(po.Status),
		Amount:      po.Amount,
		FailureCode: string(po.FailureCode),
	}
}
