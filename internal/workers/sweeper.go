package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"payrecon/internal/engine/provider"
	"payrecon/internal/engine/reconcile"
	"payrecon/internal/platform/config"
	"payrecon/internal/platform/models"
)

// PendingLister hands out stale rows and remembers which ones were checked so
// rows left pending by the provider do not starve the rest of the backlog.
type PendingLister interface {
	ListStale(ctx context.Context, status string, before int64, limit int) ([]*models.Transaction, error)
	MarkChecked(ctx context.Context, id string, at int64) error
}

type Provider interface {
	PaymentIntent(ctx context.Context, id string) (*provider.PaymentIntentState, error)
	Payout(ctx context.Context, id string) (*provider.PayoutState, error)
}

type SweepReport struct {
	Checked int
	Applied int
	Errors  int
}

// Sweeper reconciles transactions whose webhook never arrived by asking the
// provider for the current state of each stale pending row.
type Sweeper struct {
	pending  PendingLister
	ledger   *reconcile.Ledger
	provider Provider
	cfg      config.ReconcileConfig
	now      func() time.Time
}

func NewSweeper(pending PendingLister, ledger *reconcile.Ledger, p Provider, cfg config.ReconcileConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Sweeper{pending: pending, ledger: ledger, provider: p, cfg: cfg, now: time.Now}
}

// Run sweeps every cfg.Interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		report, err := s.SweepOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("pending sweep failed")
		} else {
			log.Info().Int("checked", report.Checked).Int("applied", report.Applied).Int("errors", report.Errors).Msg("pending sweep finished")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	now := s.now()
	cutoff := now.Add(-s.cfg.StaleAfter).Unix()
	rows, err := s.pending.ListStale(ctx, models.StatusPending, cutoff, s.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for _, tx := range rows {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++

		res, err := s.reconcileOne(ctx, tx)
		if markErr := s.pending.MarkChecked(ctx, tx.TransactionID, now.Unix()); markErr != nil {
			log.Warn().Err(markErr).Str("transaction_id", tx.TransactionID).Msg("failed to mark transaction checked")
		}
		if err != nil {
			report.Errors++
			log.Error().Err(err).Str("transaction_id", tx.TransactionID).Msg("failed to reconcile pending transaction")
			continue
		}
		if res == reconcile.Applied {
			report.Applied++
		}
	}
	return report, nil
}

// reconcileOne returns NotFound when the provider state calls for no change.
func (s *Sweeper) reconcileOne(ctx context.Context, tx *models.Transaction) (reconcile.Result, error) {
	switch tx.Type {
	case models.TransactionTypeDeposit:
		pi, err := s.provider.PaymentIntent(ctx, tx.TransactionID)
		if err != nil {
			return reconcile.NotFound, err
		}
		switch {
		case pi.Status == "succeeded":
			return s.ledger.MarkDeposited(ctx, tx.TransactionID)
		case pi.Status == "requires_payment_method" && pi.LastPaymentError != nil:
			return s.ledger.MarkFailed(ctx, tx.TransactionID, reconcile.FailureComment(pi.LastPaymentError))
		}
		log.Debug().Str("transaction_id", tx.TransactionID).Str("provider_status", pi.Status).Msg("payment intent not final")

	case models.TransactionTypeWithdraw:
		po, err := s.provider.Payout(ctx, tx.TransactionID)
		if err != nil {
			return reconcile.NotFound, err
		}
		if po.Status == "paid" {
			return s.ledger.MarkPayoutStatus(ctx, tx.TransactionID, po.Status)
		}
		log.Debug().Str("transaction_id", tx.TransactionID).Str("provider_status", po.Status).Msg("payout not final")

	default:
		log.Warn().Str("transaction_id", tx.TransactionID).Str("type", tx.Type).Msg("unknown transaction type")
	}
	return reconcile.NotFound, nil
}
