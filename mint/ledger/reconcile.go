package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/cashu/nuts/nut05"
	"github.com/chaumcash/ecash/mint/lightning"
	"github.com/chaumcash/ecash/mint/storage"
)

// Reconciler polls the payment backend for the outcome of melt quotes
// left Pending across a mint restart — the window between committing a
// lightning payment attempt and recording its result is exactly where a
// crash leaves proofs in limbo. It never releases an Irreversible
// reservation back to Unspent on its own say-so; it only ever resolves
// one to Spent (payment confirmed) or Unspent (payment confirmed failed).
type Reconciler struct {
	db      storage.MintDB
	ledger  *Ledger
	backend lightning.Backend
	logger  *slog.Logger
}

func NewReconciler(db storage.MintDB, ledger *Ledger, backend lightning.Backend, logger *slog.Logger) *Reconciler {
	return &Reconciler{db: db, ledger: ledger, backend: backend, logger: logger}
}

// Run polls every interval until ctx is cancelled, resolving any melt
// quote stuck in PENDING against the payment backend's view of its
// outgoing payment.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.reconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	pending, err := r.db.GetPendingMeltQuotes()
	if err != nil {
		r.logger.Error("reconcile: list pending melt quotes", "error", err)
		return
	}

	for _, quote := range pending {
		result, err := r.backend.CheckOutgoing(ctx, quote.PaymentHash)
		if err != nil {
			r.logger.Warn("reconcile: check outgoing payment", "quote", quote.Id, "error", err)
			continue
		}

		dbProofs, err := r.db.GetPendingProofsByQuote(quote.Id)
		if err != nil {
			r.logger.Error("reconcile: load pending proofs", "quote", quote.Id, "error", err)
			continue
		}
		proofs := toProofs(dbProofs)

		switch result.Status {
		case lightning.Paid:
			if err := r.db.UpdateMeltQuote(quote.Id, result.Preimage, nil, nut05.Paid); err != nil {
				r.logger.Error("reconcile: mark melt quote paid", "quote", quote.Id, "error", err)
				continue
			}
			if err := r.ledger.CommitSpend(proofs); err != nil {
				r.logger.Error("reconcile: commit spend", "quote", quote.Id, "error", err)
			}
			r.logger.Info("reconcile: settled pending melt quote", "quote", quote.Id)
		case lightning.Failed:
			if err := r.db.UpdateMeltQuote(quote.Id, "", nil, nut05.Unpaid); err != nil {
				r.logger.Error("reconcile: revert melt quote", "quote", quote.Id, "error", err)
				continue
			}
			if err := r.ledger.Release(proofs); err != nil {
				r.logger.Error("reconcile: release proofs", "quote", quote.Id, "error", err)
			}
			r.logger.Info("reconcile: released proofs for failed outgoing payment", "quote", quote.Id)
		default:
			// Unknown/Pending: still can't safely resolve either way.
			// Flag irreversible (idempotent) and keep polling next tick.
			if err := r.ledger.MarkIrreversible(proofs); err != nil {
				r.logger.Error("reconcile: mark irreversible", "quote", quote.Id, "error", err)
			}
		}
	}
}

func toProofs(dbProofs []storage.DBProof) cashu.Proofs {
	proofs := make(cashu.Proofs, len(dbProofs))
	for i, p := range dbProofs {
		proofs[i] = cashu.Proof{Amount: p.Amount, Id: p.Id, Secret: p.Secret, C: p.C, Witness: p.Witness}
	}
	return proofs
}
