package claims

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// PAYOUT GATEWAY
// =============================================================================

// PayoutResult is what the gateway reports back after initiating a payout.
type PayoutResult struct {
	Provider       string
	TransactionRef string
}

// PaymentGateway initiates the member payout. Implementations are external
// money movers (mobile money, bank transfer); failures here never roll back
// the claim decision, they only leave the payment record without a ref.
type PaymentGateway interface {
	Payout(ctx context.Context, claimID fund.ClaimID, memberID fund.MemberID, amount decimal.Decimal) (PayoutResult, error)
}

// SimulatedGateway is the development gateway. It "succeeds" immediately
// with a synthetic transaction reference.
type SimulatedGateway struct{}

func (SimulatedGateway) Payout(_ context.Context, claimID fund.ClaimID, _ fund.MemberID, amount decimal.Decimal) (PayoutResult, error) {
	return PayoutResult{
		Provider:       "MPESA_SIMULATOR",
		TransactionRef: "SIM_" + strings.ToUpper(uuid.New().String()[:8]),
	}, nil
}

// =============================================================================
// RECONCILIATION - four-eyes on the money
// =============================================================================

// ReconcilePayment marks a payout as reconciled against the bank/mobile
// statement. Segregation of duties: the reconciler may not be the user who
// approved the claim and may not be the claim's owner.
func (s *Service) ReconcilePayment(ctx context.Context, actor fund.Actor, id fund.PaymentID) (*fund.PaymentRecord, error) {
	if err := fund.RequireRole(actor, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		return nil, err
	}

	var payment *fund.PaymentRecord
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		payment, err = st.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return fund.NewNotFound("payment", string(id))
		}
		if payment.Status == fund.PaymentReconciled {
			return fund.NewValidationError(fund.CodeAlreadyReconciled, "payment %s is already reconciled", id)
		}

		claim, err := s.requireClaim(ctx, st, payment.ClaimID)
		if err != nil {
			return err
		}
		member, err := s.requireMember(ctx, st, claim.MemberID)
		if err != nil {
			return err
		}
		if member.UserID == actor.UserID {
			return fund.NewValidationError(fund.CodeOwnerReconciler,
				"claim owner cannot reconcile their own payout")
		}

		// The approver check covers both a plain approval and a
		// discretionary override, whichever happened last.
		for _, action := range []fund.ReviewAction{fund.ActionApproved, fund.ActionOverride} {
			review, err := st.LatestReview(ctx, payment.ClaimID, action)
			if err != nil {
				return err
			}
			if review != nil && review.ReviewerID == actor.UserID {
				return fund.NewValidationError(fund.CodeApproverReconciler,
					"approver cannot reconcile the payout they approved")
			}
		}

		at := s.now()
		payment.Status = fund.PaymentReconciled
		payment.ReconciledBy = actor.UserID
		payment.ReconciledAt = &at
		if err := st.SavePayment(ctx, payment); err != nil {
			return err
		}

		actorID := actor.UserID
		return st.AppendAudit(ctx, fund.AuditEntry{
			ID:      uuid.New().String(),
			ActorID: &actorID,
			Action:  fund.AuditPaymentReconcile,
			Meta: map[string]any{
				"payment_id": string(id),
				"claim_id":   string(payment.ClaimID),
				"amount":     payment.Amount.StringFixed(2),
			},
			CreatedAt: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Payments lists payout records for a claim.
func (s *Service) Payments(ctx context.Context, claimID fund.ClaimID) ([]fund.PaymentRecord, error) {
	return s.store.ListPayments(ctx, claimID)
}

// initiatePayout calls the gateway after the paying transaction has
// committed, then attaches the transaction reference in a follow-up
// write. Gateway failure leaves the record pending with no ref.
func (s *Service) initiatePayout(ctx context.Context, payment *fund.PaymentRecord, memberID fund.MemberID) {
	result, err := s.gateway.Payout(ctx, payment.ClaimID, memberID, payment.Amount)
	if err != nil {
		slog.Error("payout initiation failed",
			"payment_id", payment.ID, "claim_id", payment.ClaimID, "error", err)
		return
	}

	err = s.store.WithTx(ctx, func(st fund.Store) error {
		p, err := st.GetPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return fund.NewNotFound("payment", string(payment.ID))
		}
		p.Provider = result.Provider
		p.TransactionRef = result.TransactionRef
		return st.SavePayment(ctx, p)
	})
	if err != nil {
		slog.Error("payout reference save failed",
			"payment_id", payment.ID, "ref", result.TransactionRef, "error", err)
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fund.NewValidationError("invalid_amount", "cannot parse amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fund.NewValidationError("invalid_amount", "amount %s must not be negative", s)
	}
	return d, nil
}
