package claims

import (
	"context"

	"github.com/google/uuid"

	"github.com/warp/fund-engine/fund"
)

// ReviewInput is one committee decision against a claim.
type ReviewInput struct {
	Action         string
	Note           string
	ByelawRef      string
	OverrideAmount string         // required for the override action
	MeetingID      fund.MeetingID // emergency-meeting ratification, when needed
}

// RecordReview appends an immutable decision record and drives the implied
// status transition. Overrides above the discretionary ceiling are refused
// unless ratified by a locked emergency meeting the claim was tabled at.
func (s *Service) RecordReview(ctx context.Context, actor fund.Actor, claimID fund.ClaimID, in ReviewInput) (*fund.ClaimReview, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	action, ok := fund.ParseReviewAction(in.Action)
	if !ok {
		return nil, fund.NewValidationError(fund.CodeInvalidStatus, "unknown review action %q", in.Action)
	}

	var (
		claim   *fund.Claim
		review  *fund.ClaimReview
		payment *fund.PaymentRecord
	)
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		claim, err = s.requireClaim(ctx, st, claimID)
		if err != nil {
			return err
		}
		member, err := s.requireMember(ctx, st, claim.MemberID)
		if err != nil {
			return err
		}

		if action == fund.ActionOverride {
			if err := s.applyOverride(ctx, st, claim, in); err != nil {
				return err
			}
		}

		target, implies := action.ImpliedStatus(claim.OverrideAmount != nil)
		if !implies {
			return fund.NewValidationError(fund.CodeOverrideMissing,
				"override review requires an override amount")
		}
		if err := s.transitionLocked(ctx, st, actor, claim, member, target); err != nil {
			return err
		}

		review = &fund.ClaimReview{
			ID:         fund.ReviewID(uuid.New().String()),
			ClaimID:    claimID,
			ReviewerID: actor.UserID,
			Role:       actor.Role,
			Action:     action,
			Note:       in.Note,
			ByelawRef:  in.ByelawRef,
			CreatedAt:  s.now(),
		}
		if err := st.AppendReview(ctx, review); err != nil {
			return err
		}
		if err := s.auditWithMeeting(ctx, st, actor, fund.AuditReviewRecorded, claim, in.MeetingID, nil, map[string]any{
			"review_id": string(review.ID), "action": string(action), "byelaw_ref": in.ByelawRef,
		}); err != nil {
			return err
		}

		// Marking a claim paid books the payout in the same transaction.
		if target == fund.StatusPaid {
			payment = &fund.PaymentRecord{
				ID:         fund.PaymentID(uuid.New().String()),
				ClaimID:    claimID,
				Amount:     claim.TotalPayable,
				Status:     fund.PaymentPending,
				RecordedBy: actor.UserID,
				CreatedAt:  s.now(),
			}
			if err := st.SavePayment(ctx, payment); err != nil {
				return err
			}
			if err := s.audit(ctx, st, actor, fund.AuditPaymentRecorded, claim, nil, map[string]any{
				"payment_id": string(payment.ID), "amount": payment.Amount.StringFixed(2),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, claim)
	if payment != nil {
		s.initiatePayout(ctx, payment, claim.MemberID)
	}
	return review, nil
}

// applyOverride sets the discretionary fund-payable. Amounts above the
// ceiling need a locked EMERGENCY meeting cited as ratification, and the
// claim must have been tabled at that meeting while it was open; the claim
// is then marked trustee-ratified so the approval gate passes.
func (s *Service) applyOverride(ctx context.Context, st fund.Store, claim *fund.Claim, in ReviewInput) error {
	if in.OverrideAmount == "" {
		return fund.NewValidationError(fund.CodeOverrideMissing,
			"override review requires an override amount")
	}
	amount, err := parseAmount(in.OverrideAmount)
	if err != nil {
		return err
	}

	if amount.GreaterThan(fund.DiscretionaryCeiling) {
		if in.MeetingID == "" {
			return &fund.OverrideCeilingError{Amount: amount, Ceiling: fund.DiscretionaryCeiling}
		}
		meeting, err := st.GetMeeting(ctx, in.MeetingID)
		if err != nil {
			return err
		}
		if meeting == nil {
			return fund.NewNotFound("meeting", string(in.MeetingID))
		}
		if meeting.Type != fund.MeetingEmergency || meeting.Status != fund.MeetingLocked {
			return fund.NewValidationError(fund.CodeEmergencyMeeting,
				"ratification requires a locked emergency meeting, got %s %s meeting", meeting.Status, meeting.Type)
		}
		links, err := st.ListMeetingLinks(ctx, claim.ID)
		if err != nil {
			return err
		}
		tabled := false
		for _, l := range links {
			if l.MeetingID == in.MeetingID {
				tabled = true
				break
			}
		}
		if !tabled {
			return fund.NewValidationError(fund.CodeEmergencyMeeting,
				"claim %s was not tabled at meeting %s", claim.ID, in.MeetingID)
		}
		claim.TrusteeRatified = true
	}

	claim.OverrideAmount = &amount
	return nil
}

// SetExclusion flips the bylaw-exclusion flag by committee hand. The
// automatic detector only ever turns the flag ON; turning it off is a
// human decision. Note the detector re-runs on recompute, so un-excluding
// a claim whose notes still name an excluded term will re-exclude it.
func (s *Service) SetExclusion(ctx context.Context, actor fund.Actor, claimID fund.ClaimID, excluded bool) (*fund.Claim, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	var claim *fund.Claim
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		claim, err = s.requireClaim(ctx, st, claimID)
		if err != nil {
			return err
		}
		if claim.Status.IsTerminal() {
			return fund.NewValidationError(fund.CodeClaimFinalized, "paid claims cannot be modified")
		}
		before := fund.ClaimSnapshot(claim)
		claim.Excluded = excluded
		if err := s.recompute(ctx, st, claim); err != nil {
			return err
		}
		if err := st.SaveClaim(ctx, claim); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, fund.AuditClaimRecomputed, claim, before, fund.ClaimSnapshot(claim))
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// Recompute forces a fresh total/payable derivation outside any other
// mutation, for when reference data (scales, limits) changed underneath.
func (s *Service) Recompute(ctx context.Context, actor fund.Actor, claimID fund.ClaimID) (*fund.Claim, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	var claim *fund.Claim
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		claim, err = s.requireClaim(ctx, st, claimID)
		if err != nil {
			return err
		}
		before := fund.ClaimSnapshot(claim)
		if err := s.recompute(ctx, st, claim); err != nil {
			return err
		}
		if err := st.SaveClaim(ctx, claim); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, fund.AuditClaimRecomputed, claim, before, fund.ClaimSnapshot(claim))
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}
