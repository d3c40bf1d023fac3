/*
Package claims orchestrates the claim workflow on top of the fund engine.

PURPOSE:
  The fund package holds the pure rules; this package applies them against
  the store inside transactions. Every mutating operation here runs one
  WithTx block that (a) applies the mutation, (b) recalculates the claim
  total if items changed, (c) re-runs the payable computation, and
  (d) appends the audit entry - all-or-nothing.

RECOMPUTATION POLICY:
  recompute() is called on every mutation, not just the ones that change
  the total: the annual-limit aggregate depends on the member's OTHER
  claims, which drift over time, so recomputing on every save is the
  simplest correct policy. The computation is idempotent, so this is safe.

COLLABORATORS:
  The notifier and the payment gateway are best-effort. They are invoked
  AFTER the transaction commits; their failures are logged and never
  propagate.

KNOWN RACE (documented, intentionally unfixed):
  Two concurrent submissions by the same member can observe the same
  year-to-date spend and both pass the annual-limit clamp, overrunning the
  limit. This matches the reference behavior; serializing per member would
  change observable outcomes, so it is left as-is.

SEE ALSO:
  - review.go:     decision recording and the override ratification gate
  - payment.go:    payout gateway and segregation-of-duties reconciliation
  - governance.go: meetings and appeals
*/
package claims

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warp/fund-engine/fund"
)

// Service coordinates claim mutations. All operations are request-scoped
// and synchronous; there is no background scheduler in this core.
type Service struct {
	store    fund.TxStore
	notifier fund.Notifier
	gateway  PaymentGateway
	now      func() time.Time
}

// NewService wires the workflow service. Nil collaborators default to the
// logging notifier and the simulated gateway.
func NewService(store fund.TxStore, notifier fund.Notifier, gateway PaymentGateway) *Service {
	if notifier == nil {
		notifier = fund.LogNotifier{}
	}
	if gateway == nil {
		gateway = SimulatedGateway{}
	}
	return &Service{store: store, notifier: notifier, gateway: gateway, now: time.Now}
}

// WithClock overrides the time source. Tests use this to pin "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// CREATE & SUBMIT
// =============================================================================

// CreateInput is the claim intake form.
type CreateInput struct {
	MemberID         fund.MemberID
	Type             string
	DateOfFirstVisit *time.Time
	DateOfDischarge  *time.Time
	Notes            string
	Details          *fund.ClaimDetails
	SHIFNumber       string
	OtherInsurance   fund.OtherInsurance
	Submit           bool // true = submit immediately instead of saving a draft
}

// Create records a new claim in draft, or submits it directly when
// requested. Members may only create claims for themselves.
func (s *Service) Create(ctx context.Context, actor fund.Actor, in CreateInput) (*fund.Claim, error) {
	ct, ok := fund.ParseClaimType(in.Type)
	if !ok {
		return nil, fund.NewValidationError(fund.CodeInvalidClaimType, "unknown claim type %q", in.Type)
	}

	claim := &fund.Claim{
		ID:               fund.ClaimID(uuid.New().String()),
		MemberID:         in.MemberID,
		Type:             ct,
		DateOfFirstVisit: in.DateOfFirstVisit,
		DateOfDischarge:  in.DateOfDischarge,
		Notes:            in.Notes,
		Details:          in.Details,
		SHIFNumber:       in.SHIFNumber,
		OtherInsurance:   in.OtherInsurance,
		Status:           fund.StatusDraft,
		CreatedAt:        s.now(),
	}

	err := s.store.WithTx(ctx, func(st fund.Store) error {
		member, err := s.requireMember(ctx, st, in.MemberID)
		if err != nil {
			return err
		}
		if err := s.requireOwnershipOrRole(ctx, st, actor, member, fund.RoleCommittee, fund.RoleAdmin); err != nil {
			return err
		}
		if err := s.recompute(ctx, st, claim); err != nil {
			return err
		}
		if err := st.SaveClaim(ctx, claim); err != nil {
			return err
		}
		if err := s.audit(ctx, st, actor, fund.AuditClaimCreated, claim, nil, fund.ClaimSnapshot(claim)); err != nil {
			return err
		}
		if in.Submit {
			return s.submitLocked(ctx, st, actor, claim, member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.Submit {
		s.notifySubmission(ctx, claim)
	}
	return claim, nil
}

// Submit moves a draft claim into submitted, running the full validation
// gate and duplicate-fingerprint check.
func (s *Service) Submit(ctx context.Context, actor fund.Actor, id fund.ClaimID) (*fund.Claim, error) {
	var claim *fund.Claim
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		claim, err = s.requireClaim(ctx, st, id)
		if err != nil {
			return err
		}
		member, err := s.requireMember(ctx, st, claim.MemberID)
		if err != nil {
			return err
		}
		if err := s.requireOwnershipOrRole(ctx, st, actor, member, fund.RoleCommittee, fund.RoleAdmin); err != nil {
			return err
		}
		return s.submitLocked(ctx, st, actor, claim, member)
	})
	if err != nil {
		return nil, err
	}

	s.notifySubmission(ctx, claim)
	return claim, nil
}

// submitLocked runs inside the caller's transaction. Order matters: totals
// first (the fingerprint hashes the amount), then the validation gate, then
// the duplicate check, and only then the state change.
func (s *Service) submitLocked(ctx context.Context, st fund.Store, actor fund.Actor, c *fund.Claim, member *fund.Member) error {
	if err := s.recompute(ctx, st, c); err != nil {
		return err
	}

	pending, err := st.HasPendingAppeal(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := fund.ValidateTransition(c, member, fund.StatusSubmitted, pending, s.now()); err != nil {
		return err
	}

	hash := fund.Fingerprint(c)
	existing, err := st.FindFingerprint(ctx, hash)
	if err != nil {
		return err
	}
	if existing != nil && existing.ClaimID != c.ID {
		return &fund.DuplicateClaimError{Hash: hash, ExistingClaimID: existing.ClaimID}
	}

	before := fund.ClaimSnapshot(c)
	c.Status = fund.StatusSubmitted
	if c.SubmittedAt == nil {
		at := s.now()
		c.SubmittedAt = &at
	}
	if err := s.recompute(ctx, st, c); err != nil {
		return err
	}
	if err := st.SaveClaim(ctx, c); err != nil {
		return err
	}
	if err := st.SaveFingerprint(ctx, &fund.ClaimFingerprint{
		ClaimID:   c.ID,
		MemberID:  c.MemberID,
		Hash:      hash,
		CreatedAt: s.now(),
	}); err != nil {
		return err
	}
	return s.audit(ctx, st, actor, fund.AuditClaimSubmitted, c, before, fund.ClaimSnapshot(c))
}

// =============================================================================
// STATUS
// =============================================================================

// SetStatus performs a direct committee status change. Reopening a rejected
// claim goes through appeal resolution, not here.
func (s *Service) SetStatus(ctx context.Context, actor fund.Actor, id fund.ClaimID, status string) (*fund.Claim, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	target, ok := fund.ParseClaimStatus(status)
	if !ok {
		return nil, fund.NewValidationError(fund.CodeInvalidStatus, "unknown status %q", status)
	}

	var claim *fund.Claim
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		claim, err = s.requireClaim(ctx, st, id)
		if err != nil {
			return err
		}
		if claim.Status == fund.StatusRejected && target == fund.StatusSubmitted {
			return fund.NewValidationError(fund.CodeInvalidStatus,
				"rejected claims are reopened through appeal resolution")
		}
		member, err := s.requireMember(ctx, st, claim.MemberID)
		if err != nil {
			return err
		}
		return s.transitionLocked(ctx, st, actor, claim, member, target)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, claim)
	return claim, nil
}

// transitionLocked applies a validated transition inside the caller's
// transaction and audits it. Every path into submitted funnels through
// submitLocked so the duplicate-fingerprint check and registration cannot
// be sidestepped. Recompute precedes validation: the ratification gate must
// judge the figures the claim will actually carry, not the last saved ones.
func (s *Service) transitionLocked(ctx context.Context, st fund.Store, actor fund.Actor, c *fund.Claim, member *fund.Member, target fund.ClaimStatus) error {
	if target == fund.StatusSubmitted {
		return s.submitLocked(ctx, st, actor, c, member)
	}

	before := fund.ClaimSnapshot(c)
	if err := s.recompute(ctx, st, c); err != nil {
		return err
	}

	pending, err := st.HasPendingAppeal(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := fund.ValidateTransition(c, member, target, pending, s.now()); err != nil {
		return err
	}

	c.Status = target
	if err := st.SaveClaim(ctx, c); err != nil {
		return err
	}
	return s.audit(ctx, st, actor, fund.AuditClaimStatusSet, c, before, fund.ClaimSnapshot(c))
}

// =============================================================================
// ITEMS
// =============================================================================

// ItemInput is one itemized claim line.
type ItemInput struct {
	Category    string
	Description string
	Amount      string // decimal string; parsed here to keep floats out
	Quantity    int
}

// SaveItem adds or updates an itemized line and recomputes the claim.
func (s *Service) SaveItem(ctx context.Context, actor fund.Actor, claimID fund.ClaimID, itemID string, in ItemInput) (*fund.ClaimItem, error) {
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}

	item := &fund.ClaimItem{
		ID:          itemID,
		ClaimID:     claimID,
		Category:    in.Category,
		Description: in.Description,
		Amount:      amount,
		Quantity:    in.Quantity,
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	err = s.store.WithTx(ctx, func(st fund.Store) error {
		claim, err := s.requireMutableClaim(ctx, st, actor, claimID)
		if err != nil {
			return err
		}
		if err := st.SaveItem(ctx, item); err != nil {
			return err
		}
		if err := s.recompute(ctx, st, claim); err != nil {
			return err
		}
		if err := st.SaveClaim(ctx, claim); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, fund.AuditItemSaved, claim, nil, map[string]any{
			"item_id": item.ID, "amount": item.Amount.StringFixed(2), "quantity": item.Quantity,
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes an itemized line and recomputes the claim.
func (s *Service) RemoveItem(ctx context.Context, actor fund.Actor, itemID string) error {
	return s.store.WithTx(ctx, func(st fund.Store) error {
		item, err := st.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fund.NewNotFound("claim item", itemID)
		}
		claim, err := s.requireMutableClaim(ctx, st, actor, item.ClaimID)
		if err != nil {
			return err
		}
		if err := st.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		if err := s.recompute(ctx, st, claim); err != nil {
			return err
		}
		if err := st.SaveClaim(ctx, claim); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, fund.AuditItemDeleted, claim, nil, map[string]any{"item_id": itemID})
	})
}

// =============================================================================
// ATTACHMENTS - metadata only; blobs live in the external store
// =============================================================================

// RecordAttachment registers attachment metadata against a claim.
func (s *Service) RecordAttachment(ctx context.Context, actor fund.Actor, claimID fund.ClaimID, fileName, contentType string, sizeBytes int64) (*fund.ClaimAttachment, error) {
	att := &fund.ClaimAttachment{
		ID:          uuid.New().String(),
		ClaimID:     claimID,
		UploadedBy:  actor.UserID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		UploadedAt:  s.now(),
	}
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		claim, err := s.requireClaim(ctx, st, claimID)
		if err != nil {
			return err
		}
		member, err := s.requireMember(ctx, st, claim.MemberID)
		if err != nil {
			return err
		}
		if err := s.requireOwnershipOrRole(ctx, st, actor, member, fund.RoleCommittee, fund.RoleAdmin); err != nil {
			return err
		}
		if err := st.SaveAttachment(ctx, att); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, fund.AuditAttachmentAdded, claim, nil, map[string]any{
			"attachment_id": att.ID, "file_name": fileName, "content_type": contentType,
		})
	})
	if err != nil {
		return nil, err
	}
	return att, nil
}

// =============================================================================
// RECOMPUTATION - the single path every mutation funnels through
// =============================================================================

// recompute derives the claim total, auto-detects exclusions and re-runs
// the payable engine against the current year-to-date aggregate. It never
// writes; callers save the claim afterwards within the same transaction.
func (s *Service) recompute(ctx context.Context, st fund.Store, c *fund.Claim) error {
	items, err := st.ListItems(ctx, c.ID)
	if err != nil {
		return err
	}
	c.TotalClaimed = fund.TotalClaimed(c, items)

	// Exclusion is only ever switched on automatically; committee can
	// still exclude (or un-exclude) by hand.
	if !c.Excluded && fund.DetectExclusion(c.Notes, items) {
		c.Excluded = true
	}

	scales, err := st.ListScales(ctx)
	if err != nil {
		return err
	}
	general := fund.LoadGeneralLimits(ctx, st)

	annualLimit := general.AnnualLimit
	member, err := st.GetMember(ctx, c.MemberID)
	if err != nil {
		return err
	}
	if member != nil && member.MembershipTypeKey != "" {
		mt, err := st.GetMembershipType(ctx, member.MembershipTypeKey)
		if err != nil {
			return err
		}
		if mt != nil {
			annualLimit = mt.AnnualLimit
		}
	}

	spent, err := st.YearFundShare(ctx, c.MemberID, s.now().Year(), c.ID)
	if err != nil {
		return err
	}

	result := fund.ComputePayable(fund.PayableInput{
		TotalClaimed:    c.TotalClaimed,
		ClaimType:       c.Type,
		Notes:           c.Notes,
		Excluded:        c.Excluded,
		OverrideAmount:  c.OverrideAmount,
		OtherInsurance:  c.OtherInsurance,
		Scale:           fund.ResolveScale(scales, general, c.Type),
		General:         general,
		AnnualLimit:     annualLimit,
		YearToDateSpend: spent,
	})
	c.TotalPayable = result.TotalPayable
	c.MemberPayable = result.MemberPayable
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id fund.ClaimID) (*fund.Claim, error) {
	return s.requireClaim(ctx, s.store, id)
}

func (s *Service) List(ctx context.Context, f fund.ClaimFilter) ([]fund.Claim, error) {
	return s.store.ListClaims(ctx, f)
}

func (s *Service) Items(ctx context.Context, id fund.ClaimID) ([]fund.ClaimItem, error) {
	return s.store.ListItems(ctx, id)
}

func (s *Service) Reviews(ctx context.Context, id fund.ClaimID) ([]fund.ClaimReview, error) {
	return s.store.ListReviews(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) requireClaim(ctx context.Context, st fund.Store, id fund.ClaimID) (*fund.Claim, error) {
	c, err := st.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fund.NewNotFound("claim", string(id))
	}
	return c, nil
}

func (s *Service) requireMember(ctx context.Context, st fund.Store, id fund.MemberID) (*fund.Member, error) {
	m, err := st.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fund.NewNotFound("member", string(id))
	}
	return m, nil
}

// requireMutableClaim loads the claim and rejects mutations on finalized
// (paid) claims; item edits also require ownership or a committee role.
func (s *Service) requireMutableClaim(ctx context.Context, st fund.Store, actor fund.Actor, id fund.ClaimID) (*fund.Claim, error) {
	claim, err := s.requireClaim(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if claim.Status.IsTerminal() {
		return nil, fund.NewValidationError(fund.CodeClaimFinalized, "paid claims cannot be modified")
	}
	member, err := s.requireMember(ctx, st, claim.MemberID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnershipOrRole(ctx, st, actor, member, fund.RoleCommittee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	return claim, nil
}

// requireOwnershipOrRole passes when the actor owns the member record or
// holds one of the given roles.
func (s *Service) requireOwnershipOrRole(_ context.Context, _ fund.Store, actor fund.Actor, member *fund.Member, roles ...fund.Role) error {
	if member.UserID == actor.UserID {
		return nil
	}
	return fund.RequireRole(actor, roles...)
}

func (s *Service) audit(ctx context.Context, st fund.Store, actor fund.Actor, action fund.AuditAction, c *fund.Claim, before, after map[string]any) error {
	return s.auditWithMeeting(ctx, st, actor, action, c, "", before, after)
}

// auditWithMeeting records a claim audit entry carrying a governance
// reference, used when a decision was ratified by a meeting.
func (s *Service) auditWithMeeting(ctx context.Context, st fund.Store, actor fund.Actor, action fund.AuditAction, c *fund.Claim, meetingID fund.MeetingID, before, after map[string]any) error {
	var actorID *fund.UserID
	if actor.UserID != "" {
		id := actor.UserID
		actorID = &id
	}
	meta := map[string]any{"claim_id": string(c.ID), "status": string(c.Status)}
	return st.AppendAudit(ctx, fund.AuditEntry{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Action:    action,
		Meta:      meta,
		Before:    before,
		After:     after,
		MeetingID: meetingID,
		CreatedAt: s.now(),
	})
}

func (s *Service) notifySubmission(ctx context.Context, c *fund.Claim) {
	s.dispatch(ctx, fund.NotificationEvent{
		Kind:     fund.EventClaimSubmitted,
		ClaimID:  c.ID,
		MemberID: c.MemberID,
		Message:  fmt.Sprintf("Your %s claim has been received.", c.Type),
	})
	s.dispatch(ctx, fund.NotificationEvent{
		Kind:     fund.EventNewClaim,
		ClaimID:  c.ID,
		MemberID: c.MemberID,
		Message:  fmt.Sprintf("New %s claim awaiting review.", c.Type),
	})
}

func (s *Service) notifyStatus(ctx context.Context, c *fund.Claim) {
	s.dispatch(ctx, fund.NotificationEvent{
		Kind:     fund.EventClaimStatus,
		ClaimID:  c.ID,
		MemberID: c.MemberID,
		Message:  fmt.Sprintf("Your claim status is now %s.", c.Status),
	})
}

// dispatch is fire-and-forget: notification failure never fails the
// operation that triggered it.
func (s *Service) dispatch(ctx context.Context, ev fund.NotificationEvent) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("notification dispatch failed", "kind", ev.Kind, "claim_id", ev.ClaimID, "error", err)
	}
}
