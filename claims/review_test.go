package claims_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fund-engine/claims"
	"github.com/warp/fund-engine/fund"
)

// submittedClaim creates and submits a standard 10,000 outpatient claim.
func submittedClaim(t *testing.T, svc *claims.Service) *fund.Claim {
	t.Helper()
	claim, err := svc.Create(context.Background(), alice, outpatientInput(true))
	require.NoError(t, err)
	return claim
}

// =============================================================================
// REVIEW DECISIONS
// =============================================================================

func TestRecordReview_ApproveDrivesTransition(t *testing.T) {
	// GIVEN: A submitted claim
	// WHEN: The committee records an approval
	// THEN: The claim moves to approved and the review is appended

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	review, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{
		Action: "approved", Note: "receipts verified", ByelawRef: "7.2",
	})
	require.NoError(t, err)
	assert.Equal(t, fund.ActionApproved, review.Action)
	assert.Equal(t, chair.UserID, review.ReviewerID)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusApproved, got.Status)
}

func TestRecordReview_MemberRoleDenied(t *testing.T) {
	// GIVEN: A submitted claim
	// WHEN: A plain member records a review
	// THEN: The role gate refuses

	svc, _ := newTestService(t)
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(context.Background(), alice, claim.ID, claims.ReviewInput{Action: "approved"})
	assert.True(t, fund.IsPermission(err))
}

func TestRecordReview_PaidCreatesPendingPayment(t *testing.T) {
	// GIVEN: An approved claim
	// WHEN: The committee records the paid decision
	// THEN: A payment record is booked and the simulated payout attaches a ref

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "approved"})
	require.NoError(t, err)
	_, err = svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "paid"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusPaid, got.Status)

	payments, err := svc.Payments(ctx, claim.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	p := payments[0]
	assert.Equal(t, fund.PaymentPending, p.Status)
	assert.True(t, d(8000).Equal(p.Amount), "payout books the fund share, got %s", p.Amount)
	assert.Equal(t, "MPESA_SIMULATOR", p.Provider)
	assert.NotEmpty(t, p.TransactionRef)
}

func TestRecordReview_ApprovalGateSeesFreshFigures(t *testing.T) {
	// GIVEN: A submitted inpatient claim saved with a payable of 144,000
	// WHEN: The scale rises to 90% and the committee approves
	// THEN: The recomputed 162,000 hits the ratification gate

	svc, mem := newTestService(t)
	ctx := context.Background()

	discharge := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	claim, err := svc.Create(ctx, alice, claims.CreateInput{
		MemberID:        "mem-1",
		Type:            "inpatient",
		DateOfDischarge: &discharge,
		Details: &fund.ClaimDetails{
			Inpatient: &fund.InpatientDetails{
				ProviderRef: fund.ProviderRef{HospitalName: "Aga Khan Hospital", ReceiptNumber: "rcp-7701"},
				DoctorTotal: d(180000),
			},
		},
		Submit: true,
	})
	require.NoError(t, err)
	require.True(t, d(144000).Equal(claim.TotalPayable), "got %s", claim.TotalPayable)

	require.NoError(t, mem.SaveScale(ctx, &fund.ReimbursementScale{
		Category: "Inpatient", FundShare: d(90), MemberShare: d(10), Ceiling: d(250000),
	}))

	_, err = svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "approved"})
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeTrusteeRatification, verr.Code)
}

// =============================================================================
// DISCRETIONARY OVERRIDE
// =============================================================================

// bigClaim submits a 200,000 outpatient claim.
func bigClaim(t *testing.T, svc *claims.Service) *fund.Claim {
	t.Helper()
	in := outpatientInput(true)
	in.Details.Outpatient.ConsultationFee = d(200000)
	in.Details.Outpatient.MedicineCost = d(0)
	in.Details.Outpatient.ReceiptNumber = "rcp-8800"
	claim, err := svc.Create(context.Background(), alice, in)
	require.NoError(t, err)
	return claim
}

func TestOverride_WithinCeilingNeedsNoMeeting(t *testing.T) {
	// GIVEN: A submitted claim and an override below 150,000
	// WHEN: The committee records the override
	// THEN: The claim is approved at the override amount

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{
		Action: "override", OverrideAmount: "9500",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusApproved, got.Status)
	assert.True(t, d(9500).Equal(got.TotalPayable), "override becomes the payable, got %s", got.TotalPayable)
	assert.False(t, got.TrusteeRatified)
}

func TestOverride_AboveCeilingWithoutMeetingRefused(t *testing.T) {
	// GIVEN: An override above the 150,000 discretionary ceiling
	// WHEN: No emergency meeting is cited
	// THEN: The override is refused before any write

	svc, _ := newTestService(t)
	claim := bigClaim(t, svc)

	_, err := svc.RecordReview(context.Background(), chair, claim.ID, claims.ReviewInput{
		Action: "override", OverrideAmount: "180000",
	})
	var oerr *fund.OverrideCeilingError
	require.ErrorAs(t, err, &oerr)
	assert.True(t, fund.DiscretionaryCeiling.Equal(oerr.Ceiling))
}

func TestOverride_AboveCeilingNeedsLockedEmergencyMeeting(t *testing.T) {
	// GIVEN: An open emergency meeting and an ordinary locked meeting
	// WHEN: Each is cited for a 180,000 override
	// THEN: Only a locked emergency meeting the claim was tabled at ratifies it

	svc, mem := newTestService(t)
	ctx := context.Background()
	claim := bigClaim(t, svc)

	openEmergency, err := svc.CreateMeeting(ctx, trustee, "emergency", "Special sitting", testNow)
	require.NoError(t, err)
	require.NoError(t, svc.LinkClaimToMeeting(ctx, trustee, claim.ID, openEmergency.ID, "override tabled"))
	_, err = svc.RecordReview(ctx, trustee, claim.ID, claims.ReviewInput{
		Action: "override", OverrideAmount: "180000", MeetingID: openEmergency.ID,
	})
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeEmergencyMeeting, verr.Code)

	ordinary, err := svc.CreateMeeting(ctx, trustee, "ordinary", "Monthly sitting", testNow)
	require.NoError(t, err)
	_, err = svc.LockMeeting(ctx, trustee, ordinary.ID)
	require.NoError(t, err)
	_, err = svc.RecordReview(ctx, trustee, claim.ID, claims.ReviewInput{
		Action: "override", OverrideAmount: "180000", MeetingID: ordinary.ID,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeEmergencyMeeting, verr.Code)

	_, err = svc.LockMeeting(ctx, trustee, openEmergency.ID)
	require.NoError(t, err)
	_, err = svc.RecordReview(ctx, trustee, claim.ID, claims.ReviewInput{
		Action: "override", OverrideAmount: "180000", MeetingID: openEmergency.ID,
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusApproved, got.Status)
	assert.True(t, got.TrusteeRatified, "ratification flag should be set")
	assert.True(t, d(180000).Equal(got.TotalPayable), "got %s", got.TotalPayable)

	// The decision's audit entry carries the ratifying meeting.
	entries, err := mem.QueryAudit(ctx, fund.AuditFilter{Action: fund.AuditReviewRecorded, ClaimID: claim.ID})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, openEmergency.ID, entries[len(entries)-1].MeetingID)
}

func TestOverride_MeetingClaimWasNotTabledAtRefused(t *testing.T) {
	// GIVEN: A locked emergency meeting the claim was never tabled at
	// WHEN: It is cited for an above-ceiling override
	// THEN: Ratification is refused and no link appears

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := bigClaim(t, svc)

	meeting, err := svc.CreateMeeting(ctx, trustee, "emergency", "Special sitting", testNow)
	require.NoError(t, err)
	_, err = svc.LockMeeting(ctx, trustee, meeting.ID)
	require.NoError(t, err)

	_, err = svc.RecordReview(ctx, trustee, claim.ID, claims.ReviewInput{
		Action: "override", OverrideAmount: "180000", MeetingID: meeting.ID,
	})
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeEmergencyMeeting, verr.Code)

	links, err := svc.MeetingLinks(ctx, claim.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusSubmitted, got.Status)
	assert.False(t, got.TrusteeRatified)
}

func TestOverride_MissingAmountRefused(t *testing.T) {
	// GIVEN: An override review with no amount
	// WHEN: It is recorded
	// THEN: The amount is required

	svc, _ := newTestService(t)
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(context.Background(), chair, claim.ID, claims.ReviewInput{Action: "override"})
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeOverrideMissing, verr.Code)
}

// =============================================================================
// PAYMENT RECONCILIATION - segregation of duties
// =============================================================================

// paidClaim approves and pays a claim, with the given approver, and returns
// the pending payment.
func paidClaim(t *testing.T, svc *claims.Service, approver fund.Actor) (*fund.Claim, fund.PaymentRecord) {
	t.Helper()
	ctx := context.Background()
	claim := submittedClaim(t, svc)
	_, err := svc.RecordReview(ctx, approver, claim.ID, claims.ReviewInput{Action: "approved"})
	require.NoError(t, err)
	_, err = svc.RecordReview(ctx, approver, claim.ID, claims.ReviewInput{Action: "paid"})
	require.NoError(t, err)

	payments, err := svc.Payments(ctx, claim.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	return claim, payments[0]
}

func TestReconcile_HappyPath(t *testing.T) {
	// GIVEN: A pending payout approved by the chair
	// WHEN: An uninvolved trustee reconciles it
	// THEN: The record flips to reconciled with the reconciler stamped

	svc, _ := newTestService(t)
	_, payment := paidClaim(t, svc, chair)

	rec, err := svc.ReconcilePayment(context.Background(), secondEye, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.PaymentReconciled, rec.Status)
	assert.Equal(t, secondEye.UserID, rec.ReconciledBy)
	require.NotNil(t, rec.ReconciledAt)
}

func TestReconcile_ApproverCannotReconcile(t *testing.T) {
	// GIVEN: A payout approved by a trustee
	// WHEN: The same trustee tries to reconcile it
	// THEN: Segregation of duties refuses

	svc, _ := newTestService(t)
	_, payment := paidClaim(t, svc, trustee)

	_, err := svc.ReconcilePayment(context.Background(), trustee, payment.ID)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeApproverReconciler, verr.Code)
}

func TestReconcile_OwnerCannotReconcile(t *testing.T) {
	// GIVEN: A payout on alice's own claim
	// WHEN: Alice, wearing a trustee hat, tries to reconcile it
	// THEN: Segregation of duties refuses

	svc, _ := newTestService(t)
	_, payment := paidClaim(t, svc, chair)

	aliceAsTrustee := fund.Actor{UserID: alice.UserID, Role: fund.RoleTrustee}
	_, err := svc.ReconcilePayment(context.Background(), aliceAsTrustee, payment.ID)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeOwnerReconciler, verr.Code)
}

func TestReconcile_CommitteeRoleDenied(t *testing.T) {
	// GIVEN: A pending payout
	// WHEN: A committee member tries to reconcile
	// THEN: Only trustees and admins may reconcile

	svc, _ := newTestService(t)
	_, payment := paidClaim(t, svc, chair)

	_, err := svc.ReconcilePayment(context.Background(), chair, payment.ID)
	assert.True(t, fund.IsPermission(err))
}

func TestReconcile_AlreadyReconciledRefused(t *testing.T) {
	// GIVEN: A reconciled payout
	// WHEN: A second reconciliation is attempted
	// THEN: The idempotency guard refuses

	svc, _ := newTestService(t)
	_, payment := paidClaim(t, svc, chair)
	ctx := context.Background()

	_, err := svc.ReconcilePayment(ctx, secondEye, payment.ID)
	require.NoError(t, err)

	_, err = svc.ReconcilePayment(ctx, trustee, payment.ID)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeAlreadyReconciled, verr.Code)
}

// =============================================================================
// APPEALS
// =============================================================================

func TestAppeal_FreezeAndReopen(t *testing.T) {
	// GIVEN: A rejected claim under appeal
	// WHEN: The committee tries to act, then a trustee upholds the appeal
	// THEN: The claim is frozen until resolution, then reopened to submitted

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "rejected", Note: "missing receipts"})
	require.NoError(t, err)

	appeal, err := svc.FileAppeal(ctx, alice, claim.ID, "receipts attached now")
	require.NoError(t, err)
	assert.Equal(t, fund.AppealPending, appeal.Status)

	// Frozen: no decision may move the claim out of the safe statuses.
	_, err = svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "approved"})
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeAppealFrozen, verr.Code)

	resolved, err := svc.ResolveAppeal(ctx, trustee, appeal.ID, true, "receipts verified on appeal")
	require.NoError(t, err)
	assert.Equal(t, fund.AppealUpheld, resolved.Status)
	assert.Equal(t, trustee.UserID, resolved.ResolvedBy)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusSubmitted, got.Status, "upheld appeal reopens the claim")
}

func TestAppeal_DismissedLeavesClaimRejected(t *testing.T) {
	// GIVEN: A rejected claim under appeal
	// WHEN: The trustee dismisses the appeal
	// THEN: The claim stays rejected

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "rejected"})
	require.NoError(t, err)
	appeal, err := svc.FileAppeal(ctx, alice, claim.ID, "please reconsider")
	require.NoError(t, err)

	resolved, err := svc.ResolveAppeal(ctx, trustee, appeal.ID, false, "decision stands")
	require.NoError(t, err)
	assert.Equal(t, fund.AppealDismissed, resolved.Status)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusRejected, got.Status)
}

func TestAppeal_SecondPendingAppealRefused(t *testing.T) {
	// GIVEN: A claim already under a pending appeal
	// WHEN: A second appeal is filed
	// THEN: Only one appeal may be open at a time

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "rejected"})
	require.NoError(t, err)
	_, err = svc.FileAppeal(ctx, alice, claim.ID, "first")
	require.NoError(t, err)

	_, err = svc.FileAppeal(ctx, alice, claim.ID, "second")
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeAppealAlreadyOpen, verr.Code)
}

func TestAppeal_ResolveRequiresTrustee(t *testing.T) {
	// GIVEN: A pending appeal
	// WHEN: A committee member tries to resolve it
	// THEN: Resolution is a trustee/admin power

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	_, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "rejected"})
	require.NoError(t, err)
	appeal, err := svc.FileAppeal(ctx, alice, claim.ID, "reconsider")
	require.NoError(t, err)

	_, err = svc.ResolveAppeal(ctx, chair, appeal.ID, true, "")
	assert.True(t, fund.IsPermission(err))
}

// =============================================================================
// TERMINAL STATE
// =============================================================================

func TestPaidClaim_IsImmutable(t *testing.T) {
	// GIVEN: A paid claim
	// WHEN: Items or the exclusion flag are touched
	// THEN: Terminal claims refuse modification

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim, _ := paidClaim(t, svc, chair)

	_, err := svc.SaveItem(ctx, chair, claim.ID, "", claims.ItemInput{Amount: "100", Quantity: 1})
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeClaimFinalized, verr.Code)

	_, err = svc.SetExclusion(ctx, chair, claim.ID, true)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeClaimFinalized, verr.Code)
}
