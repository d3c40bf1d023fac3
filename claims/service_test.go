package claims_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fund-engine/claims"
	"github.com/warp/fund-engine/fund"
	"github.com/warp/fund-engine/fund/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

var (
	alice     = fund.Actor{UserID: "user-alice", Role: fund.RoleMember}
	chair     = fund.Actor{UserID: "user-chair", Role: fund.RoleCommittee}
	trustee   = fund.Actor{UserID: "user-trustee", Role: fund.RoleTrustee}
	secondEye = fund.Actor{UserID: "user-audit", Role: fund.RoleTrustee}
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// newTestService seeds a memory store with scales, a membership type and an
// active member owned by alice, and pins the clock to testNow.
func newTestService(t *testing.T) (*claims.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	for _, sc := range []fund.ReimbursementScale{
		{Category: "Outpatient", FundShare: d(80), MemberShare: d(20), Ceiling: d(100000)},
		{Category: "Inpatient", FundShare: d(80), MemberShare: d(20), Ceiling: d(250000)},
		{Category: "Chronic", FundShare: d(80), MemberShare: d(20), Ceiling: d(150000)},
	} {
		sc := sc
		require.NoError(t, mem.SaveScale(ctx, &sc))
	}
	require.NoError(t, mem.SaveMembershipType(ctx, &fund.MembershipType{
		Key:         "single",
		Name:        "Single",
		AnnualLimit: d(250000),
	}))

	validFrom := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	validTo := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	benefits := time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mem.SaveMember(ctx, &fund.Member{
		ID:                "mem-1",
		UserID:            alice.UserID,
		MembershipTypeKey: "single",
		Status:            fund.MemberActive,
		ValidFrom:         &validFrom,
		ValidTo:           &validTo,
		BenefitsFrom:      &benefits,
		FullName:          "Alice Kaur",
	}))

	svc := claims.NewService(mem, nil, nil).WithClock(func() time.Time { return testNow })
	return svc, mem
}

func outpatientInput(submit bool) claims.CreateInput {
	visit := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	return claims.CreateInput{
		MemberID:         "mem-1",
		Type:             "outpatient",
		DateOfFirstVisit: &visit,
		Details: &fund.ClaimDetails{
			Outpatient: &fund.OutpatientDetails{
				ProviderRef: fund.ProviderRef{
					HospitalName:  "Aga Khan Hospital",
					ReceiptNumber: "rcp-1042",
				},
				ConsultationFee: d(4000),
				MedicineCost:    d(6000),
			},
		},
		Submit: submit,
	}
}

// =============================================================================
// CREATE & RECOMPUTE
// =============================================================================

func TestCreate_DraftComputesPayable(t *testing.T) {
	// GIVEN: An active member filing a 10,000 outpatient draft
	// WHEN: The claim is created without submitting
	// THEN: Totals and the 80/20 split are derived, status stays draft

	svc, _ := newTestService(t)
	claim, err := svc.Create(context.Background(), alice, outpatientInput(false))
	require.NoError(t, err)

	assert.Equal(t, fund.StatusDraft, claim.Status)
	assert.Nil(t, claim.SubmittedAt)
	assert.True(t, d(10000).Equal(claim.TotalClaimed), "got %s", claim.TotalClaimed)
	assert.True(t, d(8000).Equal(claim.TotalPayable), "got %s", claim.TotalPayable)
	assert.True(t, d(2000).Equal(claim.MemberPayable), "got %s", claim.MemberPayable)
}

func TestCreate_MemberCannotFileForOthers(t *testing.T) {
	// GIVEN: A member actor who does not own the target membership
	// WHEN: They try to file a claim for mem-1
	// THEN: The operation is denied

	svc, _ := newTestService(t)
	stranger := fund.Actor{UserID: "user-bob", Role: fund.RoleMember}

	_, err := svc.Create(context.Background(), stranger, outpatientInput(false))
	assert.True(t, fund.IsPermission(err), "expected permission error, got %v", err)
}

func TestCreate_CommitteeMayFileOnBehalf(t *testing.T) {
	// GIVEN: A committee actor filing for a member
	// WHEN: The claim is created
	// THEN: The ownership check is bypassed by role

	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), chair, outpatientInput(false))
	assert.NoError(t, err)
}

func TestCreate_UnknownTypeRejected(t *testing.T) {
	// GIVEN: A claim with an unrecognized type
	// WHEN: Creation is attempted
	// THEN: The closed enum rejects it before any write

	svc, _ := newTestService(t)
	in := outpatientInput(false)
	in.Type = "dental"

	_, err := svc.Create(context.Background(), alice, in)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeInvalidClaimType, verr.Code)
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmit_SetsTimestampAndFingerprint(t *testing.T) {
	// GIVEN: A draft claim
	// WHEN: It is submitted
	// THEN: Status flips, the timestamp is set once, a fingerprint is stored

	svc, mem := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(false))
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, alice, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, testNow, *submitted.SubmittedAt)

	fp, err := mem.FindFingerprint(ctx, fund.Fingerprint(submitted))
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, claim.ID, fp.ClaimID)
}

func TestSubmit_DuplicateFingerprintRejected(t *testing.T) {
	// GIVEN: A submitted claim
	// WHEN: A second claim with the same receipt, amount and date is submitted
	// THEN: It is rejected as a probable duplicate naming the original

	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, alice, outpatientInput(true))
	require.NoError(t, err)

	_, err = svc.Create(ctx, alice, outpatientInput(true))
	require.Error(t, err)

	var dup *fund.DuplicateClaimError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingClaimID)
	assert.True(t, errors.Is(err, fund.ErrDuplicateClaim))
}

func TestSubmit_ResubmitSameClaimIsNotADuplicate(t *testing.T) {
	// GIVEN: A claim already carrying its own fingerprint
	// WHEN: It is submitted again (self-transition)
	// THEN: Its own fingerprint does not block it

	svc, _ := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(true))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, alice, claim.ID)
	assert.NoError(t, err)
}

func TestSubmit_OutsideWindowRejected(t *testing.T) {
	// GIVEN: An outpatient visit 91 days before today
	// WHEN: The claim is submitted
	// THEN: The 90-day window rejects it

	svc, _ := newTestService(t)
	in := outpatientInput(true)
	visit := testNow.AddDate(0, 0, -91)
	in.DateOfFirstVisit = &visit

	_, err := svc.Create(context.Background(), alice, in)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeSubmissionWindow, verr.Code)
}

func TestSubmit_WaitingPeriodRejected(t *testing.T) {
	// GIVEN: A member still inside the benefits waiting period
	// WHEN: They submit a claim
	// THEN: Submission is blocked; saving a draft is still allowed

	ctx := context.Background()
	svcEarly, _ := newTestService(t)
	svcEarly = svcEarly.WithClock(func() time.Time {
		return time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	})

	in := outpatientInput(true)
	visit := time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC)
	in.DateOfFirstVisit = &visit

	_, err := svcEarly.Create(ctx, alice, in)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeWaitingPeriod, verr.Code)

	in.Submit = false
	_, err = svcEarly.Create(ctx, alice, in)
	assert.NoError(t, err, "drafts are allowed during the waiting period")
}

// =============================================================================
// ITEMS
// =============================================================================

func TestSaveItem_ItemsBecomeAuthoritativeTotal(t *testing.T) {
	// GIVEN: A draft claim totalled from its details payload
	// WHEN: Itemized lines are added
	// THEN: The item sum replaces the details-derived total

	svc, _ := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(false))
	require.NoError(t, err)

	_, err = svc.SaveItem(ctx, alice, claim.ID, "", claims.ItemInput{
		Category: "pharmacy", Description: "antibiotics", Amount: "1500", Quantity: 2,
	})
	require.NoError(t, err)
	_, err = svc.SaveItem(ctx, alice, claim.ID, "", claims.ItemInput{
		Category: "consultation", Amount: "2000", Quantity: 1,
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.True(t, d(5000).Equal(got.TotalClaimed), "items should drive the total, got %s", got.TotalClaimed)
	assert.True(t, d(4000).Equal(got.TotalPayable), "got %s", got.TotalPayable)
}

func TestSaveItem_InvalidAmountRejected(t *testing.T) {
	// GIVEN: An item line with a negative amount
	// WHEN: It is saved
	// THEN: The amount parser rejects it

	svc, _ := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(false))
	require.NoError(t, err)

	_, err = svc.SaveItem(ctx, alice, claim.ID, "", claims.ItemInput{Amount: "-100", Quantity: 1})
	assert.True(t, fund.IsClientError(err), "expected validation error, got %v", err)
}

func TestRemoveItem_RecomputesTotal(t *testing.T) {
	// GIVEN: A claim totalled from a single item line
	// WHEN: The line is removed
	// THEN: The total falls back to the details payload

	svc, _ := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(false))
	require.NoError(t, err)

	item, err := svc.SaveItem(ctx, alice, claim.ID, "", claims.ItemInput{Amount: "500", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItem(ctx, alice, item.ID))

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.True(t, d(10000).Equal(got.TotalClaimed), "details total should return, got %s", got.TotalClaimed)
}

// =============================================================================
// STATUS & EXCLUSION
// =============================================================================

func TestSetStatus_RejectedReopenGoesThroughAppeal(t *testing.T) {
	// GIVEN: A rejected claim
	// WHEN: The committee tries to set it back to submitted directly
	// THEN: The direct path is refused; appeal resolution is the only way

	svc, _ := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(true))
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, chair, claim.ID, "rejected")
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, chair, claim.ID, "submitted")
	assert.Error(t, err, "rejected claims reopen only through appeals")
}

func TestSetStatus_SubmitRunsDuplicateGate(t *testing.T) {
	// GIVEN: A submitted claim and an identical draft
	// WHEN: The committee pushes the draft into submitted via the status path
	// THEN: The duplicate gate refuses, and unique drafts get fingerprinted

	svc, mem := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, outpatientInput(true))
	require.NoError(t, err)

	dup, err := svc.Create(ctx, alice, outpatientInput(false))
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, chair, dup.ID, "submitted")
	assert.True(t, errors.Is(err, fund.ErrDuplicateClaim), "expected duplicate rejection, got %v", err)

	fresh := outpatientInput(false)
	fresh.Details.Outpatient.ReceiptNumber = "rcp-2099"
	draft, err := svc.Create(ctx, alice, fresh)
	require.NoError(t, err)
	got, err := svc.SetStatus(ctx, chair, draft.ID, "submitted")
	require.NoError(t, err)
	require.NotNil(t, got.SubmittedAt)

	fp, err := mem.FindFingerprint(ctx, fund.Fingerprint(got))
	require.NoError(t, err)
	require.NotNil(t, fp, "status-driven submission must register the fingerprint")
	assert.Equal(t, draft.ID, fp.ClaimID)
}

func TestSetStatus_MemberRoleDenied(t *testing.T) {
	// GIVEN: A submitted claim
	// WHEN: Its owner tries to approve it themselves
	// THEN: The role gate refuses

	svc, _ := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(true))
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, alice, claim.ID, "approved")
	assert.True(t, fund.IsPermission(err), "expected permission error, got %v", err)
}

func TestSetExclusion_ZeroesFundShare(t *testing.T) {
	// GIVEN: A submitted claim with a normal 80/20 split
	// WHEN: The committee flags it bylaw-excluded
	// THEN: The fund share drops to zero and the member bears everything

	svc, _ := newTestService(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, alice, outpatientInput(true))
	require.NoError(t, err)

	excluded, err := svc.SetExclusion(ctx, chair, claim.ID, true)
	require.NoError(t, err)
	assert.True(t, excluded.Excluded)
	assert.True(t, excluded.TotalPayable.IsZero(), "got %s", excluded.TotalPayable)
	assert.True(t, d(10000).Equal(excluded.MemberPayable), "got %s", excluded.MemberPayable)
}

func TestExclusionDetector_FlagsOnCreate(t *testing.T) {
	// GIVEN: A claim whose notes name an excluded category
	// WHEN: It is created
	// THEN: The detector flags it and the fund pays nothing

	svc, _ := newTestService(t)
	in := outpatientInput(false)
	in.Notes = "cosmetic procedure follow-up"
	in.Details.Outpatient.ReceiptNumber = "rcp-9000"

	claim, err := svc.Create(context.Background(), alice, in)
	require.NoError(t, err)
	assert.True(t, claim.Excluded)
	assert.True(t, claim.TotalPayable.IsZero())
}
