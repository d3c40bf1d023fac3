package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fund-engine/fund"
	"github.com/warp/fund-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func sampleClaim(id fund.ClaimID) *fund.Claim {
	visit := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	override := decimal.NewFromFloat(12500.50)
	return &fund.Claim{
		ID:               id,
		MemberID:         "mem-1",
		Type:             fund.ClaimOutpatient,
		DateOfFirstVisit: &visit,
		TotalClaimed:     decimal.NewFromFloat(10000.25),
		TotalPayable:     d(8000),
		MemberPayable:    decimal.NewFromFloat(2000.25),
		Status:           fund.StatusSubmitted,
		Notes:            "follow-up visit",
		Details: &fund.ClaimDetails{
			Outpatient: &fund.OutpatientDetails{
				ProviderRef:     fund.ProviderRef{HospitalName: "Aga Khan Hospital", ReceiptNumber: "rcp-1"},
				ConsultationFee: decimal.NewFromFloat(10000.25),
			},
		},
		OverrideAmount: &override,
		SHIFNumber:     "shif-9",
		OtherInsurance: fund.OtherInsurance{SHIF: d(500)},
		CreatedAt:      time.Date(2025, time.June, 10, 9, 30, 0, 0, time.UTC),
	}
}

// =============================================================================
// CLAIM ROUND TRIPS
// =============================================================================

func TestClaim_SaveAndGetRoundTrip(t *testing.T) {
	// GIVEN: A claim with decimals, details JSON, an override and dates
	// WHEN: It is saved and read back
	// THEN: Every field survives exactly

	store := newTestStore(t)
	ctx := context.Background()
	want := sampleClaim("claim-1")
	require.NoError(t, store.SaveClaim(ctx, want))

	got, err := store.GetClaim(ctx, "claim-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.MemberID, got.MemberID)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.TotalClaimed.Equal(got.TotalClaimed), "claimed %s vs %s", want.TotalClaimed, got.TotalClaimed)
	assert.True(t, want.MemberPayable.Equal(got.MemberPayable))
	require.NotNil(t, got.OverrideAmount)
	assert.True(t, want.OverrideAmount.Equal(*got.OverrideAmount))
	require.NotNil(t, got.DateOfFirstVisit)
	assert.True(t, want.DateOfFirstVisit.Equal(*got.DateOfFirstVisit))
	require.NotNil(t, got.Details)
	require.NotNil(t, got.Details.Outpatient)
	assert.Equal(t, "Aga Khan Hospital", got.Details.Outpatient.HospitalName)
	assert.True(t, d(500).Equal(got.OtherInsurance.SHIF))
}

func TestClaim_SaveIsUpsert(t *testing.T) {
	// GIVEN: A stored claim
	// WHEN: The same ID is saved with a new status
	// THEN: The row is updated, not duplicated

	store := newTestStore(t)
	ctx := context.Background()
	claim := sampleClaim("claim-1")
	require.NoError(t, store.SaveClaim(ctx, claim))

	claim.Status = fund.StatusApproved
	require.NoError(t, store.SaveClaim(ctx, claim))

	got, err := store.GetClaim(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, fund.StatusApproved, got.Status)

	list, err := store.ListClaims(ctx, fund.ClaimFilter{MemberID: "mem-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClaim_GetMissingReturnsNil(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: An unknown claim is fetched
	// THEN: The store returns nil without error; services surface not-found

	store := newTestStore(t)
	got, err := store.GetClaim(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClaim_ListFilters(t *testing.T) {
	// GIVEN: Claims across members, statuses and types
	// WHEN: The list is filtered
	// THEN: Each filter narrows correctly

	store := newTestStore(t)
	ctx := context.Background()

	a := sampleClaim("claim-a")
	b := sampleClaim("claim-b")
	b.Status = fund.StatusApproved
	b.Notes = "chronic meds restock"
	b.Type = fund.ClaimChronic
	c := sampleClaim("claim-c")
	c.MemberID = "mem-2"
	for _, cl := range []*fund.Claim{a, b, c} {
		require.NoError(t, store.SaveClaim(ctx, cl))
	}

	list, err := store.ListClaims(ctx, fund.ClaimFilter{MemberID: "mem-1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = store.ListClaims(ctx, fund.ClaimFilter{Status: fund.StatusApproved})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = store.ListClaims(ctx, fund.ClaimFilter{Search: "restock"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = store.ListClaims(ctx, fund.ClaimFilter{Type: fund.ClaimChronic})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestYearFundShare_ExcludesCurrentClaimAndOtherYears(t *testing.T) {
	// GIVEN: Three claims this year and one last year for a member
	// WHEN: The year aggregate is computed excluding one claim
	// THEN: Only the member's other same-year claims are summed, exactly

	store := newTestStore(t)
	ctx := context.Background()

	this1 := sampleClaim("this-1")
	this1.TotalPayable = decimal.NewFromFloat(0.1)
	this2 := sampleClaim("this-2")
	this2.TotalPayable = decimal.NewFromFloat(0.2)
	current := sampleClaim("current")
	current.TotalPayable = d(99999)
	lastYear := sampleClaim("last-year")
	lastYear.CreatedAt = time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	other := sampleClaim("other-member")
	other.MemberID = "mem-2"
	for _, cl := range []*fund.Claim{this1, this2, current, lastYear, other} {
		require.NoError(t, store.SaveClaim(ctx, cl))
	}

	sum, err := store.YearFundShare(ctx, "mem-1", 2025, "current")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.3).Equal(sum), "decimal sum must be exact, got %s", sum)
}

// =============================================================================
// FINGERPRINTS - unique hash enforcement
// =============================================================================

func TestFingerprint_UniqueHashRejectsSecondClaim(t *testing.T) {
	// GIVEN: A fingerprint stored for one claim
	// WHEN: A different claim saves the same hash
	// THEN: The unique index reports a duplicate naming the original

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveFingerprint(ctx, &fund.ClaimFingerprint{
		ClaimID: "claim-1", MemberID: "mem-1", Hash: "abc123", CreatedAt: now,
	}))

	err := store.SaveFingerprint(ctx, &fund.ClaimFingerprint{
		ClaimID: "claim-2", MemberID: "mem-1", Hash: "abc123", CreatedAt: now,
	})
	var dup *fund.DuplicateClaimError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, fund.ClaimID("claim-1"), dup.ExistingClaimID)

	// Re-saving the same claim's fingerprint is an upsert, not a duplicate.
	assert.NoError(t, store.SaveFingerprint(ctx, &fund.ClaimFingerprint{
		ClaimID: "claim-1", MemberID: "mem-1", Hash: "abc123", CreatedAt: now,
	}))
}

func TestFingerprint_FindByHash(t *testing.T) {
	// GIVEN: A stored fingerprint
	// WHEN: It is looked up by hash
	// THEN: The owning claim is returned; unknown hashes return nil

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveFingerprint(ctx, &fund.ClaimFingerprint{
		ClaimID: "claim-1", MemberID: "mem-1", Hash: "abc123", CreatedAt: time.Now().UTC(),
	}))

	fp, err := store.FindFingerprint(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, fund.ClaimID("claim-1"), fp.ClaimID)

	fp, err = store.FindFingerprint(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, fp)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that saves a claim then fails
	// WHEN: The transaction returns the error
	// THEN: Nothing is persisted

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(st fund.Store) error {
		if err := st.SaveClaim(ctx, sampleClaim("claim-1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetClaim(ctx, "claim-1")
	require.NoError(t, err)
	assert.Nil(t, got, "rollback should discard the save")
}

func TestWithTx_NestedCallRunsInSameTransaction(t *testing.T) {
	// GIVEN: Service code that opens WithTx inside WithTx
	// WHEN: The inner call writes and the outer fails
	// THEN: The inner write rolls back with the outer transaction

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(st fund.Store) error {
		inner := st.(fund.TxStore)
		if err := inner.WithTx(ctx, func(st2 fund.Store) error {
			return st2.SaveClaim(ctx, sampleClaim("claim-1"))
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetClaim(ctx, "claim-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// REVIEWS, PAYMENTS, APPEALS
// =============================================================================

func TestReviews_AppendOnlyAndLatestByAction(t *testing.T) {
	// GIVEN: Several decisions on one claim
	// WHEN: Reviews are listed and the latest approval is fetched
	// THEN: Listing is chronological and the latest approver wins

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)

	for i, r := range []fund.ClaimReview{
		{ID: "r1", ClaimID: "claim-1", ReviewerID: "u1", Role: fund.RoleCommittee, Action: fund.ActionReviewed},
		{ID: "r2", ClaimID: "claim-1", ReviewerID: "u2", Role: fund.RoleCommittee, Action: fund.ActionApproved},
		{ID: "r3", ClaimID: "claim-1", ReviewerID: "u3", Role: fund.RoleTrustee, Action: fund.ActionApproved},
	} {
		r := r
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.AppendReview(ctx, &r))
	}

	reviews, err := store.ListReviews(ctx, "claim-1")
	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, fund.ReviewID("r1"), reviews[0].ID)

	latest, err := store.LatestReview(ctx, "claim-1", fund.ActionApproved)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, fund.UserID("u3"), latest.ReviewerID)

	latest, err = store.LatestReview(ctx, "claim-1", fund.ActionOverride)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestPayments_RoundTrip(t *testing.T) {
	// GIVEN: A pending payment
	// WHEN: It is reconciled and re-saved
	// THEN: The reconciliation fields persist

	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, time.June, 20, 10, 0, 0, 0, time.UTC)

	p := &fund.PaymentRecord{
		ID:         "pay-1",
		ClaimID:    "claim-1",
		Amount:     decimal.NewFromFloat(8000.50),
		Status:     fund.PaymentPending,
		RecordedBy: "u1",
		CreatedAt:  at,
	}
	require.NoError(t, store.SavePayment(ctx, p))

	p.Status = fund.PaymentReconciled
	p.ReconciledBy = "u2"
	p.ReconciledAt = &at
	p.Provider = "MPESA_SIMULATOR"
	p.TransactionRef = "SIM_ABCD1234"
	require.NoError(t, store.SavePayment(ctx, p))

	got, err := store.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fund.PaymentReconciled, got.Status)
	assert.Equal(t, fund.UserID("u2"), got.ReconciledBy)
	assert.Equal(t, "SIM_ABCD1234", got.TransactionRef)
	assert.True(t, decimal.NewFromFloat(8000.50).Equal(got.Amount))
}

func TestAppeals_PendingFlag(t *testing.T) {
	// GIVEN: A pending appeal on a claim
	// WHEN: The pending flag is checked before and after resolution
	// THEN: Only unresolved appeals count

	store := newTestStore(t)
	ctx := context.Background()

	appeal := &fund.ClaimAppeal{
		ID: "ap-1", ClaimID: "claim-1", FiledBy: "u1",
		Status: fund.AppealPending, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveAppeal(ctx, appeal))

	pending, err := store.HasPendingAppeal(ctx, "claim-1")
	require.NoError(t, err)
	assert.True(t, pending)

	at := time.Now().UTC()
	appeal.Status = fund.AppealUpheld
	appeal.ResolvedBy = "u2"
	appeal.ResolvedAt = &at
	require.NoError(t, store.SaveAppeal(ctx, appeal))

	pending, err = store.HasPendingAppeal(ctx, "claim-1")
	require.NoError(t, err)
	assert.False(t, pending)
}

// =============================================================================
// MEMBERS & SETTINGS
// =============================================================================

func TestMember_RoundTripAndLookupByUser(t *testing.T) {
	// GIVEN: A member with a validity window
	// WHEN: Saved and fetched by ID and by user
	// THEN: Dates and optional fields survive

	store := newTestStore(t)
	ctx := context.Background()
	from := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(2, 0, 0)

	m := &fund.Member{
		ID: "mem-1", UserID: "user-1", MembershipTypeKey: "single",
		Status: fund.MemberActive, ValidFrom: &from, ValidTo: &to,
		FullName: "Alice Kaur", PhoneMobile: "+254700000001",
		CreatedAt: from, UpdatedAt: from,
	}
	require.NoError(t, store.SaveMember(ctx, m))

	got, err := store.GetMemberByUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fund.MemberID("mem-1"), got.ID)
	require.NotNil(t, got.ValidTo)
	assert.True(t, to.Equal(*got.ValidTo))
	assert.Nil(t, got.BenefitsFrom)
}

func TestSettings_PutGetRoundTrip(t *testing.T) {
	// GIVEN: A general-limits settings payload
	// WHEN: It is stored and reloaded
	// THEN: The JSON round-trips; unknown keys return nil

	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"annual_limit":"250000","fund_share_percent":"80"}`)
	require.NoError(t, store.PutSetting(ctx, fund.SettingGeneralLimits, payload))

	got, err := store.GetSetting(ctx, fund.SettingGeneralLimits)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))

	missing, err := store.GetSetting(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestAudit_QueryFilters(t *testing.T) {
	// GIVEN: Audit entries from two actors across two claims
	// WHEN: The trail is filtered by actor, action and claim
	// THEN: Each filter narrows correctly

	store := newTestStore(t)
	ctx := context.Background()
	u1, u2 := fund.UserID("u1"), fund.UserID("u2")

	entries := []fund.AuditEntry{
		{ID: "a1", ActorID: &u1, Action: fund.AuditClaimCreated, Meta: map[string]any{"claim_id": "claim-1"}},
		{ID: "a2", ActorID: &u1, Action: fund.AuditClaimSubmitted, Meta: map[string]any{"claim_id": "claim-1"}},
		{ID: "a3", ActorID: &u2, Action: fund.AuditClaimCreated, Meta: map[string]any{"claim_id": "claim-2"}},
	}
	for i, e := range entries {
		e.CreatedAt = time.Date(2025, time.June, 10, 9, i, 0, 0, time.UTC)
		require.NoError(t, store.AppendAudit(ctx, e))
	}

	got, err := store.QueryAudit(ctx, fund.AuditFilter{ActorID: &u1})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.QueryAudit(ctx, fund.AuditFilter{Action: fund.AuditClaimCreated})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.QueryAudit(ctx, fund.AuditFilter{ClaimID: "claim-2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a3", got[0].ID)

	got, err = store.QueryAudit(ctx, fund.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
