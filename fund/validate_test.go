package fund_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func activeMember() *fund.Member {
	from := day(2025, time.January, 1)
	to := day(2027, time.January, 1)
	benefits := day(2025, time.March, 2)
	return &fund.Member{
		ID:           "mem-1",
		UserID:       "user-1",
		Status:       fund.MemberActive,
		ValidFrom:    &from,
		ValidTo:      &to,
		BenefitsFrom: &benefits,
	}
}

// =============================================================================
// SUBMISSION WINDOW
// =============================================================================

func TestValidateDates_WindowBoundary(t *testing.T) {
	// GIVEN: An outpatient claim first seen on June 1
	// WHEN: Submitted exactly 90 days later, then 91 days later
	// THEN: Day 90 passes, day 91 fails

	visit := day(2025, time.June, 1)
	claim := &fund.Claim{Type: fund.ClaimOutpatient, DateOfFirstVisit: &visit}

	onTime := visit.AddDate(0, 0, 90)
	assert.NoError(t, fund.ValidateDates(claim, &onTime), "exactly 90 days should pass")

	late := visit.AddDate(0, 0, 91)
	err := fund.ValidateDates(claim, &late)
	require.Error(t, err, "91 days should fail")

	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeSubmissionWindow, verr.Code)
}

func TestValidateDates_MissingRequiredDate(t *testing.T) {
	// GIVEN: Outpatient and inpatient claims missing their anchor dates
	// WHEN: Dates are validated
	// THEN: Each claim type demands its own date

	now := day(2025, time.July, 1)

	err := fund.ValidateDates(&fund.Claim{Type: fund.ClaimOutpatient}, &now)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeMissingVisitDate, verr.Code)

	err = fund.ValidateDates(&fund.Claim{Type: fund.ClaimInpatient}, &now)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeMissingDischargeDate, verr.Code)
}

func TestValidateDates_ChronicNeedsNoDate(t *testing.T) {
	// GIVEN: A chronic claim with no anchor date
	// WHEN: Dates are validated
	// THEN: No date requirement applies

	now := day(2025, time.July, 1)
	assert.NoError(t, fund.ValidateDates(&fund.Claim{Type: fund.ClaimChronic}, &now))
}

func TestValidateDates_DraftSkipsWindow(t *testing.T) {
	// GIVEN: A year-old outpatient visit on a claim still in draft
	// WHEN: Dates are validated with no submission time
	// THEN: The window check does not apply yet

	visit := day(2024, time.June, 1)
	claim := &fund.Claim{Type: fund.ClaimOutpatient, DateOfFirstVisit: &visit}

	assert.NoError(t, fund.ValidateDates(claim, nil))
}

// =============================================================================
// MEMBER ELIGIBILITY
// =============================================================================

func TestValidateEligibility_WaitingPeriod(t *testing.T) {
	// GIVEN: A member whose benefits start March 2
	// WHEN: Eligibility is checked the day before and the day of
	// THEN: The waiting period blocks until benefits begin

	m := activeMember()

	err := fund.ValidateEligibility(m, day(2025, time.March, 1))
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeWaitingPeriod, verr.Code)

	assert.NoError(t, fund.ValidateEligibility(m, day(2025, time.March, 2)))
}

func TestValidateEligibility_ExpiredMembership(t *testing.T) {
	// GIVEN: A member whose term ended January 1, 2027
	// WHEN: Eligibility is checked after expiry
	// THEN: The claim is blocked with the expiry code

	m := activeMember()

	err := fund.ValidateEligibility(m, day(2027, time.January, 2))
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeMembershipExpired, verr.Code)

	// The final day of the term still passes.
	assert.NoError(t, fund.ValidateEligibility(m, day(2027, time.January, 1)))
}

func TestValidateEligibility_InactiveStatuses(t *testing.T) {
	// GIVEN: Members in every non-active status
	// WHEN: Eligibility is checked
	// THEN: All are blocked

	for _, status := range []fund.MemberStatus{fund.MemberPending, fund.MemberSuspended, fund.MemberLapsed} {
		m := activeMember()
		m.Status = status
		err := fund.ValidateEligibility(m, day(2025, time.June, 1))
		assert.Error(t, err, "status %s should be ineligible", status)
	}
}

// =============================================================================
// TRANSITION GATE
// =============================================================================

func TestValidateTransition_TrusteeRatificationThreshold(t *testing.T) {
	// GIVEN: A submitted claim payable above the discretionary ceiling
	// WHEN: Approval is attempted without and with trustee ratification
	// THEN: Ratification is required above the ceiling

	visit := day(2025, time.June, 1)
	submitted := day(2025, time.June, 10)
	claim := &fund.Claim{
		Type:             fund.ClaimOutpatient,
		Status:           fund.StatusSubmitted,
		DateOfFirstVisit: &visit,
		SubmittedAt:      &submitted,
		TotalPayable:     fund.DiscretionaryCeiling.Add(d(1)),
	}
	m := activeMember()
	now := day(2025, time.June, 15)

	err := fund.ValidateTransition(claim, m, fund.StatusApproved, false, now)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeTrusteeRatification, verr.Code)

	claim.TrusteeRatified = true
	assert.NoError(t, fund.ValidateTransition(claim, m, fund.StatusApproved, false, now))

	// Exactly at the ceiling no ratification is needed.
	claim.TrusteeRatified = false
	claim.TotalPayable = fund.DiscretionaryCeiling
	assert.NoError(t, fund.ValidateTransition(claim, m, fund.StatusApproved, false, now))
}

func TestValidateTransition_AppealFreeze(t *testing.T) {
	// GIVEN: A submitted claim under a pending appeal
	// WHEN: The committee tries to approve it
	// THEN: The claim is frozen until the appeal resolves

	visit := day(2025, time.June, 1)
	submitted := day(2025, time.June, 10)
	claim := &fund.Claim{
		Type:             fund.ClaimOutpatient,
		Status:           fund.StatusSubmitted,
		DateOfFirstVisit: &visit,
		SubmittedAt:      &submitted,
	}
	m := activeMember()
	now := day(2025, time.June, 15)

	err := fund.ValidateTransition(claim, m, fund.StatusApproved, true, now)
	var verr *fund.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fund.CodeAppealFrozen, verr.Code)

	// Staying within the safe statuses is fine while frozen.
	assert.NoError(t, fund.ValidateTransition(claim, m, fund.StatusSubmitted, true, now))
}

func TestValidateTransition_LifecycleStillApplies(t *testing.T) {
	// GIVEN: A draft claim
	// WHEN: A jump straight to paid is attempted
	// THEN: The transition table rejects it

	claim := &fund.Claim{Type: fund.ClaimChronic, Status: fund.StatusDraft}
	err := fund.ValidateTransition(claim, activeMember(), fund.StatusPaid, false, day(2025, time.June, 15))

	var terr *fund.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, fund.StatusDraft, terr.From)
	assert.Equal(t, fund.StatusPaid, terr.To)
}
