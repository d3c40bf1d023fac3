/*
validate.go - Claim validation gate

PURPOSE:
  Enforces the Byelaws submission and adjudication rules before any
  transition into submitted, and again before approved/paid:

  - Outpatient claims need a first-visit date; inpatient claims need a
    discharge date. Submission must land within 90 days of that date
    (exactly 90 passes, 91 fails).
  - The owning member must be claim-eligible at validation time.
  - Approvals/payouts above the discretionary ceiling require trustee
    ratification.
  - A claim under a pending appeal is frozen in {draft, submitted,
    rejected}.

  Rules are evaluated independently; every failure is a ValidationError
  naming the rule, raised before any write.
*/
package fund

import "time"

// ValidateDates enforces the type-specific required dates and the 90-day
// submission window. submittedAt may be nil for claims still in draft.
func ValidateDates(c *Claim, submittedAt *time.Time) error {
	switch c.Type {
	case ClaimOutpatient:
		if c.DateOfFirstVisit == nil {
			return newValidationError(CodeMissingVisitDate, "outpatient claims require date_of_first_visit")
		}
		if submittedAt != nil && DaysBetween(*c.DateOfFirstVisit, *submittedAt) > SubmissionWindowDays {
			return newValidationError(CodeSubmissionWindow,
				"outpatient claims must be submitted within %d days of first visit", SubmissionWindowDays)
		}
	case ClaimInpatient:
		if c.DateOfDischarge == nil {
			return newValidationError(CodeMissingDischargeDate, "inpatient claims require date_of_discharge")
		}
		if submittedAt != nil && DaysBetween(*c.DateOfDischarge, *submittedAt) > SubmissionWindowDays {
			return newValidationError(CodeSubmissionWindow,
				"inpatient claims must be submitted within %d days of discharge", SubmissionWindowDays)
		}
	}
	return nil
}

// ValidateEligibility checks the member's claim-eligibility invariant,
// reporting the specific reason for ineligibility.
func ValidateEligibility(m *Member, today time.Time) error {
	if m.Status != MemberActive {
		return newValidationError(CodeMemberIneligible, "membership is not active (status: %s)", m.Status)
	}
	day := truncateDay(today)
	if m.ValidFrom != nil && truncateDay(*m.ValidFrom).After(day) {
		return newValidationError(CodeMemberIneligible, "membership has not started yet")
	}
	if m.ValidTo != nil && day.After(truncateDay(*m.ValidTo)) {
		return newValidationError(CodeMembershipExpired, "membership has expired")
	}
	if m.BenefitsFrom != nil && day.Before(truncateDay(*m.BenefitsFrom)) {
		return newValidationError(CodeWaitingPeriod, "benefits waiting period has not ended")
	}
	return nil
}

// appealSafeStatuses are where a claim may sit while an appeal is pending.
var appealSafeStatuses = map[ClaimStatus]bool{
	StatusDraft:     true,
	StatusSubmitted: true,
	StatusRejected:  true,
}

// ValidateTransition runs the gate for a status change. It combines the
// lifecycle table with the appeal freeze and the trustee-ratification
// threshold; date and eligibility rules apply when the target is
// submitted, approved or paid.
func ValidateTransition(c *Claim, m *Member, target ClaimStatus, pendingAppeal bool, now time.Time) error {
	if err := CheckTransition(c.Status, target); err != nil {
		return err
	}

	if pendingAppeal && !appealSafeStatuses[target] {
		return newValidationError(CodeAppealFrozen, "claim is frozen under a pending appeal")
	}

	switch target {
	case StatusSubmitted:
		submittedAt := c.SubmittedAt
		if submittedAt == nil {
			submittedAt = &now
		}
		if err := ValidateDates(c, submittedAt); err != nil {
			return err
		}
		if err := ValidateEligibility(m, now); err != nil {
			return err
		}
	case StatusApproved, StatusPaid:
		if err := ValidateDates(c, c.SubmittedAt); err != nil {
			return err
		}
		if err := ValidateEligibility(m, now); err != nil {
			return err
		}
		if c.TotalPayable.GreaterThan(DiscretionaryCeiling) && !c.TrusteeRatified {
			return newValidationError(CodeTrusteeRatification,
				"payable %s exceeds the discretionary ceiling and requires trustee ratification",
				c.TotalPayable.StringFixed(2))
		}
	}

	return nil
}
