/*
payable.go - Payable computation engine

PURPOSE:
  The central allocator: splits a claim's total into fund-payable and
  member-payable. It is a pure function of its input - claim fields, the
  resolved scale, general settings, the member's annual limit and the
  year-to-date spend aggregate - so re-running it against unchanged state
  yields identical results.

PRECEDENCE ORDER (Byelaws):
  1. Discretionary override wins absolutely
  2. Exclusion wins next: fund pays nothing
  3. Percentage split per scale (with the Siri Guru Nanak clinic 100%
     outpatient rule)
  4. Third-party insurance deductions
  5. Category ceiling clamp
  6. Annual membership-limit clamp

  Both clamps must run: either can be the binding constraint. The annual
  limit aggregate excludes the claim under computation so recomputation
  never double-counts.

EXCLUSION DETECTION:
  DetectExclusion scans notes and item categories for the bylaw-excluded
  terms (cosmetic, infertility, nature cure, transport, mortuary).
*/
package fund

import (
	"strings"

	"github.com/shopspring/decimal"
)

// clinicNoteMarker triggers the outpatient full-reimbursement rule when it
// appears in the claim notes.
const clinicNoteMarker = "siri guru nanak clinic"

// excludedTerms are the bylaw-exempted categories the fund never pays for.
var excludedTerms = []string{"cosmetic", "infertility", "nature cure", "transport", "mortuary"}

var oneHundred = decimal.NewFromInt(100)

// PayableInput bundles everything the engine needs. There is no hidden
// global state: callers resolve settings and aggregates up front.
type PayableInput struct {
	TotalClaimed   decimal.Decimal
	ClaimType      ClaimType
	Notes          string
	Excluded       bool
	OverrideAmount *decimal.Decimal
	OtherInsurance OtherInsurance

	Scale   ScaleResolution
	General GeneralLimits

	// AnnualLimit is the member's membership-type annual limit, or the
	// general fallback when the membership type is gone. A zero limit
	// blocks all further fund share.
	AnnualLimit decimal.Decimal

	// YearToDateSpend is the sum of total_payable across the member's
	// other claims created this calendar year, whatever their status.
	YearToDateSpend decimal.Decimal
}

// PayableResult is the computed split. Both values are >= 0.
type PayableResult struct {
	TotalPayable  decimal.Decimal
	MemberPayable decimal.Decimal
}

// ComputePayable applies the precedence order above. Idempotent.
func ComputePayable(in PayableInput) PayableResult {
	claimed := clampZero(in.TotalClaimed)

	// 1. Override wins absolutely.
	if in.OverrideAmount != nil {
		return PayableResult{
			TotalPayable:  clampZero(*in.OverrideAmount),
			MemberPayable: clampZero(claimed.Sub(*in.OverrideAmount)),
		}
	}

	// 2. Exclusion: full amount to the member.
	if in.Excluded {
		return PayableResult{TotalPayable: decimal.Zero, MemberPayable: claimed}
	}

	// 3. Percentage split.
	percent := in.Scale.FundSharePercent
	if in.ClaimType == ClaimOutpatient && strings.Contains(strings.ToLower(in.Notes), clinicNoteMarker) {
		percent = in.General.ClinicOutpatientPercent
	}
	fundShare := claimed.Mul(percent).Div(oneHundred)

	// 4. Third-party deductions come off the fund share first.
	deductions := in.OtherInsurance.SHIF.Add(in.OtherInsurance.Other)
	fundShare = clampZero(fundShare.Sub(deductions))
	memberShare := claimed.Sub(fundShare).Sub(deductions)

	// 5. Category ceiling.
	if fundShare.GreaterThan(in.Scale.Ceiling) {
		fundShare = in.Scale.Ceiling
		memberShare = claimed.Sub(fundShare).Sub(deductions)
	}

	// 6. Annual membership limit.
	if in.YearToDateSpend.Add(fundShare).GreaterThan(in.AnnualLimit) {
		fundShare = clampZero(in.AnnualLimit.Sub(in.YearToDateSpend))
		memberShare = claimed.Sub(fundShare).Sub(deductions)
	}

	return PayableResult{
		TotalPayable:  clampZero(fundShare),
		MemberPayable: clampZero(memberShare),
	}
}

// DetectExclusion reports whether the claim falls in a bylaw-excluded
// category, judged from the notes and item categories/descriptions.
// It only ever turns exclusion ON; committee can still exclude manually.
func DetectExclusion(notes string, items []ClaimItem) bool {
	haystack := strings.ToLower(notes)
	for _, it := range items {
		haystack += "\n" + strings.ToLower(it.Category) + "\n" + strings.ToLower(it.Description)
	}
	for _, term := range excludedTerms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}
