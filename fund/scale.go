/*
scale.go - Reimbursement scale lookup

PURPOSE:
  Resolves the fund-share percentage and ceiling for a claim type.
  Categories are matched case-insensitively; when no scale matches, the
  general_limits settings record supplies the fallback percentage and uses
  its annual limit as the ceiling.
*/
package fund

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ScaleResolution is the outcome of a scale lookup.
type ScaleResolution struct {
	FundSharePercent decimal.Decimal
	Ceiling          decimal.Decimal
	Matched          bool // false when the general fallback was used
}

// ResolveScale finds the category scale for the claim type, falling back
// to general settings. The caller applies the clinic 100% override.
func ResolveScale(scales []ReimbursementScale, general GeneralLimits, ct ClaimType) ScaleResolution {
	for _, s := range scales {
		if strings.EqualFold(s.Category, string(ct)) {
			return ScaleResolution{FundSharePercent: s.FundShare, Ceiling: s.Ceiling, Matched: true}
		}
	}
	return ScaleResolution{
		FundSharePercent: general.FundSharePercent,
		Ceiling:          general.AnnualLimit,
	}
}
