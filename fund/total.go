/*
total.go - Claim total derivation

PURPOSE:
  Computes the raw claimed amount. Itemized lines are authoritative when
  any exist; otherwise the total is derived from the structured details
  payload per claim type. The result is clamped to >= 0 in all paths.
*/
package fund

import "github.com/shopspring/decimal"

// TotalFromItems sums amount x quantity across items.
func TotalFromItems(items []ClaimItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return clampZero(total)
}

// TotalFromDetails derives the claim total from the structured payload.
// An unrecognized or missing variant yields zero.
func TotalFromDetails(ct ClaimType, d *ClaimDetails) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	switch ct {
	case ClaimOutpatient:
		if d.Outpatient == nil {
			return decimal.Zero
		}
		return clampZero(d.Outpatient.total())
	case ClaimInpatient:
		if d.Inpatient == nil {
			return decimal.Zero
		}
		return clampZero(d.Inpatient.total())
	case ClaimChronic:
		if d.Chronic == nil {
			return decimal.Zero
		}
		return clampZero(d.Chronic.total())
	}
	return decimal.Zero
}

// TotalClaimed applies the precedence rule: items win when they sum to a
// non-zero amount, otherwise the details-derived total is used.
func TotalClaimed(c *Claim, items []ClaimItem) decimal.Decimal {
	if t := TotalFromItems(items); t.IsPositive() {
		return t
	}
	return TotalFromDetails(c.Type, c.Details)
}

func (d *OutpatientDetails) total() decimal.Decimal {
	return d.ConsultationFee.
		Add(d.HouseVisitCost).
		Add(d.MedicineCost).
		Add(d.InvestigationCost).
		Add(d.ProcedureCost)
}

func (d *InpatientDetails) total() decimal.Decimal {
	stayDays := d.StayDays
	if stayDays == 0 {
		stayDays = 1
	}
	accommodation := d.BedChargePerDay.Mul(decimal.NewFromInt(int64(stayDays))).Sub(d.SHIFTotal)
	accommodation = clampZero(accommodation)

	return accommodation.
		Add(d.InpatientTotal).
		Add(d.DoctorTotal).
		Add(d.ClaimableTotal).
		Sub(d.DiscountsTotal)
}

func (d *ChronicDetails) total() decimal.Decimal {
	total := decimal.Zero
	for _, m := range d.Medicines {
		total = total.Add(m.Cost)
	}
	return total
}

func clampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
