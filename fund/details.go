/*
details.go - Structured claim-type-specific payloads

PURPOSE:
  Each claim type carries a different structured form. Instead of an
  untyped JSON blob branched on a string, the payload is a closed tagged
  variant: exactly one of Outpatient / Inpatient / Chronic is set, matching
  the claim's type. The total calculator (total.go) matches over the
  variant, so missing fields are explicit zero values, not silent
  dictionary defaults.

PROVIDER REFERENCE:
  Every variant embeds ProviderRef (hospital, receipt, invoice). The
  fingerprint service reads these to build the duplicate-detection hash.
*/
package fund

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ProviderRef identifies the care provider and the receipt backing the
// claim. Shared by all detail variants.
type ProviderRef struct {
	HospitalName  string `json:"hospital_name,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
}

// OutpatientDetails is the outpatient claim form.
type OutpatientDetails struct {
	ProviderRef
	ConsultationFee   decimal.Decimal `json:"consultation_fee"`
	HouseVisitCost    decimal.Decimal `json:"house_visit_cost"`
	MedicineCost      decimal.Decimal `json:"medicine_cost"`
	InvestigationCost decimal.Decimal `json:"investigation_cost"`
	ProcedureCost     decimal.Decimal `json:"procedure_cost"`
}

// InpatientDetails is the inpatient claim form. SHIFTotal is deducted from
// accommodation before the remaining buckets are summed.
type InpatientDetails struct {
	ProviderRef
	StayDays        int             `json:"stay_days"`
	BedChargePerDay decimal.Decimal `json:"bed_charge_per_day"`
	SHIFTotal       decimal.Decimal `json:"shif_total"`
	InpatientTotal  decimal.Decimal `json:"inpatient_total"`
	DoctorTotal     decimal.Decimal `json:"doctor_total"`
	ClaimableTotal  decimal.Decimal `json:"claimable_total"`
	DiscountsTotal  decimal.Decimal `json:"discounts_total"`
	CriticalIllness bool            `json:"critical_illness,omitempty"`
}

// ChronicMedicine is one recurring medicine line.
type ChronicMedicine struct {
	Name string          `json:"name"`
	Cost decimal.Decimal `json:"cost"`
}

// ChronicDetails is the chronic claim form: a list of medicines.
type ChronicDetails struct {
	ProviderRef
	DoctorName string            `json:"doctor_name,omitempty"`
	Medicines  []ChronicMedicine `json:"medicines"`
}

// ClaimDetails is the tagged variant. Exactly one field is non-nil for a
// well-formed claim; the zero value means "no structured payload".
type ClaimDetails struct {
	Outpatient *OutpatientDetails `json:"outpatient,omitempty"`
	Inpatient  *InpatientDetails  `json:"inpatient,omitempty"`
	Chronic    *ChronicDetails    `json:"chronic,omitempty"`
}

// Provider returns the provider reference of whichever variant is set.
func (d *ClaimDetails) Provider() ProviderRef {
	if d == nil {
		return ProviderRef{}
	}
	switch {
	case d.Outpatient != nil:
		return d.Outpatient.ProviderRef
	case d.Inpatient != nil:
		return d.Inpatient.ProviderRef
	case d.Chronic != nil:
		return d.Chronic.ProviderRef
	}
	return ProviderRef{}
}

// IsZero reports whether no variant is populated.
func (d *ClaimDetails) IsZero() bool {
	return d == nil || (d.Outpatient == nil && d.Inpatient == nil && d.Chronic == nil)
}

// MarshalDetails encodes details for storage. Nil encodes as empty object.
func MarshalDetails(d *ClaimDetails) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// UnmarshalDetails decodes stored details; empty input yields nil.
func UnmarshalDetails(raw []byte) (*ClaimDetails, error) {
	if len(raw) == 0 || string(raw) == "{}" || string(raw) == "null" {
		return nil, nil
	}
	var d ClaimDetails
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, nil
	}
	return &d, nil
}
