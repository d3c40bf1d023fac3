/*
Package factory provides JSON to Go fund-configuration conversion.

PURPOSE:
  Converts JSON fund definitions into membership types, reimbursement
  scales and general limits, and seeds them into a store. This enables
  configuration without code changes - the committee can amend the
  Byelaws figures in JSON and reseed.

JSON SCHEMA:
  {
    "membership_types": [
      {"key": "family", "name": "Family", "entry_fee": 5000,
       "term_years": 2, "annual_limit": 250000, "fund_share_percent": 80}
    ],
    "reimbursement_scales": [
      {"category": "outpatient", "fund_share": 80, "member_share": 20,
       "ceiling": 100000}
    ],
    "general_limits": {
      "annual_limit": 250000, "critical_addon": 200000,
      "fund_share_percent": 80, "clinic_outpatient_percent": 100
    }
  }

KEY FEATURES:
  - Validates JSON structure
  - Sets Byelaws defaults for omitted figures
  - Seeding is idempotent: rows are upserted by key/category

SEE ALSO:
  - fund/types.go:  MembershipType, ReimbursementScale, GeneralLimits
  - fund/store.go:  the stores the seeder writes into
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the JSON representation of the fund's reference data.
type ConfigJSON struct {
	MembershipTypes     []MembershipTypeJSON `json:"membership_types,omitempty"`
	ReimbursementScales []ScaleJSON          `json:"reimbursement_scales,omitempty"`
	GeneralLimits       *GeneralLimitsJSON   `json:"general_limits,omitempty"`
}

// MembershipTypeJSON describes one membership tier.
type MembershipTypeJSON struct {
	Key              string  `json:"key"`
	Name             string  `json:"name"`
	EntryFee         float64 `json:"entry_fee,omitempty"`
	TermYears        int     `json:"term_years,omitempty"` // 0 means the default term
	AnnualLimit      float64 `json:"annual_limit,omitempty"`
	FundSharePercent float64 `json:"fund_share_percent,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

// ScaleJSON describes one per-category reimbursement split.
type ScaleJSON struct {
	Category    string  `json:"category"`
	FundShare   float64 `json:"fund_share"`
	MemberShare float64 `json:"member_share,omitempty"` // 0 means 100 - fund_share
	Ceiling     float64 `json:"ceiling,omitempty"`
}

// GeneralLimitsJSON mirrors fund.GeneralLimits with omittable fields.
type GeneralLimitsJSON struct {
	AnnualLimit             *float64 `json:"annual_limit,omitempty"`
	CriticalAddon           *float64 `json:"critical_addon,omitempty"`
	FundSharePercent        *float64 `json:"fund_share_percent,omitempty"`
	ClinicOutpatientPercent *float64 `json:"clinic_outpatient_percent,omitempty"`
}

// =============================================================================
// CONFIG FACTORY
// =============================================================================

// ConfigFactory converts JSON fund configuration to Go structs.
type ConfigFactory struct{}

func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{}
}

// ParseConfig parses a JSON document into a ConfigJSON.
func (f *ConfigFactory) ParseConfig(data []byte) (ConfigJSON, error) {
	var cj ConfigJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return ConfigJSON{}, fmt.Errorf("failed to parse fund config JSON: %w", err)
	}
	for i, mt := range cj.MembershipTypes {
		if mt.Key == "" {
			return ConfigJSON{}, fmt.Errorf("membership_types[%d]: key is required", i)
		}
	}
	for i, sc := range cj.ReimbursementScales {
		if sc.Category == "" {
			return ConfigJSON{}, fmt.Errorf("reimbursement_scales[%d]: category is required", i)
		}
	}
	return cj, nil
}

// MembershipTypes converts the JSON tiers into domain structs.
func (f *ConfigFactory) MembershipTypes(cj ConfigJSON) []fund.MembershipType {
	out := make([]fund.MembershipType, 0, len(cj.MembershipTypes))
	for _, mt := range cj.MembershipTypes {
		name := mt.Name
		if name == "" {
			name = mt.Key
		}
		out = append(out, fund.MembershipType{
			Key:              mt.Key,
			Name:             name,
			EntryFee:         decimal.NewFromFloat(mt.EntryFee),
			TermYears:        mt.TermYears,
			AnnualLimit:      decimal.NewFromFloat(mt.AnnualLimit),
			FundSharePercent: decimal.NewFromFloat(mt.FundSharePercent),
			Notes:            mt.Notes,
		})
	}
	return out
}

// Scales converts the JSON splits into domain structs. An omitted member
// share is derived as the complement of the fund share.
func (f *ConfigFactory) Scales(cj ConfigJSON) []fund.ReimbursementScale {
	out := make([]fund.ReimbursementScale, 0, len(cj.ReimbursementScales))
	for _, sc := range cj.ReimbursementScales {
		memberShare := sc.MemberShare
		if memberShare == 0 && sc.FundShare > 0 && sc.FundShare <= 100 {
			memberShare = 100 - sc.FundShare
		}
		out = append(out, fund.ReimbursementScale{
			Category:    sc.Category,
			FundShare:   decimal.NewFromFloat(sc.FundShare),
			MemberShare: decimal.NewFromFloat(memberShare),
			Ceiling:     decimal.NewFromFloat(sc.Ceiling),
		})
	}
	return out
}

// GeneralLimits merges the JSON overrides onto the Byelaws defaults.
func (f *ConfigFactory) GeneralLimits(cj ConfigJSON) fund.GeneralLimits {
	limits := fund.DefaultGeneralLimits()
	gj := cj.GeneralLimits
	if gj == nil {
		return limits
	}
	if gj.AnnualLimit != nil {
		limits.AnnualLimit = decimal.NewFromFloat(*gj.AnnualLimit)
	}
	if gj.CriticalAddon != nil {
		limits.CriticalAddon = decimal.NewFromFloat(*gj.CriticalAddon)
	}
	if gj.FundSharePercent != nil {
		limits.FundSharePercent = decimal.NewFromFloat(*gj.FundSharePercent)
	}
	if gj.ClinicOutpatientPercent != nil {
		limits.ClinicOutpatientPercent = decimal.NewFromFloat(*gj.ClinicOutpatientPercent)
	}
	return limits
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed parses the JSON document and upserts every piece of reference data.
// Safe to run at every startup.
func Seed(ctx context.Context, store fund.TxStore, data []byte) error {
	f := NewConfigFactory()
	cj, err := f.ParseConfig(data)
	if err != nil {
		return err
	}

	return store.WithTx(ctx, func(st fund.Store) error {
		for _, mt := range f.MembershipTypes(cj) {
			mt := mt
			if err := st.SaveMembershipType(ctx, &mt); err != nil {
				return fmt.Errorf("seed membership type %s: %w", mt.Key, err)
			}
		}
		for _, sc := range f.Scales(cj) {
			sc := sc
			if err := st.SaveScale(ctx, &sc); err != nil {
				return fmt.Errorf("seed scale %s: %w", sc.Category, err)
			}
		}
		if cj.GeneralLimits != nil {
			limits := f.GeneralLimits(cj)
			raw, err := json.Marshal(limits)
			if err != nil {
				return err
			}
			if err := st.PutSetting(ctx, fund.SettingGeneralLimits, raw); err != nil {
				return fmt.Errorf("seed general limits: %w", err)
			}
		}
		return nil
	})
}

// =============================================================================
// DEFAULT CONFIG
// =============================================================================

// DefaultConfigJSON is the Byelaws baseline used when no config file is
// supplied: the standard tiers, the three category scales and the general
// limits.
func DefaultConfigJSON() []byte {
	return []byte(`{
  "membership_types": [
    {"key": "single", "name": "Single", "entry_fee": 2500, "term_years": 2,
     "annual_limit": 150000, "fund_share_percent": 80},
    {"key": "family", "name": "Family", "entry_fee": 5000, "term_years": 2,
     "annual_limit": 250000, "fund_share_percent": 80},
    {"key": "life", "name": "Life", "entry_fee": 50000, "term_years": 50,
     "annual_limit": 250000, "fund_share_percent": 80}
  ],
  "reimbursement_scales": [
    {"category": "outpatient", "fund_share": 80, "ceiling": 100000},
    {"category": "inpatient", "fund_share": 80, "ceiling": 250000},
    {"category": "chronic", "fund_share": 80, "ceiling": 150000}
  ],
  "general_limits": {
    "annual_limit": 250000, "critical_addon": 200000,
    "fund_share_percent": 80, "clinic_outpatient_percent": 100
  }
}`)
}
