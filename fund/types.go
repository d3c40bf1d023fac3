/*
Package fund provides the core claim reimbursement and adjudication engine.

PURPOSE:
  This package contains the domain types and rule algorithms for a medical
  benefit fund: how a claim's total is derived, how it is split between the
  fund and the member, which submissions are valid, and which lifecycle
  transitions are allowed. The engine is a pure function of its inputs -
  persistence, transport and notification live in other packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member / MembershipType: who may claim, and up to which annual limit
  - Claim / ClaimItem: the central entity and its itemized lines
  - ReimbursementScale: per-category fund/member split and ceiling
  - ClaimReview: an immutable committee/trustee decision record
  - Governance entities: meetings, appeals, payment records

DESIGN PRINCIPLES:
  1. Precision: all currency amounts are decimal.Decimal, never float64
  2. Closed enums: claim types, statuses and roles are parsed once at the
     boundary and compared exactly afterwards
  3. Immutability: reviews, fingerprints and audit entries are append-only
  4. Purity: rule functions take explicit inputs (scales, limits, spend)
     instead of reaching into global state

SEE ALSO:
  - total.go:       claim total derivation
  - payable.go:     fund/member split computation
  - validate.go:    submission and transition gates
  - lifecycle.go:   status state machine
  - fingerprint.go: duplicate detection
  - store.go:       persistence interfaces and audit trail
*/
package fund

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FUND CONSTANTS (Constitution & Byelaws)
// =============================================================================

// SubmissionWindowDays is the maximum age of a claim at submission time,
// counted from first visit (outpatient) or discharge (inpatient).
const SubmissionWindowDays = 90

// WaitingPeriodDays is the interval after membership approval during which
// benefits are not yet claimable.
const WaitingPeriodDays = 60

// DefaultTermYears is the membership validity term when the membership type
// does not specify one.
const DefaultTermYears = 2

// DiscretionaryCeiling is the maximum fund-payable amount the committee may
// approve on its own authority. Anything above it requires trustee
// ratification, and overrides above it require a locked emergency meeting.
var DiscretionaryCeiling = decimal.NewFromInt(150000)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID    string
	MemberID  string
	ClaimID   string
	ReviewID  string
	MeetingID string
	AppealID  string
	PaymentID string
)

// =============================================================================
// ROLES - resolved by the external identity provider, consumed here
// =============================================================================

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCommittee Role = "committee"
	RoleTrustee   Role = "trustee"
	RoleMember    Role = "member"
)

// ParseRole normalizes a role string to the closed enum.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleCommittee:
		return RoleCommittee, true
	case RoleTrustee:
		return RoleTrustee, true
	case RoleMember:
		return RoleMember, true
	}
	return "", false
}

// Actor is the identity performing an operation, as resolved by the
// identity provider. The engine never manages identity itself.
type Actor struct {
	UserID UserID
	Role   Role
}

// HasRole reports whether the actor holds one of the given roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

// MembershipType is immutable reference data: single, family, life, patron
// and so on, as defined by the Constitution & Byelaws.
type MembershipType struct {
	Key              string // unique: "single", "family", "life", ...
	Name             string
	EntryFee         decimal.Decimal
	TermYears        int // 0 means DefaultTermYears
	AnnualLimit      decimal.Decimal
	FundSharePercent decimal.Decimal
	Notes            string
}

type MemberStatus string

const (
	MemberPending   MemberStatus = "pending"
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberLapsed    MemberStatus = "lapsed"
)

// Member is a fund member. MembershipTypeKey may be empty when the type
// has been deleted; the annual limit then falls back to general settings.
type Member struct {
	ID                MemberID
	UserID            UserID
	MembershipTypeKey string
	Status            MemberStatus

	ValidFrom    *time.Time
	ValidTo      *time.Time
	BenefitsFrom *time.Time // waiting-period end; claims before this are ineligible

	FullName       string
	MailingAddress string
	PhoneMobile    string
	SHIFNumber     string
	OtherScheme    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EligibleForClaims implements the Byelaws eligibility invariant:
// active status, membership not expired, waiting period over.
func (m *Member) EligibleForClaims(today time.Time) bool {
	if m.Status != MemberActive {
		return false
	}
	day := truncateDay(today)
	if m.ValidTo != nil && day.After(truncateDay(*m.ValidTo)) {
		return false
	}
	if m.BenefitsFrom != nil && day.Before(truncateDay(*m.BenefitsFrom)) {
		return false
	}
	return true
}

// MemberDependant has no lifecycle of its own; it is deleted with the member.
type MemberDependant struct {
	ID           string
	MemberID     MemberID
	FullName     string
	DateOfBirth  *time.Time
	BloodGroup   string
	IDNumber     string
	Relationship string
	CreatedAt    time.Time
}

// =============================================================================
// REIMBURSEMENT SCALE & GENERAL SETTINGS
// =============================================================================

// ReimbursementScale is the per-category split: the fund pays FundShare
// percent of the claim up to Ceiling, the member pays the rest.
type ReimbursementScale struct {
	Category    string // "Outpatient" / "Inpatient" / "Chronic"
	FundShare   decimal.Decimal
	MemberShare decimal.Decimal
	Ceiling     decimal.Decimal
}

// GeneralLimits is the `general_limits` settings record. It backs every
// fallback in the engine when no category scale or membership type applies.
type GeneralLimits struct {
	AnnualLimit             decimal.Decimal `json:"annual_limit"`
	CriticalAddon           decimal.Decimal `json:"critical_addon"`
	FundSharePercent        decimal.Decimal `json:"fund_share_percent"`
	ClinicOutpatientPercent decimal.Decimal `json:"clinic_outpatient_percent"`
}

// DefaultGeneralLimits returns the Byelaws defaults used when the settings
// row is absent.
func DefaultGeneralLimits() GeneralLimits {
	return GeneralLimits{
		AnnualLimit:             decimal.NewFromInt(250000),
		CriticalAddon:           decimal.NewFromInt(200000),
		FundSharePercent:        decimal.NewFromInt(80),
		ClinicOutpatientPercent: decimal.NewFromInt(100),
	}
}

// =============================================================================
// CLAIMS
// =============================================================================

type ClaimType string

const (
	ClaimOutpatient ClaimType = "outpatient"
	ClaimInpatient  ClaimType = "inpatient"
	ClaimChronic    ClaimType = "chronic"
)

// ParseClaimType folds case once at the boundary so every later comparison
// is exact.
func ParseClaimType(s string) (ClaimType, bool) {
	switch ClaimType(strings.ToLower(strings.TrimSpace(s))) {
	case ClaimOutpatient:
		return ClaimOutpatient, true
	case ClaimInpatient:
		return ClaimInpatient, true
	case ClaimChronic:
		return ClaimChronic, true
	}
	return "", false
}

type ClaimStatus string

const (
	StatusDraft     ClaimStatus = "draft"
	StatusSubmitted ClaimStatus = "submitted"
	StatusReviewed  ClaimStatus = "reviewed"
	StatusApproved  ClaimStatus = "approved"
	StatusRejected  ClaimStatus = "rejected"
	StatusPaid      ClaimStatus = "paid"
)

func ParseClaimStatus(s string) (ClaimStatus, bool) {
	switch ClaimStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusDraft, StatusSubmitted, StatusReviewed, StatusApproved, StatusRejected, StatusPaid:
		return ClaimStatus(strings.ToLower(strings.TrimSpace(s))), true
	}
	return "", false
}

// OtherInsurance carries third-party payer amounts deducted before the
// fund-share calculation.
type OtherInsurance struct {
	SHIF  decimal.Decimal `json:"shif"`
	Other decimal.Decimal `json:"other"`
}

// Claim is the central entity. TotalClaimed, TotalPayable and MemberPayable
// are always computed, never user-supplied.
type Claim struct {
	ID       ClaimID
	MemberID MemberID
	Type     ClaimType

	DateOfFirstVisit *time.Time // required for outpatient
	DateOfDischarge  *time.Time // required for inpatient

	TotalClaimed  decimal.Decimal
	TotalPayable  decimal.Decimal
	MemberPayable decimal.Decimal

	Status      ClaimStatus
	SubmittedAt *time.Time // set exactly once, on first transition to submitted

	Notes   string
	Details *ClaimDetails

	Excluded        bool             // bylaw exclusion: fund pays nothing
	OverrideAmount  *decimal.Decimal // committee discretionary fund-payable
	SHIFNumber      string
	OtherInsurance  OtherInsurance
	TrusteeRatified bool // gate for approvals above DiscretionaryCeiling

	CreatedAt time.Time
}

// EventDate is the claim's reference date for the submission window and the
// fingerprint: first visit for outpatient, discharge for inpatient.
func (c *Claim) EventDate() *time.Time {
	if c.DateOfFirstVisit != nil {
		return c.DateOfFirstVisit
	}
	return c.DateOfDischarge
}

// ClaimItem is one itemized line. When any items exist their sum is the
// authoritative claim total.
type ClaimItem struct {
	ID          string
	ClaimID     ClaimID
	Category    string
	Description string
	Amount      decimal.Decimal
	Quantity    int
}

// LineTotal returns amount x quantity.
func (i ClaimItem) LineTotal() decimal.Decimal {
	return i.Amount.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ClaimFilter narrows claim listings.
type ClaimFilter struct {
	MemberID MemberID
	Status   ClaimStatus
	Type     ClaimType
	Search   string // matched against notes
}

// =============================================================================
// REVIEWS - immutable decision records
// =============================================================================

type ReviewAction string

const (
	ActionReviewed ReviewAction = "reviewed"
	ActionApproved ReviewAction = "approved"
	ActionRejected ReviewAction = "rejected"
	ActionOverride ReviewAction = "override"
	ActionPaid     ReviewAction = "paid"
)

func ParseReviewAction(s string) (ReviewAction, bool) {
	switch ReviewAction(strings.ToLower(strings.TrimSpace(s))) {
	case ActionReviewed, ActionApproved, ActionRejected, ActionOverride, ActionPaid:
		return ReviewAction(strings.ToLower(strings.TrimSpace(s))), true
	}
	return "", false
}

// ClaimReview records one committee/trustee decision. Rows are never
// updated or deleted.
type ClaimReview struct {
	ID         ReviewID
	ClaimID    ClaimID
	ReviewerID UserID
	Role       Role
	Action     ReviewAction
	Note       string
	ByelawRef  string
	CreatedAt  time.Time
}

// ClaimFingerprint is the duplicate-detection hash, one per claim,
// unique-indexed on Hash.
type ClaimFingerprint struct {
	ClaimID   ClaimID
	MemberID  MemberID
	Hash      string
	CreatedAt time.Time
}

// ClaimAttachment records metadata only; file contents are an opaque blob
// held by the external attachment store.
type ClaimAttachment struct {
	ID          string
	ClaimID     ClaimID
	UploadedBy  UserID
	FileName    string
	ContentType string
	SizeBytes   int64
	UploadedAt  time.Time
}

// =============================================================================
// GOVERNANCE - meetings, appeals, payments
// =============================================================================

type MeetingType string

const (
	MeetingOrdinary  MeetingType = "ordinary"
	MeetingEmergency MeetingType = "emergency"
)

type MeetingStatus string

const (
	MeetingOpen   MeetingStatus = "open"
	MeetingLocked MeetingStatus = "locked"
)

// CommitteeMeeting authorizes governance decisions. Only a LOCKED EMERGENCY
// meeting can ratify overrides above the discretionary ceiling.
type CommitteeMeeting struct {
	ID        MeetingID
	Type      MeetingType
	Status    MeetingStatus
	Title     string
	HeldOn    time.Time
	CreatedAt time.Time
}

// MeetingAttendance records who sat in a meeting.
type MeetingAttendance struct {
	ID        string
	MeetingID MeetingID
	UserID    UserID
	Present   bool
}

// ClaimMeetingLink records a per-meeting decision for a claim.
type ClaimMeetingLink struct {
	ID        string
	ClaimID   ClaimID
	MeetingID MeetingID
	Decision  string
	CreatedAt time.Time
}

type AppealStatus string

const (
	AppealPending   AppealStatus = "pending"
	AppealUpheld    AppealStatus = "upheld"
	AppealDismissed AppealStatus = "dismissed"
)

// ClaimAppeal freezes the claim while pending: the claim may not leave
// {draft, submitted, rejected} until the appeal is resolved.
type ClaimAppeal struct {
	ID         AppealID
	ClaimID    ClaimID
	FiledBy    UserID
	Reason     string
	Status     AppealStatus
	ResolvedBy UserID
	Resolution string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentReconciled PaymentStatus = "reconciled"
)

// PaymentRecord is the payout bookkeeping row. Reconciliation is guarded by
// segregation-of-duties rules (see claims.ReconcilePayment).
type PaymentRecord struct {
	ID             PaymentID
	ClaimID        ClaimID
	Amount         decimal.Decimal
	TransactionRef string
	Provider       string
	Status         PaymentStatus
	RecordedBy     UserID
	ReconciledBy   UserID
	ReconciledAt   *time.Time
	CreatedAt      time.Time
}

// =============================================================================
// TIME HELPERS
// =============================================================================

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole days from a to b, ignoring time of day.
func DaysBetween(a, b time.Time) int {
	return int(truncateDay(b).Sub(truncateDay(a)).Hours() / 24)
}
