/*
store.go - Persistence interfaces and the audit trail

PURPOSE:
  Defines the contract between the rule engine and the database. The fund
  requires an ordinary ACID relational store: atomic multi-row writes,
  SUM aggregates scoped by member and year, and a unique index on the
  fingerprint hash.

KEY INTERFACES:
  ClaimStore / MemberStore / ReferenceStore / ReviewStore /
  FingerprintStore / GovernanceStore / AuditStore - one interface per
  entity family, composed into Store.

  TxStore: wraps Store with WithTx. Every claim mutation (item change,
  status change, review) runs inside one transaction: mutation, total
  recalculation, payable recomputation and audit append are all-or-nothing.

AUDIT CONTRACT:
  Reviews, fingerprints and audit entries are append-only. AuditStore has
  no update or delete; the audit log is the sole mechanism for
  reconstructing history, since claim rows only reflect current state.
  Failed attempts are not audited - only successful state changes.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (PostgreSQL differs only in dialect)
  - fund/store:   in-memory, for tests
*/
package fund

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLAIM STORE
// =============================================================================

type ClaimStore interface {
	// SaveClaim inserts or updates a claim row.
	SaveClaim(ctx context.Context, c *Claim) error
	GetClaim(ctx context.Context, id ClaimID) (*Claim, error)
	ListClaims(ctx context.Context, f ClaimFilter) ([]Claim, error)

	// YearFundShare sums total_payable across the member's claims created
	// in the given calendar year, excluding one claim (the one being
	// recomputed). This is the conservative annual-limit aggregate: it
	// counts every status, not just approved/paid.
	YearFundShare(ctx context.Context, memberID MemberID, year int, exclude ClaimID) (decimal.Decimal, error)

	SaveItem(ctx context.Context, it *ClaimItem) error
	GetItem(ctx context.Context, id string) (*ClaimItem, error)
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context, claimID ClaimID) ([]ClaimItem, error)

	SaveAttachment(ctx context.Context, a *ClaimAttachment) error
	ListAttachments(ctx context.Context, claimID ClaimID) ([]ClaimAttachment, error)
}

// =============================================================================
// MEMBER STORE
// =============================================================================

type MemberStore interface {
	SaveMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)
	GetMemberByUser(ctx context.Context, userID UserID) (*Member, error)
	// ListMembers returns members, optionally filtered by status ("" = all).
	ListMembers(ctx context.Context, status MemberStatus) ([]Member, error)

	SaveDependant(ctx context.Context, d *MemberDependant) error
	ListDependants(ctx context.Context, memberID MemberID) ([]MemberDependant, error)

	SaveMembershipType(ctx context.Context, t *MembershipType) error
	GetMembershipType(ctx context.Context, key string) (*MembershipType, error)
	ListMembershipTypes(ctx context.Context) ([]MembershipType, error)
}

// =============================================================================
// REFERENCE STORE - scales and key/value settings
// =============================================================================

type ReferenceStore interface {
	SaveScale(ctx context.Context, s *ReimbursementScale) error
	ListScales(ctx context.Context) ([]ReimbursementScale, error)

	// GetSetting returns the raw value for a key, or nil when absent.
	GetSetting(ctx context.Context, key string) (json.RawMessage, error)
	PutSetting(ctx context.Context, key string, value json.RawMessage) error
}

// SettingGeneralLimits is the settings key holding GeneralLimits.
const SettingGeneralLimits = "general_limits"

// LoadGeneralLimits reads general_limits from settings, returning the
// Byelaws defaults when the row is missing or unreadable.
func LoadGeneralLimits(ctx context.Context, store ReferenceStore) GeneralLimits {
	limits := DefaultGeneralLimits()
	raw, err := store.GetSetting(ctx, SettingGeneralLimits)
	if err != nil || raw == nil {
		return limits
	}
	if err := json.Unmarshal(raw, &limits); err != nil {
		return DefaultGeneralLimits()
	}
	return limits
}

// =============================================================================
// REVIEW & FINGERPRINT STORES (append-only)
// =============================================================================

type ReviewStore interface {
	// AppendReview persists a review. Reviews are never updated or deleted.
	AppendReview(ctx context.Context, r *ClaimReview) error
	ListReviews(ctx context.Context, claimID ClaimID) ([]ClaimReview, error)
	// LatestReview returns the most recent review with the given action,
	// or nil when none exists. Used by the payment reconciliation guard.
	LatestReview(ctx context.Context, claimID ClaimID, action ReviewAction) (*ClaimReview, error)
}

type FingerprintStore interface {
	// FindFingerprint returns the fingerprint row matching the hash, or nil.
	FindFingerprint(ctx context.Context, hash string) (*ClaimFingerprint, error)
	// SaveFingerprint registers a claim's fingerprint. Idempotent: saving
	// the same claim's fingerprint twice is not an error.
	SaveFingerprint(ctx context.Context, fp *ClaimFingerprint) error
}

// =============================================================================
// GOVERNANCE STORE - meetings, appeals, payments
// =============================================================================

type GovernanceStore interface {
	SaveMeeting(ctx context.Context, m *CommitteeMeeting) error
	GetMeeting(ctx context.Context, id MeetingID) (*CommitteeMeeting, error)
	SaveAttendance(ctx context.Context, a *MeetingAttendance) error
	SaveMeetingLink(ctx context.Context, l *ClaimMeetingLink) error
	ListMeetingLinks(ctx context.Context, claimID ClaimID) ([]ClaimMeetingLink, error)

	SaveAppeal(ctx context.Context, a *ClaimAppeal) error
	GetAppeal(ctx context.Context, id AppealID) (*ClaimAppeal, error)
	ListAppeals(ctx context.Context, claimID ClaimID) ([]ClaimAppeal, error)
	HasPendingAppeal(ctx context.Context, claimID ClaimID) (bool, error)

	SavePayment(ctx context.Context, p *PaymentRecord) error
	GetPayment(ctx context.Context, id PaymentID) (*PaymentRecord, error)
	ListPayments(ctx context.Context, claimID ClaimID) ([]PaymentRecord, error)
}

// =============================================================================
// AUDIT TRAIL - append-only, never mutated
// =============================================================================

type AuditAction string

const (
	AuditClaimCreated     AuditAction = "claims:create"
	AuditClaimSubmitted   AuditAction = "claims:submit"
	AuditClaimStatusSet   AuditAction = "claims:status"
	AuditClaimRecomputed  AuditAction = "claims:recompute"
	AuditItemSaved        AuditAction = "claim_items:save"
	AuditItemDeleted      AuditAction = "claim_items:delete"
	AuditReviewRecorded   AuditAction = "claim_reviews:create"
	AuditAttachmentAdded  AuditAction = "claim_attachments:create"
	AuditAppealFiled      AuditAction = "claim_appeals:create"
	AuditAppealResolved   AuditAction = "claim_appeals:resolve"
	AuditMeetingCreated   AuditAction = "meetings:create"
	AuditMeetingLocked    AuditAction = "meetings:lock"
	AuditMeetingLinked    AuditAction = "meetings:link_claim"
	AuditPaymentRecorded  AuditAction = "payments:create"
	AuditPaymentReconcile AuditAction = "payments:reconcile"
	AuditMemberRegistered AuditAction = "members:register"
	AuditMemberApproved   AuditAction = "members:approve"
	AuditMemberRejected   AuditAction = "members:reject"
)

// AuditEntry is one append-only event record. ActorID is nil for
// system-triggered events.
type AuditEntry struct {
	ID        string
	ActorID   *UserID
	Action    AuditAction
	Meta      map[string]any // always includes the affected entity id
	Before    map[string]any // optional state snapshot
	After     map[string]any
	MeetingID MeetingID // optional governance reference
	CreatedAt time.Time
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	ActorID *UserID
	Action  AuditAction
	ClaimID ClaimID
	From    *time.Time
	To      *time.Time
	Limit   int
}

type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// Store is the full persistence surface the services depend on.
type Store interface {
	ClaimStore
	MemberStore
	ReferenceStore
	ReviewStore
	FingerprintStore
	GovernanceStore
	AuditStore
}

// TxStore adds transactional composition. If fn returns an error the
// transaction is rolled back; otherwise it is committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ClaimSnapshot captures the audit-relevant fields of a claim for
// before/after snapshots.
func ClaimSnapshot(c *Claim) map[string]any {
	if c == nil {
		return nil
	}
	snap := map[string]any{
		"status":         string(c.Status),
		"total_claimed":  c.TotalClaimed.StringFixed(2),
		"total_payable":  c.TotalPayable.StringFixed(2),
		"member_payable": c.MemberPayable.StringFixed(2),
		"excluded":       c.Excluded,
	}
	if c.OverrideAmount != nil {
		snap["override_amount"] = c.OverrideAmount.StringFixed(2)
	}
	return snap
}
