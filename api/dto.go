/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Money fields
  cross the boundary as decimal strings ("12500.00"), never floats: the
  engine is exact and the API keeps it that way.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in the services, not in DTOs. DTOs are pure data
  carriers; parse errors surface as 400s in the handlers.

SEE ALSO:
  - handlers.go: Uses these types
  - fund/types.go: the domain model these project
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// CLAIM TYPES
// =============================================================================

// ClaimDTO represents a claim in API responses.
type ClaimDTO struct {
	ID               string             `json:"id"`
	MemberID         string             `json:"member_id"`
	Type             string             `json:"type"`
	Status           string             `json:"status"`
	TotalClaimed     string             `json:"total_claimed"`
	TotalPayable     string             `json:"total_payable"`
	MemberPayable    string             `json:"member_payable"`
	Excluded         bool               `json:"excluded"`
	OverrideAmount   *string            `json:"override_amount,omitempty"`
	TrusteeRatified  bool               `json:"trustee_ratified,omitempty"`
	DateOfFirstVisit *string            `json:"date_of_first_visit,omitempty"`
	DateOfDischarge  *string            `json:"date_of_discharge,omitempty"`
	SubmittedAt      *string            `json:"submitted_at,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	Details          *fund.ClaimDetails `json:"details,omitempty"`
	CreatedAt        string             `json:"created_at"`
}

// CreateClaimRequest is the claim intake body.
type CreateClaimRequest struct {
	MemberID         string             `json:"member_id"`
	Type             string             `json:"type"`
	DateOfFirstVisit string             `json:"date_of_first_visit,omitempty"` // YYYY-MM-DD
	DateOfDischarge  string             `json:"date_of_discharge,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	Details          *fund.ClaimDetails `json:"details,omitempty"`
	SHIFNumber       string             `json:"shif_number,omitempty"`
	SHIFAmount       string             `json:"shif_amount,omitempty"`
	OtherInsurance   string             `json:"other_insurance,omitempty"`
	Submit           bool               `json:"submit,omitempty"`
}

// SetStatusRequest drives a direct status change.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// ItemRequest is one itemized claim line.
type ItemRequest struct {
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Quantity    int    `json:"quantity,omitempty"`
}

// ItemDTO represents an itemized line in responses.
type ItemDTO struct {
	ID          string `json:"id"`
	ClaimID     string `json:"claim_id"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"line_total"`
}

// ReviewRequest records a committee decision.
type ReviewRequest struct {
	Action         string `json:"action"`
	Note           string `json:"note,omitempty"`
	ByelawRef      string `json:"byelaw_ref,omitempty"`
	OverrideAmount string `json:"override_amount,omitempty"`
	MeetingID      string `json:"meeting_id,omitempty"`
}

// ReviewDTO represents a decision record.
type ReviewDTO struct {
	ID         string `json:"id"`
	ClaimID    string `json:"claim_id"`
	ReviewerID string `json:"reviewer_id"`
	Role       string `json:"role"`
	Action     string `json:"action"`
	Note       string `json:"note,omitempty"`
	ByelawRef  string `json:"byelaw_ref,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// ExclusionRequest toggles the bylaw-exclusion flag.
type ExclusionRequest struct {
	Excluded bool `json:"excluded"`
}

// =============================================================================
// MEMBER TYPES
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID                string  `json:"id"`
	UserID            string  `json:"user_id"`
	MembershipTypeKey string  `json:"membership_type_key,omitempty"`
	Status            string  `json:"status"`
	ValidFrom         *string `json:"valid_from,omitempty"`
	ValidTo           *string `json:"valid_to,omitempty"`
	BenefitsFrom      *string `json:"benefits_from,omitempty"`
	FullName          string  `json:"full_name"`
	MailingAddress    string  `json:"mailing_address,omitempty"`
	PhoneMobile       string  `json:"phone_mobile,omitempty"`
	SHIFNumber        string  `json:"shif_number,omitempty"`
	OtherScheme       string  `json:"other_scheme,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

// RegisterMemberRequest is a membership application.
type RegisterMemberRequest struct {
	UserID            string `json:"user_id"`
	FullName          string `json:"full_name"`
	MailingAddress    string `json:"mailing_address,omitempty"`
	PhoneMobile       string `json:"phone_mobile,omitempty"`
	SHIFNumber        string `json:"shif_number,omitempty"`
	OtherScheme       string `json:"other_scheme,omitempty"`
	MembershipTypeKey string `json:"membership_type_key,omitempty"`
}

// RejectMemberRequest carries the rejection reason.
type RejectMemberRequest struct {
	Reason string `json:"reason,omitempty"`
}

// DependantRequest registers a dependant.
type DependantRequest struct {
	FullName     string `json:"full_name"`
	Relationship string `json:"relationship,omitempty"`
	DateOfBirth  string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
}

// DependantDTO represents a dependant in responses.
type DependantDTO struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id"`
	FullName     string  `json:"full_name"`
	Relationship string  `json:"relationship,omitempty"`
	DateOfBirth  *string `json:"date_of_birth,omitempty"`
}

// MembershipTypeDTO represents a membership tier.
type MembershipTypeDTO struct {
	Key              string `json:"key"`
	Name             string `json:"name"`
	EntryFee         string `json:"entry_fee"`
	TermYears        int    `json:"term_years"`
	AnnualLimit      string `json:"annual_limit"`
	FundSharePercent string `json:"fund_share_percent"`
}

// ScaleDTO represents one reimbursement scale row.
type ScaleDTO struct {
	Category    string `json:"category"`
	FundShare   string `json:"fund_share"`
	MemberShare string `json:"member_share"`
	Ceiling     string `json:"ceiling"`
}

// ScaleRequest upserts a reimbursement scale. Shares are percentages.
type ScaleRequest struct {
	Category    string `json:"category"`
	FundShare   string `json:"fund_share"`
	MemberShare string `json:"member_share,omitempty"`
	Ceiling     string `json:"ceiling"`
}

func (r ScaleRequest) toScale() (*fund.ReimbursementScale, error) {
	scale := &fund.ReimbursementScale{Category: r.Category}
	var err error
	if scale.FundShare, err = decimal.NewFromString(r.FundShare); err != nil {
		return nil, err
	}
	if r.MemberShare == "" {
		scale.MemberShare = decimal.NewFromInt(100).Sub(scale.FundShare)
	} else if scale.MemberShare, err = decimal.NewFromString(r.MemberShare); err != nil {
		return nil, err
	}
	if scale.Ceiling, err = decimal.NewFromString(r.Ceiling); err != nil {
		return nil, err
	}
	return scale, nil
}

// =============================================================================
// GOVERNANCE TYPES
// =============================================================================

// MeetingRequest opens a committee meeting.
type MeetingRequest struct {
	Type   string `json:"type"` // ordinary | emergency
	Title  string `json:"title,omitempty"`
	HeldOn string `json:"held_on,omitempty"` // YYYY-MM-DD, default today
}

// MeetingDTO represents a meeting.
type MeetingDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Title     string `json:"title,omitempty"`
	HeldOn    string `json:"held_on"`
	CreatedAt string `json:"created_at"`
}

// LinkClaimRequest tables a claim at a meeting.
type LinkClaimRequest struct {
	ClaimID  string `json:"claim_id"`
	Decision string `json:"decision,omitempty"`
}

// AppealRequest files an appeal.
type AppealRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResolveAppealRequest closes an appeal.
type ResolveAppealRequest struct {
	Upheld     bool   `json:"upheld"`
	Resolution string `json:"resolution,omitempty"`
}

// AppealDTO represents an appeal.
type AppealDTO struct {
	ID         string  `json:"id"`
	ClaimID    string  `json:"claim_id"`
	FiledBy    string  `json:"filed_by"`
	Reason     string  `json:"reason,omitempty"`
	Status     string  `json:"status"`
	ResolvedBy string  `json:"resolved_by,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	CreatedAt  string  `json:"created_at"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
}

// PaymentDTO represents a payout record.
type PaymentDTO struct {
	ID             string  `json:"id"`
	ClaimID        string  `json:"claim_id"`
	Amount         string  `json:"amount"`
	TransactionRef string  `json:"transaction_ref,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	Status         string  `json:"status"`
	RecordedBy     string  `json:"recorded_by,omitempty"`
	ReconciledBy   string  `json:"reconciled_by,omitempty"`
	ReconciledAt   *string `json:"reconciled_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// AuditEntryDTO represents one audit-trail row.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	Meta      map[string]any `json:"meta,omitempty"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// AttachmentRequest registers supporting-document metadata for a claim.
type AttachmentRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// AttachmentDTO represents a recorded attachment.
type AttachmentDTO struct {
	ID          string `json:"id"`
	ClaimID     string `json:"claim_id"`
	UploadedBy  string `json:"uploaded_by"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	UploadedAt  string `json:"uploaded_at"`
}

// AttendanceRequest records presence at a meeting.
type AttendanceRequest struct {
	UserID  string `json:"user_id"`
	Present bool   `json:"present"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toClaimDTO(c *fund.Claim) ClaimDTO {
	dto := ClaimDTO{
		ID:              string(c.ID),
		MemberID:        string(c.MemberID),
		Type:            string(c.Type),
		Status:          string(c.Status),
		TotalClaimed:    c.TotalClaimed.StringFixed(2),
		TotalPayable:    c.TotalPayable.StringFixed(2),
		MemberPayable:   c.MemberPayable.StringFixed(2),
		Excluded:        c.Excluded,
		TrusteeRatified: c.TrusteeRatified,
		Notes:           c.Notes,
		Details:         c.Details,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
	if c.OverrideAmount != nil {
		v := c.OverrideAmount.StringFixed(2)
		dto.OverrideAmount = &v
	}
	dto.DateOfFirstVisit = formatDatePtr(c.DateOfFirstVisit)
	dto.DateOfDischarge = formatDatePtr(c.DateOfDischarge)
	if c.SubmittedAt != nil {
		v := c.SubmittedAt.Format(time.RFC3339)
		dto.SubmittedAt = &v
	}
	return dto
}

func toItemDTO(it *fund.ClaimItem) ItemDTO {
	return ItemDTO{
		ID:          it.ID,
		ClaimID:     string(it.ClaimID),
		Category:    it.Category,
		Description: it.Description,
		Amount:      it.Amount.StringFixed(2),
		Quantity:    it.Quantity,
		LineTotal:   it.LineTotal().StringFixed(2),
	}
}

func toReviewDTO(r *fund.ClaimReview) ReviewDTO {
	return ReviewDTO{
		ID:         string(r.ID),
		ClaimID:    string(r.ClaimID),
		ReviewerID: string(r.ReviewerID),
		Role:       string(r.Role),
		Action:     string(r.Action),
		Note:       r.Note,
		ByelawRef:  r.ByelawRef,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}

func toMemberDTO(m *fund.Member) MemberDTO {
	return MemberDTO{
		ID:                string(m.ID),
		UserID:            string(m.UserID),
		MembershipTypeKey: m.MembershipTypeKey,
		Status:            string(m.Status),
		ValidFrom:         formatDatePtr(m.ValidFrom),
		ValidTo:           formatDatePtr(m.ValidTo),
		BenefitsFrom:      formatDatePtr(m.BenefitsFrom),
		FullName:          m.FullName,
		MailingAddress:    m.MailingAddress,
		PhoneMobile:       m.PhoneMobile,
		SHIFNumber:        m.SHIFNumber,
		OtherScheme:       m.OtherScheme,
		CreatedAt:         m.CreatedAt.Format(time.RFC3339),
	}
}

func toDependantDTO(d *fund.MemberDependant) DependantDTO {
	return DependantDTO{
		ID:           d.ID,
		MemberID:     string(d.MemberID),
		FullName:     d.FullName,
		Relationship: d.Relationship,
		DateOfBirth:  formatDatePtr(d.DateOfBirth),
	}
}

func toMembershipTypeDTO(t *fund.MembershipType) MembershipTypeDTO {
	return MembershipTypeDTO{
		Key:              t.Key,
		Name:             t.Name,
		EntryFee:         t.EntryFee.StringFixed(2),
		TermYears:        t.TermYears,
		AnnualLimit:      t.AnnualLimit.StringFixed(2),
		FundSharePercent: t.FundSharePercent.StringFixed(0),
	}
}

func toScaleDTO(s *fund.ReimbursementScale) ScaleDTO {
	return ScaleDTO{
		Category:    s.Category,
		FundShare:   s.FundShare.StringFixed(0),
		MemberShare: s.MemberShare.StringFixed(0),
		Ceiling:     s.Ceiling.StringFixed(2),
	}
}

func toMeetingDTO(m *fund.CommitteeMeeting) MeetingDTO {
	return MeetingDTO{
		ID:        string(m.ID),
		Type:      string(m.Type),
		Status:    string(m.Status),
		Title:     m.Title,
		HeldOn:    m.HeldOn.Format("2006-01-02"),
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

func toAppealDTO(a *fund.ClaimAppeal) AppealDTO {
	dto := AppealDTO{
		ID:         string(a.ID),
		ClaimID:    string(a.ClaimID),
		FiledBy:    string(a.FiledBy),
		Reason:     a.Reason,
		Status:     string(a.Status),
		ResolvedBy: string(a.ResolvedBy),
		Resolution: a.Resolution,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
	if a.ResolvedAt != nil {
		v := a.ResolvedAt.Format(time.RFC3339)
		dto.ResolvedAt = &v
	}
	return dto
}

func toPaymentDTO(p *fund.PaymentRecord) PaymentDTO {
	dto := PaymentDTO{
		ID:             string(p.ID),
		ClaimID:        string(p.ClaimID),
		Amount:         p.Amount.StringFixed(2),
		TransactionRef: p.TransactionRef,
		Provider:       p.Provider,
		Status:         string(p.Status),
		RecordedBy:     string(p.RecordedBy),
		ReconciledBy:   string(p.ReconciledBy),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
	if p.ReconciledAt != nil {
		v := p.ReconciledAt.Format(time.RFC3339)
		dto.ReconciledAt = &v
	}
	return dto
}

func toAttachmentDTO(a *fund.ClaimAttachment) AttachmentDTO {
	return AttachmentDTO{
		ID:          a.ID,
		ClaimID:     string(a.ClaimID),
		UploadedBy:  string(a.UploadedBy),
		FileName:    a.FileName,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		UploadedAt:  a.UploadedAt.Format(time.RFC3339),
	}
}

func toAuditDTO(e *fund.AuditEntry) AuditEntryDTO {
	dto := AuditEntryDTO{
		ID:        e.ID,
		Action:    string(e.Action),
		Meta:      e.Meta,
		Before:    e.Before,
		After:     e.After,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.ActorID != nil {
		dto.ActorID = string(*e.ActorID)
	}
	return dto
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format("2006-01-02")
	return &v
}
