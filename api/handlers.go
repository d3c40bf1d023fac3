/*
handlers.go - HTTP API handlers for the claim adjudication system

PURPOSE:
  Exposes the fund engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the claims and membership services.

ENDPOINTS:
  Claims:
    GET    /api/claims                    List claims (filterable)
    POST   /api/claims                    Create (optionally submit) a claim
    GET    /api/claims/{id}               Get claim with items and reviews
    POST   /api/claims/{id}/submit        Submit a draft
    POST   /api/claims/{id}/status        Direct committee status change
    POST   /api/claims/{id}/reviews       Record a decision
    GET    /api/claims/{id}/reviews       List decisions
    POST   /api/claims/{id}/items         Add an itemized line
    PUT    /api/claims/{id}/items/{item}  Update a line
    DELETE /api/items/{item}              Remove a line
    POST   /api/claims/{id}/exclusion     Toggle the bylaw exclusion
    POST   /api/claims/{id}/recompute     Force recomputation
    POST   /api/claims/{id}/appeals       File an appeal

  Members:
    GET    /api/members                   List members
    POST   /api/members                   Register an application
    GET    /api/members/{id}              Get member
    POST   /api/members/{id}/approve      Activate membership
    POST   /api/members/{id}/reject       Decline an application
    POST   /api/members/{id}/dependants   Add a dependant

  Governance:
    POST   /api/meetings                  Open a meeting
    POST   /api/meetings/{id}/lock        Lock the minutes
    POST   /api/meetings/{id}/claims      Table a claim
    POST   /api/appeals/{id}/resolve      Resolve an appeal
    POST   /api/payments/{id}/reconcile   Reconcile a payout
    GET    /api/audit                     Query the audit trail

  Reference data:
    GET    /api/scales                    List reimbursement scales
    PUT    /api/scales                    Upsert a scale (admin)
    GET    /api/settings/{key}            Read a settings value
    PUT    /api/settings/{key}            Write a settings value (admin)

AUTHENTICATION:
  The acting user arrives in X-Actor-ID and X-Actor-Role headers, set by
  the gateway in front of this service. There is no session handling here.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Role/ownership violations
  - 404: Resource not found
  - 409: Duplicate claim fingerprint
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/fund-engine/claims"
	"github.com/warp/fund-engine/fund"
	"github.com/warp/fund-engine/membership"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Claims  *claims.Service
	Members *membership.Service
	Store   fund.TxStore
}

// NewHandler creates a handler over the two services and the store.
func NewHandler(claimSvc *claims.Service, memberSvc *membership.Service, store fund.TxStore) *Handler {
	return &Handler{Claims: claimSvc, Members: memberSvc, Store: store}
}

// actor extracts the acting user from the gateway headers. An unknown role
// string degrades to the member role rather than erroring; role checks in
// the services still apply.
func actor(r *http.Request) fund.Actor {
	role, ok := fund.ParseRole(r.Header.Get("X-Actor-Role"))
	if !ok {
		role = fund.RoleMember
	}
	return fund.Actor{
		UserID: fund.UserID(r.Header.Get("X-Actor-ID")),
		Role:   role,
	}
}

// =============================================================================
// CLAIM HANDLERS
// =============================================================================

// ListClaims returns claims matching the query filters.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := fund.ClaimFilter{
		MemberID: fund.MemberID(q.Get("member_id")),
		Search:   q.Get("search"),
	}
	if s := q.Get("status"); s != "" {
		status, ok := fund.ParseClaimStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown status filter", nil)
			return
		}
		filter.Status = status
	}
	if t := q.Get("type"); t != "" {
		ct, ok := fund.ParseClaimType(t)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown type filter", nil)
			return
		}
		filter.Type = ct
	}

	list, err := h.Claims.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list claims", err)
		return
	}
	dtos := make([]ClaimDTO, len(list))
	for i := range list {
		dtos[i] = toClaimDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClaim records a new claim, submitting it directly when asked.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := claims.CreateInput{
		MemberID:   fund.MemberID(req.MemberID),
		Type:       req.Type,
		Notes:      req.Notes,
		Details:    req.Details,
		SHIFNumber: req.SHIFNumber,
		Submit:     req.Submit,
	}
	var err error
	if in.DateOfFirstVisit, err = parseDate(req.DateOfFirstVisit); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_of_first_visit (use YYYY-MM-DD)", err)
		return
	}
	if in.DateOfDischarge, err = parseDate(req.DateOfDischarge); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_of_discharge (use YYYY-MM-DD)", err)
		return
	}
	if in.OtherInsurance, err = parseOtherInsurance(req.SHIFAmount, req.OtherInsurance); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid insurance amount", err)
		return
	}

	claim, err := h.Claims.Create(r.Context(), actor(r), in)
	if err != nil {
		writeDomainError(w, "Failed to create claim", err)
		return
	}
	if req.Submit {
		claimsSubmitted.Inc()
	}
	writeJSON(w, http.StatusCreated, toClaimDTO(claim))
}

// GetClaim returns one claim with its items, reviews and payments.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := fund.ClaimID(chi.URLParam(r, "id"))
	claim, err := h.Claims.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get claim", err)
		return
	}

	items, err := h.Claims.Items(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load claim items", err)
		return
	}
	reviews, err := h.Claims.Reviews(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load claim reviews", err)
		return
	}
	payments, err := h.Claims.Payments(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load claim payments", err)
		return
	}

	itemDTOs := make([]ItemDTO, len(items))
	for i := range items {
		itemDTOs[i] = toItemDTO(&items[i])
	}
	reviewDTOs := make([]ReviewDTO, len(reviews))
	for i := range reviews {
		reviewDTOs[i] = toReviewDTO(&reviews[i])
	}
	paymentDTOs := make([]PaymentDTO, len(payments))
	for i := range payments {
		paymentDTOs[i] = toPaymentDTO(&payments[i])
	}

	writeJSON(w, http.StatusOK, struct {
		ClaimDTO
		Items    []ItemDTO    `json:"items"`
		Reviews  []ReviewDTO  `json:"reviews"`
		Payments []PaymentDTO `json:"payments"`
	}{toClaimDTO(claim), itemDTOs, reviewDTOs, paymentDTOs})
}

// SubmitClaim moves a draft into submitted.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.Claims.Submit(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to submit claim", err)
		return
	}
	claimsSubmitted.Inc()
	writeJSON(w, http.StatusOK, toClaimDTO(claim))
}

// SetClaimStatus performs a direct committee status change.
func (h *Handler) SetClaimStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	claim, err := h.Claims.SetStatus(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")), req.Status)
	if err != nil {
		writeDomainError(w, "Failed to change claim status", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(claim))
}

// RecordReview appends a committee decision.
func (h *Handler) RecordReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	review, err := h.Claims.RecordReview(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")), claims.ReviewInput{
		Action:         req.Action,
		Note:           req.Note,
		ByelawRef:      req.ByelawRef,
		OverrideAmount: req.OverrideAmount,
		MeetingID:      fund.MeetingID(req.MeetingID),
	})
	if err != nil {
		writeDomainError(w, "Failed to record review", err)
		return
	}
	claimsDecided.WithLabelValues(string(review.Action)).Inc()
	writeJSON(w, http.StatusCreated, toReviewDTO(review))
}

// ListReviews returns the decision history of a claim, oldest first.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Claims.Reviews(r.Context(), fund.ClaimID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to list reviews", err)
		return
	}
	dtos := make([]ReviewDTO, len(reviews))
	for i := range reviews {
		dtos[i] = toReviewDTO(&reviews[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddItem adds an itemized line to a claim.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.saveItem(w, r, "")
}

// UpdateItem replaces an itemized line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	h.saveItem(w, r, chi.URLParam(r, "item"))
}

func (h *Handler) saveItem(w http.ResponseWriter, r *http.Request, itemID string) {
	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	item, err := h.Claims.SaveItem(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")), itemID, claims.ItemInput{
		Category:    req.Category,
		Description: req.Description,
		Amount:      req.Amount,
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeDomainError(w, "Failed to save claim item", err)
		return
	}
	status := http.StatusCreated
	if itemID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, toItemDTO(item))
}

// RemoveItem deletes an itemized line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Claims.RemoveItem(r.Context(), actor(r), chi.URLParam(r, "item")); err != nil {
		writeDomainError(w, "Failed to remove claim item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetExclusion toggles the bylaw-exclusion flag.
func (h *Handler) SetExclusion(w http.ResponseWriter, r *http.Request) {
	var req ExclusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	claim, err := h.Claims.SetExclusion(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")), req.Excluded)
	if err != nil {
		writeDomainError(w, "Failed to set exclusion", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(claim))
}

// RecomputeClaim forces a fresh derivation of totals and payable.
func (h *Handler) RecomputeClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.Claims.Recompute(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to recompute claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(claim))
}

// RecordAttachment registers supporting-document metadata for a claim.
// Binary storage lives elsewhere; only the reference is kept here.
func (h *Handler) RecordAttachment(w http.ResponseWriter, r *http.Request) {
	var req AttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	att, err := h.Claims.RecordAttachment(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")), req.FileName, req.ContentType, req.SizeBytes)
	if err != nil {
		writeDomainError(w, "Failed to record attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttachmentDTO(att))
}

// =============================================================================
// APPEALS & PAYMENTS
// =============================================================================

// FileAppeal opens an appeal against a claim decision.
func (h *Handler) FileAppeal(w http.ResponseWriter, r *http.Request) {
	var req AppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	appeal, err := h.Claims.FileAppeal(r.Context(), actor(r), fund.ClaimID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to file appeal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppealDTO(appeal))
}

// ListAppeals returns the appeals filed against a claim.
func (h *Handler) ListAppeals(w http.ResponseWriter, r *http.Request) {
	appeals, err := h.Claims.Appeals(r.Context(), fund.ClaimID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to list appeals", err)
		return
	}
	dtos := make([]AppealDTO, len(appeals))
	for i := range appeals {
		dtos[i] = toAppealDTO(&appeals[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResolveAppeal closes a pending appeal.
func (h *Handler) ResolveAppeal(w http.ResponseWriter, r *http.Request) {
	var req ResolveAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	appeal, err := h.Claims.ResolveAppeal(r.Context(), actor(r), fund.AppealID(chi.URLParam(r, "id")), req.Upheld, req.Resolution)
	if err != nil {
		writeDomainError(w, "Failed to resolve appeal", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppealDTO(appeal))
}

// ReconcilePayment marks a payout reconciled.
func (h *Handler) ReconcilePayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Claims.ReconcilePayment(r.Context(), actor(r), fund.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to reconcile payment", err)
		return
	}
	paymentsReconciled.Inc()
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns members, optionally filtered by status.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Members.List(r.Context(), fund.MemberStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeDomainError(w, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(list))
	for i := range list {
		dtos[i] = toMemberDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterMember files a membership application.
func (h *Handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var req RegisterMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	member, err := h.Members.Register(r.Context(), actor(r), membership.RegisterInput{
		UserID:            fund.UserID(req.UserID),
		FullName:          req.FullName,
		MailingAddress:    req.MailingAddress,
		PhoneMobile:       req.PhoneMobile,
		SHIFNumber:        req.SHIFNumber,
		OtherScheme:       req.OtherScheme,
		MembershipTypeKey: req.MembershipTypeKey,
	})
	if err != nil {
		writeDomainError(w, "Failed to register member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// GetMember returns one member with dependants.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := fund.MemberID(chi.URLParam(r, "id"))
	member, err := h.Members.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}
	dependants, err := h.Members.Dependants(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load dependants", err)
		return
	}
	depDTOs := make([]DependantDTO, len(dependants))
	for i := range dependants {
		depDTOs[i] = toDependantDTO(&dependants[i])
	}
	writeJSON(w, http.StatusOK, struct {
		MemberDTO
		Dependants []DependantDTO `json:"dependants"`
	}{toMemberDTO(member), depDTOs})
}

// ApproveMember activates a pending membership.
func (h *Handler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.Members.Approve(r.Context(), actor(r), fund.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to approve member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// RejectMember declines a pending application.
func (h *Handler) RejectMember(w http.ResponseWriter, r *http.Request) {
	var req RejectMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	member, err := h.Members.Reject(r.Context(), actor(r), fund.MemberID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to reject member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// AddDependant registers a dependant under a member.
func (h *Handler) AddDependant(w http.ResponseWriter, r *http.Request) {
	var req DependantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_of_birth (use YYYY-MM-DD)", err)
		return
	}
	dep, err := h.Members.AddDependant(r.Context(), actor(r), fund.MemberID(chi.URLParam(r, "id")), req.FullName, req.Relationship, dob)
	if err != nil {
		writeDomainError(w, "Failed to add dependant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDependantDTO(dep))
}

// CheckEligibility reports whether a member may claim today.
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	eligible, err := h.Members.Eligibility(r.Context(), fund.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to check eligibility", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"eligible": eligible})
}

// ListMembershipTypes returns the configured tiers.
func (h *Handler) ListMembershipTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Members.MembershipTypes(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list membership types", err)
		return
	}
	dtos := make([]MembershipTypeDTO, len(types))
	for i := range types {
		dtos[i] = toMembershipTypeDTO(&types[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MEETINGS
// =============================================================================

// CreateMeeting opens a committee meeting.
func (h *Handler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req MeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	heldOn := time.Now()
	if req.HeldOn != "" {
		t, err := time.Parse("2006-01-02", req.HeldOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid held_on (use YYYY-MM-DD)", err)
			return
		}
		heldOn = t
	}
	meeting, err := h.Claims.CreateMeeting(r.Context(), actor(r), req.Type, req.Title, heldOn)
	if err != nil {
		writeDomainError(w, "Failed to create meeting", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMeetingDTO(meeting))
}

// LockMeeting finalizes the minutes.
func (h *Handler) LockMeeting(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.Claims.LockMeeting(r.Context(), actor(r), fund.MeetingID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to lock meeting", err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingDTO(meeting))
}

// RecordAttendance marks a user present or absent at an open meeting.
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	err := h.Claims.RecordAttendance(r.Context(), actor(r), fund.MeetingID(chi.URLParam(r, "id")), fund.UserID(req.UserID), req.Present)
	if err != nil {
		writeDomainError(w, "Failed to record attendance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkClaim tables a claim at a meeting.
func (h *Handler) LinkClaim(w http.ResponseWriter, r *http.Request) {
	var req LinkClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	err := h.Claims.LinkClaimToMeeting(r.Context(), actor(r),
		fund.ClaimID(req.ClaimID), fund.MeetingID(chi.URLParam(r, "id")), req.Decision)
	if err != nil {
		writeDomainError(w, "Failed to link claim to meeting", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// ListScales returns the configured reimbursement scales.
func (h *Handler) ListScales(w http.ResponseWriter, r *http.Request) {
	scales, err := h.Store.ListScales(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list scales", err)
		return
	}
	dtos := make([]ScaleDTO, len(scales))
	for i := range scales {
		dtos[i] = toScaleDTO(&scales[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutScale upserts one reimbursement scale, keyed by category.
func (h *Handler) PutScale(w http.ResponseWriter, r *http.Request) {
	if err := fund.RequireRole(actor(r), fund.RoleAdmin); err != nil {
		writeDomainError(w, "Scale update denied", err)
		return
	}
	var req ScaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	scale, err := req.toScale()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scale amounts", err)
		return
	}
	if err := h.Store.SaveScale(r.Context(), scale); err != nil {
		writeDomainError(w, "Failed to save scale", err)
		return
	}
	writeJSON(w, http.StatusOK, toScaleDTO(scale))
}

// GetSetting returns the raw JSON value stored under a settings key.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	raw, err := h.Store.GetSetting(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to read setting", err)
		return
	}
	if raw == nil {
		writeError(w, http.StatusNotFound, "Unknown settings key", nil)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(raw))
}

// PutSetting stores a raw JSON value under a settings key.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	if err := fund.RequireRole(actor(r), fund.RoleAdmin); err != nil {
		writeDomainError(w, "Setting update denied", err)
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := h.Store.PutSetting(r.Context(), chi.URLParam(r, "key"), raw); err != nil {
		writeDomainError(w, "Failed to save setting", err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

// =============================================================================
// AUDIT
// =============================================================================

// QueryAudit returns audit entries matching the query filters.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	if err := fund.RequireRole(actor(r), fund.RoleCommittee, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		writeDomainError(w, "Audit access denied", err)
		return
	}

	q := r.URL.Query()
	filter := fund.AuditFilter{
		Action:  fund.AuditAction(q.Get("action")),
		ClaimID: fund.ClaimID(q.Get("claim_id")),
		Limit:   100,
	}
	if v := q.Get("actor_id"); v != "" {
		id := fund.UserID(v)
		filter.ActorID = &id
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to query audit trail", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toAuditDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOtherInsurance(shif, other string) (fund.OtherInsurance, error) {
	var oi fund.OtherInsurance
	var err error
	if shif != "" {
		if oi.SHIF, err = decimal.NewFromString(shif); err != nil {
			return oi, err
		}
	}
	if other != "" {
		if oi.Other, err = decimal.NewFromString(other); err != nil {
			return oi, err
		}
	}
	return oi, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses. Duplicates are
// checked before the general client-error bucket because they carry 409.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, fund.ErrDuplicateClaim):
		writeError(w, http.StatusConflict, message, err)
	case fund.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case fund.IsPermission(err):
		writeError(w, http.StatusForbidden, message, err)
	case fund.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
