/*
errors.go - Centralized error types for the fund engine

PURPOSE:
  All error types in one place. The API layer maps them to HTTP statuses
  through the Is* helpers; service packages wrap them with context.

ERROR CATEGORIES:
  1. Validation errors - Byelaw rule violations, user-correctable
  2. Not-found errors  - Missing claim/member/meeting references
  3. Permission errors - Actor's role does not authorize the operation

PROPAGATION POLICY:
  Validation failures are raised before any write and abort the enclosing
  transaction. Best-effort collaborator failures (email, payout initiation)
  are logged by the caller and never surface as the operation's failure.
*/
package fund

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all byelaw rule violations.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermission is returned when the actor's role does not authorize
	// the requested operation.
	ErrPermission = errors.New("permission denied")

	// ErrDuplicateClaim is returned when a submission matches the
	// fingerprint of a different existing claim.
	ErrDuplicateClaim = errors.New("probable duplicate claim")

	// ErrInvalidTransition is returned for a status change the lifecycle
	// state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError identifies the specific rule violated. Codes are stable
// machine-readable tags; messages are for humans.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation rule codes.
const (
	CodeMissingVisitDate     = "missing_visit_date"
	CodeMissingDischargeDate = "missing_discharge_date"
	CodeSubmissionWindow     = "submission_window_exceeded"
	CodeMemberIneligible     = "member_ineligible"
	CodeWaitingPeriod        = "waiting_period_active"
	CodeMembershipExpired    = "membership_expired"
	CodeTrusteeRatification  = "trustee_ratification_required"
	CodeAppealFrozen         = "frozen_under_appeal"
	CodeEmergencyMeeting     = "emergency_ratification_required"
	CodeApproverReconciler   = "approver_cannot_reconcile"
	CodeOwnerReconciler      = "owner_cannot_reconcile"
	CodeInvalidStatus        = "invalid_status"
	CodeInvalidClaimType     = "invalid_claim_type"
	CodeAlreadyReconciled    = "payment_already_reconciled"
	CodeAppealNotPending     = "appeal_not_pending"
	CodeAppealAlreadyOpen    = "appeal_already_pending"
	CodeOverrideMissing      = "override_amount_required"
	CodeClaimFinalized       = "claim_finalized"
)

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func newValidationError(code, format string, args ...any) *ValidationError {
	return NewValidationError(code, format, args...)
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "claim", "member", "meeting", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound builds a NotFoundError for the given entity.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// PermissionError records what was required versus what the actor held.
type PermissionError struct {
	Actor    UserID
	Role     Role
	Required []Role
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor %s (role %s) requires one of %v", e.Actor, e.Role, e.Required)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

// RequireRole returns a PermissionError unless the actor holds one of roles.
func RequireRole(actor Actor, roles ...Role) error {
	if actor.HasRole(roles...) {
		return nil
	}
	return &PermissionError{Actor: actor.UserID, Role: actor.Role, Required: roles}
}

// DuplicateClaimError reports a fingerprint collision with another claim.
type DuplicateClaimError struct {
	Hash            string
	ExistingClaimID ClaimID
}

func (e *DuplicateClaimError) Error() string {
	return fmt.Sprintf("claim matches fingerprint of existing claim %s", e.ExistingClaimID)
}

func (e *DuplicateClaimError) Unwrap() error { return ErrDuplicateClaim }

// TransitionError reports a disallowed lifecycle move.
type TransitionError struct {
	From ClaimStatus
	To   ClaimStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition claim from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// OverrideCeilingError reports an unratified discretionary override.
type OverrideCeilingError struct {
	Amount  decimal.Decimal
	Ceiling decimal.Decimal
}

func (e *OverrideCeilingError) Error() string {
	return fmt.Sprintf("override of %s exceeds discretionary ceiling %s and requires EMERGENCY meeting ratification",
		e.Amount.StringFixed(2), e.Ceiling.StringFixed(2))
}

func (e *OverrideCeilingError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid client input
// (mapped to 400/409 by the API layer).
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateClaim) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermission reports whether the error is an authorization failure.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}
