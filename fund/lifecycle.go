/*
lifecycle.go - Claim lifecycle state machine

PURPOSE:
  Governs allowed status transitions:

    draft -> submitted -> reviewed -> approved -> paid
                       \-> approved        (committee may skip "reviewed")
                       \-> rejected -> submitted   (appeal resolution only)
          reviewed -> rejected

  Paid is terminal. Rejected is terminal except through appeal resolution,
  which is guarded by the claims service (trustee action), not by this
  table alone.

  Review actions imply transitions: reviewed->reviewed, approved->approved,
  rejected->rejected, paid->paid, override->approved when an override
  amount is present.
*/
package fund

// transitions lists the allowed next statuses per current status.
// rejected -> submitted exists only for appeal resolution; the claims
// service enforces that it is reached through a trustee resolving an
// upheld appeal.
var transitions = map[ClaimStatus][]ClaimStatus{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusReviewed, StatusApproved, StatusRejected},
	StatusReviewed:  {StatusApproved, StatusRejected},
	StatusApproved:  {StatusPaid},
	StatusRejected:  {StatusSubmitted},
	StatusPaid:      {},
}

// CanTransition reports whether the move is allowed. A status may always
// "transition" to itself (recomputation-only saves).
func CanTransition(from, to ClaimStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a TransitionError for disallowed moves.
func CheckTransition(from, to ClaimStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// ImpliedStatus maps a review action to the status it drives the claim to.
// ok is false for actions with no implied transition.
func (a ReviewAction) ImpliedStatus(hasOverride bool) (status ClaimStatus, ok bool) {
	switch a {
	case ActionReviewed:
		return StatusReviewed, true
	case ActionApproved:
		return StatusApproved, true
	case ActionRejected:
		return StatusRejected, true
	case ActionPaid:
		return StatusPaid, true
	case ActionOverride:
		if hasOverride {
			return StatusApproved, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions exist from the status
// (ignoring the appeal-resolution escape from rejected).
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusPaid
}
