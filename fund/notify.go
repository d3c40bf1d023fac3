/*
notify.go - Notification collaborator boundary

PURPOSE:
  The engine triggers notifications on claim submission, status changes and
  membership decisions, but delivery (email, dashboards) lives outside this
  core. The contract is one call per event, fire-and-forget: a delivery
  failure is logged and never rolls back the enclosing transaction.
*/
package fund

import (
	"context"
	"log/slog"
)

// EventKind identifies what happened.
type EventKind string

const (
	EventClaimSubmitted   EventKind = "claim_submitted"
	EventClaimStatus      EventKind = "claim_status_changed"
	EventNewClaim         EventKind = "new_committee_claim"
	EventMemberRegistered EventKind = "member_registered"
	EventMemberApproved   EventKind = "member_approved"
	EventMemberRejected   EventKind = "member_rejected"
)

// NotificationEvent carries the recipient and the entity reference.
type NotificationEvent struct {
	Kind      EventKind
	Recipient UserID // empty = committee broadcast
	ClaimID   ClaimID
	MemberID  MemberID
	Message   string
}

// Notifier dispatches a single event. Implementations must be best-effort;
// callers swallow and log errors.
type Notifier interface {
	Notify(ctx context.Context, ev NotificationEvent) error
}

// LogNotifier writes events to the structured log. Stands in for the real
// email dispatcher in development and tests.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ev NotificationEvent) error {
	slog.Info("notification",
		"kind", ev.Kind,
		"recipient", ev.Recipient,
		"claim_id", ev.ClaimID,
		"member_id", ev.MemberID,
		"message", ev.Message,
	)
	return nil
}
