/*
Package membership manages the member lifecycle: registration, committee
approval or rejection, dependants and eligibility queries.

LIFECYCLE:

  pending --approve--> active --(valid_to passes)--> expired via lapse
      \--reject--> lapsed

  Approval stamps the membership window: valid_from = today, valid_to =
  today + the type's term (default two years), and benefits_from = today +
  the waiting period unless set already. Claims are only accepted inside
  [benefits_from, valid_to].
*/
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/fund-engine/fund"
)

// Service coordinates member mutations over the shared store.
type Service struct {
	store    fund.TxStore
	notifier fund.Notifier
	now      func() time.Time
}

func NewService(store fund.TxStore, notifier fund.Notifier) *Service {
	if notifier == nil {
		notifier = fund.LogNotifier{}
	}
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// WithClock overrides the time source. Tests use this to pin "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterInput is the membership application form.
type RegisterInput struct {
	UserID            fund.UserID
	FullName          string
	MailingAddress    string
	PhoneMobile       string
	SHIFNumber        string
	OtherScheme       string
	MembershipTypeKey string
}

// Register files a membership application in pending. The committee
// approves or rejects it later.
func (s *Service) Register(ctx context.Context, actor fund.Actor, in RegisterInput) (*fund.Member, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fund.NewValidationError("missing_name", "member name is required")
	}

	member := &fund.Member{
		ID:                fund.MemberID(uuid.New().String()),
		UserID:            in.UserID,
		MembershipTypeKey: in.MembershipTypeKey,
		FullName:          in.FullName,
		MailingAddress:    in.MailingAddress,
		PhoneMobile:       in.PhoneMobile,
		SHIFNumber:        in.SHIFNumber,
		OtherScheme:       in.OtherScheme,
		Status:            fund.MemberPending,
		CreatedAt:         s.now(),
		UpdatedAt:         s.now(),
	}

	err := s.store.WithTx(ctx, func(st fund.Store) error {
		if in.MembershipTypeKey != "" {
			mt, err := st.GetMembershipType(ctx, in.MembershipTypeKey)
			if err != nil {
				return err
			}
			if mt == nil {
				return fund.NewNotFound("membership type", in.MembershipTypeKey)
			}
		}
		existing, err := st.GetMemberByUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != fund.MemberLapsed {
			return fund.NewValidationError("member_exists",
				"user %s already has a %s membership", in.UserID, existing.Status)
		}
		if err := st.SaveMember(ctx, member); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, fund.AuditMemberRegistered, member)
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, fund.NotificationEvent{
		Kind:     fund.EventMemberRegistered,
		MemberID: member.ID,
		Message:  "Your membership application has been received.",
	})
	return member, nil
}

// Approve activates a pending member and stamps the membership window.
func (s *Service) Approve(ctx context.Context, actor fund.Actor, id fund.MemberID) (*fund.Member, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	var member *fund.Member
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		member, err = s.requireMember(ctx, st, id)
		if err != nil {
			return err
		}
		if member.Status != fund.MemberPending {
			return fund.NewValidationError(fund.CodeInvalidStatus,
				"only pending members can be approved, member is %s", member.Status)
		}

		termYears := fund.DefaultTermYears
		if member.MembershipTypeKey != "" {
			mt, err := st.GetMembershipType(ctx, member.MembershipTypeKey)
			if err != nil {
				return err
			}
			if mt != nil && mt.TermYears > 0 {
				termYears = mt.TermYears
			}
		}

		today := s.now()
		validTo := today.AddDate(termYears, 0, 0)
		member.Status = fund.MemberActive
		member.ValidFrom = &today
		member.ValidTo = &validTo
		if member.BenefitsFrom == nil {
			benefits := today.AddDate(0, 0, fund.WaitingPeriodDays)
			member.BenefitsFrom = &benefits
		}
		member.UpdatedAt = today
		if err := st.SaveMember(ctx, member); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, fund.AuditMemberApproved, member)
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, fund.NotificationEvent{
		Kind:     fund.EventMemberApproved,
		MemberID: member.ID,
		Message:  fmt.Sprintf("Welcome! Your membership is active until %s.", member.ValidTo.Format("2006-01-02")),
	})
	return member, nil
}

// Reject declines a pending application, moving it to lapsed.
func (s *Service) Reject(ctx context.Context, actor fund.Actor, id fund.MemberID, reason string) (*fund.Member, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	var member *fund.Member
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		member, err = s.requireMember(ctx, st, id)
		if err != nil {
			return err
		}
		if member.Status != fund.MemberPending {
			return fund.NewValidationError(fund.CodeInvalidStatus,
				"only pending members can be rejected, member is %s", member.Status)
		}
		member.Status = fund.MemberLapsed
		member.UpdatedAt = s.now()
		if err := st.SaveMember(ctx, member); err != nil {
			return err
		}
		return s.auditWithMeta(ctx, st, actor, fund.AuditMemberRejected, member, map[string]any{"reason": reason})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, fund.NotificationEvent{
		Kind:     fund.EventMemberRejected,
		MemberID: member.ID,
		Message:  "Your membership application was not approved.",
	})
	return member, nil
}

// AddDependant registers a dependant under an existing member.
func (s *Service) AddDependant(ctx context.Context, actor fund.Actor, memberID fund.MemberID, fullName, relationship string, dateOfBirth *time.Time) (*fund.MemberDependant, error) {
	if strings.TrimSpace(fullName) == "" {
		return nil, fund.NewValidationError("missing_name", "dependant name is required")
	}
	dep := &fund.MemberDependant{
		ID:           uuid.New().String(),
		MemberID:     memberID,
		FullName:     fullName,
		Relationship: relationship,
		DateOfBirth:  dateOfBirth,
		CreatedAt:    s.now(),
	}
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		member, err := s.requireMember(ctx, st, memberID)
		if err != nil {
			return err
		}
		if member.UserID != actor.UserID {
			if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleAdmin); err != nil {
				return err
			}
		}
		return st.SaveDependant(ctx, dep)
	})
	if err != nil {
		return nil, err
	}
	return dep, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id fund.MemberID) (*fund.Member, error) {
	return s.requireMember(ctx, s.store, id)
}

func (s *Service) GetByUser(ctx context.Context, userID fund.UserID) (*fund.Member, error) {
	m, err := s.store.GetMemberByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fund.NewNotFound("member", string(userID))
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, status fund.MemberStatus) ([]fund.Member, error) {
	return s.store.ListMembers(ctx, status)
}

func (s *Service) Dependants(ctx context.Context, memberID fund.MemberID) ([]fund.MemberDependant, error) {
	return s.store.ListDependants(ctx, memberID)
}

// Eligibility reports whether the member can submit claims today, with the
// rule that blocks them when not.
func (s *Service) Eligibility(ctx context.Context, id fund.MemberID) (bool, error) {
	member, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if err := fund.ValidateEligibility(member, s.now()); err != nil {
		return false, nil
	}
	return true, nil
}

// MembershipTypes lists the configured membership tiers.
func (s *Service) MembershipTypes(ctx context.Context) ([]fund.MembershipType, error) {
	return s.store.ListMembershipTypes(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) requireMember(ctx context.Context, st fund.Store, id fund.MemberID) (*fund.Member, error) {
	m, err := st.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fund.NewNotFound("member", string(id))
	}
	return m, nil
}

func (s *Service) audit(ctx context.Context, st fund.Store, actor fund.Actor, action fund.AuditAction, m *fund.Member) error {
	return s.auditWithMeta(ctx, st, actor, action, m, nil)
}

func (s *Service) auditWithMeta(ctx context.Context, st fund.Store, actor fund.Actor, action fund.AuditAction, m *fund.Member, extra map[string]any) error {
	var actorID *fund.UserID
	if actor.UserID != "" {
		id := actor.UserID
		actorID = &id
	}
	meta := map[string]any{
		"member_id": string(m.ID),
		"status":    string(m.Status),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return st.AppendAudit(ctx, fund.AuditEntry{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Action:    action,
		Meta:      meta,
		CreatedAt: s.now(),
	})
}

func (s *Service) dispatch(ctx context.Context, ev fund.NotificationEvent) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("notification dispatch failed", "kind", ev.Kind, "member_id", ev.MemberID, "error", err)
	}
}
