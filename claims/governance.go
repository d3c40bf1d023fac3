package claims

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// COMMITTEE MEETINGS
// =============================================================================

// CreateMeeting opens a committee meeting. Emergency meetings are the only
// vehicle for ratifying overrides above the discretionary ceiling.
func (s *Service) CreateMeeting(ctx context.Context, actor fund.Actor, meetingType, title string, heldOn time.Time) (*fund.CommitteeMeeting, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	mt := fund.MeetingType(meetingType)
	if mt != fund.MeetingOrdinary && mt != fund.MeetingEmergency {
		return nil, fund.NewValidationError(fund.CodeEmergencyMeeting, "unknown meeting type %q", meetingType)
	}

	meeting := &fund.CommitteeMeeting{
		ID:        fund.MeetingID(uuid.New().String()),
		Type:      mt,
		Status:    fund.MeetingOpen,
		Title:     title,
		HeldOn:    heldOn,
		CreatedAt: s.now(),
	}
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		if err := st.SaveMeeting(ctx, meeting); err != nil {
			return err
		}
		return s.auditGovernance(ctx, st, actor, fund.AuditMeetingCreated, map[string]any{
			"meeting_id": string(meeting.ID), "type": string(mt), "title": title,
		})
	})
	if err != nil {
		return nil, err
	}
	return meeting, nil
}

// LockMeeting finalizes the minutes. Locked meetings accept no further
// attendance or claim links, and only locked emergency meetings count as
// override ratification.
func (s *Service) LockMeeting(ctx context.Context, actor fund.Actor, id fund.MeetingID) (*fund.CommitteeMeeting, error) {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	var meeting *fund.CommitteeMeeting
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		meeting, err = s.requireMeeting(ctx, st, id)
		if err != nil {
			return err
		}
		if meeting.Status == fund.MeetingLocked {
			return nil // locking twice is a no-op
		}
		meeting.Status = fund.MeetingLocked
		if err := st.SaveMeeting(ctx, meeting); err != nil {
			return err
		}
		return s.auditGovernance(ctx, st, actor, fund.AuditMeetingLocked, map[string]any{
			"meeting_id": string(id),
		})
	})
	if err != nil {
		return nil, err
	}
	return meeting, nil
}

// RecordAttendance marks a user present or absent at an open meeting.
func (s *Service) RecordAttendance(ctx context.Context, actor fund.Actor, meetingID fund.MeetingID, userID fund.UserID, present bool) error {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(st fund.Store) error {
		meeting, err := s.requireMeeting(ctx, st, meetingID)
		if err != nil {
			return err
		}
		if meeting.Status == fund.MeetingLocked {
			return fund.NewValidationError(fund.CodeEmergencyMeeting, "meeting %s is locked", meetingID)
		}
		return st.SaveAttendance(ctx, &fund.MeetingAttendance{
			ID:        uuid.New().String(),
			MeetingID: meetingID,
			UserID:    userID,
			Present:   present,
		})
	})
}

// LinkClaimToMeeting records that a claim was tabled at a meeting, with the
// decision minuted against it.
func (s *Service) LinkClaimToMeeting(ctx context.Context, actor fund.Actor, claimID fund.ClaimID, meetingID fund.MeetingID, decision string) error {
	if err := fund.RequireRole(actor, fund.RoleCommittee, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(st fund.Store) error {
		if _, err := s.requireClaim(ctx, st, claimID); err != nil {
			return err
		}
		meeting, err := s.requireMeeting(ctx, st, meetingID)
		if err != nil {
			return err
		}
		if meeting.Status == fund.MeetingLocked {
			return fund.NewValidationError(fund.CodeEmergencyMeeting, "meeting %s is locked", meetingID)
		}
		if err := st.SaveMeetingLink(ctx, &fund.ClaimMeetingLink{
			ID:        uuid.New().String(),
			ClaimID:   claimID,
			MeetingID: meetingID,
			Decision:  decision,
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		return s.auditGovernance(ctx, st, actor, fund.AuditMeetingLinked, map[string]any{
			"claim_id": string(claimID), "meeting_id": string(meetingID), "decision": decision,
		})
	})
}

// =============================================================================
// APPEALS
// =============================================================================

// FileAppeal opens an appeal against a claim decision. A pending appeal
// freezes the claim's lifecycle until a trustee resolves it; only one
// appeal may be pending per claim.
func (s *Service) FileAppeal(ctx context.Context, actor fund.Actor, claimID fund.ClaimID, reason string) (*fund.ClaimAppeal, error) {
	var appeal *fund.ClaimAppeal
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		claim, err := s.requireClaim(ctx, st, claimID)
		if err != nil {
			return err
		}
		member, err := s.requireMember(ctx, st, claim.MemberID)
		if err != nil {
			return err
		}
		if err := s.requireOwnershipOrRole(ctx, st, actor, member, fund.RoleCommittee, fund.RoleTrustee, fund.RoleAdmin); err != nil {
			return err
		}
		pending, err := st.HasPendingAppeal(ctx, claimID)
		if err != nil {
			return err
		}
		if pending {
			return fund.NewValidationError(fund.CodeAppealAlreadyOpen,
				"claim %s already has a pending appeal", claimID)
		}

		appeal = &fund.ClaimAppeal{
			ID:        fund.AppealID(uuid.New().String()),
			ClaimID:   claimID,
			FiledBy:   actor.UserID,
			Reason:    reason,
			Status:    fund.AppealPending,
			CreatedAt: s.now(),
		}
		if err := st.SaveAppeal(ctx, appeal); err != nil {
			return err
		}
		return s.auditGovernance(ctx, st, actor, fund.AuditAppealFiled, map[string]any{
			"appeal_id": string(appeal.ID), "claim_id": string(claimID),
		})
	})
	if err != nil {
		return nil, err
	}
	return appeal, nil
}

// ResolveAppeal closes a pending appeal. Upholding it reopens a rejected
// claim back to submitted for a fresh committee pass; dismissing it leaves
// the claim where it stands.
func (s *Service) ResolveAppeal(ctx context.Context, actor fund.Actor, id fund.AppealID, upheld bool, resolution string) (*fund.ClaimAppeal, error) {
	if err := fund.RequireRole(actor, fund.RoleTrustee, fund.RoleAdmin); err != nil {
		return nil, err
	}
	var (
		appeal *fund.ClaimAppeal
		claim  *fund.Claim
	)
	err := s.store.WithTx(ctx, func(st fund.Store) error {
		var err error
		appeal, err = st.GetAppeal(ctx, id)
		if err != nil {
			return err
		}
		if appeal == nil {
			return fund.NewNotFound("appeal", string(id))
		}
		if appeal.Status != fund.AppealPending {
			return fund.NewValidationError(fund.CodeAppealNotPending,
				"appeal %s is already %s", id, appeal.Status)
		}

		at := s.now()
		appeal.Status = fund.AppealDismissed
		if upheld {
			appeal.Status = fund.AppealUpheld
		}
		appeal.ResolvedBy = actor.UserID
		appeal.Resolution = resolution
		appeal.ResolvedAt = &at
		if err := st.SaveAppeal(ctx, appeal); err != nil {
			return err
		}
		if err := s.auditGovernance(ctx, st, actor, fund.AuditAppealResolved, map[string]any{
			"appeal_id": string(id), "status": string(appeal.Status),
		}); err != nil {
			return err
		}

		// The appeal row is resolved first so the freeze no longer blocks
		// the reopening transition.
		if upheld {
			claim, err = s.requireClaim(ctx, st, appeal.ClaimID)
			if err != nil {
				return err
			}
			if claim.Status == fund.StatusRejected {
				member, err := s.requireMember(ctx, st, claim.MemberID)
				if err != nil {
					return err
				}
				if err := s.transitionLocked(ctx, st, actor, claim, member, fund.StatusSubmitted); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if claim != nil {
		s.notifyStatus(ctx, claim)
	}
	return appeal, nil
}

// Appeals lists appeals for a claim, newest first.
func (s *Service) Appeals(ctx context.Context, claimID fund.ClaimID) ([]fund.ClaimAppeal, error) {
	return s.store.ListAppeals(ctx, claimID)
}

// MeetingLinks lists the meetings a claim was tabled at.
func (s *Service) MeetingLinks(ctx context.Context, claimID fund.ClaimID) ([]fund.ClaimMeetingLink, error) {
	return s.store.ListMeetingLinks(ctx, claimID)
}

func (s *Service) requireMeeting(ctx context.Context, st fund.Store, id fund.MeetingID) (*fund.CommitteeMeeting, error) {
	m, err := st.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fund.NewNotFound("meeting", string(id))
	}
	return m, nil
}

// auditGovernance records governance actions that are not tied to a claim
// snapshot.
func (s *Service) auditGovernance(ctx context.Context, st fund.Store, actor fund.Actor, action fund.AuditAction, meta map[string]any) error {
	actorID := actor.UserID
	return st.AppendAudit(ctx, fund.AuditEntry{
		ID:        uuid.New().String(),
		ActorID:   &actorID,
		Action:    action,
		Meta:      meta,
		CreatedAt: s.now(),
	})
}
