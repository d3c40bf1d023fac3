package claims_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fund-engine/claims"
	"github.com/warp/fund-engine/fund"
)

func TestMeeting_LockIsIdempotent(t *testing.T) {
	// GIVEN: A locked meeting
	// WHEN: It is locked again
	// THEN: The second lock is a no-op

	svc, _ := newTestService(t)
	ctx := context.Background()

	meeting, err := svc.CreateMeeting(ctx, chair, "ordinary", "Monthly sitting", testNow)
	require.NoError(t, err)

	_, err = svc.LockMeeting(ctx, chair, meeting.ID)
	require.NoError(t, err)
	locked, err := svc.LockMeeting(ctx, chair, meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.MeetingLocked, locked.Status)
}

func TestMeeting_LockedRefusesAttendanceAndLinks(t *testing.T) {
	// GIVEN: A locked meeting and a submitted claim
	// WHEN: Attendance or a claim link is recorded against it
	// THEN: Locked minutes accept nothing further

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	meeting, err := svc.CreateMeeting(ctx, chair, "ordinary", "Monthly sitting", testNow)
	require.NoError(t, err)
	_, err = svc.LockMeeting(ctx, chair, meeting.ID)
	require.NoError(t, err)

	err = svc.RecordAttendance(ctx, chair, meeting.ID, chair.UserID, true)
	assert.Error(t, err)

	err = svc.LinkClaimToMeeting(ctx, chair, claim.ID, meeting.ID, "deferred")
	assert.Error(t, err)
}

func TestMeeting_OpenAcceptsAttendanceAndLinks(t *testing.T) {
	// GIVEN: An open meeting and a submitted claim
	// WHEN: Attendance and a claim link are recorded
	// THEN: Both are stored and the link is listed against the claim

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)

	meeting, err := svc.CreateMeeting(ctx, chair, "ordinary", "Monthly sitting", testNow)
	require.NoError(t, err)

	require.NoError(t, svc.RecordAttendance(ctx, chair, meeting.ID, trustee.UserID, true))
	require.NoError(t, svc.LinkClaimToMeeting(ctx, chair, claim.ID, meeting.ID, "approved subject to receipts"))

	links, err := svc.MeetingLinks(ctx, claim.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, meeting.ID, links[0].MeetingID)
	assert.Equal(t, "approved subject to receipts", links[0].Decision)
}

func TestMeeting_UnknownTypeRejected(t *testing.T) {
	// GIVEN: A meeting request with a made-up type
	// WHEN: It is created
	// THEN: Only ordinary and emergency exist

	svc, _ := newTestService(t)
	_, err := svc.CreateMeeting(context.Background(), chair, "retreat", "", testNow)
	assert.True(t, fund.IsClientError(err), "expected validation error, got %v", err)
}

func TestMeeting_MemberRoleCannotGovern(t *testing.T) {
	// GIVEN: A plain member
	// WHEN: They try to open a meeting
	// THEN: Governance is committee/trustee/admin only

	svc, _ := newTestService(t)
	_, err := svc.CreateMeeting(context.Background(), alice, "ordinary", "", testNow)
	assert.True(t, fund.IsPermission(err))
}

func TestAppeal_StrangerCannotFileForOthers(t *testing.T) {
	// GIVEN: Alice's rejected claim
	// WHEN: Another plain member files an appeal on it
	// THEN: Only the owner or an officer may appeal

	svc, _ := newTestService(t)
	ctx := context.Background()
	claim := submittedClaim(t, svc)
	_, err := svc.RecordReview(ctx, chair, claim.ID, claims.ReviewInput{Action: "rejected"})
	require.NoError(t, err)

	stranger := fund.Actor{UserID: "user-bob", Role: fund.RoleMember}
	_, err = svc.FileAppeal(ctx, stranger, claim.ID, "nosy")
	assert.True(t, fund.IsPermission(err))
}
