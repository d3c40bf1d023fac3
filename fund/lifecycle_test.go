package fund_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/fund-engine/fund"
)

func TestCanTransition_AllowedPaths(t *testing.T) {
	// GIVEN: The lifecycle table
	// WHEN: Each documented move is checked
	// THEN: The happy path and the committee shortcuts are allowed

	allowed := [][2]fund.ClaimStatus{
		{fund.StatusDraft, fund.StatusSubmitted},
		{fund.StatusSubmitted, fund.StatusReviewed},
		{fund.StatusSubmitted, fund.StatusApproved}, // skip "reviewed"
		{fund.StatusSubmitted, fund.StatusRejected},
		{fund.StatusReviewed, fund.StatusApproved},
		{fund.StatusReviewed, fund.StatusRejected},
		{fund.StatusApproved, fund.StatusPaid},
		{fund.StatusRejected, fund.StatusSubmitted}, // appeal resolution only
	}
	for _, pair := range allowed {
		assert.True(t, fund.CanTransition(pair[0], pair[1]), "%s -> %s should be allowed", pair[0], pair[1])
	}
}

func TestCanTransition_DisallowedPaths(t *testing.T) {
	// GIVEN: The lifecycle table
	// WHEN: Shortcut and backward moves are checked
	// THEN: All are rejected

	denied := [][2]fund.ClaimStatus{
		{fund.StatusDraft, fund.StatusApproved},
		{fund.StatusDraft, fund.StatusPaid},
		{fund.StatusSubmitted, fund.StatusDraft},
		{fund.StatusApproved, fund.StatusRejected},
		{fund.StatusPaid, fund.StatusApproved},
		{fund.StatusPaid, fund.StatusSubmitted},
		{fund.StatusRejected, fund.StatusApproved},
	}
	for _, pair := range denied {
		assert.False(t, fund.CanTransition(pair[0], pair[1]), "%s -> %s should be denied", pair[0], pair[1])
	}
}

func TestCanTransition_SelfIsAlwaysAllowed(t *testing.T) {
	// GIVEN: Any status
	// WHEN: A self-transition is checked
	// THEN: Recomputation-only saves are always permitted

	for _, s := range []fund.ClaimStatus{
		fund.StatusDraft, fund.StatusSubmitted, fund.StatusReviewed,
		fund.StatusApproved, fund.StatusRejected, fund.StatusPaid,
	} {
		assert.True(t, fund.CanTransition(s, s), "%s -> %s", s, s)
	}
}

func TestImpliedStatus_ReviewActions(t *testing.T) {
	// GIVEN: Each review action
	// WHEN: The implied status is resolved
	// THEN: Override implies approved only when an override amount exists

	status, ok := fund.ActionApproved.ImpliedStatus(false)
	assert.True(t, ok)
	assert.Equal(t, fund.StatusApproved, status)

	status, ok = fund.ActionRejected.ImpliedStatus(false)
	assert.True(t, ok)
	assert.Equal(t, fund.StatusRejected, status)

	status, ok = fund.ActionOverride.ImpliedStatus(true)
	assert.True(t, ok)
	assert.Equal(t, fund.StatusApproved, status)

	_, ok = fund.ActionOverride.ImpliedStatus(false)
	assert.False(t, ok, "override without an amount implies nothing")
}

func TestIsTerminal(t *testing.T) {
	// GIVEN: Every status
	// WHEN: Terminality is checked
	// THEN: Only paid is terminal; rejected keeps its appeal escape

	assert.True(t, fund.StatusPaid.IsTerminal())
	assert.False(t, fund.StatusRejected.IsTerminal())
	assert.False(t, fund.StatusApproved.IsTerminal())
	assert.False(t, fund.StatusDraft.IsTerminal())
}
