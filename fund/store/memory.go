// Package store provides fund.Store implementations.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements fund.TxStore with plain maps. WithTx runs the callback
// under the store lock; it provides atomicity against concurrent readers
// but no rollback - tests that exercise rollback use the SQLite store.
type Memory struct {
	mu sync.RWMutex

	claims       map[fund.ClaimID]fund.Claim
	items        map[string]fund.ClaimItem
	attachments  map[string]fund.ClaimAttachment
	members      map[fund.MemberID]fund.Member
	dependants   map[string]fund.MemberDependant
	types        map[string]fund.MembershipType
	scales       map[string]fund.ReimbursementScale
	settings     map[string]json.RawMessage
	reviews      []fund.ClaimReview
	fingerprints map[fund.ClaimID]fund.ClaimFingerprint
	meetings     map[fund.MeetingID]fund.CommitteeMeeting
	attendance   map[string]fund.MeetingAttendance
	links        map[string]fund.ClaimMeetingLink
	appeals      map[fund.AppealID]fund.ClaimAppeal
	payments     map[fund.PaymentID]fund.PaymentRecord
	audit        []fund.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		claims:       make(map[fund.ClaimID]fund.Claim),
		items:        make(map[string]fund.ClaimItem),
		attachments:  make(map[string]fund.ClaimAttachment),
		members:      make(map[fund.MemberID]fund.Member),
		dependants:   make(map[string]fund.MemberDependant),
		types:        make(map[string]fund.MembershipType),
		scales:       make(map[string]fund.ReimbursementScale),
		settings:     make(map[string]json.RawMessage),
		fingerprints: make(map[fund.ClaimID]fund.ClaimFingerprint),
		meetings:     make(map[fund.MeetingID]fund.CommitteeMeeting),
		attendance:   make(map[string]fund.MeetingAttendance),
		links:        make(map[string]fund.ClaimMeetingLink),
		appeals:      make(map[fund.AppealID]fund.ClaimAppeal),
		payments:     make(map[fund.PaymentID]fund.PaymentRecord),
	}
}

// WithTx runs fn directly against the store. No rollback semantics.
func (m *Memory) WithTx(_ context.Context, fn func(fund.Store) error) error {
	return fn(m)
}

// =============================================================================
// CLAIM STORE
// =============================================================================

func (m *Memory) SaveClaim(_ context.Context, c *fund.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[c.ID] = *c
	return nil
}

func (m *Memory) GetClaim(_ context.Context, id fund.ClaimID) (*fund.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListClaims(_ context.Context, f fund.ClaimFilter) ([]fund.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.Claim
	for _, c := range m.claims {
		if f.MemberID != "" && c.MemberID != f.MemberID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Type != "" && c.Type != f.Type {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Notes), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) YearFundShare(_ context.Context, memberID fund.MemberID, year int, exclude fund.ClaimID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, c := range m.claims {
		if c.MemberID != memberID || c.ID == exclude || c.CreatedAt.Year() != year {
			continue
		}
		sum = sum.Add(c.TotalPayable)
	}
	return sum, nil
}

func (m *Memory) SaveItem(_ context.Context, it *fund.ClaimItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = *it
	return nil
}

func (m *Memory) GetItem(_ context.Context, id string) (*fund.ClaimItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m *Memory) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *Memory) ListItems(_ context.Context, claimID fund.ClaimID) ([]fund.ClaimItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.ClaimItem
	for _, it := range m.items {
		if it.ClaimID == claimID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveAttachment(_ context.Context, a *fund.ClaimAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[a.ID] = *a
	return nil
}

func (m *Memory) ListAttachments(_ context.Context, claimID fund.ClaimID) ([]fund.ClaimAttachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.ClaimAttachment
	for _, a := range m.attachments {
		if a.ClaimID == claimID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

// =============================================================================
// MEMBER STORE
// =============================================================================

func (m *Memory) SaveMember(_ context.Context, mem *fund.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.ID] = *mem
	return nil
}

func (m *Memory) GetMember(_ context.Context, id fund.MemberID) (*fund.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	return &mem, nil
}

func (m *Memory) GetMemberByUser(_ context.Context, userID fund.UserID) (*fund.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mem := range m.members {
		if mem.UserID == userID {
			out := mem
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListMembers(_ context.Context, status fund.MemberStatus) ([]fund.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.Member
	for _, mem := range m.members {
		if status != "" && mem.Status != status {
			continue
		}
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveDependant(_ context.Context, d *fund.MemberDependant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dependants[d.ID] = *d
	return nil
}

func (m *Memory) ListDependants(_ context.Context, memberID fund.MemberID) ([]fund.MemberDependant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.MemberDependant
	for _, d := range m.dependants {
		if d.MemberID == memberID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (m *Memory) SaveMembershipType(_ context.Context, t *fund.MembershipType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[t.Key] = *t
	return nil
}

func (m *Memory) GetMembershipType(_ context.Context, key string) (*fund.MembershipType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListMembershipTypes(_ context.Context) ([]fund.MembershipType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.MembershipType
	for _, t := range m.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// =============================================================================
// REFERENCE STORE
// =============================================================================

func (m *Memory) SaveScale(_ context.Context, s *fund.ReimbursementScale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scales[strings.ToLower(s.Category)] = *s
	return nil
}

func (m *Memory) ListScales(_ context.Context) ([]fund.ReimbursementScale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.ReimbursementScale
	for _, s := range m.scales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *Memory) GetSetting(_ context.Context, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *Memory) PutSetting(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = append(json.RawMessage(nil), value...)
	return nil
}

// =============================================================================
// REVIEW & FINGERPRINT STORES
// =============================================================================

func (m *Memory) AppendReview(_ context.Context, r *fund.ClaimReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *Memory) ListReviews(_ context.Context, claimID fund.ClaimID) ([]fund.ClaimReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.ClaimReview
	for _, r := range m.reviews {
		if r.ClaimID == claimID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) LatestReview(_ context.Context, claimID fund.ClaimID, action fund.ReviewAction) (*fund.ClaimReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *fund.ClaimReview
	for i := range m.reviews {
		r := m.reviews[i]
		if r.ClaimID != claimID || r.Action != action {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			out := r
			latest = &out
		}
	}
	return latest, nil
}

func (m *Memory) FindFingerprint(_ context.Context, hash string) (*fund.ClaimFingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fp := range m.fingerprints {
		if fp.Hash == hash {
			out := fp
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) SaveFingerprint(_ context.Context, fp *fund.ClaimFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.fingerprints[fp.ClaimID]; exists {
		return nil
	}
	m.fingerprints[fp.ClaimID] = *fp
	return nil
}

// =============================================================================
// GOVERNANCE STORE
// =============================================================================

func (m *Memory) SaveMeeting(_ context.Context, mt *fund.CommitteeMeeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings[mt.ID] = *mt
	return nil
}

func (m *Memory) GetMeeting(_ context.Context, id fund.MeetingID) (*fund.CommitteeMeeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.meetings[id]
	if !ok {
		return nil, nil
	}
	return &mt, nil
}

func (m *Memory) SaveAttendance(_ context.Context, a *fund.MeetingAttendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[a.ID] = *a
	return nil
}

func (m *Memory) SaveMeetingLink(_ context.Context, l *fund.ClaimMeetingLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.ID] = *l
	return nil
}

func (m *Memory) ListMeetingLinks(_ context.Context, claimID fund.ClaimID) ([]fund.ClaimMeetingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.ClaimMeetingLink
	for _, l := range m.links {
		if l.ClaimID == claimID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveAppeal(_ context.Context, a *fund.ClaimAppeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appeals[a.ID] = *a
	return nil
}

func (m *Memory) GetAppeal(_ context.Context, id fund.AppealID) (*fund.ClaimAppeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appeals[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListAppeals(_ context.Context, claimID fund.ClaimID) ([]fund.ClaimAppeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.ClaimAppeal
	for _, a := range m.appeals {
		if a.ClaimID == claimID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) HasPendingAppeal(_ context.Context, claimID fund.ClaimID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.appeals {
		if a.ClaimID == claimID && a.Status == fund.AppealPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SavePayment(_ context.Context, p *fund.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id fund.PaymentID) (*fund.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListPayments(_ context.Context, claimID fund.ClaimID) ([]fund.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.PaymentRecord
	for _, p := range m.payments {
		if p.ClaimID == claimID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e fund.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, f fund.AuditFilter) ([]fund.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fund.AuditEntry
	for _, e := range m.audit {
		if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ClaimID != "" && !auditMatchesClaim(e, f.ClaimID) {
			continue
		}
		if f.From != nil && e.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && e.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func auditMatchesClaim(e fund.AuditEntry, id fund.ClaimID) bool {
	v, ok := e.Meta["claim_id"]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == string(id)
}

var _ fund.TxStore = (*Memory)(nil)
