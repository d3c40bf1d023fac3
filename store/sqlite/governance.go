package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// GOVERNANCE STORE (fund.GovernanceStore interface)
// =============================================================================

// SaveMeeting inserts or updates a committee meeting.
func (s *Store) SaveMeeting(ctx context.Context, m *fund.CommitteeMeeting) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO committee_meetings (id, type, status, title, held_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			title = excluded.title,
			held_on = excluded.held_on`,
		m.ID, m.Type, m.Status, m.Title, formatTime(m.HeldOn), formatTime(m.CreatedAt),
	)
	return err
}

// GetMeeting retrieves a meeting by ID, or nil when absent.
func (s *Store) GetMeeting(ctx context.Context, id fund.MeetingID) (*fund.CommitteeMeeting, error) {
	var (
		m         fund.CommitteeMeeting
		title     sql.NullString
		heldOn    string
		createdAt string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, type, status, title, held_on, created_at FROM committee_meetings WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.Type, &m.Status, &title, &heldOn, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Title = title.String
	m.HeldOn = parseTime(heldOn)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

// SaveAttendance records who sat in a meeting.
func (s *Store) SaveAttendance(ctx context.Context, a *fund.MeetingAttendance) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO meeting_attendance (id, meeting_id, user_id, present)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET present = excluded.present`,
		a.ID, a.MeetingID, a.UserID, a.Present,
	)
	return err
}

// SaveMeetingLink records that a claim was tabled at a meeting.
func (s *Store) SaveMeetingLink(ctx context.Context, l *fund.ClaimMeetingLink) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO claim_meeting_links (id, claim_id, meeting_id, decision, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.ClaimID, l.MeetingID, l.Decision, formatTime(l.CreatedAt),
	)
	return err
}

// ListMeetingLinks returns the meetings a claim was tabled at.
func (s *Store) ListMeetingLinks(ctx context.Context, claimID fund.ClaimID) ([]fund.ClaimMeetingLink, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, claim_id, meeting_id, decision, created_at
		 FROM claim_meeting_links WHERE claim_id = ? ORDER BY created_at`,
		claimID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []fund.ClaimMeetingLink
	for rows.Next() {
		var (
			l         fund.ClaimMeetingLink
			decision  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.ClaimID, &l.MeetingID, &decision, &createdAt); err != nil {
			return nil, err
		}
		l.Decision = decision.String
		l.CreatedAt = parseTime(createdAt)
		links = append(links, l)
	}
	return links, rows.Err()
}

// =============================================================================
// APPEALS
// =============================================================================

// SaveAppeal inserts or updates an appeal row.
func (s *Store) SaveAppeal(ctx context.Context, a *fund.ClaimAppeal) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO claim_appeals (id, claim_id, filed_by, reason, status, resolved_by, resolution, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			resolved_by = excluded.resolved_by,
			resolution = excluded.resolution,
			resolved_at = excluded.resolved_at`,
		a.ID, a.ClaimID, a.FiledBy, a.Reason, a.Status,
		a.ResolvedBy, a.Resolution,
		formatTime(a.CreatedAt), formatTimePtr(a.ResolvedAt),
	)
	return err
}

// GetAppeal retrieves an appeal by ID, or nil when absent.
func (s *Store) GetAppeal(ctx context.Context, id fund.AppealID) (*fund.ClaimAppeal, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, claim_id, filed_by, reason, status, resolved_by, resolution, created_at, resolved_at
		 FROM claim_appeals WHERE id = ?`,
		id,
	)
	a, err := scanAppeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAppeals returns a claim's appeals, newest first.
func (s *Store) ListAppeals(ctx context.Context, claimID fund.ClaimID) ([]fund.ClaimAppeal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, claim_id, filed_by, reason, status, resolved_by, resolution, created_at, resolved_at
		 FROM claim_appeals WHERE claim_id = ? ORDER BY created_at DESC`,
		claimID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appeals []fund.ClaimAppeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		appeals = append(appeals, *a)
	}
	return appeals, rows.Err()
}

// HasPendingAppeal reports whether a pending appeal freezes the claim.
func (s *Store) HasPendingAppeal(ctx context.Context, claimID fund.ClaimID) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM claim_appeals WHERE claim_id = ? AND status = ?`,
		claimID, fund.AppealPending,
	).Scan(&count)
	return count > 0, err
}

func scanAppeal(row scanner) (*fund.ClaimAppeal, error) {
	var (
		a          fund.ClaimAppeal
		reason     sql.NullString
		resolvedBy sql.NullString
		resolution sql.NullString
		createdAt  string
		resolvedAt sql.NullString
	)
	if err := row.Scan(&a.ID, &a.ClaimID, &a.FiledBy, &reason, &a.Status, &resolvedBy, &resolution, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	a.Reason = reason.String
	a.ResolvedBy = fund.UserID(resolvedBy.String)
	a.Resolution = resolution.String
	a.CreatedAt = parseTime(createdAt)
	a.ResolvedAt = parseTimePtr(resolvedAt)
	return &a, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// SavePayment inserts or updates a payout record.
func (s *Store) SavePayment(ctx context.Context, p *fund.PaymentRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payment_records (id, claim_id, amount, transaction_ref, provider, status, recorded_by, reconciled_by, reconciled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			transaction_ref = excluded.transaction_ref,
			provider = excluded.provider,
			status = excluded.status,
			reconciled_by = excluded.reconciled_by,
			reconciled_at = excluded.reconciled_at`,
		p.ID, p.ClaimID, formatDecimal(p.Amount), p.TransactionRef, p.Provider,
		p.Status, p.RecordedBy, p.ReconciledBy,
		formatTimePtr(p.ReconciledAt), formatTime(p.CreatedAt),
	)
	return err
}

// GetPayment retrieves a payout record by ID, or nil when absent.
func (s *Store) GetPayment(ctx context.Context, id fund.PaymentID) (*fund.PaymentRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, claim_id, amount, transaction_ref, provider, status, recorded_by, reconciled_by, reconciled_at, created_at
		 FROM payment_records WHERE id = ?`,
		id,
	)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPayments returns a claim's payout records.
func (s *Store) ListPayments(ctx context.Context, claimID fund.ClaimID) ([]fund.PaymentRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, claim_id, amount, transaction_ref, provider, status, recorded_by, reconciled_by, reconciled_at, created_at
		 FROM payment_records WHERE claim_id = ? ORDER BY created_at`,
		claimID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []fund.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(row scanner) (*fund.PaymentRecord, error) {
	var (
		p            fund.PaymentRecord
		amount       string
		ref          sql.NullString
		provider     sql.NullString
		recordedBy   sql.NullString
		reconciledBy sql.NullString
		reconciledAt sql.NullString
		createdAt    string
	)
	if err := row.Scan(&p.ID, &p.ClaimID, &amount, &ref, &provider, &p.Status, &recordedBy, &reconciledBy, &reconciledAt, &createdAt); err != nil {
		return nil, err
	}
	p.Amount = parseDecimal(amount)
	p.TransactionRef = ref.String
	p.Provider = provider.String
	p.RecordedBy = fund.UserID(recordedBy.String)
	p.ReconciledBy = fund.UserID(reconciledBy.String)
	p.ReconciledAt = parseTimePtr(reconciledAt)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// =============================================================================
// AUDIT STORE (fund.AuditStore interface)
// =============================================================================

// AppendAudit persists an audit entry. Entries are never updated or deleted.
func (s *Store) AppendAudit(ctx context.Context, e fund.AuditEntry) error {
	metaJSON, _ := json.Marshal(e.Meta)
	beforeJSON, _ := json.Marshal(e.Before)
	afterJSON, _ := json.Marshal(e.After)

	var actorID any
	if e.ActorID != nil {
		actorID = string(*e.ActorID)
	}
	var meetingID any
	if e.MeetingID != "" {
		meetingID = string(e.MeetingID)
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, meta_json, before_json, after_json, meeting_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, actorID, e.Action, string(metaJSON), string(beforeJSON), string(afterJSON),
		meetingID, formatTime(e.CreatedAt),
	)
	return err
}

// QueryAudit returns audit entries matching the filter, newest first.
func (s *Store) QueryAudit(ctx context.Context, f fund.AuditFilter) ([]fund.AuditEntry, error) {
	query := `SELECT id, actor_id, action, meta_json, before_json, after_json, meeting_id, created_at
	          FROM audit_log WHERE 1=1`
	var args []any
	if f.ActorID != nil {
		query += ` AND actor_id = ?`
		args = append(args, string(*f.ActorID))
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	if f.ClaimID != "" {
		// Meta is small JSON; a LIKE over the claim_id key is adequate at
		// this scale. PostgreSQL would use a jsonb index instead.
		query += ` AND meta_json LIKE ?`
		args = append(args, `%"claim_id":"`+string(f.ClaimID)+`"%`)
	}
	if f.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*f.To))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fund.AuditEntry
	for rows.Next() {
		var (
			e          fund.AuditEntry
			actorID    sql.NullString
			metaJSON   sql.NullString
			beforeJSON sql.NullString
			afterJSON  sql.NullString
			meetingID  sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &metaJSON, &beforeJSON, &afterJSON, &meetingID, &createdAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			id := fund.UserID(actorID.String)
			e.ActorID = &id
		}
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			json.Unmarshal([]byte(metaJSON.String), &e.Meta)
		}
		if beforeJSON.Valid && beforeJSON.String != "" && beforeJSON.String != "null" {
			json.Unmarshal([]byte(beforeJSON.String), &e.Before)
		}
		if afterJSON.Valid && afterJSON.String != "" && afterJSON.String != "null" {
			json.Unmarshal([]byte(afterJSON.String), &e.After)
		}
		e.MeetingID = fund.MeetingID(meetingID.String)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
