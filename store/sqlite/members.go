package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// MEMBER STORE (fund.MemberStore interface)
// =============================================================================

const memberColumns = `id, user_id, membership_type_key, status, valid_from,
	valid_to, benefits_from, full_name, mailing_address, phone_mobile,
	shif_number, other_scheme, created_at, updated_at`

// SaveMember inserts or updates a member row.
func (s *Store) SaveMember(ctx context.Context, m *fund.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			membership_type_key = excluded.membership_type_key,
			status = excluded.status,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			benefits_from = excluded.benefits_from,
			full_name = excluded.full_name,
			mailing_address = excluded.mailing_address,
			phone_mobile = excluded.phone_mobile,
			shif_number = excluded.shif_number,
			other_scheme = excluded.other_scheme,
			updated_at = excluded.updated_at
	`
	_, err := s.q.ExecContext(ctx, query,
		m.ID, m.UserID, m.MembershipTypeKey, m.Status,
		formatTimePtr(m.ValidFrom), formatTimePtr(m.ValidTo), formatTimePtr(m.BenefitsFrom),
		m.FullName, m.MailingAddress, m.PhoneMobile, m.SHIFNumber, m.OtherScheme,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	return err
}

// GetMember retrieves a member by ID, or nil when absent.
func (s *Store) GetMember(ctx context.Context, id fund.MemberID) (*fund.Member, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMemberByUser retrieves the member record owned by a user, or nil.
func (s *Store) GetMemberByUser(ctx context.Context, userID fund.UserID) (*fund.Member, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers returns members, optionally filtered by status ("" = all).
func (s *Store) ListMembers(ctx context.Context, status fund.MemberStatus) ([]fund.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY full_name`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []fund.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func scanMember(row scanner) (*fund.Member, error) {
	var (
		m            fund.Member
		validFrom    sql.NullString
		validTo      sql.NullString
		benefitsFrom sql.NullString
		mailing      sql.NullString
		phone        sql.NullString
		shif         sql.NullString
		other        sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.MembershipTypeKey, &m.Status,
		&validFrom, &validTo, &benefitsFrom,
		&m.FullName, &mailing, &phone, &shif, &other,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ValidFrom = parseTimePtr(validFrom)
	m.ValidTo = parseTimePtr(validTo)
	m.BenefitsFrom = parseTimePtr(benefitsFrom)
	m.MailingAddress = mailing.String
	m.PhoneMobile = phone.String
	m.SHIFNumber = shif.String
	m.OtherScheme = other.String
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

// =============================================================================
// DEPENDANTS
// =============================================================================

// SaveDependant inserts or updates a dependant row.
func (s *Store) SaveDependant(ctx context.Context, d *fund.MemberDependant) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO member_dependants (id, member_id, full_name, date_of_birth, blood_group, id_number, relationship, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			date_of_birth = excluded.date_of_birth,
			blood_group = excluded.blood_group,
			id_number = excluded.id_number,
			relationship = excluded.relationship`,
		d.ID, d.MemberID, d.FullName, formatTimePtr(d.DateOfBirth),
		d.BloodGroup, d.IDNumber, d.Relationship, formatTime(d.CreatedAt),
	)
	return err
}

// ListDependants returns a member's dependants.
func (s *Store) ListDependants(ctx context.Context, memberID fund.MemberID) ([]fund.MemberDependant, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, member_id, full_name, date_of_birth, blood_group, id_number, relationship, created_at
		 FROM member_dependants WHERE member_id = ? ORDER BY full_name`,
		memberID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dependants []fund.MemberDependant
	for rows.Next() {
		var (
			d            fund.MemberDependant
			dob          sql.NullString
			bloodGroup   sql.NullString
			idNumber     sql.NullString
			relationship sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&d.ID, &d.MemberID, &d.FullName, &dob, &bloodGroup, &idNumber, &relationship, &createdAt); err != nil {
			return nil, err
		}
		d.DateOfBirth = parseTimePtr(dob)
		d.BloodGroup = bloodGroup.String
		d.IDNumber = idNumber.String
		d.Relationship = relationship.String
		d.CreatedAt = parseTime(createdAt)
		dependants = append(dependants, d)
	}
	return dependants, rows.Err()
}

// =============================================================================
// MEMBERSHIP TYPES
// =============================================================================

// SaveMembershipType upserts a membership tier.
func (s *Store) SaveMembershipType(ctx context.Context, t *fund.MembershipType) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO membership_types (key, name, entry_fee, term_years, annual_limit, fund_share_percent, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			entry_fee = excluded.entry_fee,
			term_years = excluded.term_years,
			annual_limit = excluded.annual_limit,
			fund_share_percent = excluded.fund_share_percent,
			notes = excluded.notes`,
		t.Key, t.Name, formatDecimal(t.EntryFee), t.TermYears,
		formatDecimal(t.AnnualLimit), formatDecimal(t.FundSharePercent), t.Notes,
	)
	return err
}

// GetMembershipType retrieves a tier by key, or nil when absent.
func (s *Store) GetMembershipType(ctx context.Context, key string) (*fund.MembershipType, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT key, name, entry_fee, term_years, annual_limit, fund_share_percent, notes
		 FROM membership_types WHERE key = ?`,
		key,
	)
	t, err := scanMembershipType(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListMembershipTypes returns all tiers.
func (s *Store) ListMembershipTypes(ctx context.Context) ([]fund.MembershipType, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT key, name, entry_fee, term_years, annual_limit, fund_share_percent, notes
		 FROM membership_types ORDER BY key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []fund.MembershipType
	for rows.Next() {
		t, err := scanMembershipType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *t)
	}
	return types, rows.Err()
}

func scanMembershipType(row scanner) (*fund.MembershipType, error) {
	var (
		t        fund.MembershipType
		entryFee string
		limit    string
		share    string
		notes    sql.NullString
	)
	if err := row.Scan(&t.Key, &t.Name, &entryFee, &t.TermYears, &limit, &share, &notes); err != nil {
		return nil, err
	}
	t.EntryFee = parseDecimal(entryFee)
	t.AnnualLimit = parseDecimal(limit)
	t.FundSharePercent = parseDecimal(share)
	t.Notes = notes.String
	return &t, nil
}

// =============================================================================
// REFERENCE STORE (fund.ReferenceStore interface)
// =============================================================================

// SaveScale upserts a per-category reimbursement split.
func (s *Store) SaveScale(ctx context.Context, sc *fund.ReimbursementScale) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reimbursement_scales (category, fund_share, member_share, ceiling)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			fund_share = excluded.fund_share,
			member_share = excluded.member_share,
			ceiling = excluded.ceiling`,
		sc.Category, formatDecimal(sc.FundShare),
		formatDecimal(sc.MemberShare), formatDecimal(sc.Ceiling),
	)
	return err
}

// ListScales returns all configured splits.
func (s *Store) ListScales(ctx context.Context) ([]fund.ReimbursementScale, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT category, fund_share, member_share, ceiling FROM reimbursement_scales ORDER BY category`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scales []fund.ReimbursementScale
	for rows.Next() {
		var (
			sc          fund.ReimbursementScale
			fundShare   string
			memberShare string
			ceiling     string
		)
		if err := rows.Scan(&sc.Category, &fundShare, &memberShare, &ceiling); err != nil {
			return nil, err
		}
		sc.FundShare = parseDecimal(fundShare)
		sc.MemberShare = parseDecimal(memberShare)
		sc.Ceiling = parseDecimal(ceiling)
		scales = append(scales, sc)
	}
	return scales, rows.Err()
}

// GetSetting returns the raw value for a key, or nil when absent.
func (s *Store) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := s.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// PutSetting upserts a settings value.
func (s *Store) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value),
	)
	return err
}
