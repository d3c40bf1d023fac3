package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/fund-engine/fund"
)

// =============================================================================
// CLAIM STORE (fund.ClaimStore interface)
// =============================================================================

const claimColumns = `id, member_id, type, date_of_first_visit, date_of_discharge,
	total_claimed, total_payable, member_payable, status, submitted_at, notes,
	details_json, excluded, override_amount, shif_number, oi_shif, oi_other,
	trustee_ratified, created_at`

// SaveClaim inserts or updates a claim row.
func (s *Store) SaveClaim(ctx context.Context, c *fund.Claim) error {
	details, err := fund.MarshalDetails(c.Details)
	if err != nil {
		return fmt.Errorf("failed to encode claim details: %w", err)
	}

	var override *string
	if c.OverrideAmount != nil {
		v := formatDecimal(*c.OverrideAmount)
		override = &v
	}

	query := `
		INSERT INTO claims (` + claimColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			date_of_first_visit = excluded.date_of_first_visit,
			date_of_discharge = excluded.date_of_discharge,
			total_claimed = excluded.total_claimed,
			total_payable = excluded.total_payable,
			member_payable = excluded.member_payable,
			status = excluded.status,
			submitted_at = excluded.submitted_at,
			notes = excluded.notes,
			details_json = excluded.details_json,
			excluded = excluded.excluded,
			override_amount = excluded.override_amount,
			shif_number = excluded.shif_number,
			oi_shif = excluded.oi_shif,
			oi_other = excluded.oi_other,
			trustee_ratified = excluded.trustee_ratified
	`

	_, err = s.q.ExecContext(ctx, query,
		c.ID, c.MemberID, c.Type,
		formatTimePtr(c.DateOfFirstVisit),
		formatTimePtr(c.DateOfDischarge),
		formatDecimal(c.TotalClaimed),
		formatDecimal(c.TotalPayable),
		formatDecimal(c.MemberPayable),
		c.Status,
		formatTimePtr(c.SubmittedAt),
		c.Notes,
		string(details),
		c.Excluded,
		override,
		c.SHIFNumber,
		formatDecimal(c.OtherInsurance.SHIF),
		formatDecimal(c.OtherInsurance.Other),
		c.TrusteeRatified,
		formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save claim: %w", err)
	}
	return nil
}

// GetClaim retrieves a claim by ID, or nil when absent.
func (s *Store) GetClaim(ctx context.Context, id fund.ClaimID) (*fund.Claim, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListClaims returns claims matching the filter, newest first.
func (s *Store) ListClaims(ctx context.Context, f fund.ClaimFilter) ([]fund.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE 1=1`
	var args []any
	if f.MemberID != "" {
		query += " AND member_id = ?"
		args = append(args, f.MemberID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Search != "" {
		query += " AND notes LIKE ?"
		args = append(args, "%"+f.Search+"%")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []fund.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// YearFundShare sums total_payable across the member's claims created in
// the given calendar year, excluding one claim.
func (s *Store) YearFundShare(ctx context.Context, memberID fund.MemberID, year int, exclude fund.ClaimID) (decimal.Decimal, error) {
	query := `
		SELECT total_payable FROM claims
		WHERE member_id = ?
		  AND id != ?
		  AND strftime('%Y', created_at) = ?
	`
	rows, err := s.q.QueryContext(ctx, query, memberID, exclude, fmt.Sprintf("%04d", year))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query year fund share: %w", err)
	}
	defer rows.Close()

	// Summed in Go rather than SQL: total_payable is stored as an exact
	// decimal string, which SQLite SUM would coerce to float.
	total := decimal.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(parseDecimal(v))
	}
	return total, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(row scanner) (*fund.Claim, error) {
	var (
		c          fund.Claim
		firstVisit sql.NullString
		discharge  sql.NullString
		claimed    string
		payable    string
		memberPay  string
		submitted  sql.NullString
		notes      sql.NullString
		details    sql.NullString
		override   sql.NullString
		shifNumber sql.NullString
		oiSHIF     string
		oiOther    string
		createdAt  string
	)

	err := row.Scan(
		&c.ID, &c.MemberID, &c.Type, &firstVisit, &discharge,
		&claimed, &payable, &memberPay, &c.Status, &submitted, &notes,
		&details, &c.Excluded, &override, &shifNumber, &oiSHIF, &oiOther,
		&c.TrusteeRatified, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.DateOfFirstVisit = parseTimePtr(firstVisit)
	c.DateOfDischarge = parseTimePtr(discharge)
	c.TotalClaimed = parseDecimal(claimed)
	c.TotalPayable = parseDecimal(payable)
	c.MemberPayable = parseDecimal(memberPay)
	c.SubmittedAt = parseTimePtr(submitted)
	c.Notes = notes.String
	c.OverrideAmount = parseDecimalPtr(override)
	c.SHIFNumber = shifNumber.String
	c.OtherInsurance = fund.OtherInsurance{SHIF: parseDecimal(oiSHIF), Other: parseDecimal(oiOther)}
	c.CreatedAt = parseTime(createdAt)

	if details.Valid {
		d, err := fund.UnmarshalDetails([]byte(details.String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode claim details: %w", err)
		}
		c.Details = d
	}
	return &c, nil
}

// =============================================================================
// CLAIM ITEMS
// =============================================================================

// SaveItem inserts or updates an itemized line.
func (s *Store) SaveItem(ctx context.Context, it *fund.ClaimItem) error {
	query := `
		INSERT INTO claim_items (id, claim_id, category, description, amount, quantity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			description = excluded.description,
			amount = excluded.amount,
			quantity = excluded.quantity
	`
	_, err := s.q.ExecContext(ctx, query,
		it.ID, it.ClaimID, it.Category, it.Description,
		formatDecimal(it.Amount), it.Quantity,
	)
	return err
}

// GetItem retrieves one itemized line, or nil when absent.
func (s *Store) GetItem(ctx context.Context, id string) (*fund.ClaimItem, error) {
	var (
		it       fund.ClaimItem
		category sql.NullString
		desc     sql.NullString
		amount   string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, claim_id, category, description, amount, quantity FROM claim_items WHERE id = ?`,
		id,
	).Scan(&it.ID, &it.ClaimID, &category, &desc, &amount, &it.Quantity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.Category = category.String
	it.Description = desc.String
	it.Amount = parseDecimal(amount)
	return &it, nil
}

// DeleteItem removes an itemized line.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM claim_items WHERE id = ?`, id)
	return err
}

// ListItems returns a claim's itemized lines.
func (s *Store) ListItems(ctx context.Context, claimID fund.ClaimID) ([]fund.ClaimItem, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, claim_id, category, description, amount, quantity
		 FROM claim_items WHERE claim_id = ? ORDER BY id`,
		claimID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []fund.ClaimItem
	for rows.Next() {
		var (
			it       fund.ClaimItem
			category sql.NullString
			desc     sql.NullString
			amount   string
		)
		if err := rows.Scan(&it.ID, &it.ClaimID, &category, &desc, &amount, &it.Quantity); err != nil {
			return nil, err
		}
		it.Category = category.String
		it.Description = desc.String
		it.Amount = parseDecimal(amount)
		items = append(items, it)
	}
	return items, rows.Err()
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// SaveAttachment registers attachment metadata.
func (s *Store) SaveAttachment(ctx context.Context, a *fund.ClaimAttachment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO claim_attachments (id, claim_id, uploaded_by, file_name, content_type, size_bytes, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClaimID, a.UploadedBy, a.FileName, a.ContentType, a.SizeBytes,
		formatTime(a.UploadedAt),
	)
	return err
}

// ListAttachments returns a claim's attachment metadata.
func (s *Store) ListAttachments(ctx context.Context, claimID fund.ClaimID) ([]fund.ClaimAttachment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, claim_id, uploaded_by, file_name, content_type, size_bytes, uploaded_at
		 FROM claim_attachments WHERE claim_id = ? ORDER BY uploaded_at`,
		claimID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []fund.ClaimAttachment
	for rows.Next() {
		var (
			a           fund.ClaimAttachment
			uploadedBy  sql.NullString
			contentType sql.NullString
			uploadedAt  string
		)
		if err := rows.Scan(&a.ID, &a.ClaimID, &uploadedBy, &a.FileName, &contentType, &a.SizeBytes, &uploadedAt); err != nil {
			return nil, err
		}
		a.UploadedBy = fund.UserID(uploadedBy.String)
		a.ContentType = contentType.String
		a.UploadedAt = parseTime(uploadedAt)
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// =============================================================================
// REVIEWS & FINGERPRINTS (append-only)
// =============================================================================

// AppendReview persists a review. Reviews are never updated or deleted.
func (s *Store) AppendReview(ctx context.Context, r *fund.ClaimReview) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO claim_reviews (id, claim_id, reviewer_id, role, action, note, byelaw_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClaimID, r.ReviewerID, r.Role, r.Action, r.Note, r.ByelawRef,
		formatTime(r.CreatedAt),
	)
	return err
}

// ListReviews returns a claim's reviews, oldest first.
func (s *Store) ListReviews(ctx context.Context, claimID fund.ClaimID) ([]fund.ClaimReview, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, claim_id, reviewer_id, role, action, note, byelaw_ref, created_at
		 FROM claim_reviews WHERE claim_id = ? ORDER BY created_at ASC`,
		claimID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []fund.ClaimReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// LatestReview returns the most recent review with the given action, or nil.
func (s *Store) LatestReview(ctx context.Context, claimID fund.ClaimID, action fund.ReviewAction) (*fund.ClaimReview, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, claim_id, reviewer_id, role, action, note, byelaw_ref, created_at
		 FROM claim_reviews WHERE claim_id = ? AND action = ?
		 ORDER BY created_at DESC LIMIT 1`,
		claimID, action,
	)
	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanReview(row scanner) (*fund.ClaimReview, error) {
	var (
		r         fund.ClaimReview
		note      sql.NullString
		byelawRef sql.NullString
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.ClaimID, &r.ReviewerID, &r.Role, &r.Action, &note, &byelawRef, &createdAt); err != nil {
		return nil, err
	}
	r.Note = note.String
	r.ByelawRef = byelawRef.String
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// FindFingerprint returns the fingerprint row matching the hash, or nil.
func (s *Store) FindFingerprint(ctx context.Context, hash string) (*fund.ClaimFingerprint, error) {
	var (
		fp        fund.ClaimFingerprint
		createdAt string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT claim_id, member_id, hash, created_at FROM claim_fingerprints WHERE hash = ?`,
		hash,
	).Scan(&fp.ClaimID, &fp.MemberID, &fp.Hash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fp.CreatedAt = parseTime(createdAt)
	return &fp, nil
}

// SaveFingerprint registers a claim's fingerprint. Idempotent per claim;
// a hash collision with a different claim surfaces as a duplicate error.
func (s *Store) SaveFingerprint(ctx context.Context, fp *fund.ClaimFingerprint) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO claim_fingerprints (claim_id, member_id, hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
			hash = excluded.hash,
			member_id = excluded.member_id`,
		fp.ClaimID, fp.MemberID, fp.Hash, formatTime(fp.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		existing, lookupErr := s.FindFingerprint(ctx, fp.Hash)
		if lookupErr == nil && existing != nil {
			return &fund.DuplicateClaimError{Hash: fp.Hash, ExistingClaimID: existing.ClaimID}
		}
		return &fund.DuplicateClaimError{Hash: fp.Hash}
	}
	return err
}
