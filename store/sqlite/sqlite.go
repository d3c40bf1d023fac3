/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements fund.TxStore using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  fund.Store:   claims, members, reference data, reviews, fingerprints,
                governance and the audit trail
  fund.TxStore: WithTx wraps a function in one database transaction

APPEND-ONLY ENFORCEMENT:
  claim_reviews, claim_fingerprints and audit_log have INSERT paths only.
  No UPDATE or DELETE statements exist for them; history is reconstructed
  from these tables, since claim rows only reflect current state.

KEY TABLES:
  claims:             current claim state with computed totals
  claim_items:        itemized lines, authoritative for the claim total
  claim_fingerprints: duplicate-detection hashes, unique-indexed
  claim_reviews:      immutable committee decision records
  audit_log:          append-only trail of every successful state change

INDEXES:
  - idx_fingerprints_hash (UNIQUE): duplicate claim rejection
  - idx_claims_member_year: the annual-limit SUM aggregate (hot path)
  - idx_reviews_claim_action: reconciliation approver lookup

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers do not block, single writer at a time. A mutex
  serializes WithTx writers on top of that.

USAGE:
  store, err := sqlite.New("./data/fund.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := claims.NewService(store, nil, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fund/store.go: interface definitions
  - fund/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/fund-engine/fund"
)

// dbtx abstracts *sql.DB and *sql.Tx so every query method works both
// standalone and inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements fund.TxStore using SQLite.
type Store struct {
	db *sql.DB // nil on transaction-bound child stores
	q  dbtx
	mu *sync.Mutex
}

var _ fund.TxStore = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, q: db, mu: &sync.Mutex{}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within one database transaction. The store passed to
// fn is bound to that transaction; any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(store fund.Store) error) error {
	if s.db == nil {
		// Already inside a transaction; run against it directly.
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{q: sqlTx, mu: s.mu}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Key/value settings (general_limits lives here)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Membership tiers (reference data)
	CREATE TABLE IF NOT EXISTS membership_types (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		entry_fee TEXT NOT NULL,
		term_years INTEGER NOT NULL DEFAULT 0,
		annual_limit TEXT NOT NULL,
		fund_share_percent TEXT NOT NULL,
		notes TEXT
	);

	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		membership_type_key TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		valid_from TEXT,
		valid_to TEXT,
		benefits_from TEXT,
		full_name TEXT NOT NULL,
		mailing_address TEXT,
		phone_mobile TEXT,
		shif_number TEXT,
		other_scheme TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_user ON members(user_id);
	CREATE INDEX IF NOT EXISTS idx_members_status ON members(status);

	CREATE TABLE IF NOT EXISTS member_dependants (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		full_name TEXT NOT NULL,
		date_of_birth TEXT,
		blood_group TEXT,
		id_number TEXT,
		relationship TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dependants_member ON member_dependants(member_id);

	-- Per-category reimbursement splits
	CREATE TABLE IF NOT EXISTS reimbursement_scales (
		category TEXT PRIMARY KEY COLLATE NOCASE,
		fund_share TEXT NOT NULL,
		member_share TEXT NOT NULL,
		ceiling TEXT NOT NULL
	);

	-- Claims (current state; history lives in audit_log)
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		type TEXT NOT NULL,
		date_of_first_visit TEXT,
		date_of_discharge TEXT,
		total_claimed TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		member_payable TEXT NOT NULL,
		status TEXT NOT NULL,
		submitted_at TEXT,
		notes TEXT,
		details_json TEXT,
		excluded BOOLEAN NOT NULL DEFAULT FALSE,
		override_amount TEXT,
		shif_number TEXT,
		oi_shif TEXT NOT NULL DEFAULT '0',
		oi_other TEXT NOT NULL DEFAULT '0',
		trustee_ratified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_member ON claims(member_id);
	CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);

	-- Annual-limit aggregate (hot path)
	CREATE INDEX IF NOT EXISTS idx_claims_member_year
		ON claims(member_id, created_at);

	CREATE TABLE IF NOT EXISTS claim_items (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		category TEXT,
		description TEXT,
		amount TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_items_claim ON claim_items(claim_id);

	-- Committee decisions (append-only)
	CREATE TABLE IF NOT EXISTS claim_reviews (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		reviewer_id TEXT NOT NULL,
		role TEXT NOT NULL,
		action TEXT NOT NULL,
		note TEXT,
		byelaw_ref TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_claim ON claim_reviews(claim_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_claim_action
		ON claim_reviews(claim_id, action, created_at DESC);

	-- CRITICAL: the unique hash rejects duplicate submissions
	CREATE TABLE IF NOT EXISTS claim_fingerprints (
		claim_id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_fingerprints_hash
		ON claim_fingerprints(hash);

	CREATE TABLE IF NOT EXISTS claim_attachments (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		uploaded_by TEXT,
		file_name TEXT NOT NULL,
		content_type TEXT,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		uploaded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attachments_claim ON claim_attachments(claim_id);

	-- Governance
	CREATE TABLE IF NOT EXISTS committee_meetings (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT,
		held_on TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meeting_attendance (
		id TEXT PRIMARY KEY,
		meeting_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		present BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_meeting ON meeting_attendance(meeting_id);

	CREATE TABLE IF NOT EXISTS claim_meeting_links (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		meeting_id TEXT NOT NULL,
		decision TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_meeting_links_claim ON claim_meeting_links(claim_id);

	CREATE TABLE IF NOT EXISTS claim_appeals (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		filed_by TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		resolved_by TEXT,
		resolution TEXT,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_appeals_claim_status ON claim_appeals(claim_id, status);

	CREATE TABLE IF NOT EXISTS payment_records (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		transaction_ref TEXT,
		provider TEXT,
		status TEXT NOT NULL,
		recorded_by TEXT,
		reconciled_by TEXT,
		reconciled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_claim ON payment_records(claim_id);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		actor_id TEXT,
		action TEXT NOT NULL,
		meta_json TEXT,
		before_json TEXT,
		after_json TEXT,
		meeting_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCAN/FORMAT HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func formatDecimal(d decimal.Decimal) string {
	return d.String()
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDecimalPtr(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d := parseDecimal(ns.String)
	return &d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
