/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence interfaces of the leave engine using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  leave.Store / leave.TxStore:  Ledger entries, requests, grants
  leave.EmployeeDirectory:      Employee lookup
  leave.CatalogSource:          Leave types, policies, policy rules
  leave.HolidaySource:          Holiday calendar

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table has no UPDATE or DELETE path. Corrections enter
  as reversal or counter-grant entries only.

KEY TABLES:
  ledger_entries:     Immutable ledger of all balance changes
  leave_requests:     Request state machine rows (guarded updates only)
  leave_grants:       Immutable manual adjustments
  leave_policies,
  leave_policy_rules: Policy configuration
  leave_types:        Leave type reference data
  employees:          Directory records
  holidays:           Non-working dates

INDEXES:
  - idx_entries_employee_type_cycle: per-cycle balance sums (hot path)
  - idx_entries_idempotency: UNIQUE, the accrual re-run guard
  - idx_requests_employee_span: overlap checks

CONCURRENCY:
  A sync.RWMutex serializes writers on top of SQLite's own locking. The
  guarded UPDATE on leave_requests carries the expected status in its
  WHERE clause, so a lost race surfaces as zero rows affected rather than
  a silent overwrite.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers do not block
  behind the single writer.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := leave.NewBalanceLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/ledger.go: Balance computation over Store
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/leave"
)

const (
	dateFormat = "2006-01-02"
)

// Store implements the leave engine's storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ leave.TxStore = (*Store)(nil)
var _ leave.EmployeeDirectory = (*Store)(nil)
var _ leave.CatalogSource = (*Store)(nil)
var _ leave.HolidaySource = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		cycle_start TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta TEXT NOT NULL,
		kind TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Per-cycle balance sums (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_employee_type_cycle
		ON ledger_entries(employee_id, leave_type_id, cycle_start);
	CREATE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_reference
		ON ledger_entries(reference_id) WHERE reference_id IS NOT NULL;

	-- Leave types (reference data)
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT TRUE,
		applicable_gender TEXT NOT NULL DEFAULT 'all',
		requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
		auto_approve BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Leave policies
	CREATE TABLE IF NOT EXISTS leave_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		joining_category TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_category_status
		ON leave_policies(joining_category, status);

	-- Policy rules, keyed by (policy, leave type)
	CREATE TABLE IF NOT EXISTS leave_policy_rules (
		policy_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		annual_days TEXT NOT NULL,
		accrual_frequency TEXT NOT NULL,
		available_during_probation BOOLEAN NOT NULL DEFAULT FALSE,
		allow_partial_leave BOOLEAN NOT NULL DEFAULT FALSE,
		carry_forward_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		max_carry_forward TEXT NOT NULL DEFAULT '0',
		requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
		auto_approve BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (policy_id, leave_type_id)
	);

	-- Employees (directory records)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT 'all',
		joining_category TEXT NOT NULL,
		date_of_joining TEXT NOT NULL,
		probation_end TEXT,
		leave_policy_id TEXT,
		created_at TEXT NOT NULL
	);

	-- Leave requests (workflow state machine)
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		requested_days TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		approved_start TEXT,
		approved_end TEXT,
		approved_days TEXT,
		decided_by TEXT,
		decided_at TEXT,
		decision_note TEXT,
		withdrawn_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_employee_span
		ON leave_requests(employee_id, start_date, end_date);

	-- Manual grants (immutable)
	CREATE TABLE IF NOT EXISTS leave_grants (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		days TEXT NOT NULL,
		reason TEXT,
		granted_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_grants_employee
		ON leave_grants(employee_id, created_at DESC);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER ENTRIES (leave.Store interface)
// =============================================================================

// AppendEntry adds one entry to the ledger.
func (s *Store) AppendEntry(ctx context.Context, e leave.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db dbtx, e leave.Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, employee_id, leave_type_id, cycle_start, effective_at, delta, kind,
		 reference_id, reason, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.EmployeeID,
		e.LeaveTypeID,
		e.CycleStart.Format(dateFormat),
		e.EffectiveAt.Format(dateFormat),
		e.Delta.String(),
		e.Kind,
		nullString(e.ReferenceID),
		nullString(e.Reason),
		nullString(e.IdempotencyKey),
		nullString(e.CreatedBy),
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// AppendEntries adds multiple entries atomically.
func (s *Store) AppendEntries(ctx context.Context, es []leave.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range es {
		if err := appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

const entryColumns = `id, employee_id, leave_type_id, cycle_start, effective_at, delta, kind,
	reference_id, reason, idempotency_key, created_by, created_at`

// Entries returns all entries for (employee, leave type).
func (s *Store) Entries(ctx context.Context, emp leave.EmployeeID, lt leave.LeaveTypeID) ([]leave.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ?
		ORDER BY effective_at ASC, created_at ASC`, emp, lt)
}

// EntriesInCycle returns the entries belonging to one accrual cycle.
func (s *Store) EntriesInCycle(ctx context.Context, emp leave.EmployeeID, lt leave.LeaveTypeID, cycleStart time.Time) ([]leave.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesInCycle(ctx, s.db, emp, lt, cycleStart)
}

func entriesInCycle(ctx context.Context, db dbtx, emp leave.EmployeeID, lt leave.LeaveTypeID, cycleStart time.Time) ([]leave.Entry, error) {
	return queryEntries(ctx, db, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ? AND cycle_start = ?
		ORDER BY effective_at ASC, created_at ASC`,
		emp, lt, cycleStart.Format(dateFormat))
}

// EntryExists checks an idempotency key.
func (s *Store) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entryExists(ctx, s.db, idempotencyKey)
}

func entryExists(ctx context.Context, db dbtx, key string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

func queryEntries(ctx context.Context, db dbtx, query string, args ...any) ([]leave.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []leave.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (leave.Entry, error) {
	var (
		e              leave.Entry
		cycleStart     string
		effectiveAt    string
		delta          string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&e.ID, &e.EmployeeID, &e.LeaveTypeID, &cycleStart, &effectiveAt,
		&delta, &e.Kind, &referenceID, &reason, &idempotencyKey, &createdBy, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.CycleStart, _ = time.Parse(dateFormat, cycleStart)
	e.EffectiveAt, _ = time.Parse(dateFormat, effectiveAt)
	e.Delta, err = leave.ParseDays(delta)
	if err != nil {
		return e, fmt.Errorf("corrupt delta %q on entry %s: %w", delta, e.ID, err)
	}
	e.ReferenceID = referenceID.String
	e.Reason = reason.String
	e.IdempotencyKey = idempotencyKey.String
	e.CreatedBy = createdBy.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return e, nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// InsertRequest persists a new leave request.
func (s *Store) InsertRequest(ctx context.Context, r leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRequest(ctx, s.db, r)
}

func insertRequest(ctx context.Context, db dbtx, r leave.Request) error {
	query := `
		INSERT INTO leave_requests
		(id, employee_id, leave_type_id, start_date, end_date, requested_days,
		 reason, status, approved_start, approved_end, approved_days,
		 decided_by, decided_at, decision_note, withdrawn_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		r.ID, r.EmployeeID, r.LeaveTypeID,
		r.StartDate.Format(dateFormat),
		r.EndDate.Format(dateFormat),
		r.RequestedDays.String(),
		nullString(r.Reason),
		r.Status,
		nullDate(r.ApprovedStart),
		nullDate(r.ApprovedEnd),
		nullDays(r.ApprovedDays),
		nullString(r.DecidedBy),
		nullTimestamp(r.DecidedAt),
		nullString(r.DecisionNote),
		nullTimestamp(r.WithdrawnAt),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

const requestColumns = `id, employee_id, leave_type_id, start_date, end_date, requested_days,
	reason, status, approved_start, approved_end, approved_days,
	decided_by, decided_at, decision_note, withdrawn_at, created_at, updated_at`

// GetRequest returns a request or leave.ErrRequestNotFound.
func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, db dbtx, id leave.RequestID) (*leave.Request, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query request: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, leave.ErrRequestNotFound
	}
	r, err := scanRequest(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RequestsByEmployee returns the employee's request history, newest first.
func (s *Store) RequestsByEmployee(ctx context.Context, emp leave.EmployeeID) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRequests(ctx, s.db, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE employee_id = ?
		ORDER BY created_at DESC`, emp)
}

// PendingRequests returns the approver queue, oldest first.
func (s *Store) PendingRequests(ctx context.Context) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRequests(ctx, s.db, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
}

// OverlappingRequests returns open requests whose span intersects
// [start, end]. Approved requests are matched on their approved span.
func (s *Store) OverlappingRequests(ctx context.Context, emp leave.EmployeeID, start, end time.Time) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return overlappingRequests(ctx, s.db, emp, start, end)
}

func overlappingRequests(ctx context.Context, db dbtx, emp leave.EmployeeID, start, end time.Time) ([]leave.Request, error) {
	from, to := start.Format(dateFormat), end.Format(dateFormat)
	return queryRequests(ctx, db, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE employee_id = ?
		  AND withdrawn_at IS NULL
		  AND (
		    (status = 'pending' AND start_date <= ? AND end_date >= ?)
		    OR
		    (status = 'approved' AND approved_start <= ? AND approved_end >= ?)
		  )
		ORDER BY start_date ASC`,
		emp, to, from, to, from)
}

// UpdateRequest applies a transition guarded on the current status.
func (s *Store) UpdateRequest(ctx context.Context, r leave.Request, from leave.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRequest(ctx, s.db, r, from)
}

func updateRequest(ctx context.Context, db dbtx, r leave.Request, from leave.RequestStatus) error {
	query := `
		UPDATE leave_requests SET
			status = ?,
			approved_start = ?,
			approved_end = ?,
			approved_days = ?,
			decided_by = ?,
			decided_at = ?,
			decision_note = ?,
			withdrawn_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ? AND withdrawn_at IS NULL
	`

	res, err := db.ExecContext(ctx, query,
		r.Status,
		nullDate(r.ApprovedStart),
		nullDate(r.ApprovedEnd),
		nullDays(r.ApprovedDays),
		nullString(r.DecidedBy),
		nullTimestamp(r.DecidedAt),
		nullString(r.DecisionNote),
		nullTimestamp(r.WithdrawnAt),
		r.UpdatedAt.UTC().Format(time.RFC3339),
		r.ID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return leave.ErrConcurrentModification
	}
	return nil
}

func queryRequests(ctx context.Context, db dbtx, query string, args ...any) ([]leave.Request, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(rows *sql.Rows) (leave.Request, error) {
	var (
		r             leave.Request
		startDate     string
		endDate       string
		requestedDays string
		reason        sql.NullString
		approvedStart sql.NullString
		approvedEnd   sql.NullString
		approvedDays  sql.NullString
		decidedBy     sql.NullString
		decidedAt     sql.NullString
		decisionNote  sql.NullString
		withdrawnAt   sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := rows.Scan(
		&r.ID, &r.EmployeeID, &r.LeaveTypeID, &startDate, &endDate, &requestedDays,
		&reason, &r.Status, &approvedStart, &approvedEnd, &approvedDays,
		&decidedBy, &decidedAt, &decisionNote, &withdrawnAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan request: %w", err)
	}

	r.StartDate, _ = time.Parse(dateFormat, startDate)
	r.EndDate, _ = time.Parse(dateFormat, endDate)
	r.RequestedDays, err = leave.ParseDays(requestedDays)
	if err != nil {
		return r, fmt.Errorf("corrupt requested_days on request %s: %w", r.ID, err)
	}
	r.Reason = reason.String
	if approvedStart.Valid {
		r.ApprovedStart, _ = time.Parse(dateFormat, approvedStart.String)
	}
	if approvedEnd.Valid {
		r.ApprovedEnd, _ = time.Parse(dateFormat, approvedEnd.String)
	}
	if approvedDays.Valid {
		r.ApprovedDays, _ = leave.ParseDays(approvedDays.String)
	}
	r.DecidedBy = decidedBy.String
	if decidedAt.Valid {
		t, _ := time.Parse(time.RFC3339, decidedAt.String)
		r.DecidedAt = &t
	}
	r.DecisionNote = decisionNote.String
	if withdrawnAt.Valid {
		t, _ := time.Parse(time.RFC3339, withdrawnAt.String)
		r.WithdrawnAt = &t
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return r, nil
}

// =============================================================================
// GRANTS
// =============================================================================

// InsertGrant persists an immutable manual grant record.
func (s *Store) InsertGrant(ctx context.Context, g leave.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertGrant(ctx, s.db, g)
}

func insertGrant(ctx context.Context, db dbtx, g leave.Grant) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO leave_grants (id, employee_id, leave_type_id, days, reason, granted_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.EmployeeID, g.LeaveTypeID, g.Days.String(),
		nullString(g.Reason), g.GrantedBy,
		g.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

// GrantsByEmployee returns the employee's grant history, newest first.
func (s *Store) GrantsByEmployee(ctx context.Context, emp leave.EmployeeID) ([]leave.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return grantsByEmployee(ctx, s.db, emp)
}

func grantsByEmployee(ctx context.Context, db dbtx, emp leave.EmployeeID) ([]leave.Grant, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, employee_id, leave_type_id, days, reason, granted_by, created_at
		FROM leave_grants WHERE employee_id = ? ORDER BY created_at DESC`, emp)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []leave.Grant
	for rows.Next() {
		var (
			g         leave.Grant
			days      string
			reason    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&g.ID, &g.EmployeeID, &g.LeaveTypeID, &days, &reason, &g.GrantedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.Days, err = leave.ParseDays(days)
		if err != nil {
			return nil, fmt.Errorf("corrupt days on grant %s: %w", g.ID, err)
		}
		g.Reason = reason.String
		g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes fn within one database transaction. The store passed to
// fn routes every call through that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes Store calls through an open transaction. It holds no
// locks of its own; WithTx already holds the store mutex.
type txStore struct {
	tx *sql.Tx
}

var _ leave.Store = (*txStore)(nil)

func (ts *txStore) AppendEntry(ctx context.Context, e leave.Entry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) AppendEntries(ctx context.Context, es []leave.Entry) error {
	for _, e := range es {
		if err := appendEntry(ctx, ts.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Entries(ctx context.Context, emp leave.EmployeeID, lt leave.LeaveTypeID) ([]leave.Entry, error) {
	return queryEntries(ctx, ts.tx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ?
		ORDER BY effective_at ASC, created_at ASC`, emp, lt)
}

func (ts *txStore) EntriesInCycle(ctx context.Context, emp leave.EmployeeID, lt leave.LeaveTypeID, cycleStart time.Time) ([]leave.Entry, error) {
	return entriesInCycle(ctx, ts.tx, emp, lt, cycleStart)
}

func (ts *txStore) EntryExists(ctx context.Context, key string) (bool, error) {
	return entryExists(ctx, ts.tx, key)
}

func (ts *txStore) InsertRequest(ctx context.Context, r leave.Request) error {
	return insertRequest(ctx, ts.tx, r)
}

func (ts *txStore) GetRequest(ctx context.Context, id leave.RequestID) (*leave.Request, error) {
	return getRequest(ctx, ts.tx, id)
}

func (ts *txStore) RequestsByEmployee(ctx context.Context, emp leave.EmployeeID) ([]leave.Request, error) {
	return queryRequests(ctx, ts.tx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE employee_id = ?
		ORDER BY created_at DESC`, emp)
}

func (ts *txStore) PendingRequests(ctx context.Context) ([]leave.Request, error) {
	return queryRequests(ctx, ts.tx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
}

func (ts *txStore) OverlappingRequests(ctx context.Context, emp leave.EmployeeID, start, end time.Time) ([]leave.Request, error) {
	return overlappingRequests(ctx, ts.tx, emp, start, end)
}

func (ts *txStore) UpdateRequest(ctx context.Context, r leave.Request, from leave.RequestStatus) error {
	return updateRequest(ctx, ts.tx, r, from)
}

func (ts *txStore) InsertGrant(ctx context.Context, g leave.Grant) error {
	return insertGrant(ctx, ts.tx, g)
}

func (ts *txStore) GrantsByEmployee(ctx context.Context, emp leave.EmployeeID) ([]leave.Grant, error) {
	return grantsByEmployee(ctx, ts.tx, emp)
}

// =============================================================================
// EMPLOYEE DIRECTORY (leave.EmployeeDirectory interface)
// =============================================================================

// SaveEmployee inserts or updates a directory record.
func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, gender, joining_category, date_of_joining,
			probation_end, leave_policy_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			gender = excluded.gender,
			joining_category = excluded.joining_category,
			date_of_joining = excluded.date_of_joining,
			probation_end = excluded.probation_end,
			leave_policy_id = excluded.leave_policy_id
	`

	var policyID sql.NullString
	if emp.LeavePolicyID != nil {
		policyID = sql.NullString{String: string(*emp.LeavePolicyID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.Gender, emp.JoiningCategory,
		emp.DateOfJoining.Format(dateFormat),
		nullDate(emp.ProbationEnd),
		policyID,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

const employeeColumns = `id, name, gender, joining_category, date_of_joining, probation_end, leave_policy_id`

// Employee returns a directory record or leave.ErrEmployeeNotFound.
func (s *Store) Employee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query employee: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, leave.ErrEmployeeNotFound
	}
	emp, err := scanEmployee(rows)
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// Employees returns all directory records.
func (s *Store) Employees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+employeeColumns+" FROM employees ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func scanEmployee(rows *sql.Rows) (leave.Employee, error) {
	var (
		emp           leave.Employee
		dateOfJoining string
		probationEnd  sql.NullString
		policyID      sql.NullString
	)
	err := rows.Scan(&emp.ID, &emp.Name, &emp.Gender, &emp.JoiningCategory,
		&dateOfJoining, &probationEnd, &policyID)
	if err != nil {
		return emp, fmt.Errorf("failed to scan employee: %w", err)
	}

	emp.DateOfJoining, _ = time.Parse(dateFormat, dateOfJoining)
	if probationEnd.Valid {
		emp.ProbationEnd, _ = time.Parse(dateFormat, probationEnd.String)
	}
	if policyID.Valid {
		id := leave.PolicyID(policyID.String)
		emp.LeavePolicyID = &id
	}
	return emp, nil
}

// =============================================================================
// CATALOG SOURCE (leave.CatalogSource interface)
// =============================================================================

// SaveLeaveType inserts or updates a leave type.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_types (id, name, is_paid, applicable_gender, requires_approval, auto_approve, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_paid = excluded.is_paid,
			applicable_gender = excluded.applicable_gender,
			requires_approval = excluded.requires_approval,
			auto_approve = excluded.auto_approve`,
		lt.ID, lt.Name, lt.IsPaid, lt.ApplicableGender, lt.RequiresApproval, lt.AutoApprove,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LeaveTypes returns all configured leave types.
func (s *Store) LeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_paid, applicable_gender, requires_approval, auto_approve
		FROM leave_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		var lt leave.LeaveType
		if err := rows.Scan(&lt.ID, &lt.Name, &lt.IsPaid, &lt.ApplicableGender,
			&lt.RequiresApproval, &lt.AutoApprove); err != nil {
			return nil, fmt.Errorf("failed to scan leave type: %w", err)
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

// SavePolicy inserts or updates a leave policy.
func (s *Store) SavePolicy(ctx context.Context, p leave.LeavePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_policies (id, name, joining_category, effective_from, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			joining_category = excluded.joining_category,
			effective_from = excluded.effective_from,
			status = excluded.status`,
		p.ID, p.Name, p.JoiningCategory,
		p.EffectiveFrom.Format(dateFormat), p.Status,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Policies returns all configured policies.
func (s *Store) Policies(ctx context.Context) ([]leave.LeavePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, joining_category, effective_from, status
		FROM leave_policies ORDER BY effective_from`)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []leave.LeavePolicy
	for rows.Next() {
		var (
			p             leave.LeavePolicy
			effectiveFrom string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.JoiningCategory, &effectiveFrom, &p.Status); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		p.EffectiveFrom, _ = time.Parse(dateFormat, effectiveFrom)
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// SavePolicyRule inserts or updates a (policy, leave type) rule.
func (s *Store) SavePolicyRule(ctx context.Context, r leave.PolicyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_policy_rules
		(policy_id, leave_type_id, annual_days, accrual_frequency,
		 available_during_probation, allow_partial_leave,
		 carry_forward_allowed, max_carry_forward, requires_approval, auto_approve)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(policy_id, leave_type_id) DO UPDATE SET
			annual_days = excluded.annual_days,
			accrual_frequency = excluded.accrual_frequency,
			available_during_probation = excluded.available_during_probation,
			allow_partial_leave = excluded.allow_partial_leave,
			carry_forward_allowed = excluded.carry_forward_allowed,
			max_carry_forward = excluded.max_carry_forward,
			requires_approval = excluded.requires_approval,
			auto_approve = excluded.auto_approve`,
		r.PolicyID, r.LeaveTypeID, r.AnnualDays.String(), r.Accrual,
		r.AvailableDuringProbation, r.AllowPartialLeave,
		r.CarryForwardAllowed, r.MaxCarryForward.String(),
		r.RequiresApproval, r.AutoApprove,
	)
	return err
}

// PolicyRules returns all configured rules.
func (s *Store) PolicyRules(ctx context.Context) ([]leave.PolicyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, leave_type_id, annual_days, accrual_frequency,
		       available_during_probation, allow_partial_leave,
		       carry_forward_allowed, max_carry_forward, requires_approval, auto_approve
		FROM leave_policy_rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to query policy rules: %w", err)
	}
	defer rows.Close()

	var rules []leave.PolicyRule
	for rows.Next() {
		var (
			r          leave.PolicyRule
			annualDays string
			maxCarry   string
		)
		if err := rows.Scan(&r.PolicyID, &r.LeaveTypeID, &annualDays, &r.Accrual,
			&r.AvailableDuringProbation, &r.AllowPartialLeave,
			&r.CarryForwardAllowed, &maxCarry, &r.RequiresApproval, &r.AutoApprove); err != nil {
			return nil, fmt.Errorf("failed to scan policy rule: %w", err)
		}
		r.AnnualDays, err = leave.ParseDays(annualDays)
		if err != nil {
			return nil, fmt.Errorf("corrupt annual_days on rule %s/%s: %w", r.PolicyID, r.LeaveTypeID, err)
		}
		r.MaxCarryForward, err = leave.ParseDays(maxCarry)
		if err != nil {
			return nil, fmt.Errorf("corrupt max_carry_forward on rule %s/%s: %w", r.PolicyID, r.LeaveTypeID, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// HOLIDAYS (leave.HolidaySource interface)
// =============================================================================

// SaveHoliday inserts a holiday; duplicates on (date, name) are ignored.
func (s *Store) SaveHoliday(ctx context.Context, id string, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, name) DO NOTHING`,
		id, h.Date.Format(dateFormat), h.Name, h.Recurring,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Holidays returns all configured holidays.
func (s *Store) Holidays(ctx context.Context) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT date, name, recurring FROM holidays ORDER BY date")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []leave.Holiday
	for rows.Next() {
		var (
			h    leave.Holiday
			date string
		)
		if err := rows.Scan(&date, &h.Name, &h.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		h.Date, _ = time.Parse(dateFormat, date)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateFormat), Valid: true}
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullDays(d leave.Days) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
