/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements core.TxStore (ledger entries, users, calculation history) and
  indexation.RateRepository (monthly IPCA/SELIC rates) on SQLite. The same
  schema ports to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  core.Store:                 Ledger, users and history
  core.TxStore:               Atomic units of work
  indexation.RateRepository:  Monthly rates keyed by (index, year, month)

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries
  - Balances are derived by the ledger, users.credits is only a mirror

KEY TABLES:
  users:               Accounts, referral code and referral edge
  ledger_entries:      Immutable credit movements
  calculation_history: One row per successful calculation
  monthly_rates:       IPCA and SELIC monthly rates

CONSTRAINTS:
  - ledger_entries.reference_id UNIQUE       -> core.ErrDuplicateReference
  - users.email UNIQUE                       -> core.ErrDuplicateEmail
  - users.referral_code UNIQUE               -> core.ErrDuplicateReference
  - users.referred_by UNIQUE WHERE NOT NULL  -> core.ErrReferralCodeUsed

CONCURRENCY:
  SQLite allows a single writer. The pool is capped at one connection and
  WithTx holds the store mutex for the whole callback, so the balance
  re-check and the debit insert of two concurrent requests never interleave.
  Inside a transaction, every call goes through the *sql.Tx and never
  re-enters the mutex.

USAGE:
  store, err := sqlite.New("./data/restitution.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := core.NewLedger(store)

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
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
	"github.com/shopspring/decimal"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
)

var (
	_ core.TxStore              = (*Store)(nil)
	_ indexation.RateRepository = (*Store)(nil)
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

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

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		credits INTEGER NOT NULL DEFAULT 0,
		referral_code TEXT UNIQUE,
		referred_by TEXT REFERENCES users(id),
		referral_credits_earned INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- A referral code is the referred_by target of at most one user
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_referred_by
		ON users(referred_by) WHERE referred_by IS NOT NULL;

	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		description TEXT,
		reference_id TEXT NOT NULL UNIQUE,
		expires_at TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance replay (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_user_created
		ON ledger_entries(user_id, created_at);

	CREATE TABLE IF NOT EXISTS calculation_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		mean_charge TEXT NOT NULL,
		window_months INTEGER NOT NULL,
		sample_count INTEGER NOT NULL,
		total TEXT NOT NULL,
		computed_at TEXT NOT NULL,
		processing_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user_computed
		ON calculation_history(user_id, computed_at DESC);

	-- Monthly rates, decimal fractions stored as text
	CREATE TABLE IF NOT EXISTS monthly_rates (
		rate_index TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		rate TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (rate_index, year, month)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// AppendEntry adds an entry to the ledger.
func (s *Store) AppendEntry(ctx context.Context, e core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, q querier, e core.Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, user_id, kind, amount, balance_before, balance_after,
		 description, reference_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var expiresAt sql.NullString
	if e.ExpiresAt != nil {
		expiresAt = sql.NullString{String: formatTime(*e.ExpiresAt), Valid: true}
	}

	_, err := q.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		e.Kind,
		e.Amount,
		e.BalanceBefore,
		e.BalanceAfter,
		e.Description,
		e.ReferenceID,
		expiresAt,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrDuplicateReference
		}
		if isForeignKeyError(err) {
			return core.ErrUserNotFound
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Entries returns the user's entries, oldest first.
func (s *Store) Entries(ctx context.Context, userID core.UserID) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entries(ctx, s.db, userID)
}

func entries(ctx context.Context, q querier, userID core.UserID) ([]core.Entry, error) {
	query := `
		SELECT id, user_id, kind, amount, balance_before, balance_after,
		       description, reference_id, expires_at, created_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		var (
			e           core.Entry
			description sql.NullString
			expiresAt   sql.NullString
			createdAt   string
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Kind, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&description, &e.ReferenceID, &expiresAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Description = description.String
		e.CreatedAt = parseTime(createdAt)
		if expiresAt.Valid {
			t := parseTime(expiresAt.String)
			e.ExpiresAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntryExists checks if a reference id was already recorded.
func (s *Store) EntryExists(ctx context.Context, referenceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entryExists(ctx, s.db, referenceID)
}

func entryExists(ctx context.Context, q querier, referenceID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE reference_id = ?",
		referenceID,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser inserts a user.
func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createUser(ctx, s.db, u)
}

func createUser(ctx context.Context, q querier, u core.User) error {
	query := `
		INSERT INTO users
		(id, email, credits, referral_code, referred_by, referral_credits_earned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		u.ID,
		u.Email,
		u.Credits,
		nullString(u.ReferralCode),
		nullString(string(u.ReferredBy)),
		u.ReferralCreditsEarned,
		formatTime(u.CreatedAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintOn(err, "users.email"):
			return core.ErrDuplicateEmail
		case isUniqueConstraintOn(err, "users.referred_by"):
			return core.ErrReferralCodeUsed
		case isUniqueConstraintError(err):
			return core.ErrDuplicateReference
		case isForeignKeyError(err):
			return core.ErrUserNotFound
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, credits, referral_code, referred_by, referral_credits_earned, created_at`

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, q querier, id core.UserID) (*core.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	return u, err
}

// UserByReferralCode returns the owner of a referral code.
func (s *Store) UserByReferralCode(ctx context.Context, code string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userByReferralCode(ctx, s.db, code)
}

func userByReferralCode(ctx context.Context, q querier, code string) (*core.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE referral_code = ?", code)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrReferralCodeNotFound
	}
	return u, err
}

func scanUser(row *sql.Row) (*core.User, error) {
	var (
		u            core.User
		referralCode sql.NullString
		referredBy   sql.NullString
		createdAt    string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Credits, &referralCode, &referredBy,
		&u.ReferralCreditsEarned, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.ReferralCode = referralCode.String
	u.ReferredBy = core.UserID(referredBy.String)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// CountReferredBy counts users registered with the given user's code.
func (s *Store) CountReferredBy(ctx context.Context, id core.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countReferredBy(ctx, s.db, id)
}

func countReferredBy(ctx context.Context, q querier, id core.UserID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE referred_by = ?", id).Scan(&count)
	return count, err
}

// SetReferralCode assigns the user's referral code.
func (s *Store) SetReferralCode(ctx context.Context, id core.UserID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setReferralCode(ctx, s.db, id, code)
}

func setReferralCode(ctx context.Context, q querier, id core.UserID, code string) error {
	res, err := q.ExecContext(ctx, "UPDATE users SET referral_code = ? WHERE id = ?", code, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrDuplicateReference
		}
		return fmt.Errorf("failed to set referral code: %w", err)
	}
	return requireRow(res)
}

// IncrementReferralCredits bumps the referrer's payout counter.
func (s *Store) IncrementReferralCredits(ctx context.Context, id core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return incrementReferralCredits(ctx, s.db, id)
}

func incrementReferralCredits(ctx context.Context, q querier, id core.UserID) error {
	res, err := q.ExecContext(ctx,
		"UPDATE users SET referral_credits_earned = referral_credits_earned + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment referral credits: %w", err)
	}
	return requireRow(res)
}

// SetCachedCredits refreshes the users.credits mirror.
func (s *Store) SetCachedCredits(ctx context.Context, id core.UserID, credits int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setCachedCredits(ctx, s.db, id, credits)
}

func setCachedCredits(ctx context.Context, q querier, id core.UserID, credits int64) error {
	res, err := q.ExecContext(ctx, "UPDATE users SET credits = ? WHERE id = ?", credits, id)
	if err != nil {
		return fmt.Errorf("failed to update cached credits: %w", err)
	}
	return requireRow(res)
}

// ListUserIDs returns every user id, sorted.
func (s *Store) ListUserIDs(ctx context.Context) ([]core.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUserIDs(ctx, s.db)
}

func listUserIDs(ctx context.Context, q querier) ([]core.UserID, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []core.UserID
	for rows.Next() {
		var id core.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// CALCULATION HISTORY
// =============================================================================

// InsertHistory writes a calculation history row.
func (s *Store) InsertHistory(ctx context.Context, r core.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertHistory(ctx, s.db, r)
}

func insertHistory(ctx context.Context, q querier, r core.HistoryRecord) error {
	query := `
		INSERT INTO calculation_history
		(id, user_id, mean_charge, window_months, sample_count, total, computed_at, processing_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		r.ID,
		r.UserID,
		r.MeanCharge.String(),
		r.WindowMonths,
		r.SampleCount,
		r.Total.String(),
		formatTime(r.ComputedAt),
		r.ProcessingTime.Milliseconds(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return core.ErrUserNotFound
		}
		return fmt.Errorf("failed to insert calculation history: %w", err)
	}
	return nil
}

// History returns the user's calculations, newest first.
func (s *Store) History(ctx context.Context, userID core.UserID, limit, offset int) ([]core.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return history(ctx, s.db, userID, limit, offset)
}

func history(ctx context.Context, q querier, userID core.UserID, limit, offset int) ([]core.HistoryRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `
		SELECT id, user_id, mean_charge, window_months, sample_count, total, computed_at, processing_ms
		FROM calculation_history
		WHERE user_id = ?
		ORDER BY computed_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := q.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query calculation history: %w", err)
	}
	defer rows.Close()

	out := []core.HistoryRecord{}
	for rows.Next() {
		var (
			r            core.HistoryRecord
			mean, total  string
			computedAt   string
			processingMS int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &mean, &r.WindowMonths, &r.SampleCount,
			&total, &computedAt, &processingMS); err != nil {
			return nil, fmt.Errorf("failed to scan calculation history: %w", err)
		}
		r.MeanCharge = decimal.RequireFromString(mean)
		r.Total = decimal.RequireFromString(total)
		r.ComputedAt = parseTime(computedAt)
		r.ProcessingTime = time.Duration(processingMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// MONTHLY RATES (indexation.RateRepository)
// =============================================================================

// Rates returns the stored rates of one index for the closed range [from, to].
// Missing months are simply absent from the table.
func (s *Store) Rates(ctx context.Context, index indexation.Index, from, to core.Month) (indexation.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT year, month, rate
		FROM monthly_rates
		WHERE rate_index = ?
		  AND (year * 12 + month) BETWEEN ? AND ?
	`
	rows, err := s.db.QueryContext(ctx, query, index, monthKey(from), monthKey(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rates: %w", index, err)
	}
	defer rows.Close()

	table := indexation.RateTable{}
	for rows.Next() {
		var (
			year, month int
			rate        string
		)
		if err := rows.Scan(&year, &month, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		value, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("corrupt %s rate for %04d-%02d: %w", index, year, month, err)
		}
		table[core.NewMonth(year, time.Month(month))] = value
	}
	return table, rows.Err()
}

// UpsertRates inserts or replaces the given months of one index atomically.
func (s *Store) UpsertRates(ctx context.Context, index indexation.Index, table indexation.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO monthly_rates (rate_index, year, month, rate, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (rate_index, year, month)
		DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at
	`
	now := formatTime(time.Now())
	for m, rate := range table {
		if _, err := sqlTx.ExecContext(ctx, query, index, m.Year, int(m.Month), rate.String(), now); err != nil {
			return fmt.Errorf("failed to upsert %s rate for %s: %w", index, m, err)
		}
	}
	return sqlTx.Commit()
}

func monthKey(m core.Month) int {
	return m.Year*12 + int(m.Month)
}

// =============================================================================
// TRANSACTIONAL STORE (core.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store core.Store) error) error {
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

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendEntry(ctx context.Context, e core.Entry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) Entries(ctx context.Context, userID core.UserID) ([]core.Entry, error) {
	return entries(ctx, ts.tx, userID)
}

func (ts *txStore) EntryExists(ctx context.Context, referenceID string) (bool, error) {
	return entryExists(ctx, ts.tx, referenceID)
}

func (ts *txStore) CreateUser(ctx context.Context, u core.User) error {
	return createUser(ctx, ts.tx, u)
}

func (ts *txStore) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	return getUser(ctx, ts.tx, id)
}

func (ts *txStore) UserByReferralCode(ctx context.Context, code string) (*core.User, error) {
	return userByReferralCode(ctx, ts.tx, code)
}

func (ts *txStore) CountReferredBy(ctx context.Context, id core.UserID) (int, error) {
	return countReferredBy(ctx, ts.tx, id)
}

func (ts *txStore) SetReferralCode(ctx context.Context, id core.UserID, code string) error {
	return setReferralCode(ctx, ts.tx, id, code)
}

func (ts *txStore) IncrementReferralCredits(ctx context.Context, id core.UserID) error {
	return incrementReferralCredits(ctx, ts.tx, id)
}

func (ts *txStore) SetCachedCredits(ctx context.Context, id core.UserID, credits int64) error {
	return setCachedCredits(ctx, ts.tx, id, credits)
}

func (ts *txStore) ListUserIDs(ctx context.Context) ([]core.UserID, error) {
	return listUserIDs(ctx, ts.tx)
}

func (ts *txStore) InsertHistory(ctx context.Context, r core.HistoryRecord) error {
	return insertHistory(ctx, ts.tx, r)
}

func (ts *txStore) History(ctx context.Context, userID core.UserID, limit, offset int) ([]core.HistoryRecord, error) {
	return history(ctx, ts.tx, userID, limit, offset)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout has fixed-width fractions so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isUniqueConstraintOn matches the "table.column" SQLite names in the message.
func isUniqueConstraintOn(err error, column string) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), column)
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
