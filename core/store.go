/*
store.go - Persistence contract for the ledger, users and calculation history

PURPOSE:
  Defines the interface between the domain logic and the database.
  Ledger entries are append-only; users expose only the narrow mutations
  the referral protocol needs; history rows are write-once.

KEY INTERFACES:
  Store:   Entries, users and history, usable inside or outside a transaction
  TxStore: Store plus WithTx for atomic units of work

APPEND-ONLY CONTRACT:
  - AppendEntry(): the ONLY ledger write
  - NO update or delete of entries exists

IDEMPOTENCY:
  reference_id is UNIQUE. A colliding insert fails with
  ErrDuplicateReference instead of a generic driver error, so a racing
  webhook retry is recognised as already processed.

SERIALISATION:
  WithTx implementations must serialise units of work that touch the same
  user's balance. The SQLite store serialises all writers; the memory store
  holds its mutex for the whole callback.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - core/store/memory.go: In-memory for tests

SEE ALSO:
  - ledger.go: Higher-level operations using Store
*/
package core

import "context"

// Store handles persistence of ledger entries, users and history.
type Store interface {
	// AppendEntry persists an entry. Returns ErrDuplicateReference when the
	// reference id is already taken.
	AppendEntry(ctx context.Context, e Entry) error

	// Entries returns every entry for the user, oldest first.
	Entries(ctx context.Context, userID UserID) ([]Entry, error)

	// EntryExists checks whether a reference id was already recorded.
	EntryExists(ctx context.Context, referenceID string) (bool, error)

	// CreateUser inserts a user. ErrDuplicateEmail on email collision,
	// ErrReferralCodeUsed when ReferredBy already has a referee.
	CreateUser(ctx context.Context, u User) error

	// GetUser returns ErrUserNotFound when missing.
	GetUser(ctx context.Context, id UserID) (*User, error)

	// UserByReferralCode returns ErrReferralCodeNotFound when missing.
	UserByReferralCode(ctx context.Context, code string) (*User, error)

	// CountReferredBy returns how many users registered with the user's code.
	CountReferredBy(ctx context.Context, id UserID) (int, error)

	// SetReferralCode assigns a code once. ErrDuplicateReference on collision.
	SetReferralCode(ctx context.Context, id UserID, code string) error

	// IncrementReferralCredits bumps the referrer's lifetime payout counter.
	IncrementReferralCredits(ctx context.Context, id UserID) error

	// SetCachedCredits refreshes the legacy credits mirror.
	SetCachedCredits(ctx context.Context, id UserID, credits int64) error

	// ListUserIDs returns every user id (used by the cache sync job).
	ListUserIDs(ctx context.Context) ([]UserID, error)

	// InsertHistory writes a calculation history row.
	InsertHistory(ctx context.Context, r HistoryRecord) error

	// History returns the user's calculations, newest first.
	History(ctx context.Context, userID UserID, limit, offset int) ([]HistoryRecord, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed Store is
	// rolled back. If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
