/*
Package core provides the credit ledger and the shared domain types.

PURPOSE:
  Everything that gates access to the restitution calculation lives here:
  users, ledger entries, calculation history records and the persistence
  contract that ties them together. The indexation engine, the referral
  processor and the calculation orchestrator all build on these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: An immutable ledger row recording a signed credit movement
  - User: The subset of account state the ledger and referrals need
  - Sample: One user-supplied monthly charge
  - HistoryRecord: Write-once audit row for a finished calculation

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified or deleted
  2. Derived balance: The spendable balance is replayed from entries
  3. Precision: Money uses decimal.Decimal, credits are integers
  4. Idempotency: Every externally-triggered entry carries a unique ReferenceID

SEE ALSO:
  - ledger.go: Balance derivation and mutations
  - store.go: Persistence contract
  - errors.go: Error taxonomy
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type EntryID string
type HistoryID string

// =============================================================================
// LEDGER ENTRY - Signed credit movement
// =============================================================================

type EntryKind string

const (
	KindBonus         EntryKind = "bonus"          // Welcome credits
	KindPurchase      EntryKind = "purchase"       // Confirmed payment
	KindUsage         EntryKind = "usage"          // One calculation
	KindReferralBonus EntryKind = "referral_bonus" // Referral payout, either side
)

// Entry is one row of the append-only credit ledger.
// BalanceAfter is always BalanceBefore + Amount.
type Entry struct {
	ID            EntryID
	UserID        UserID
	Kind          EntryKind
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Description   string
	ReferenceID   string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

// ActiveAt reports whether the entry still counts toward the balance at now.
func (e Entry) ActiveAt(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// =============================================================================
// USER
// =============================================================================

type User struct {
	ID    UserID
	Email string

	// Credits mirrors the last derived balance. Never read authoritatively.
	Credits int64

	ReferralCode          string // Empty until the first purchase
	ReferredBy            UserID // Empty when registered without a code
	ReferralCreditsEarned int

	CreatedAt time.Time
}

// HasReferralCode reports whether the user already minted a shareable code.
func (u *User) HasReferralCode() bool { return u.ReferralCode != "" }

// WasReferred reports whether the user registered with someone's code.
func (u *User) WasReferred() bool { return u.ReferredBy != "" }

// =============================================================================
// CALCULATION INPUT AND HISTORY
// =============================================================================

// Sample is a real monthly charge reported by the user.
type Sample struct {
	Month  Month
	Charge decimal.Decimal
}

// HistoryRecord is written once per successful calculation, in the same
// unit of work as the usage debit.
type HistoryRecord struct {
	ID             HistoryID
	UserID         UserID
	MeanCharge     decimal.Decimal
	WindowMonths   int
	SampleCount    int
	Total          decimal.Decimal
	ComputedAt     time.Time
	ProcessingTime time.Duration
}
