/*
ledger.go - Expiration-aware credit ledger

PURPOSE:
  The Ledger is the only way credits move. Every grant, purchase and usage
  is an immutable Entry; the spendable balance is always replayed from the
  entries, never read from a stored counter.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No update, no delete
  2. DERIVED BALANCE: ValidBalance = max(0, Σ amount of unexpired entries)
  3. IDEMPOTENT: One net effect per ReferenceID, enforced by the store's
     unique constraint (ErrDuplicateReference -> ErrAlreadyProcessed)
  4. NON-NEGATIVE: Debit re-reads the balance in the caller's transaction

REFERENCE KEYS:
  welcome_<user>             registration bonus
  mp_<payment>               confirmed purchase
  calc_<history>             calculation usage
  referral_bonus_for_<user>  referred-user bonus
  referral_from_<user>       referrer bonus

TRANSACTIONS:
  A Ledger is bound to one Store. Inside TxStore.WithTx, build a Ledger on
  the transactional Store so ledger writes commit or roll back together
  with the caller's other writes:

    err := store.WithTx(ctx, func(tx core.Store) error {
        l := core.NewLedger(tx)
        _, err := l.Debit(ctx, userID, 1, "calculation", core.UsageReference(id))
        ...
    })

SEE ALSO:
  - store.go: Persistence contract
  - referral/processor.go: Bonus grants on top of Grant
*/
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPurchaseTTL is how long purchased credits stay spendable.
	DefaultPurchaseTTL = 40 * 24 * time.Hour

	// DefaultReferralTTL is how long referral bonus credits stay spendable.
	DefaultReferralTTL = 60 * 24 * time.Hour

	referralCodeLength   = 8
	referralCodeAttempts = 5
)

// Reference key builders.
func WelcomeReference(id UserID) string          { return "welcome_" + string(id) }
func PurchaseReference(paymentID string) string  { return "mp_" + paymentID }
func UsageReference(id HistoryID) string         { return "calc_" + string(id) }
func ReferralBonusForReference(id UserID) string { return "referral_bonus_for_" + string(id) }
func ReferralFromReference(id UserID) string     { return "referral_from_" + string(id) }

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store       Store
	Clock       func() time.Time
	PurchaseTTL time.Duration

	// NewCode mints referral codes. Defaults to NewReferralCode.
	NewCode func() string
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		Store:       store,
		Clock:       time.Now,
		PurchaseTTL: DefaultPurchaseTTL,
		NewCode:     NewReferralCode,
	}
}

// WithClock returns the ledger using clock for timestamps and expiry checks.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	if clock != nil {
		l.Clock = clock
	}
	return l
}

func (l *Ledger) now() time.Time {
	if l.Clock == nil {
		return time.Now().UTC()
	}
	return l.Clock().UTC()
}

// ValidBalance sums the user's unexpired entries at now, floored at zero.
// Expired credits drop out even though their BalanceAfter was positive.
func (l *Ledger) ValidBalance(ctx context.Context, userID UserID, now time.Time) (int64, error) {
	entries, err := l.Store.Entries(ctx, userID)
	if err != nil {
		return 0, err
	}
	return validBalance(entries, now), nil
}

func validBalance(entries []Entry, now time.Time) int64 {
	var sum int64
	for _, e := range entries {
		if e.ActiveAt(now) {
			sum += e.Amount
		}
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// Debit spends amount credits. The balance is re-read through the ledger's
// Store, so when that Store is transactional the check and the insert are
// serialised with every other unit of work on the same store.
func (l *Ledger) Debit(ctx context.Context, userID UserID, amount int64, description, referenceID string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, Invalid("amount", "debit must be positive, got %d", amount)
	}
	if _, err := l.Store.GetUser(ctx, userID); err != nil {
		return Entry{}, err
	}

	now := l.now()
	balance, err := l.ValidBalance(ctx, userID, now)
	if err != nil {
		return Entry{}, err
	}
	if balance < amount {
		return Entry{}, &InsufficientCreditsError{UserID: userID, Available: balance, Requested: amount}
	}

	entry := Entry{
		ID:            EntryID(uuid.NewString()),
		UserID:        userID,
		Kind:          KindUsage,
		Amount:        -amount,
		BalanceBefore: balance,
		BalanceAfter:  balance - amount,
		Description:   description,
		ReferenceID:   referenceID,
		CreatedAt:     now,
	}
	if err := l.append(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// GrantRequest describes an idempotent credit grant.
type GrantRequest struct {
	UserID      UserID
	Kind        EntryKind
	Amount      int64
	Description string
	ReferenceID string
	TTL         time.Duration // Zero means the credits never expire
}

// Grant appends a positive entry once per ReferenceID. A repeated reference
// returns ErrAlreadyProcessed and changes nothing.
func (l *Ledger) Grant(ctx context.Context, req GrantRequest) (Entry, error) {
	if req.Amount <= 0 {
		return Entry{}, Invalid("amount", "grant must be positive, got %d", req.Amount)
	}
	if req.ReferenceID == "" {
		return Entry{}, Invalid("reference_id", "required for idempotent grants")
	}
	if _, err := l.Store.GetUser(ctx, req.UserID); err != nil {
		return Entry{}, err
	}

	// Fast path only; the unique constraint below is the real guarantee.
	exists, err := l.Store.EntryExists(ctx, req.ReferenceID)
	if err != nil {
		return Entry{}, err
	}
	if exists {
		return Entry{}, ErrAlreadyProcessed
	}

	now := l.now()
	balance, err := l.ValidBalance(ctx, req.UserID, now)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:            EntryID(uuid.NewString()),
		UserID:        req.UserID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		BalanceBefore: balance,
		BalanceAfter:  balance + req.Amount,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		CreatedAt:     now,
	}
	if req.TTL > 0 {
		expires := now.Add(req.TTL)
		entry.ExpiresAt = &expires
	}
	if err := l.append(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// CreditFromPurchase records a confirmed payment. The first purchase also
// mints the user's referral code. Callers that need the referral cascade in
// the same unit of work run both inside one WithTx.
func (l *Ledger) CreditFromPurchase(ctx context.Context, userID UserID, amount int64, paymentID string) (Entry, error) {
	if strings.TrimSpace(paymentID) == "" {
		return Entry{}, Invalid("payment_id", "required")
	}
	ttl := l.PurchaseTTL
	if ttl <= 0 {
		ttl = DefaultPurchaseTTL
	}
	entry, err := l.Grant(ctx, GrantRequest{
		UserID:      userID,
		Kind:        KindPurchase,
		Amount:      amount,
		Description: fmt.Sprintf("Purchase of %d credits", amount),
		ReferenceID: PurchaseReference(paymentID),
		TTL:         ttl,
	})
	if err != nil {
		return Entry{}, err
	}

	user, err := l.Store.GetUser(ctx, userID)
	if err != nil {
		return Entry{}, err
	}
	if !user.HasReferralCode() {
		if err := l.assignReferralCode(ctx, userID); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

func (l *Ledger) assignReferralCode(ctx context.Context, userID UserID) error {
	gen := l.NewCode
	if gen == nil {
		gen = NewReferralCode
	}
	for i := 0; i < referralCodeAttempts; i++ {
		err := l.Store.SetReferralCode(ctx, userID, gen())
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateReference) {
			return err
		}
	}
	return fmt.Errorf("could not mint a unique referral code after %d attempts", referralCodeAttempts)
}

func (l *Ledger) append(ctx context.Context, e Entry) error {
	if err := l.Store.AppendEntry(ctx, e); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return l.Store.SetCachedCredits(ctx, e.UserID, e.BalanceAfter)
}

// NewReferralCode returns an upper-case alphanumeric code.
func NewReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:referralCodeLength])
}
