/*
Package referral implements the single-use referral protocol.

PURPOSE:
  A user who registers with someone's code and then completes a purchase
  earns one bonus credit, and so does the code's owner, exactly once.

RULES (evaluated on every confirmed purchase by U, when U was referred by R):
  1. Referred bonus: grant U one credit under referral_bonus_for_<U>
  2. Referrer bonus: skip when R already earned ReferrerCap payouts,
     otherwise grant R one credit under referral_from_<U> and bump
     R.ReferralCreditsEarned
  Both grants expire after the referral TTL and both are idempotent, so a
  second Process call for the same U changes nothing.

SINGLE USE:
  Registrar.Register refuses a code that already has a referee, checked in
  the same transaction that writes the referred_by edge. The store backs it
  with a unique index on referred_by.

SEE ALSO:
  - registrar.go: Registration and welcome bonus
  - payment/processor.go: Runs Process in the purchase transaction
*/
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/logging"
	"github.com/warp/restitution-engine/metrics"
)

const (
	// ReferrerCap is the lifetime number of payouts a referral code earns.
	ReferrerCap = 1

	// BonusAmount is granted on each side of a referral.
	BonusAmount = 1
)

// Processor grants referral bonuses. The zero value is usable.
type Processor struct {
	TTL    time.Duration
	Clock  func() time.Time
	Logger *slog.Logger
}

// Outcome reports which bonuses a Process call granted.
type Outcome struct {
	ReferredGranted bool
	ReferrerGranted bool
	ReferrerID      core.UserID
}

// Process evaluates both referral rules for the user. Pass the transactional
// Store when the bonuses must commit together with the purchase.
func (p *Processor) Process(ctx context.Context, store core.Store, userID core.UserID) (Outcome, error) {
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	if !user.WasReferred() {
		return Outcome{}, nil
	}

	out := Outcome{ReferrerID: user.ReferredBy}
	ledger := core.NewLedger(store).WithClock(p.Clock)
	log := logging.OrDiscard(p.Logger).With("user_id", userID, "referrer_id", user.ReferredBy)

	granted, err := p.grant(ctx, ledger, userID,
		core.ReferralBonusForReference(userID), "Referral bonus for registering with a code")
	if err != nil {
		return out, fmt.Errorf("referred bonus: %w", err)
	}
	out.ReferredGranted = granted

	referrer, err := store.GetUser(ctx, user.ReferredBy)
	if err != nil {
		return out, fmt.Errorf("load referrer: %w", err)
	}
	if referrer.ReferralCreditsEarned >= ReferrerCap {
		log.Debug("referrer already paid out", "earned", referrer.ReferralCreditsEarned)
		return out, nil
	}

	granted, err = p.grant(ctx, ledger, referrer.ID,
		core.ReferralFromReference(userID), fmt.Sprintf("Referral bonus from %s", user.Email))
	if err != nil {
		return out, fmt.Errorf("referrer bonus: %w", err)
	}
	if granted {
		if err := store.IncrementReferralCredits(ctx, referrer.ID); err != nil {
			return out, err
		}
	}
	out.ReferrerGranted = granted

	if out.ReferredGranted || out.ReferrerGranted {
		log.Info("referral bonuses granted",
			"referred", out.ReferredGranted, "referrer", out.ReferrerGranted)
	}
	return out, nil
}

// grant returns false when the reference was already absorbed.
func (p *Processor) grant(ctx context.Context, ledger *core.Ledger, userID core.UserID, ref, description string) (bool, error) {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = core.DefaultReferralTTL
	}
	_, err := ledger.Grant(ctx, core.GrantRequest{
		UserID:      userID,
		Kind:        core.KindReferralBonus,
		Amount:      BonusAmount,
		Description: description,
		ReferenceID: ref,
		TTL:         ttl,
	})
	if errors.Is(err, core.ErrAlreadyProcessed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	metrics.Granted(core.KindReferralBonus, BonusAmount)
	return true, nil
}
