package referral

import (
	"context"

	"github.com/warp/restitution-engine/core"
)

// Stats summarises a user's referral standing.
type Stats struct {
	ReferralCode     string // Empty until the first purchase
	TotalReferrals   int
	CreditsEarned    int
	RemainingPayouts int
}

// StatsFor reads the user's referral code and payout counters.
func StatsFor(ctx context.Context, store core.Store, userID core.UserID) (Stats, error) {
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	referrals, err := store.CountReferredBy(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ReferralCode:     user.ReferralCode,
		TotalReferrals:   referrals,
		CreditsEarned:    user.ReferralCreditsEarned,
		RemainingPayouts: max(0, ReferrerCap-user.ReferralCreditsEarned),
	}, nil
}
