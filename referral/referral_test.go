package referral_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/core/store"
	"github.com/warp/restitution-engine/referral"
)

var t0 = time.Date(2025, time.May, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return t0 }

func newRegistrar(mem *store.Memory) *referral.Registrar {
	r := referral.NewRegistrar(mem)
	r.Clock = clock
	return r
}

// registerWithCode creates a referrer that already owns a code and a referee
// registered with it.
func registerWithCode(t *testing.T, mem *store.Memory) (referrer, referee *core.User) {
	t.Helper()
	ctx := context.Background()
	reg := newRegistrar(mem)

	referrer, err := reg.Register(ctx, referral.Registration{Email: "referrer@example.com"})
	require.NoError(t, err)
	_, err = core.NewLedger(mem).WithClock(clock).CreditFromPurchase(ctx, referrer.ID, 3, "pay-referrer")
	require.NoError(t, err)
	referrer, err = mem.GetUser(ctx, referrer.ID)
	require.NoError(t, err)
	require.True(t, referrer.HasReferralCode())

	referee, err = reg.Register(ctx, referral.Registration{
		Email:        "referee@example.com",
		ReferralCode: referrer.ReferralCode,
	})
	require.NoError(t, err)
	return referrer, referee
}

func balance(t *testing.T, mem *store.Memory, id core.UserID) int64 {
	t.Helper()
	b, err := core.NewLedger(mem).ValidBalance(context.Background(), id, t0)
	require.NoError(t, err)
	return b
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegister_GrantsWelcomeBonus(t *testing.T) {
	mem := store.NewMemory()
	user, err := newRegistrar(mem).Register(context.Background(), referral.Registration{Email: " New@Example.com "})
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, int64(3), user.Credits)
	assert.Equal(t, int64(3), balance(t, mem, user.ID))

	exists, err := mem.EntryExists(context.Background(), core.WelcomeReference(user.ID))
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := mem.Entries(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].ExpiresAt, "welcome credits never expire")
}

func TestRegister_RejectsBadInput(t *testing.T) {
	mem := store.NewMemory()
	reg := newRegistrar(mem)
	ctx := context.Background()

	_, err := reg.Register(ctx, referral.Registration{Email: "not-an-email"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = reg.Register(ctx, referral.Registration{Email: "a@example.com", ReferralCode: "NOPE0000"})
	assert.ErrorIs(t, err, core.ErrReferralCodeNotFound)

	_, err = reg.Register(ctx, referral.Registration{Email: "a@example.com"})
	require.NoError(t, err)
	_, err = reg.Register(ctx, referral.Registration{Email: "A@example.com"})
	assert.ErrorIs(t, err, core.ErrDuplicateEmail)
}

func TestRegister_CodeIsSingleUse(t *testing.T) {
	// GIVEN: A referrer whose code was used by one referee
	// WHEN: A second user registers with the same code
	// THEN: ErrReferralCodeUsed and no user, no welcome bonus is created

	mem := store.NewMemory()
	referrer, _ := registerWithCode(t, mem)

	_, err := newRegistrar(mem).Register(context.Background(), referral.Registration{
		Email:        "second@example.com",
		ReferralCode: referrer.ReferralCode,
	})
	assert.ErrorIs(t, err, core.ErrReferralCodeUsed)

	ids, err := mem.ListUserIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestRegister_CodeIsCaseInsensitive(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	reg := newRegistrar(mem)

	owner, err := reg.Register(ctx, referral.Registration{Email: "owner@example.com"})
	require.NoError(t, err)
	require.NoError(t, mem.SetReferralCode(ctx, owner.ID, "ABCD1234"))

	user, err := reg.Register(ctx, referral.Registration{Email: "x@example.com", ReferralCode: " abcd1234 "})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, user.ReferredBy)
}

// =============================================================================
// BONUS PROCESSING
// =============================================================================

func TestProcess_GrantsBothSidesOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	referrer, referee := registerWithCode(t, mem)
	p := &referral.Processor{Clock: clock}

	// WHEN: Processing the referee's purchase
	out, err := p.Process(ctx, mem, referee.ID)
	require.NoError(t, err)

	// THEN: Both sides receive one credit
	assert.True(t, out.ReferredGranted)
	assert.True(t, out.ReferrerGranted)
	assert.Equal(t, int64(3+1), balance(t, mem, referee.ID))
	assert.Equal(t, int64(3+3+1), balance(t, mem, referrer.ID))

	r, err := mem.GetUser(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.ReferralCreditsEarned)

	// WHEN: Processing again
	out, err = p.Process(ctx, mem, referee.ID)
	require.NoError(t, err)

	// THEN: Nothing changes
	assert.False(t, out.ReferredGranted)
	assert.False(t, out.ReferrerGranted)
	assert.Equal(t, int64(4), balance(t, mem, referee.ID))
	assert.Equal(t, int64(7), balance(t, mem, referrer.ID))
}

func TestProcess_BonusExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, referee := registerWithCode(t, mem)

	_, err := (&referral.Processor{Clock: clock}).Process(ctx, mem, referee.ID)
	require.NoError(t, err)

	later, err := core.NewLedger(mem).ValidBalance(ctx, referee.ID, t0.Add(core.DefaultReferralTTL))
	require.NoError(t, err)
	assert.Equal(t, int64(3), later, "only the welcome bonus remains")
}

// legacyEdgeStore reports a referred_by edge the registration guard would
// have refused, to exercise the payout cap on its own.
type legacyEdgeStore struct {
	*store.Memory
	legacy   core.UserID
	referrer core.UserID
}

func (s *legacyEdgeStore) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	u, err := s.Memory.GetUser(ctx, id)
	if err == nil && id == s.legacy {
		u.ReferredBy = s.referrer
	}
	return u, err
}

func TestProcess_ReferrerCapHolds(t *testing.T) {
	// GIVEN: A referrer already paid for its first referee
	ctx := context.Background()
	mem := store.NewMemory()
	referrer, first := registerWithCode(t, mem)
	p := &referral.Processor{Clock: clock}

	_, err := p.Process(ctx, mem, first.ID)
	require.NoError(t, err)

	// AND: A second user somehow pointing at the same referrer
	require.NoError(t, mem.CreateUser(ctx, core.User{ID: "legacy", Email: "legacy@example.com"}))
	edges := &legacyEdgeStore{Memory: mem, legacy: "legacy", referrer: referrer.ID}

	// WHEN: The second user's purchase is processed
	out, err := p.Process(ctx, edges, "legacy")
	require.NoError(t, err)

	// THEN: The referee side is paid but the referrer is not paid again
	assert.True(t, out.ReferredGranted)
	assert.False(t, out.ReferrerGranted)
	assert.Equal(t, int64(3+3+1), balance(t, mem, referrer.ID))

	r, err := mem.GetUser(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.ReferralCreditsEarned)
}

func TestProcess_NotReferredIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	user, err := newRegistrar(mem).Register(ctx, referral.Registration{Email: "solo@example.com"})
	require.NoError(t, err)

	out, err := (&referral.Processor{}).Process(ctx, mem, user.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.Outcome{}, out)
}

func TestStatsFor(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	referrer, referee := registerWithCode(t, mem)

	stats, err := referral.StatsFor(ctx, mem, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, referrer.ReferralCode, stats.ReferralCode)
	assert.Equal(t, 1, stats.TotalReferrals)
	assert.Equal(t, 0, stats.CreditsEarned)
	assert.Equal(t, 1, stats.RemainingPayouts)

	_, err = (&referral.Processor{Clock: clock}).Process(ctx, mem, referee.ID)
	require.NoError(t, err)

	stats, err = referral.StatsFor(ctx, mem, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CreditsEarned)
	assert.Equal(t, 0, stats.RemainingPayouts)
}
