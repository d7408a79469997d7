package referral

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/logging"
	"github.com/warp/restitution-engine/metrics"
)

// DefaultWelcomeBonus is granted once at registration and never expires.
const DefaultWelcomeBonus = 3

var validate = validator.New()

// Registration is a sign-up request.
type Registration struct {
	Email        string
	ReferralCode string // Optional
}

// Registrar creates users, links them to a referrer and grants the welcome
// bonus, all in one transaction.
type Registrar struct {
	Store        core.TxStore
	WelcomeBonus int64 // Zero disables the welcome grant
	Clock        func() time.Time
	Logger       *slog.Logger
}

func NewRegistrar(store core.TxStore) *Registrar {
	return &Registrar{Store: store, WelcomeBonus: DefaultWelcomeBonus, Clock: time.Now}
}

// Register creates the user. A referral code must exist and must not have
// been redeemed before (ErrReferralCodeNotFound, ErrReferralCodeUsed).
func (r *Registrar) Register(ctx context.Context, reg Registration) (*core.User, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, core.Invalid("email", "%q is not a valid address", reg.Email)
	}
	code := strings.ToUpper(strings.TrimSpace(reg.ReferralCode))

	now := time.Now
	if r.Clock != nil {
		now = r.Clock
	}

	user := core.User{
		ID:        core.UserID(uuid.NewString()),
		Email:     email,
		CreatedAt: now().UTC(),
	}

	err := r.Store.WithTx(ctx, func(tx core.Store) error {
		if code != "" {
			referrer, err := tx.UserByReferralCode(ctx, code)
			if err != nil {
				return err
			}
			used, err := tx.CountReferredBy(ctx, referrer.ID)
			if err != nil {
				return err
			}
			if used > 0 {
				return core.ErrReferralCodeUsed
			}
			user.ReferredBy = referrer.ID
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		if r.WelcomeBonus > 0 {
			entry, err := core.NewLedger(tx).WithClock(r.Clock).Grant(ctx, core.GrantRequest{
				UserID:      user.ID,
				Kind:        core.KindBonus,
				Amount:      r.WelcomeBonus,
				Description: "Welcome bonus",
				ReferenceID: core.WelcomeReference(user.ID),
			})
			if err != nil {
				return err
			}
			user.Credits = entry.BalanceAfter
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.WelcomeBonus > 0 {
		metrics.Granted(core.KindBonus, r.WelcomeBonus)
	}
	logging.OrDiscard(r.Logger).Info("user registered",
		"user_id", user.ID, "referred", user.WasReferred())
	return &user, nil
}
