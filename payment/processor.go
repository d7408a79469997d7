/*
Package payment absorbs payment confirmations into the credit ledger.

PURPOSE:
  The payment collaborator delivers (payment_id, status, external_reference,
  credited_amount) at least once: webhook retries, manual reconciliation and
  client-side polling may all report the same payment. Only approved
  payments credit, and each payment id credits once.

ATOMIC UNIT:
  One WithTx covers the purchase entry, the lazy referral code and both
  referral bonuses. A failure anywhere rolls all of them back.

IDEMPOTENCY:
  The purchase is keyed by mp_<payment_id>. A re-delivery returns an
  Outcome with AlreadyProcessed set and a nil error.

Authenticity of the tuple (webhook signatures, provider lookups) is
checked upstream.
*/
package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/logging"
	"github.com/warp/restitution-engine/metrics"
	"github.com/warp/restitution-engine/referral"
)

// StatusApproved is the only status that credits.
const StatusApproved = "approved"

// DefaultCreditedAmount applies when the confirmation carries no amount.
const DefaultCreditedAmount = 3

// Confirmation is the payment collaborator's tuple.
type Confirmation struct {
	PaymentID         string
	Status            string
	ExternalReference core.UserID // Target user
	CreditedAmount    int64       // Zero means DefaultAmount
}

// Outcome describes what a confirmation did.
type Outcome struct {
	PaymentID        string
	Status           string
	Processed        bool // Credits were added by this call
	AlreadyProcessed bool // An earlier delivery already credited
	Credited         int64
	Balance          int64 // Valid balance after processing
	Referral         referral.Outcome
}

// Processor credits approved payments.
type Processor struct {
	Store         core.TxStore
	Referral      *referral.Processor
	DefaultAmount int64
	PurchaseTTL   time.Duration
	Clock         func() time.Time
	Logger        *slog.Logger
}

func NewProcessor(store core.TxStore) *Processor {
	return &Processor{
		Store:         store,
		Referral:      &referral.Processor{},
		DefaultAmount: DefaultCreditedAmount,
		PurchaseTTL:   core.DefaultPurchaseTTL,
		Clock:         time.Now,
	}
}

// ProcessForUser is Process with a guard: the payment must belong to
// expected, otherwise ErrUnexpectedUser and nothing is written.
func (p *Processor) ProcessForUser(ctx context.Context, expected core.UserID, c Confirmation) (Outcome, error) {
	if c.ExternalReference != expected {
		metrics.Payments.WithLabelValues("rejected").Inc()
		logging.OrDiscard(p.Logger).Warn("payment for another user",
			"payment_id", c.PaymentID, "user_id", expected, "reference", c.ExternalReference)
		return Outcome{PaymentID: c.PaymentID, Status: c.Status}, core.ErrUnexpectedUser
	}
	return p.Process(ctx, c)
}

// Process credits an approved confirmation once.
func (p *Processor) Process(ctx context.Context, c Confirmation) (Outcome, error) {
	c.PaymentID = strings.TrimSpace(c.PaymentID)
	c.Status = strings.ToLower(strings.TrimSpace(c.Status))
	out := Outcome{PaymentID: c.PaymentID, Status: c.Status}
	log := logging.OrDiscard(p.Logger).With("payment_id", c.PaymentID, "user_id", c.ExternalReference)

	if c.PaymentID == "" {
		return out, core.Invalid("payment_id", "required")
	}
	if c.ExternalReference == "" {
		return out, core.Invalid("external_reference", "required")
	}
	if c.CreditedAmount < 0 {
		return out, core.Invalid("credited_amount", "must not be negative, got %d", c.CreditedAmount)
	}

	if c.Status != StatusApproved {
		metrics.Payments.WithLabelValues("ignored").Inc()
		log.Info("payment not approved, nothing credited", "status", c.Status)
		return out, nil
	}

	amount := c.CreditedAmount
	if amount == 0 {
		amount = p.defaultAmount()
	}

	err := p.Store.WithTx(ctx, func(tx core.Store) error {
		ledger := core.NewLedger(tx).WithClock(p.Clock)
		if p.PurchaseTTL > 0 {
			ledger.PurchaseTTL = p.PurchaseTTL
		}
		if _, err := ledger.CreditFromPurchase(ctx, c.ExternalReference, amount, c.PaymentID); err != nil {
			return err
		}

		bonuses, err := p.referralProcessor().Process(ctx, tx, c.ExternalReference)
		if err != nil {
			return err
		}
		out.Referral = bonuses
		return nil
	})

	switch {
	case errors.Is(err, core.ErrAlreadyProcessed):
		out.AlreadyProcessed = true
		metrics.Payments.WithLabelValues("already_processed").Inc()
		log.Info("payment already processed")
	case err != nil:
		metrics.Payments.WithLabelValues("error").Inc()
		return out, err
	default:
		out.Processed = true
		out.Credited = amount
		metrics.Payments.WithLabelValues("processed").Inc()
		metrics.Granted(core.KindPurchase, amount)
		log.Info("payment credited", "credits", amount)
	}

	balance, err := core.NewLedger(p.Store).ValidBalance(ctx, c.ExternalReference, p.now())
	if err != nil {
		return out, err
	}
	out.Balance = balance
	return out, nil
}

// referralProcessor returns a copy with the payment's clock and logger
// filled in where unset.
func (p *Processor) referralProcessor() *referral.Processor {
	var rp referral.Processor
	if p.Referral != nil {
		rp = *p.Referral
	}
	if rp.Clock == nil {
		rp.Clock = p.Clock
	}
	if rp.Logger == nil {
		rp.Logger = p.Logger
	}
	return &rp
}

func (p *Processor) defaultAmount() int64 {
	if p.DefaultAmount <= 0 {
		return DefaultCreditedAmount
	}
	return p.DefaultAmount
}

func (p *Processor) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock()
}
