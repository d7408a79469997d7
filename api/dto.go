/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  domain types in core/ and indexation/.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request structs carry go-playground/validator tags. Handlers call
  h.validate.Struct before touching the domain; domain rules (sample
  months, charge signs) are still enforced by the domain packages.

MONEY:
  decimal.Decimal fields marshal as JSON strings to keep every digit.
  valor_calculado is rounded to cents; history keeps the full value.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/restitution-engine/calculation"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/payment"
	"github.com/warp/restitution-engine/referral"
)

// =============================================================================
// USERS
// =============================================================================

type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email"`
	ReferralCode string `json:"referral_code,omitempty" validate:"omitempty,alphanum,max=32"`
}

type UserDTO struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Credits      int64  `json:"credits"`
	ReferralCode string `json:"referral_code,omitempty"`
	ReferredBy   string `json:"referred_by,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toUserDTO(u *core.User, validCredits int64) UserDTO {
	return UserDTO{
		ID:           string(u.ID),
		Email:        u.Email,
		Credits:      validCredits,
		ReferralCode: u.ReferralCode,
		ReferredBy:   string(u.ReferredBy),
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// CREDITS
// =============================================================================

// BalanceDTO shows the authoritative balance next to the cached mirror.
type BalanceDTO struct {
	UserID        string `json:"user_id"`
	ValidCredits  int64  `json:"valid_credits"`
	LegacyCredits int64  `json:"legacy_credits"`
}

type EntryDTO struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Amount        int64   `json:"amount"`
	BalanceBefore int64   `json:"balance_before"`
	BalanceAfter  int64   `json:"balance_after"`
	Description   string  `json:"description,omitempty"`
	ReferenceID   string  `json:"reference_id"`
	ExpiresAt     *string `json:"expires_at,omitempty"`
	Expired       bool    `json:"expired"`
	CreatedAt     string  `json:"created_at"`
}

func toEntryDTO(e core.Entry, now time.Time) EntryDTO {
	dto := EntryDTO{
		ID:            string(e.ID),
		Kind:          string(e.Kind),
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Description:   e.Description,
		ReferenceID:   e.ReferenceID,
		Expired:       !e.ActiveAt(now),
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
	if e.ExpiresAt != nil {
		s := e.ExpiresAt.Format(time.RFC3339)
		dto.ExpiresAt = &s
	}
	return dto
}

type ReferralStatsDTO struct {
	ReferralCode     string `json:"referral_code,omitempty"`
	TotalReferrals   int    `json:"total_referrals"`
	CreditsEarned    int    `json:"credits_earned"`
	RemainingPayouts int    `json:"remaining_payouts"`
}

func toReferralStatsDTO(s referral.Stats) ReferralStatsDTO {
	return ReferralStatsDTO{
		ReferralCode:     s.ReferralCode,
		TotalReferrals:   s.TotalReferrals,
		CreditsEarned:    s.CreditsEarned,
		RemainingPayouts: s.RemainingPayouts,
	}
}

// =============================================================================
// CALCULATIONS
// =============================================================================

// BillRequest carries one sample. ICMSValue is a pointer so a missing or
// null charge is rejected rather than read as zero.
type BillRequest struct {
	IssueDate string           `json:"issue_date" validate:"required"`
	ICMSValue *decimal.Decimal `json:"icms_value" validate:"required"`
}

type CalculationRequest struct {
	Bills []BillRequest `json:"bills" validate:"required,min=1,max=12,dive"`
}

// CalculationResponse is the caller-facing result.
type CalculationResponse struct {
	ValorCalculado    decimal.Decimal `json:"valor_calculado"`
	CreditosRestantes int64           `json:"creditos_restantes"`
	CalculationID     string          `json:"calculation_id"`
	ProcessingTimeMS  int64           `json:"processing_time_ms"`
}

func toCalculationResponse(r calculation.Result) CalculationResponse {
	return CalculationResponse{
		ValorCalculado:    r.Total.Round(2),
		CreditosRestantes: r.RemainingCredits,
		CalculationID:     string(r.HistoryID),
		ProcessingTimeMS:  r.ProcessingTime.Milliseconds(),
	}
}

type HistoryDTO struct {
	ID               string          `json:"id"`
	MeanCharge       decimal.Decimal `json:"mean_charge"`
	WindowMonths     int             `json:"window_months"`
	SampleCount      int             `json:"sample_count"`
	Total            decimal.Decimal `json:"total"`
	ComputedAt       string          `json:"computed_at"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
}

func toHistoryDTO(r core.HistoryRecord) HistoryDTO {
	return HistoryDTO{
		ID:               string(r.ID),
		MeanCharge:       r.MeanCharge,
		WindowMonths:     r.WindowMonths,
		SampleCount:      r.SampleCount,
		Total:            r.Total,
		ComputedAt:       r.ComputedAt.Format(time.RFC3339),
		ProcessingTimeMS: r.ProcessingTime.Milliseconds(),
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentConfirmationRequest struct {
	PaymentID         string `json:"payment_id" validate:"required,max=128"`
	Status            string `json:"status" validate:"required"`
	ExternalReference string `json:"external_reference" validate:"required"`
	CreditedAmount    int64  `json:"credited_amount" validate:"gte=0"`
}

func (r PaymentConfirmationRequest) toConfirmation() payment.Confirmation {
	return payment.Confirmation{
		PaymentID:         r.PaymentID,
		Status:            r.Status,
		ExternalReference: core.UserID(r.ExternalReference),
		CreditedAmount:    r.CreditedAmount,
	}
}

type PaymentConfirmationResponse struct {
	PaymentID        string `json:"payment_id"`
	Status           string `json:"status"`
	CreditsAdded     bool   `json:"credits_added"`
	AlreadyProcessed bool   `json:"already_processed"`
	CreditsBalance   int64  `json:"credits_balance"`
}

func toPaymentResponse(o payment.Outcome) PaymentConfirmationResponse {
	return PaymentConfirmationResponse{
		PaymentID:        o.PaymentID,
		Status:           o.Status,
		CreditsAdded:     o.Processed,
		AlreadyProcessed: o.AlreadyProcessed,
		CreditsBalance:   o.Balance,
	}
}

// =============================================================================
// RATES
// =============================================================================

type RateRequest struct {
	Month string           `json:"month" validate:"required"`
	Rate  *decimal.Decimal `json:"rate" validate:"required"`
}

type UpsertRatesRequest struct {
	Index string        `json:"index" validate:"required,oneof=ipca selic IPCA SELIC"`
	Rates []RateRequest `json:"rates" validate:"required,min=1,dive"`
}

type UpsertRatesResponse struct {
	Index    string `json:"index"`
	Upserted int    `json:"upserted"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Time     string `json:"time"`
}
