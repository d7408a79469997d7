/*
handlers.go - HTTP API handlers for the restitution service

PURPOSE:
  Exposes registration, credits, calculations, payment confirmation and
  rate administration over REST. Handles HTTP request/response and JSON,
  and delegates to the domain packages.

ENDPOINTS:
  Users:
    POST   /api/users                          Register (optional referral code)
    GET    /api/users/{id}                     User with valid credits
    GET    /api/users/{id}/credits/balance     Valid vs cached balance
    GET    /api/users/{id}/credits/history     Ledger entries, newest first
    GET    /api/users/{id}/referral            Referral stats

  Calculations:
    POST   /api/users/{id}/calculations        Run a paid calculation
    GET    /api/users/{id}/calculations        Calculation history

  Payments:
    POST   /api/users/{id}/payments/confirm    Confirm a payment for this user
    POST   /api/payments/webhook               Provider delivery (any user)

  Admin:
    POST   /api/admin/rates                    Upsert monthly rates

  Ops:
    GET    /api/health
    GET    /metrics

ERROR HANDLING:
  statusFor maps the core error taxonomy to HTTP status:
  - 400: Invalid input
  - 402: Insufficient credits
  - 403: Payment belongs to another user
  - 404: User or referral code not found
  - 409: Referral code already used, email taken
  - 503: Rate data unavailable (retry later)
  - 500: Everything else

SECURITY NOTE:
  No authentication. The {id} path parameter stands in for the
  authenticated user; webhook authenticity is verified upstream.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/restitution-engine/calculation"
	"github.com/warp/restitution-engine/config"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
	"github.com/warp/restitution-engine/logging"
	"github.com/warp/restitution-engine/payment"
	"github.com/warp/restitution-engine/rates"
	"github.com/warp/restitution-engine/referral"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxBodyBytes        = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        core.TxStore
	Rates        rates.Repository
	Registrar    *referral.Registrar
	Calculations *calculation.Service
	Payments     *payment.Processor

	Clock  func() time.Time
	Logger *slog.Logger

	validate *validator.Validate
}

// Options carries the configuration the handlers need.
type Options struct {
	Credits      config.CreditsConfig
	RequireRates bool
	Clock        func() time.Time
	Logger       *slog.Logger
}

// DefaultOptions mirrors config.Default().
func DefaultOptions() Options {
	cfg := config.Default()
	return Options{Credits: cfg.Credits, RequireRates: cfg.Calculation.RequireRates}
}

// NewHandler wires the domain services on top of store and rateRepo.
func NewHandler(store core.TxStore, rateRepo rates.Repository, opts Options) *Handler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := logging.OrDiscard(opts.Logger)

	registrar := referral.NewRegistrar(store)
	registrar.WelcomeBonus = opts.Credits.WelcomeBonus
	registrar.Clock = clock
	registrar.Logger = logger

	calc := calculation.NewService(store, rateRepo)
	calc.Cost = opts.Credits.CalculationCost
	calc.RequireRates = opts.RequireRates
	calc.Clock = clock
	calc.Logger = logger

	payments := payment.NewProcessor(store)
	payments.DefaultAmount = opts.Credits.PurchaseDefault
	payments.PurchaseTTL = opts.Credits.PurchaseTTL.Duration
	payments.Referral = &referral.Processor{TTL: opts.Credits.ReferralTTL.Duration}
	payments.Clock = clock
	payments.Logger = logger

	return &Handler{
		Store:        store,
		Rates:        rateRepo,
		Registrar:    registrar,
		Calculations: calc,
		Payments:     payments,
		Clock:        clock,
		Logger:       logger,
		validate:     validator.New(),
	}
}

func (h *Handler) now() time.Time {
	return h.Clock().UTC()
}

func (h *Handler) ledger() *core.Ledger {
	return core.NewLedger(h.Store).WithClock(h.Clock)
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// Register creates a user, optionally linked to a referrer.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.Registrar.Register(r.Context(), referral.Registration{
		Email:        req.Email,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		h.fail(w, r, "Failed to register user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(user, user.Credits))
}

// GetUser returns a user with the valid credit balance.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.Store.GetUser(ctx, userIDParam(r))
	if err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	balance, err := h.ledger().ValidBalance(ctx, user.ID, h.now())
	if err != nil {
		h.fail(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user, balance))
}

// GetBalance shows the derived balance next to the cached mirror.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.Store.GetUser(ctx, userIDParam(r))
	if err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	balance, err := h.ledger().ValidBalance(ctx, user.ID, h.now())
	if err != nil {
		h.fail(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:        string(user.ID),
		ValidCredits:  balance,
		LegacyCredits: user.Credits,
	})
}

// GetCreditHistory lists ledger entries, newest first.
func (h *Handler) GetCreditHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDParam(r)
	if _, err := h.Store.GetUser(ctx, userID); err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit), err)
		return
	}

	entries, err := h.Store.Entries(ctx, userID)
	if err != nil {
		h.fail(w, r, "Failed to load credit history", err)
		return
	}

	now := h.now()
	dtos := make([]EntryDTO, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(dtos) < limit; i-- {
		dtos = append(dtos, toEntryDTO(entries[i], now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReferralStats returns the user's code and payouts.
func (h *Handler) GetReferralStats(w http.ResponseWriter, r *http.Request) {
	stats, err := referral.StatsFor(r.Context(), h.Store, userIDParam(r))
	if err != nil {
		h.fail(w, r, "Failed to get referral stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toReferralStatsDTO(stats))
}

// =============================================================================
// CALCULATION ENDPOINTS
// =============================================================================

// Calculate runs one paid restitution calculation.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculationRequest
	if !h.decode(w, r, &req) {
		return
	}

	bills := make([]indexation.Bill, len(req.Bills))
	for i, b := range req.Bills {
		if b.ICMSValue == nil {
			h.fail(w, r, "Invalid bill", core.Invalid("icms_value", "bill %d: required", i))
			return
		}
		bills[i] = indexation.Bill{IssueDate: b.IssueDate, Charge: *b.ICMSValue}
	}

	result, err := h.Calculations.Calculate(r.Context(), userIDParam(r), bills)
	if err != nil {
		h.fail(w, r, "Calculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationResponse(result))
}

// ListCalculations returns the user's calculation history.
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit), err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer", err)
		return
	}

	records, err := h.Calculations.History(r.Context(), userIDParam(r), limit, offset)
	if err != nil {
		h.fail(w, r, "Failed to list calculations", err)
		return
	}
	dtos := make([]HistoryDTO, len(records))
	for i, rec := range records {
		dtos[i] = toHistoryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// ConfirmPayment lets a user sync a payment they just completed.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentConfirmationRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Payments.ProcessForUser(r.Context(), userIDParam(r), req.toConfirmation())
	if err != nil {
		h.fail(w, r, "Payment confirmation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(out))
}

// PaymentWebhook absorbs a provider delivery. Re-deliveries answer 200.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentConfirmationRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Payments.Process(r.Context(), req.toConfirmation())
	if err != nil {
		h.fail(w, r, "Payment processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(out))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// UpsertRates stores monthly rates for one index.
func (h *Handler) UpsertRates(w http.ResponseWriter, r *http.Request) {
	var req UpsertRatesRequest
	if !h.decode(w, r, &req) {
		return
	}
	index, err := indexation.ParseIndex(req.Index)
	if err != nil {
		h.fail(w, r, "Invalid index", err)
		return
	}

	table := make(indexation.RateTable, len(req.Rates))
	for _, rr := range req.Rates {
		m, err := core.ParseMonth(rr.Month)
		if err != nil {
			h.fail(w, r, "Invalid month", core.Invalid("month", "%q is not YYYY-MM", rr.Month))
			return
		}
		if _, dup := table[m]; dup {
			h.fail(w, r, "Invalid rates", core.Invalid("month", "%s listed twice", m))
			return
		}
		if rr.Rate == nil {
			h.fail(w, r, "Invalid rates", core.Invalid("rate", "%s: required", m))
			return
		}
		table[m] = *rr.Rate
	}

	if err := h.Rates.UpsertRates(r.Context(), index, table); err != nil {
		h.fail(w, r, "Failed to store rates", err)
		return
	}
	h.Logger.Info("rates upserted", "index", index, "months", len(table))
	writeJSON(w, http.StatusOK, UpsertRatesResponse{Index: string(index), Upserted: len(table)})
}

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok", Time: h.now().Format(time.RFC3339)}
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			resp.Status, resp.Database = "degraded", err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func userIDParam(r *http.Request) core.UserID {
	return core.UserID(chi.URLParam(r, "id"))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "Validation failed", "invalid_input", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return errors.New(strings.Join(parts, "; "))
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, core.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, core.ErrUnexpectedUser):
		return http.StatusForbidden, "unexpected_user"
	case errors.Is(err, core.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, core.ErrReferralCodeNotFound):
		return http.StatusNotFound, "referral_code_not_found"
	case errors.Is(err, core.ErrReferralCodeUsed):
		return http.StatusConflict, "referral_code_used"
	case errors.Is(err, core.ErrDuplicateEmail):
		return http.StatusConflict, "email_taken"
	case errors.Is(err, core.ErrDataUnavailable):
		return http.StatusServiceUnavailable, "data_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// fail logs server-side failures and writes the mapped error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message,
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "60")
	}
	if status == http.StatusInternalServerError {
		// Internal details stay in the log.
		writeErrorKind(w, status, message, kind, nil)
		return
	}
	writeErrorKind(w, status, message, kind, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorKind(w, status, message, "", err)
}

func writeErrorKind(w http.ResponseWriter, status int, message, kind string, err error) {
	resp := ErrorResponse{Error: message, Kind: kind}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
