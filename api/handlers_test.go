/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Registration and referral codes
- Balance and credit history
- Calculations (success, 402, 503)
- Payment confirmation and webhook idempotency
- Rate administration
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
	"github.com/warp/restitution-engine/rates"
	"github.com/warp/restitution-engine/store/sqlite"
)

type testServer struct {
	store  *sqlite.Store
	rates  *rates.Static
	router *chi.Mux
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	repo := rates.NewStatic()
	h := NewHandler(store, repo, opts)
	return &testServer{store: store, rates: repo, router: NewRouter(h)}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, email, code string) UserDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/users", RegisterRequest{Email: email, ReferralCode: code})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user UserDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	return user
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// USERS
// =============================================================================

func TestRegister_GrantsWelcomeBonus(t *testing.T) {
	// GIVEN: A fresh server
	s := newTestServer(t, nil)

	// WHEN: A user registers
	user := s.register(t, "Alice@Example.com", "")

	// THEN: The email is normalised and three credits are available
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, int64(3), user.Credits)

	rec := s.do(t, http.MethodGet, "/api/users/"+user.ID+"/credits/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, int64(3), balance.ValidCredits)
	assert.Equal(t, int64(3), balance.LegacyCredits)
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "taken@example.com", "")

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"bad email", RegisterRequest{Email: "not-an-email"}, http.StatusBadRequest, "invalid_input"},
		{"unknown field", map[string]string{"email": "a@example.com", "role": "admin"}, http.StatusBadRequest, ""},
		{"unknown code", RegisterRequest{Email: "b@example.com", ReferralCode: "NOPE1234"}, http.StatusNotFound, "referral_code_not_found"},
		{"duplicate email", RegisterRequest{Email: "taken@example.com"}, http.StatusConflict, "email_taken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/users", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.kind, resp.Kind)
		})
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/users/ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreditHistory_NewestFirstWithLimit(t *testing.T) {
	// GIVEN: A user with a welcome bonus and two purchases
	s := newTestServer(t, nil)
	user := s.register(t, "alice@example.com", "")
	for _, id := range []string{"pay-1", "pay-2"} {
		rec := s.do(t, http.MethodPost, "/api/payments/webhook", PaymentConfirmationRequest{
			PaymentID: id, Status: "approved", ExternalReference: user.ID, CreditedAmount: 2,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// WHEN: Listing two entries
	rec := s.do(t, http.MethodGet, "/api/users/"+user.ID+"/credits/history?limit=2", nil)

	// THEN: The latest purchase comes first
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]EntryDTO](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "mp_pay-2", entries[0].ReferenceID)
	assert.Equal(t, "mp_pay-1", entries[1].ReferenceID)
	assert.NotNil(t, entries[0].ExpiresAt)
	assert.False(t, entries[0].Expired)

	// Out-of-range limits are rejected
	rec = s.do(t, http.MethodGet, "/api/users/"+user.ID+"/credits/history?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CALCULATIONS
// =============================================================================

var oneBill = CalculationRequest{Bills: []BillRequest{
	{IssueDate: "2024-12", ICMSValue: dec("1000.00")},
}}

func TestCalculate_DataUnavailable(t *testing.T) {
	// GIVEN: No rates loaded
	s := newTestServer(t, nil)
	user := s.register(t, "alice@example.com", "")

	// WHEN: Calculating
	rec := s.do(t, http.MethodPost, "/api/users/"+user.ID+"/calculations", oneBill)

	// THEN: 503 with Retry-After, and no credit was spent
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "data_unavailable", decodeBody[ErrorResponse](t, rec).Kind)

	balance := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/users/"+user.ID+"/credits/balance", nil))
	assert.Equal(t, int64(3), balance.ValidCredits)
}

func TestCalculate_DebitsAndRecords(t *testing.T) {
	// GIVEN: Zero rates are allowed
	s := newTestServer(t, func(o *Options) { o.RequireRates = false })
	user := s.register(t, "alice@example.com", "")

	// WHEN: Calculating one bill
	rec := s.do(t, http.MethodPost, "/api/users/"+user.ID+"/calculations", oneBill)

	// THEN: The amount is returned and one credit is spent
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[CalculationResponse](t, rec)
	assert.True(t, decimal.RequireFromString("4554.6").Equal(resp.ValorCalculado))
	assert.Equal(t, int64(2), resp.CreditosRestantes)
	assert.NotEmpty(t, resp.CalculationID)

	rec = s.do(t, http.MethodGet, "/api/users/"+user.ID+"/calculations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]HistoryDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, resp.CalculationID, history[0].ID)
	assert.Equal(t, indexation.WindowMonths, history[0].WindowMonths)
}

func TestCalculate_InsufficientCredits(t *testing.T) {
	// GIVEN: No welcome bonus
	s := newTestServer(t, func(o *Options) {
		o.RequireRates = false
		o.Credits.WelcomeBonus = 0
	})
	user := s.register(t, "alice@example.com", "")

	// WHEN: Calculating
	rec := s.do(t, http.MethodPost, "/api/users/"+user.ID+"/calculations", oneBill)

	// THEN: 402
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_credits", decodeBody[ErrorResponse](t, rec).Kind)
}

func TestCalculate_Validation(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.RequireRates = false })
	user := s.register(t, "alice@example.com", "")
	path := "/api/users/" + user.ID + "/calculations"

	t.Run("no bills", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, path, CalculationRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too many bills", func(t *testing.T) {
		req := CalculationRequest{}
		for i := 1; i <= 13; i++ {
			req.Bills = append(req.Bills, BillRequest{
				IssueDate: core.NewMonth(2024, 1).AddMonths(i).String(),
				ICMSValue: dec("10"),
			})
		}
		rec := s.do(t, http.MethodPost, path, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, path, CalculationRequest{Bills: []BillRequest{
			{IssueDate: "yesterday", ICMSValue: dec("10")},
		}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", decodeBody[ErrorResponse](t, rec).Kind)
	})

	t.Run("missing charge", func(t *testing.T) {
		for _, body := range []string{
			`{"bills":[{"issue_date":"2024-06"}]}`,
			`{"bills":[{"issue_date":"2024-06","icms_value":null}]}`,
		} {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Equal(t, "invalid_input", decodeBody[ErrorResponse](t, rec).Kind)
		}
	})

	// No credits were spent by rejected requests
	balance := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/users/"+user.ID+"/credits/balance", nil))
	assert.Equal(t, int64(3), balance.ValidCredits)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPaymentWebhook_Idempotent(t *testing.T) {
	// GIVEN: A registered user
	s := newTestServer(t, nil)
	user := s.register(t, "alice@example.com", "")
	body := PaymentConfirmationRequest{
		PaymentID: "pay-1", Status: "approved", ExternalReference: user.ID, CreditedAmount: 5,
	}

	// WHEN: The provider delivers the same payment twice
	first := decodeBody[PaymentConfirmationResponse](t, s.do(t, http.MethodPost, "/api/payments/webhook", body))
	second := decodeBody[PaymentConfirmationResponse](t, s.do(t, http.MethodPost, "/api/payments/webhook", body))

	// THEN: Credits are added exactly once
	assert.True(t, first.CreditsAdded)
	assert.Equal(t, int64(8), first.CreditsBalance)
	assert.False(t, second.CreditsAdded)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, int64(8), second.CreditsBalance)
}

func TestPaymentWebhook_PendingIgnored(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.register(t, "alice@example.com", "")

	rec := s.do(t, http.MethodPost, "/api/payments/webhook", PaymentConfirmationRequest{
		PaymentID: "pay-1", Status: "pending", ExternalReference: user.ID,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[PaymentConfirmationResponse](t, rec)
	assert.False(t, resp.CreditsAdded)
	assert.Equal(t, int64(3), resp.CreditsBalance)
}

func TestConfirmPayment_OtherUserForbidden(t *testing.T) {
	// GIVEN: Two users
	s := newTestServer(t, nil)
	alice := s.register(t, "alice@example.com", "")
	bob := s.register(t, "bob@example.com", "")

	// WHEN: Alice confirms a payment that belongs to Bob
	rec := s.do(t, http.MethodPost, "/api/users/"+alice.ID+"/payments/confirm", PaymentConfirmationRequest{
		PaymentID: "pay-1", Status: "approved", ExternalReference: bob.ID,
	})

	// THEN: 403 and Bob is not credited
	assert.Equal(t, http.StatusForbidden, rec.Code)
	balance := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/users/"+bob.ID+"/credits/balance", nil))
	assert.Equal(t, int64(3), balance.ValidCredits)
}

func TestReferralFlow_EndToEnd(t *testing.T) {
	// GIVEN: Alice buys credits, which mints her referral code
	s := newTestServer(t, nil)
	alice := s.register(t, "alice@example.com", "")
	rec := s.do(t, http.MethodPost, "/api/users/"+alice.ID+"/payments/confirm", PaymentConfirmationRequest{
		PaymentID: "pay-a", Status: "approved", ExternalReference: alice.ID, CreditedAmount: 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody[ReferralStatsDTO](t, s.do(t, http.MethodGet, "/api/users/"+alice.ID+"/referral", nil))
	require.NotEmpty(t, stats.ReferralCode)

	// WHEN: Bob registers with the code and makes his first purchase
	bob := s.register(t, "bob@example.com", stats.ReferralCode)
	assert.Equal(t, alice.ID, bob.ReferredBy)
	rec = s.do(t, http.MethodPost, "/api/users/"+bob.ID+"/payments/confirm", PaymentConfirmationRequest{
		PaymentID: "pay-b", Status: "approved", ExternalReference: bob.ID, CreditedAmount: 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Both sides get one bonus credit
	bobBalance := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/users/"+bob.ID+"/credits/balance", nil))
	assert.Equal(t, int64(3+3+1), bobBalance.ValidCredits)
	aliceBalance := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/users/"+alice.ID+"/credits/balance", nil))
	assert.Equal(t, int64(3+3+1), aliceBalance.ValidCredits)

	stats = decodeBody[ReferralStatsDTO](t, s.do(t, http.MethodGet, "/api/users/"+alice.ID+"/referral", nil))
	assert.Equal(t, 1, stats.TotalReferrals)
	assert.Equal(t, 1, stats.CreditsEarned)
	assert.Equal(t, 0, stats.RemainingPayouts)

	// AND: The code cannot be redeemed again
	rec = s.do(t, http.MethodPost, "/api/users", RegisterRequest{Email: "carol@example.com", ReferralCode: stats.ReferralCode})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestUpsertRates(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/admin/rates", UpsertRatesRequest{
		Index: "selic",
		Rates: []RateRequest{
			{Month: "2024-11", Rate: dec("0.0079")},
			{Month: "2024-12", Rate: dec("0.0093")},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, UpsertRatesResponse{Index: "selic", Upserted: 2}, decodeBody[UpsertRatesResponse](t, rec))

	table, err := s.rates.Rates(context.Background(), indexation.IndexSELIC,
		core.NewMonth(2024, 11), core.NewMonth(2024, 12))
	require.NoError(t, err)
	assert.Len(t, table, 2)

	t.Run("bad month", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/admin/rates", UpsertRatesRequest{
			Index: "ipca", Rates: []RateRequest{{Month: "2024/12", Rate: dec("0")}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing rate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/rates",
			strings.NewReader(`{"index":"ipca","rates":[{"month":"2024-12"}]}`))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown index", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/admin/rates", UpsertRatesRequest{
			Index: "cdi", Rates: []RateRequest{{Month: "2024-12", Rate: dec("0")}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Database)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{core.Invalid("samples", "empty"), http.StatusBadRequest},
		{&core.InsufficientCreditsError{UserID: "u", Available: 0, Requested: 1}, http.StatusPaymentRequired},
		{core.ErrUnexpectedUser, http.StatusForbidden},
		{core.ErrUserNotFound, http.StatusNotFound},
		{core.ErrReferralCodeUsed, http.StatusConflict},
		{core.ErrDataUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
