/*
Package calculation orchestrates one paid restitution calculation.

STATE MACHINE:
  Start -> BalanceChecked -> Computed -> Debited&Recorded -> Done
  Any failure stops the machine. Nothing is written before the last step,
  and the last step is one transaction.

  1. BalanceChecked: valid balance must cover the cost (cheap failure path)
  2. Computed: parse samples, fetch IPCA and SELIC concurrently, run the engine
  3. Debited&Recorded: inside WithTx, Debit re-reads the balance, then the
     history row is inserted; both commit or neither does
  4. Done: return total, remaining credits, history id and duration

RATE POLICY:
  The engine treats missing rates as zero. With RequireRates set, a window
  where either index is wholly empty fails with core.ErrDataUnavailable
  before any credit is spent.

SEE ALSO:
  - indexation/engine.go: The algorithm
  - core/ledger.go: Debit semantics
*/
package calculation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
	"github.com/warp/restitution-engine/logging"
	"github.com/warp/restitution-engine/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCost is the number of credits one calculation spends.
	DefaultCost = 1

	// MaxHistoryPage bounds a single history listing.
	MaxHistoryPage = 200
)

// Service runs calculations against a ledger store and a rate repository.
type Service struct {
	Store        core.TxStore
	Rates        indexation.RateRepository
	Cost         int64
	RequireRates bool

	Clock  func() time.Time
	NewID  func() core.HistoryID
	Logger *slog.Logger
}

func NewService(store core.TxStore, rates indexation.RateRepository) *Service {
	return &Service{
		Store:        store,
		Rates:        rates,
		Cost:         DefaultCost,
		RequireRates: true,
		Clock:        time.Now,
		NewID:        func() core.HistoryID { return core.HistoryID(uuid.NewString()) },
	}
}

// Result is returned for a successful calculation.
type Result struct {
	HistoryID        core.HistoryID
	Total            decimal.Decimal
	MeanCharge       decimal.Decimal
	RemainingCredits int64
	ProcessingTime   time.Duration
	Computation      indexation.Result
}

// Calculate spends one calculation's cost and returns the restitution total.
func (s *Service) Calculate(ctx context.Context, userID core.UserID, bills []indexation.Bill) (res Result, err error) {
	started := time.Now()
	log := logging.OrDiscard(s.Logger).With("user_id", userID)
	defer func() {
		metrics.Calculations.WithLabelValues(metrics.Outcome(err)).Inc()
		if err != nil {
			log.Warn("calculation failed", "error", err)
		}
	}()

	cost := s.cost()

	// 1. BalanceChecked
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return Result{}, err
	}
	balance, err := core.NewLedger(s.Store).ValidBalance(ctx, userID, s.now())
	if err != nil {
		return Result{}, err
	}
	if balance < cost {
		return Result{}, &core.InsufficientCreditsError{UserID: userID, Available: balance, Requested: cost}
	}

	// 2. Computed
	samples, err := indexation.ParseSamples(bills)
	if err != nil {
		return Result{}, err
	}
	rates, err := s.fetchRates(ctx, indexation.MostRecent(samples))
	if err != nil {
		return Result{}, err
	}
	computed, err := indexation.Compute(samples, rates)
	if err != nil {
		return Result{}, err
	}

	// 3. Debited&Recorded
	historyID := s.newID()
	var remaining int64
	err = s.Store.WithTx(ctx, func(tx core.Store) error {
		entry, err := core.NewLedger(tx).WithClock(s.Clock).Debit(ctx, userID, cost,
			"Restitution calculation", core.UsageReference(historyID))
		if err != nil {
			return err
		}
		remaining = entry.BalanceAfter

		return tx.InsertHistory(ctx, core.HistoryRecord{
			ID:             historyID,
			UserID:         userID,
			MeanCharge:     computed.MeanCharge,
			WindowMonths:   indexation.WindowMonths,
			SampleCount:    len(samples),
			Total:          computed.Total,
			ComputedAt:     s.now(),
			ProcessingTime: time.Since(started),
		})
	})
	if err != nil {
		return Result{}, err
	}

	// 4. Done
	elapsed := time.Since(started)
	metrics.CreditsDebited.Add(float64(cost))
	metrics.CalculationDuration.Observe(elapsed.Seconds())
	log.Info("calculation recorded",
		"history_id", historyID,
		"total", computed.Total.StringFixed(2),
		"remaining", remaining,
		"duration_ms", elapsed.Milliseconds(),
	)

	return Result{
		HistoryID:        historyID,
		Total:            computed.Total,
		MeanCharge:       computed.MeanCharge,
		RemainingCredits: remaining,
		ProcessingTime:   elapsed,
		Computation:      computed,
	}, nil
}

// fetchRates loads both indices for the window ending at mostRecent.
func (s *Service) fetchRates(ctx context.Context, mostRecent core.Month) (indexation.RateSet, error) {
	from, to := indexation.Window(mostRecent)
	if s.Rates == nil {
		set := indexation.RateSet{}
		if s.RequireRates {
			return set, set.RequireRates(from, to)
		}
		return set, nil
	}

	var set indexation.RateSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		table, err := s.Rates.Rates(gctx, indexation.IndexIPCA, from, to)
		if err != nil {
			return fmt.Errorf("load %s rates: %w", indexation.IndexIPCA, err)
		}
		set.IPCA = table
		return nil
	})
	g.Go(func() error {
		table, err := s.Rates.Rates(gctx, indexation.IndexSELIC, from, to)
		if err != nil {
			return fmt.Errorf("load %s rates: %w", indexation.IndexSELIC, err)
		}
		set.SELIC = table
		return nil
	})
	if err := g.Wait(); err != nil {
		return indexation.RateSet{}, err
	}

	if s.RequireRates {
		if err := set.RequireRates(from, to); err != nil {
			return indexation.RateSet{}, err
		}
	}
	return set, nil
}

// History lists the user's calculations, newest first. limit is clamped to
// MaxHistoryPage.
func (s *Service) History(ctx context.Context, userID core.UserID, limit, offset int) ([]core.HistoryRecord, error) {
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.History(ctx, userID, limit, offset)
}

func (s *Service) cost() int64 {
	if s.Cost <= 0 {
		return DefaultCost
	}
	return s.Cost
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s *Service) newID() core.HistoryID {
	if s.NewID == nil {
		return core.HistoryID(uuid.NewString())
	}
	return s.NewID()
}
