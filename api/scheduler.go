/*
scheduler.go - Cached credit balance sync

PURPOSE:
  Periodically recomputes every user's valid balance from the ledger and
  refreshes the cached users.credits mirror when it has drifted, usually
  because entries expired since the last write.

DESIGN:
  - Runs a background goroutine with configurable interval
  - The ledger stays authoritative; the mirror is display-only
  - One user's failure is logged and does not stop the run
  - Each run is counted in restitution_credit_sync_runs_total

CONFIGURATION:
  - Interval: How often to sync (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewCreditSyncScheduler(store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - core/ledger.go: ValidBalance
  - metrics/metrics.go: CreditSyncRuns
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/logging"
	"github.com/warp/restitution-engine/metrics"
)

// CreditSyncScheduler keeps users.credits in line with the ledger.
type CreditSyncScheduler struct {
	Store    core.Store
	Interval time.Duration
	Enabled  bool
	Clock    func() time.Time
	Logger   *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCreditSyncScheduler creates a new scheduler.
func NewCreditSyncScheduler(store core.Store, logger *slog.Logger) *CreditSyncScheduler {
	return &CreditSyncScheduler{
		Store:    store,
		Interval: time.Hour,
		Enabled:  true,
		Clock:    time.Now,
		Logger:   logging.OrDiscard(logger),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *CreditSyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logging.OrDiscard(s.Logger)
	if !s.Enabled {
		log.Info("credit sync disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	log.Info("credit sync started", "interval", s.Interval)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *CreditSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		logging.OrDiscard(s.Logger).Info("credit sync stopped")
	}
}

func (s *CreditSyncScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	s.SyncOnce(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.SyncOnce(ctx)
		case <-s.stop:
			return
		}
	}
}

// SyncOnce refreshes every drifted mirror and returns how many were
// updated. The error is the first failure; the remaining users are still
// processed.
func (s *CreditSyncScheduler) SyncOnce(ctx context.Context) (int, error) {
	log := logging.OrDiscard(s.Logger)
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	ledger := core.NewLedger(s.Store).WithClock(clock)

	ids, err := s.Store.ListUserIDs(ctx)
	if err != nil {
		log.Error("credit sync: list users", "error", err)
		metrics.CreditSyncRuns.WithLabelValues("error").Inc()
		return 0, err
	}

	var firstErr error
	updated := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			firstErr = ctx.Err()
			break
		}
		changed, err := s.syncUser(ctx, ledger, id, now)
		if err != nil {
			log.Warn("credit sync: user failed", "user_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			updated++
		}
	}

	result := "ok"
	if firstErr != nil {
		result = "error"
	}
	metrics.CreditSyncRuns.WithLabelValues(result).Inc()

	if updated > 0 {
		log.Info("credit sync completed", "users", len(ids), "updated", updated)
	}
	return updated, firstErr
}

func (s *CreditSyncScheduler) syncUser(ctx context.Context, ledger *core.Ledger, id core.UserID, now time.Time) (bool, error) {
	user, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	balance, err := ledger.ValidBalance(ctx, id, now)
	if err != nil {
		return false, err
	}
	if balance == user.Credits {
		return false, nil
	}
	return true, s.Store.SetCachedCredits(ctx, id, balance)
}
