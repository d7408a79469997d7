/*
Package rates provides indexation.RateRepository adapters.

IMPLEMENTATIONS:
  - Static: Fixed tables held in memory (tests, fixtures, CLI dry runs)
  - Cached: LRU decorator in front of any repository
  - store/sqlite.Store: The persistent repository

LOADING:
  ParseCSV reads "YYYY-MM,rate" rows. Rates are decimal fractions
  (0.0116 = 1.16%); a trailing "%" is accepted and divided by 100.

SEE ALSO:
  - indexation/rates.go: RateRepository contract
  - cmd/server/rates.go: CSV import command
*/
package rates

import (
	"context"
	"sync"

	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
)

// Static serves rates from memory. Safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	tables map[indexation.Index]indexation.RateTable
}

var (
	_ indexation.RateRepository = (*Static)(nil)
	_ Writer                    = (*Static)(nil)
)

func NewStatic() *Static {
	return &Static{tables: make(map[indexation.Index]indexation.RateTable)}
}

// Rates returns the subset of the index's table within [from, to].
func (s *Static) Rates(_ context.Context, index indexation.Index, from, to core.Month) (indexation.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := indexation.RateTable{}
	for m, r := range s.tables[index] {
		if !m.Before(from) && !m.After(to) {
			out[m] = r
		}
	}
	return out, nil
}

// UpsertRates merges table into the stored index.
func (s *Static) UpsertRates(_ context.Context, index indexation.Index, table indexation.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tables[index]
	if !ok {
		existing = indexation.RateTable{}
		s.tables[index] = existing
	}
	for m, r := range table {
		existing[m] = r
	}
	return nil
}
