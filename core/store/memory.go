// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/restitution-engine/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	entries    map[core.UserID][]core.Entry
	references map[string]bool
	users      map[core.UserID]core.User
	codes      map[string]core.UserID
	referees   map[core.UserID]core.UserID // referrer -> referee
	history    map[core.UserID][]core.HistoryRecord
}

var _ core.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		entries:    make(map[core.UserID][]core.Entry),
		references: make(map[string]bool),
		users:      make(map[core.UserID]core.User),
		codes:      make(map[string]core.UserID),
		referees:   make(map[core.UserID]core.UserID),
		history:    make(map[core.UserID][]core.HistoryRecord),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.entries {
		c.entries[k] = append([]core.Entry(nil), v...)
	}
	for k, v := range s.references {
		c.references[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.referees {
		c.referees[k] = v
	}
	for k, v := range s.history {
		c.history[k] = append([]core.HistoryRecord(nil), v...)
	}
	return c
}

// WithTx runs fn while holding the store lock. Writes go to a working copy
// that replaces the live state only when fn succeeds.
func (m *Memory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) locked() func() {
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) AppendEntry(ctx context.Context, e core.Entry) error {
	defer m.locked()()
	return (&memoryTx{state: m.state}).AppendEntry(ctx, e)
}

func (m *Memory) Entries(ctx context.Context, userID core.UserID) ([]core.Entry, error) {
	defer m.locked()()
	return (&memoryTx{state: m.state}).Entries(ctx, userID)
}

func (m *Memory) EntryExists(ctx context.Context, referenceID string) (bool, error) {
	defer m.locked()()
	return (&memoryTx{state: m.state}).EntryExists(ctx, referenceID)
}

func (m *Memory) CreateUser(ctx context.Context, u core.User) error {
	defer m.locked()()
	return (&memoryTx{state: m.state}).CreateUser(ctx, u)
}

func (m *Memory) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	defer m.locked()()
	return (&memoryTx{state: m.state}).GetUser(ctx, id)
}

func (m *Memory) UserByReferralCode(ctx context.Context, code string) (*core.User, error) {
	defer m.locked()()
	return (&memoryTx{state: m.state}).UserByReferralCode(ctx, code)
}

func (m *Memory) CountReferredBy(ctx context.Context, id core.UserID) (int, error) {
	defer m.locked()()
	return (&memoryTx{state: m.state}).CountReferredBy(ctx, id)
}

func (m *Memory) SetReferralCode(ctx context.Context, id core.UserID, code string) error {
	defer m.locked()()
	return (&memoryTx{state: m.state}).SetReferralCode(ctx, id, code)
}

func (m *Memory) IncrementReferralCredits(ctx context.Context, id core.UserID) error {
	defer m.locked()()
	return (&memoryTx{state: m.state}).IncrementReferralCredits(ctx, id)
}

func (m *Memory) SetCachedCredits(ctx context.Context, id core.UserID, credits int64) error {
	defer m.locked()()
	return (&memoryTx{state: m.state}).SetCachedCredits(ctx, id, credits)
}

func (m *Memory) ListUserIDs(ctx context.Context) ([]core.UserID, error) {
	defer m.locked()()
	return (&memoryTx{state: m.state}).ListUserIDs(ctx)
}

func (m *Memory) InsertHistory(ctx context.Context, r core.HistoryRecord) error {
	defer m.locked()()
	return (&memoryTx{state: m.state}).InsertHistory(ctx, r)
}

func (m *Memory) History(ctx context.Context, userID core.UserID, limit, offset int) ([]core.HistoryRecord, error) {
	defer m.locked()()
	return (&memoryTx{state: m.state}).History(ctx, userID, limit, offset)
}

// =============================================================================
// UNLOCKED VIEW - Shared by direct calls and WithTx callbacks
// =============================================================================

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) AppendEntry(_ context.Context, e core.Entry) error {
	if e.ReferenceID != "" {
		if t.state.references[e.ReferenceID] {
			return core.ErrDuplicateReference
		}
		t.state.references[e.ReferenceID] = true
	}
	t.state.entries[e.UserID] = append(t.state.entries[e.UserID], e)
	return nil
}

func (t *memoryTx) Entries(_ context.Context, userID core.UserID) ([]core.Entry, error) {
	return append([]core.Entry(nil), t.state.entries[userID]...), nil
}

func (t *memoryTx) EntryExists(_ context.Context, referenceID string) (bool, error) {
	return t.state.references[referenceID], nil
}

func (t *memoryTx) CreateUser(_ context.Context, u core.User) error {
	for _, existing := range t.state.users {
		if u.Email != "" && existing.Email == u.Email {
			return core.ErrDuplicateEmail
		}
	}
	if u.ReferredBy != "" {
		if _, taken := t.state.referees[u.ReferredBy]; taken {
			return core.ErrReferralCodeUsed
		}
		t.state.referees[u.ReferredBy] = u.ID
	}
	if u.ReferralCode != "" {
		t.state.codes[u.ReferralCode] = u.ID
	}
	t.state.users[u.ID] = u
	return nil
}

func (t *memoryTx) GetUser(_ context.Context, id core.UserID) (*core.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return &u, nil
}

func (t *memoryTx) UserByReferralCode(ctx context.Context, code string) (*core.User, error) {
	id, ok := t.state.codes[code]
	if !ok {
		return nil, core.ErrReferralCodeNotFound
	}
	return t.GetUser(ctx, id)
}

func (t *memoryTx) CountReferredBy(_ context.Context, id core.UserID) (int, error) {
	n := 0
	for _, u := range t.state.users {
		if u.ReferredBy == id {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) SetReferralCode(_ context.Context, id core.UserID, code string) error {
	u, ok := t.state.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	if _, taken := t.state.codes[code]; taken {
		return core.ErrDuplicateReference
	}
	if u.ReferralCode != "" {
		delete(t.state.codes, u.ReferralCode)
	}
	u.ReferralCode = code
	t.state.users[id] = u
	t.state.codes[code] = id
	return nil
}

func (t *memoryTx) IncrementReferralCredits(_ context.Context, id core.UserID) error {
	u, ok := t.state.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	u.ReferralCreditsEarned++
	t.state.users[id] = u
	return nil
}

func (t *memoryTx) SetCachedCredits(_ context.Context, id core.UserID, credits int64) error {
	u, ok := t.state.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	u.Credits = credits
	t.state.users[id] = u
	return nil
}

func (t *memoryTx) ListUserIDs(_ context.Context) ([]core.UserID, error) {
	ids := make([]core.UserID, 0, len(t.state.users))
	for id := range t.state.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memoryTx) InsertHistory(_ context.Context, r core.HistoryRecord) error {
	t.state.history[r.UserID] = append(t.state.history[r.UserID], r)
	return nil
}

func (t *memoryTx) History(_ context.Context, userID core.UserID, limit, offset int) ([]core.HistoryRecord, error) {
	records := t.state.history[userID]
	out := make([]core.HistoryRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}
	if offset >= len(out) {
		return []core.HistoryRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
