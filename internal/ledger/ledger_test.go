package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamfarzad/polyagent/internal/domain"
)

// memStore is an in-memory ContextStore for ledger tests. failWith, when
// set, makes every call fail to exercise the unavailable-context path.
type memStore struct {
	mu       sync.Mutex
	state    domain.ContextState
	failWith error
}

func newMemStore() *memStore {
	return &memStore{state: domain.ContextState{
		Allocation: map[domain.AgentTag]float64{},
	}}
}

func (m *memStore) Snapshot(context.Context) (domain.ContextState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.ContextState{}, m.failWith
	}
	out := m.state
	out.Positions = append([]domain.Position(nil), m.state.Positions...)
	out.RecentTrades = append([]domain.TradeEvent(nil), m.state.RecentTrades...)
	out.Blacklist = append([]string(nil), m.state.Blacklist...)
	return out, nil
}

func (m *memStore) CreatePosition(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, p := range m.state.Positions {
		if p.MarketID == pos.MarketID {
			return domain.ErrDuplicatePosition
		}
	}
	m.state.Positions = append(m.state.Positions, pos)
	return nil
}

func (m *memStore) DeletePosition(_ context.Context, marketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.state.Positions {
		if p.MarketID == marketID {
			m.state.Positions = append(m.state.Positions[:i], m.state.Positions[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) AppendTrade(_ context.Context, trade domain.TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.state.RecentTrades = append(m.state.RecentTrades, trade)
	if n := len(m.state.RecentTrades); n > domain.RecentTradeCap {
		m.state.RecentTrades = m.state.RecentTrades[n-domain.RecentTradeCap:]
	}
	return nil
}

func (m *memStore) AddBlacklist(_ context.Context, marketID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.state.Blacklist {
		if id == marketID {
			return nil
		}
	}
	m.state.Blacklist = append(m.state.Blacklist, marketID)
	return nil
}

func (m *memStore) SetAllocation(_ context.Context, alloc map[domain.AgentTag]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Allocation = alloc
	return nil
}

func (m *memStore) SetTotalBalance(_ context.Context, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TotalBalance = balance
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(store domain.ContextStore) *Ledger {
	l := New(store, nil, DefaultConfig(), testLogger())
	return l
}

func fullAllocation(store *memStore) {
	store.state.Allocation = map[domain.AgentTag]float64{
		domain.AgentSafe:    0.25,
		domain.AgentScalper: 0.25,
		domain.AgentCopy:    0.25,
		domain.AgentSports:  0.25,
	}
}

func TestCanTradeAllChecksPass(t *testing.T) {
	store := newMemStore()
	fullAllocation(store)
	l := newTestLedger(store)

	ok, reason, err := l.CanTrade(context.Background(), domain.AgentSafe, "mkt-1", 10, 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "OK", reason)
}

func TestCanTradeBlacklist(t *testing.T) {
	store := newMemStore()
	fullAllocation(store)
	l := newTestLedger(store)

	require.NoError(t, l.BlacklistMarket(context.Background(), "mkt-bad", "suspicious signal"))

	ok, reason, err := l.CanTrade(context.Background(), domain.AgentSafe, "mkt-bad", 1, 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "blacklisted")
}

func TestCanTradeDuplicateMarketAcrossAgents(t *testing.T) {
	store := newMemStore()
	fullAllocation(store)
	l := newTestLedger(store)

	require.NoError(t, l.AddPosition(context.Background(), domain.Position{
		MarketID: "mkt-1", Agent: domain.AgentScalper, Outcome: domain.OutcomeUp,
		EntryPrice: 0.55, Size: 5, OpenedAt: time.Now(),
	}))

	// A different agent must still be refused.
	ok, reason, err := l.CanTrade(context.Background(), domain.AgentSafe, "mkt-1", 1, 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "position already open")
}

func TestCanTradeMaxOpenPositions(t *testing.T) {
	store := newMemStore()
	fullAllocation(store)
	cfg := DefaultConfig()
	cfg.MaxOpenPositions = 2
	l := New(store, nil, cfg, testLogger())

	ctx := context.Background()
	for _, id := range []string{"m1", "m2"} {
		require.NoError(t, l.AddPosition(ctx, domain.Position{MarketID: id, Agent: domain.AgentSafe, Size: 1}))
	}

	ok, reason, err := l.CanTrade(ctx, domain.AgentSafe, "m3", 1, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "max open positions")
}

func TestCanTradeExposureCeiling(t *testing.T) {
	store := newMemStore()
	fullAllocation(store)
	l := newTestLedger(store)
	ctx := context.Background()

	require.NoError(t, l.AddPosition(ctx, domain.Position{MarketID: "m1", Agent: domain.AgentSafe, Size: 75}))

	// 75 + 10 > 100 * 0.80
	ok, reason, err := l.CanTrade(ctx, domain.AgentScalper, "m2", 10, 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "exposure limit")
}

func TestCanTradeAgentAllocation(t *testing.T) {
	store := newMemStore()
	fullAllocation(store) // 25% each
	l := newTestLedger(store)
	ctx := context.Background()

	require.NoError(t, l.AddPosition(ctx, domain.Position{MarketID: "m1", Agent: domain.AgentCopy, Size: 20}))

	// copy agent has 100*0.25 - 20 = 5 available
	ok, reason, err := l.CanTrade(ctx, domain.AgentCopy, "m2", 6, 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "allocation exhausted")

	// but a different agent with a clean book is fine
	ok, reason, err = l.CanTrade(ctx, domain.AgentSports, "m2", 6, 100)
	require.NoError(t, err)
	assert.True(t, ok, reason)
}

func TestCanTradeCooldown(t *testing.T) {
	store := newMemStore()
	fullAllocation(store)
	l := newTestLedger(store)
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	require.NoError(t, l.AddTrade(ctx, domain.TradeEvent{
		ID: "t1", MarketID: "m1", Agent: domain.AgentSafe,
		Status: domain.TradeStatusFilled, Timestamp: now.Add(-10 * time.Second),
	}))

	ok, reason, err := l.CanTrade(ctx, domain.AgentSafe, "m1", 1, 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")

	// Once the cooldown window has elapsed the market is tradeable again.
	l.now = func() time.Time { return now.Add(31 * time.Second) }
	ok, reason, err = l.CanTrade(ctx, domain.AgentSafe, "m1", 1, 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "OK", reason)
}

func TestCanTradeUnavailableStore(t *testing.T) {
	store := newMemStore()
	store.failWith = errors.New("disk on fire")
	l := newTestLedger(store)

	_, _, err := l.CanTrade(context.Background(), domain.AgentSafe, "m1", 1, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContextUnavailable)
}

func TestBlacklistIdempotent(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	require.NoError(t, l.BlacklistMarket(ctx, "m1", "first"))
	require.NoError(t, l.BlacklistMarket(ctx, "m1", "second"))

	state, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, state.Blacklist)
}

func TestAddPositionDuplicate(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	require.NoError(t, l.AddPosition(ctx, domain.Position{MarketID: "m1", Agent: domain.AgentSafe, Size: 1}))
	err := l.AddPosition(ctx, domain.Position{MarketID: "m1", Agent: domain.AgentCopy, Size: 2})
	assert.ErrorIs(t, err, domain.ErrDuplicatePosition)
}

func TestSettleTradeAppendsNewEvent(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	original := domain.TradeEvent{
		ID: "t1", MarketID: "m1", Agent: domain.AgentSafe,
		Size: 5, Price: 0.6, Status: domain.TradeStatusFilled,
		Timestamp: time.Now(),
	}
	require.NoError(t, l.AddTrade(ctx, original))
	require.NoError(t, l.SettleTrade(ctx, original, 3.33))

	state, err := l.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.RecentTrades, 2)

	// The original record is untouched; the settlement references it.
	assert.Equal(t, domain.TradeStatusFilled, state.RecentTrades[0].Status)
	assert.Nil(t, state.RecentTrades[0].PnL)
	settled := state.RecentTrades[1]
	assert.Equal(t, domain.TradeStatusSettled, settled.Status)
	assert.Equal(t, "t1", settled.SettlesTradeID)
	require.NotNil(t, settled.PnL)
	assert.InDelta(t, 3.33, *settled.PnL, 1e-9)
}

func TestApplyPnLAdjustsBalance(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	require.NoError(t, l.RecordBalance(ctx, 100))
	require.NoError(t, l.ApplyPnL(ctx, -40))

	state, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, state.TotalBalance, 1e-9)

	require.NoError(t, l.ApplyPnL(ctx, 12.5))
	state, err = l.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 72.5, state.TotalBalance, 1e-9)
}

func TestSetAllocationValidation(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	err := l.SetAllocation(ctx, map[domain.AgentTag]float64{"mystery": 0.5})
	assert.Error(t, err)

	err = l.SetAllocation(ctx, map[domain.AgentTag]float64{
		domain.AgentSafe: 0.6, domain.AgentScalper: 0.6,
	})
	assert.Error(t, err, "fractions must sum to <= 1.0")

	err = l.SetAllocation(ctx, map[domain.AgentTag]float64{
		domain.AgentSafe: 0.5, domain.AgentScalper: 0.5,
	})
	assert.NoError(t, err)
}

func TestConcurrentAddPositionDifferentMarkets(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"m1", "m2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = l.AddPosition(ctx, domain.Position{MarketID: id, Agent: domain.AgentSafe, Size: 1})
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	state, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Positions, 2)
}
