package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamfarzad/polyagent/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "context.json"))
}

func TestSnapshotMissingFile(t *testing.T) {
	s := newTestStore(t)
	state, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Positions)
	assert.NotNil(t, state.Allocation)
}

func TestCreateAndDeletePosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pos := domain.Position{
		MarketID: "m1", Question: "Will it rain?", Agent: domain.AgentSafe,
		Outcome: domain.OutcomeYes, EntryPrice: 0.9, Size: 10,
		OpenedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreatePosition(ctx, pos))

	err := s.CreatePosition(ctx, domain.Position{MarketID: "m1", Agent: domain.AgentCopy})
	assert.ErrorIs(t, err, domain.ErrDuplicatePosition)

	state, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.Positions, 1)
	assert.Equal(t, "m1", state.Positions[0].MarketID)
	assert.False(t, state.LastUpdate.IsZero())

	require.NoError(t, s.DeletePosition(ctx, "m1"))
	assert.ErrorIs(t, s.DeletePosition(ctx, "m1"), domain.ErrNotFound)
}

func TestAppendTradeCapsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < domain.RecentTradeCap+10; i++ {
		require.NoError(t, s.AppendTrade(ctx, domain.TradeEvent{
			ID:       fmt.Sprintf("t%d", i),
			MarketID: "m1", Agent: domain.AgentScalper,
			Status: domain.TradeStatusFilled, Timestamp: time.Now(),
		}))
	}

	state, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.RecentTrades, domain.RecentTradeCap)
	// Most-recent-last ordering: the oldest retained event is t10.
	assert.Equal(t, "t10", state.RecentTrades[0].ID)
	assert.Equal(t, fmt.Sprintf("t%d", domain.RecentTradeCap+9), state.RecentTrades[len(state.RecentTrades)-1].ID)
}

func TestBlacklistIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddBlacklist(ctx, "m1", "spoofy order book"))
	require.NoError(t, s.AddBlacklist(ctx, "m1", "again"))

	state, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, state.Blacklist)
}

func TestDocumentLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	s := New(path)
	ctx := context.Background()

	require.NoError(t, s.SetTotalBalance(ctx, 250.5))
	require.NoError(t, s.SetAllocation(ctx, map[domain.AgentTag]float64{domain.AgentSafe: 0.4}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"positions", "recent_trades", "blacklist", "allocation", "total_balance", "last_update"} {
		assert.Contains(t, doc, key)
	}
}

func TestConcurrentCreateDifferentMarkets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreatePosition(ctx, domain.Position{
				MarketID: fmt.Sprintf("m%d", i), Agent: domain.AgentSafe, Size: 1,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "market m%d", i)
	}

	state, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Positions, n, "no lost updates under concurrent writers")
}

func TestAllocationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alloc := map[domain.AgentTag]float64{
		domain.AgentSafe:    0.30,
		domain.AgentScalper: 0.20,
	}
	require.NoError(t, s.SetAllocation(ctx, alloc))

	state, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, state.Allocation[domain.AgentSafe], 1e-9)
	assert.InDelta(t, 0.20, state.Allocation[domain.AgentScalper], 1e-9)
}
