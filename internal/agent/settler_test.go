package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
	"github.com/iamfarzad/polyagent/internal/risk"
)

type fakeResolver struct {
	resolutions map[string]polymarket.Resolution
}

func (f *fakeResolver) GetResolution(ctx context.Context, marketID string) (polymarket.Resolution, error) {
	return f.resolutions[marketID], nil
}

func TestSettlementPnL(t *testing.T) {
	pos := domain.Position{
		MarketID:   "m1",
		Outcome:    domain.OutcomeYes,
		EntryPrice: 0.80,
		Size:       40,
	}

	t.Run("winning position redeems at one dollar", func(t *testing.T) {
		// 50 shares at $0.80 redeem for $50; profit $10.
		assert.InDelta(t, 10.0, SettlementPnL(pos, "Yes"), 1e-9)
	})

	t.Run("losing position forfeits the stake", func(t *testing.T) {
		assert.InDelta(t, -40.0, SettlementPnL(pos, "No"), 1e-9)
	})

	t.Run("zero entry price treated as total loss", func(t *testing.T) {
		broken := pos
		broken.EntryPrice = 0
		assert.InDelta(t, -40.0, SettlementPnL(broken, "Yes"), 1e-9)
	})
}

func TestSweepOnceSettlesResolvedPositions(t *testing.T) {
	led := newTestLedger(t, 1000)
	ctx := context.Background()

	require.NoError(t, led.AddPosition(ctx, domain.Position{
		MarketID: "m1", Question: "resolved market", Agent: domain.AgentSafe,
		Outcome: domain.OutcomeYes, EntryPrice: 0.80, Size: 40,
		OpenedAt: time.Now().UTC(),
	}))
	require.NoError(t, led.AddPosition(ctx, domain.Position{
		MarketID: "m2", Question: "still open", Agent: domain.AgentSports,
		Outcome: domain.OutcomeNo, EntryPrice: 0.60, Size: 30,
		OpenedAt: time.Now().UTC(),
	}))

	resolver := &fakeResolver{resolutions: map[string]polymarket.Resolution{
		"m1": {Closed: true, WinningOutcome: "Yes"},
		"m2": {Closed: false},
	}}

	s := NewSettler(resolver, led, nil, time.Minute, discardLogger())
	require.NoError(t, s.SweepOnce(ctx))

	state, err := led.Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, state.Positions, 1, "only the unresolved position remains")
	assert.Equal(t, "m2", state.Positions[0].MarketID)

	var settlement *domain.TradeEvent
	for i := range state.RecentTrades {
		if state.RecentTrades[i].Status == domain.TradeStatusSettled {
			settlement = &state.RecentTrades[i]
		}
	}
	require.NotNil(t, settlement, "settlement event recorded")
	assert.Equal(t, "m1", settlement.MarketID)
	require.NotNil(t, settlement.PnL)
	assert.InDelta(t, 10.0, *settlement.PnL, 1e-9)
	assert.NotEmpty(t, settlement.SettlesTradeID)
	assert.InDelta(t, 1010.0, state.TotalBalance, 1e-9, "realized profit lands in the balance")
}

func TestLosingSettlementLowersBalanceAndTripsBreaker(t *testing.T) {
	led := newTestLedger(t, 100)
	ctx := context.Background()

	require.NoError(t, led.AddPosition(ctx, domain.Position{
		MarketID: "m1", Question: "doomed market", Agent: domain.AgentSafe,
		Outcome: domain.OutcomeYes, EntryPrice: 0.80, Size: 40,
		OpenedAt: time.Now().UTC(),
	}))

	resolver := &fakeResolver{resolutions: map[string]polymarket.Resolution{
		"m1": {Closed: true, WinningOutcome: "No"},
	}}

	s := NewSettler(resolver, led, nil, time.Minute, discardLogger())
	require.NoError(t, s.SweepOnce(ctx))

	state, err := led.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, state.TotalBalance, 1e-9, "forfeited stake leaves the balance")
	assert.False(t, risk.CheckDrawdown(100, state.TotalBalance, 0.05),
		"a 40% realized loss must trip the drawdown breaker")
}

func TestSweepOnceBlacklistsClosedMarketWithoutWinner(t *testing.T) {
	led := newTestLedger(t, 1000)
	ctx := context.Background()

	require.NoError(t, led.AddPosition(ctx, domain.Position{
		MarketID: "m1", Question: "disputed market", Agent: domain.AgentSports,
		Outcome: domain.OutcomeYes, EntryPrice: 0.70, Size: 20,
		OpenedAt: time.Now().UTC(),
	}))

	resolver := &fakeResolver{resolutions: map[string]polymarket.Resolution{
		"m1": {Closed: true},
	}}

	s := NewSettler(resolver, led, nil, time.Minute, discardLogger())
	require.NoError(t, s.SweepOnce(ctx))

	state, err := led.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, state.Blacklisted("m1"), "disputed market kept out of every scanner")
	require.Len(t, state.Positions, 1, "unsettleable position stays open")
	assert.InDelta(t, 1000.0, state.TotalBalance, 1e-9, "no pnl realized")
}
