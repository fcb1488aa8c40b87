package agent

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/ledger"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
	"github.com/iamfarzad/polyagent/internal/risk"
	"github.com/iamfarzad/polyagent/internal/store/file"
)

type fakeScanner struct {
	tag        domain.AgentTag
	candidates []Candidate
}

func (f *fakeScanner) Tag() domain.AgentTag { return f.tag }
func (f *fakeScanner) Scan(ctx context.Context) ([]Candidate, error) {
	return f.candidates, nil
}

type fakeTrader struct {
	calls []polymarket.BuyArgs
}

func (f *fakeTrader) Buy(ctx context.Context, args polymarket.BuyArgs) (polymarket.OrderResult, error) {
	f.calls = append(f.calls, args)
	return polymarket.OrderResult{Success: true, OrderID: "ord-1", Status: "matched"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T, balance float64) *ledger.Ledger {
	t.Helper()
	store := file.New(filepath.Join(t.TempDir(), "context.json"))
	led := ledger.New(store, nil, ledger.DefaultConfig(), discardLogger())

	ctx := context.Background()
	require.NoError(t, led.RecordBalance(ctx, balance))
	require.NoError(t, led.SetAllocation(ctx, map[domain.AgentTag]float64{
		domain.AgentSafe: 0.5,
	}))
	return led
}

func strongCandidate() Candidate {
	return Candidate{
		Market: domain.Market{
			ID:       "m1",
			Question: "Will the favorite win?",
		},
		Outcome:        domain.OutcomeYes,
		Token:          domain.OutcomeToken{TokenID: "tok1", Outcome: "Yes", Price: 0.50},
		WinProbability: 0.90,
	}
}

func TestRunOncePlacesTrade(t *testing.T) {
	led := newTestLedger(t, 1000)
	trader := &fakeTrader{}
	scanner := &fakeScanner{tag: domain.AgentSafe, candidates: []Candidate{strongCandidate()}}

	r := NewRunner(scanner, led, trader, nil, nil, RunnerConfig{
		InitialBalance: 1000,
		DrawdownLimit:  risk.DefaultDrawdownLimit,
		Kelly:          risk.DefaultKellyParams(),
	}, discardLogger())

	ctx := context.Background()
	require.NoError(t, r.RunOnce(ctx))

	require.Len(t, trader.calls, 1)
	// EV 0.39 at price 0.50 saturates the 10% risk cap; the $100 stake is
	// then clamped by the $50 per-trade ceiling.
	assert.InDelta(t, 50.0, trader.calls[0].StakeUSD, 1e-9)
	assert.Equal(t, "tok1", trader.calls[0].TokenID)

	state, err := led.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.Positions, 1)
	assert.Equal(t, "m1", state.Positions[0].MarketID)
	assert.Equal(t, domain.AgentSafe, state.Positions[0].Agent)

	require.Len(t, state.RecentTrades, 1)
	assert.Equal(t, domain.TradeStatusFilled, state.RecentTrades[0].Status)
}

func TestRunOnceRejectsDuplicate(t *testing.T) {
	led := newTestLedger(t, 1000)
	trader := &fakeTrader{}
	scanner := &fakeScanner{tag: domain.AgentSafe, candidates: []Candidate{strongCandidate()}}

	r := NewRunner(scanner, led, trader, nil, nil, RunnerConfig{
		InitialBalance: 1000,
		DrawdownLimit:  risk.DefaultDrawdownLimit,
		Kelly:          risk.DefaultKellyParams(),
	}, discardLogger())

	ctx := context.Background()
	require.NoError(t, r.RunOnce(ctx))
	require.NoError(t, r.RunOnce(ctx))

	// Second cycle is rejected by admission control, not resubmitted.
	assert.Len(t, trader.calls, 1)
}

func TestRunOnceHaltsOnDrawdown(t *testing.T) {
	led := newTestLedger(t, 900) // 10% below initial
	trader := &fakeTrader{}
	scanner := &fakeScanner{tag: domain.AgentSafe, candidates: []Candidate{strongCandidate()}}

	r := NewRunner(scanner, led, trader, nil, nil, RunnerConfig{
		InitialBalance: 1000,
		DrawdownLimit:  0.05,
		Kelly:          risk.DefaultKellyParams(),
	}, discardLogger())

	err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
	assert.Empty(t, trader.calls)
}

func TestRunOnceSkipsNegativeEV(t *testing.T) {
	led := newTestLedger(t, 1000)
	trader := &fakeTrader{}
	cand := strongCandidate()
	cand.WinProbability = 0.50 // no edge over the 0.50 price
	scanner := &fakeScanner{tag: domain.AgentSafe, candidates: []Candidate{cand}}

	r := NewRunner(scanner, led, trader, nil, nil, RunnerConfig{
		InitialBalance: 1000,
		DrawdownLimit:  risk.DefaultDrawdownLimit,
		Kelly:          risk.DefaultKellyParams(),
	}, discardLogger())

	require.NoError(t, r.RunOnce(context.Background()))
	assert.Empty(t, trader.calls)
}

func TestRunOnceMinConfidenceFilter(t *testing.T) {
	led := newTestLedger(t, 1000)
	trader := &fakeTrader{}
	scanner := &fakeScanner{tag: domain.AgentSafe, candidates: []Candidate{strongCandidate()}}

	r := NewRunner(scanner, led, trader, nil, nil, RunnerConfig{
		InitialBalance: 1000,
		DrawdownLimit:  risk.DefaultDrawdownLimit,
		MinConfidence:  0.95, // above the candidate's 0.90
		Kelly:          risk.DefaultKellyParams(),
	}, discardLogger())

	require.NoError(t, r.RunOnce(context.Background()))
	assert.Empty(t, trader.calls)
}

func TestRunOnceRespectsCooldownAfterFailedBuy(t *testing.T) {
	led := newTestLedger(t, 1000)
	scanner := &fakeScanner{tag: domain.AgentSafe, candidates: []Candidate{strongCandidate()}}
	failing := &failingTrader{}

	r := NewRunner(scanner, led, failing, nil, nil, RunnerConfig{
		InitialBalance: 1000,
		DrawdownLimit:  risk.DefaultDrawdownLimit,
		Kelly:          risk.DefaultKellyParams(),
	}, discardLogger())

	ctx := context.Background()
	require.NoError(t, r.RunOnce(ctx))
	assert.Equal(t, 1, failing.calls)

	state, err := led.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.RecentTrades, 1)
	assert.Equal(t, domain.TradeStatusFailed, state.RecentTrades[0].Status)
	assert.Empty(t, state.Positions)

	// The failed attempt still counts for the per-market cooldown.
	require.NoError(t, r.RunOnce(ctx))
	assert.Equal(t, 1, failing.calls)
}

type failingTrader struct {
	calls int
}

func (f *failingTrader) Buy(ctx context.Context, args polymarket.BuyArgs) (polymarket.OrderResult, error) {
	f.calls++
	return polymarket.OrderResult{}, assert.AnError
}
