package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/ledger"
	"github.com/iamfarzad/polyagent/internal/notify"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
)

// Resolver reports settlement state for a market. *polymarket.GammaClient
// is the production implementation.
type Resolver interface {
	GetResolution(ctx context.Context, marketID string) (polymarket.Resolution, error)
}

// Settler sweeps open positions for resolved markets, records the realized
// PnL as settlement events, and removes the closed positions. It runs
// beside the agents so positions do not linger after their markets resolve.
type Settler struct {
	resolver Resolver
	led      *ledger.Ledger
	notifier *notify.Notifier // may be nil
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSettler wires a Settler. interval defaults to five minutes.
func NewSettler(resolver Resolver, led *ledger.Ledger, notifier *notify.Notifier, interval time.Duration, logger *slog.Logger) *Settler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Settler{
		resolver: resolver,
		led:      led,
		notifier: notifier,
		interval: interval,
		logger:   logger.With(slog.String("component", "settler")),
		now:      time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Settler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce checks every open position against its market's resolution
// state and settles the ones whose markets have closed.
func (s *Settler) SweepOnce(ctx context.Context) error {
	state, err := s.led.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("agent/settler: snapshot: %w", err)
	}

	for _, pos := range state.Positions {
		res, err := s.resolver.GetResolution(ctx, pos.MarketID)
		if err != nil {
			s.logger.WarnContext(ctx, "resolution check failed",
				slog.String("market_id", pos.MarketID),
				slog.Any("error", err),
			)
			continue
		}
		if !res.Closed {
			continue
		}
		if res.WinningOutcome == "" {
			// Closed with no reported winner: the position cannot settle
			// and nothing should re-enter the market while resolution is
			// disputed.
			if !state.Blacklisted(pos.MarketID) {
				if err := s.led.BlacklistMarket(ctx, pos.MarketID, "closed without winning outcome"); err != nil {
					s.logger.WarnContext(ctx, "blacklist failed",
						slog.String("market_id", pos.MarketID),
						slog.Any("error", err),
					)
				}
			}
			continue
		}

		if err := s.settle(ctx, state, pos, res.WinningOutcome); err != nil {
			s.logger.ErrorContext(ctx, "settlement failed",
				slog.String("market_id", pos.MarketID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// settle records the settlement event and removes the position.
func (s *Settler) settle(ctx context.Context, state domain.ContextState, pos domain.Position, winner string) error {
	pnl := SettlementPnL(pos, winner)

	original, ok := latestFill(state, pos.MarketID)
	if !ok {
		// The fill has aged out of the bounded history; synthesize the
		// reference so the settlement is still recorded.
		original = domain.TradeEvent{
			ID:        pos.MarketID + ":open",
			MarketID:  pos.MarketID,
			Agent:     pos.Agent,
			Outcome:   pos.Outcome,
			Size:      pos.Size,
			Price:     pos.EntryPrice,
			Status:    domain.TradeStatusFilled,
			Timestamp: pos.OpenedAt,
		}
	}

	if err := s.led.SettleTrade(ctx, original, pnl); err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}
	if err := s.led.RemovePosition(ctx, pos.MarketID); err != nil {
		return fmt.Errorf("remove position: %w", err)
	}
	// Realized PnL flows into the balance so the exposure check and the
	// drawdown breaker see losses, not just the seeded figure.
	if err := s.led.ApplyPnL(ctx, pnl); err != nil {
		return fmt.Errorf("apply pnl: %w", err)
	}

	s.logger.InfoContext(ctx, "position settled",
		slog.String("market_id", pos.MarketID),
		slog.String("agent", string(pos.Agent)),
		slog.String("winner", winner),
		slog.Float64("pnl", pnl),
	)
	if s.notifier != nil {
		_ = s.notifier.PositionClosed(ctx, pos.Question, pnl)
	}
	return nil
}

// SettlementPnL computes the realized profit or loss for a settled
// position. A winning share redeems at $1: profit is the stake scaled by
// the inverse entry price minus the stake itself; a losing position
// forfeits the full stake.
func SettlementPnL(pos domain.Position, winner string) float64 {
	if pos.EntryPrice <= 0 {
		return -pos.Size
	}
	won := strings.EqualFold(string(pos.Outcome), winner) ||
		strings.EqualFold(outcomeLabel(pos.Outcome), winner)
	if !won {
		return -pos.Size
	}
	shares := pos.Size / pos.EntryPrice
	return shares - pos.Size
}

// latestFill returns the most recent filled trade event for the market.
func latestFill(state domain.ContextState, marketID string) (domain.TradeEvent, bool) {
	for i := len(state.RecentTrades) - 1; i >= 0; i-- {
		t := state.RecentTrades[i]
		if t.MarketID == marketID && t.Status == domain.TradeStatusFilled {
			return t, true
		}
	}
	return domain.TradeEvent{}, false
}

// outcomeLabel maps the domain outcome constants to Gamma's title-case
// labels.
func outcomeLabel(o domain.Outcome) string {
	switch o {
	case domain.OutcomeYes:
		return "Yes"
	case domain.OutcomeNo:
		return "No"
	case domain.OutcomeUp:
		return "Up"
	case domain.OutcomeDown:
		return "Down"
	}
	return string(o)
}
