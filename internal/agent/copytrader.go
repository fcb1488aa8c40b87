package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
)

// CopyConfig tunes the copy trader.
type CopyConfig struct {
	Window      string        // leaderboard window, e.g. "7d"
	TopWallets  int           // how many leaderboard wallets to follow
	FreshWithin time.Duration // only mirror fills this recent
	MinTradeUSD float64       // ignore fills below this notional
}

// DefaultCopyConfig follows the weekly top ten and mirrors fills under an
// hour old.
func DefaultCopyConfig() CopyConfig {
	return CopyConfig{
		Window:      "7d",
		TopWallets:  10,
		FreshWithin: time.Hour,
		MinTradeUSD: 100,
	}
}

// CopyScanner mirrors recent buys from the Data API profit leaderboard. A
// fill is only proposed once the market still quotes near the wallet's
// entry, so the copy does not chase a move that already happened.
type CopyScanner struct {
	data   *polymarket.DataClient
	gamma  *polymarket.GammaClient
	cfg    CopyConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewCopyScanner creates the copy trader.
func NewCopyScanner(data *polymarket.DataClient, gamma *polymarket.GammaClient, cfg CopyConfig, logger *slog.Logger) *CopyScanner {
	return &CopyScanner{
		data:   data,
		gamma:  gamma,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "copytrader")),
		now:    time.Now,
	}
}

func (s *CopyScanner) Tag() domain.AgentTag { return domain.AgentCopy }

// Scan pulls the leaderboard, collects fresh buys from the top wallets, and
// proposes the same outcome tokens.
func (s *CopyScanner) Scan(ctx context.Context) ([]Candidate, error) {
	wallets, err := s.data.Leaderboard(ctx, s.cfg.Window, s.cfg.TopWallets)
	if err != nil {
		return nil, fmt.Errorf("agent/copy: leaderboard: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.FreshWithin)
	seen := make(map[string]bool) // one candidate per market per cycle

	var out []Candidate
	for _, w := range wallets {
		trades, err := s.data.WalletTrades(ctx, w.Address, 25)
		if err != nil {
			s.logger.WarnContext(ctx, "wallet trades unavailable",
				slog.String("wallet", w.Address),
				slog.Any("error", err),
			)
			continue
		}

		for _, t := range trades {
			if !strings.EqualFold(t.Side, "BUY") || t.Time().Before(cutoff) {
				continue
			}
			if t.Price*t.Size < s.cfg.MinTradeUSD || seen[t.MarketID] {
				continue
			}

			m, err := s.gamma.GetMarket(ctx, t.MarketID)
			if err != nil {
				continue
			}
			outcome := domain.Outcome(strings.ToUpper(t.Outcome))
			tok, ok := m.TokenFor(outcome)
			if !ok || tok.TokenID == "" || tok.Price <= 0 {
				continue
			}
			// Skip if the market already ran past the wallet's entry.
			if tok.Price > t.Price+0.05 {
				continue
			}

			seen[t.MarketID] = true
			out = append(out, Candidate{
				Market:  m,
				Outcome: outcome,
				Token:   tok,
				// A top wallet paying this price implies they see value
				// above it; grant a modest conviction premium.
				WinProbability: math.Min(tok.Price+0.05, 0.95),
				Note:           fmt.Sprintf("mirroring %s ($%.0f @ %.3f)", shortAddr(w.Address), t.Price*t.Size, t.Price),
			})
		}
	}
	return out, nil
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
