package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
)

// ScalperConfig tunes the 15-minute crypto up/down scalper.
type ScalperConfig struct {
	Tag          string        // Gamma category tag, normally "crypto"
	Window       time.Duration // only markets resolving inside this window
	MinMomentum  float64       // live-vs-listed price divergence that signals a move
	MaxStaleness time.Duration // ignore cached prices older than this
	Limit        int
}

// DefaultScalperConfig returns the standard 15-minute window.
func DefaultScalperConfig() ScalperConfig {
	return ScalperConfig{
		Tag:          "crypto",
		Window:       15 * time.Minute,
		MinMomentum:  0.03,
		MaxStaleness: 30 * time.Second,
		Limit:        50,
	}
}

// ScalperScanner trades short-horizon crypto up/down markets. It compares
// the live websocket price in the cache against the slower Gamma listing:
// when the live price has run ahead of the listing by MinMomentum, it bets
// the move continues through resolution.
type ScalperScanner struct {
	gamma  *polymarket.GammaClient
	prices domain.PriceCache
	cfg    ScalperConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewScalperScanner creates the crypto scalper.
func NewScalperScanner(gamma *polymarket.GammaClient, prices domain.PriceCache, cfg ScalperConfig, logger *slog.Logger) *ScalperScanner {
	return &ScalperScanner{
		gamma:  gamma,
		prices: prices,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scalper")),
		now:    time.Now,
	}
}

func (s *ScalperScanner) Tag() domain.AgentTag { return domain.AgentScalper }

// Scan lists imminent crypto markets and proposes the side whose live price
// shows upward momentum against the listing.
func (s *ScalperScanner) Scan(ctx context.Context) ([]Candidate, error) {
	markets, err := s.gamma.ListMarkets(ctx, polymarket.MarketQuery{
		Limit:      s.cfg.Limit,
		ActiveOnly: true,
		Tag:        s.cfg.Tag,
		EndBefore:  s.now().Add(s.cfg.Window),
	})
	if err != nil {
		return nil, fmt.Errorf("agent/scalper: list markets: %w", err)
	}

	var out []Candidate
	for _, m := range markets {
		for _, outcome := range []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown} {
			tok, ok := m.TokenFor(outcome)
			if !ok || tok.TokenID == "" || tok.Price <= 0 {
				continue
			}

			live, ts, err := s.prices.GetPrice(ctx, tok.TokenID)
			if err != nil {
				continue // no fresh feed data for this token
			}
			if s.now().Sub(ts) > s.cfg.MaxStaleness {
				continue
			}

			momentum := live - tok.Price
			if momentum < s.cfg.MinMomentum {
				continue
			}

			// The live move itself is the signal: estimate continuation as
			// the live price plus half the unreflected move, capped well
			// short of certainty.
			p := math.Min(live+momentum/2, 0.95)
			out = append(out, Candidate{
				Market:         m,
				Outcome:        outcome,
				Token:          domain.OutcomeToken{TokenID: tok.TokenID, Outcome: tok.Outcome, Price: live},
				WinProbability: p,
				Note:           fmt.Sprintf("momentum %+.3f (listed %.3f, live %.3f)", momentum, tok.Price, live),
			})
		}
	}

	s.logger.DebugContext(ctx, "scalper scan",
		slog.Int("markets", len(markets)),
		slog.Int("candidates", len(out)),
	)
	return out, nil
}
