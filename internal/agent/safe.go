package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
)

// SafeConfig tunes the high-probability scanner.
type SafeConfig struct {
	MinPrice    float64       // only outcomes already priced at or above this
	MaxPrice    float64       // skip outcomes too close to certain to pay for fees
	MinVolume   float64       // lifetime USD volume floor
	MaxTimeLeft time.Duration // only markets resolving within this window
	Limit       int
}

// DefaultSafeConfig returns the standard scan window: near-certain markets
// resolving within a week.
func DefaultSafeConfig() SafeConfig {
	return SafeConfig{
		MinPrice:    0.90,
		MaxPrice:    0.985,
		MinVolume:   10_000,
		MaxTimeLeft: 7 * 24 * time.Hour,
		Limit:       200,
	}
}

// SafeScanner finds markets the crowd already prices as near-certain. The
// edge, when there is one, comes from the LLM assessment confirming the
// market is even more certain than its price implies; the scanner itself
// reports the market price as its probability estimate.
type SafeScanner struct {
	gamma *polymarket.GammaClient
	cfg   SafeConfig
}

// NewSafeScanner creates the high-probability scanner.
func NewSafeScanner(gamma *polymarket.GammaClient, cfg SafeConfig) *SafeScanner {
	return &SafeScanner{gamma: gamma, cfg: cfg}
}

func (s *SafeScanner) Tag() domain.AgentTag { return domain.AgentSafe }

// Scan lists active markets resolving soon and proposes the outcome sides
// priced inside the [MinPrice, MaxPrice] band.
func (s *SafeScanner) Scan(ctx context.Context) ([]Candidate, error) {
	markets, err := s.gamma.ListMarkets(ctx, polymarket.MarketQuery{
		Limit:      s.cfg.Limit,
		ActiveOnly: true,
		MinVolume:  s.cfg.MinVolume,
		EndBefore:  time.Now().Add(s.cfg.MaxTimeLeft),
	})
	if err != nil {
		return nil, fmt.Errorf("agent/safe: list markets: %w", err)
	}

	var out []Candidate
	for _, m := range markets {
		for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
			tok, ok := m.TokenFor(outcome)
			if !ok || tok.TokenID == "" {
				continue
			}
			if tok.Price < s.cfg.MinPrice || tok.Price > s.cfg.MaxPrice {
				continue
			}
			out = append(out, Candidate{
				Market:         m,
				Outcome:        outcome,
				Token:          tok,
				WinProbability: tok.Price,
				Note:           fmt.Sprintf("near-certain at %.3f, resolves %s", tok.Price, m.EndDate.Format("2006-01-02")),
			})
		}
	}
	return out, nil
}
