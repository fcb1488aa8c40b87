package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
)

// SportsConfig tunes the sports/esports edge finder.
type SportsConfig struct {
	Tags        []string // Gamma category tags to scan
	MinVolume   float64
	MinEdge     float64       // required gap between no-vig probability and price
	MaxTimeLeft time.Duration // only games starting or resolving soon
	Limit       int
}

// DefaultSportsConfig scans sports and esports markets resolving within
// two days.
func DefaultSportsConfig() SportsConfig {
	return SportsConfig{
		Tags:        []string{"sports", "esports"},
		MinVolume:   5_000,
		MinEdge:     0.02,
		MaxTimeLeft: 48 * time.Hour,
		Limit:       100,
	}
}

// SportsScanner looks for sides whose quoted price sits below the market's
// own vig-free implied probability. Binary quotes carry an overround (the
// two prices sum to more than 1); removing it occasionally exposes a side
// the book is underpricing.
type SportsScanner struct {
	gamma *polymarket.GammaClient
	cfg   SportsConfig
}

// NewSportsScanner creates the sports/esports edge finder.
func NewSportsScanner(gamma *polymarket.GammaClient, cfg SportsConfig) *SportsScanner {
	return &SportsScanner{gamma: gamma, cfg: cfg}
}

func (s *SportsScanner) Tag() domain.AgentTag { return domain.AgentSports }

// Scan walks the configured tags and proposes sides with at least MinEdge
// between their no-vig probability and their price.
func (s *SportsScanner) Scan(ctx context.Context) ([]Candidate, error) {
	var out []Candidate
	for _, tag := range s.cfg.Tags {
		markets, err := s.gamma.ListMarkets(ctx, polymarket.MarketQuery{
			Limit:      s.cfg.Limit,
			ActiveOnly: true,
			Tag:        tag,
			MinVolume:  s.cfg.MinVolume,
			EndBefore:  time.Now().Add(s.cfg.MaxTimeLeft),
		})
		if err != nil {
			return nil, fmt.Errorf("agent/sports: list %s markets: %w", tag, err)
		}

		for _, m := range markets {
			yes, okYes := m.TokenFor(domain.OutcomeYes)
			no, okNo := m.TokenFor(domain.OutcomeNo)
			if !okYes || !okNo {
				continue
			}

			pYes, valid := NoVigProbability(yes.Price, no.Price)
			if !valid {
				continue
			}

			for _, side := range []struct {
				outcome domain.Outcome
				token   domain.OutcomeToken
				fair    float64
			}{
				{domain.OutcomeYes, yes, pYes},
				{domain.OutcomeNo, no, 1 - pYes},
			} {
				edge := side.fair - side.token.Price
				if edge < s.cfg.MinEdge || side.token.TokenID == "" {
					continue
				}
				out = append(out, Candidate{
					Market:         m,
					Outcome:        side.outcome,
					Token:          side.token,
					WinProbability: side.fair,
					Note:           fmt.Sprintf("no-vig %.3f vs price %.3f (edge %+.3f)", side.fair, side.token.Price, edge),
				})
			}
		}
	}
	return out, nil
}

// NoVigProbability strips the overround from a binary quote, returning the
// fair probability of the yes side: pYes / (pYes + pNo). It reports false
// when either price is outside (0,1), where normalization is meaningless.
func NoVigProbability(priceYes, priceNo float64) (float64, bool) {
	if priceYes <= 0 || priceYes >= 1 || priceNo <= 0 || priceNo >= 1 {
		return 0, false
	}
	return priceYes / (priceYes + priceNo), true
}
